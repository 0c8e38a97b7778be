package livewire

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/livefir/livewire/internal/metrics"
	"github.com/livefir/livewire/internal/session"
	"github.com/livefir/livewire/internal/token"
)

// Application owns the module registry, the page sessions, and the live
// socket endpoint. One Application serves one site.
type Application struct {
	id       string
	config   *Config
	registry *Registry
	tokens   *token.Service
	sessions *session.Manager
	metrics  *metrics.Collector
	upgrader websocket.Upgrader
	closed   atomic.Bool
}

// Option configures an Application instance.
type Option func(*Application) error

// NewApplication creates an application with the given options applied over
// the default configuration.
func NewApplication(options ...Option) (*Application, error) {
	a := &Application{
		id:       uuid.New().String(),
		config:   DefaultConfig(),
		registry: NewRegistry(),
	}

	for _, option := range options {
		if err := option(a); err != nil {
			return nil, err
		}
	}

	if err := a.config.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewService(&token.Config{TTL: a.config.TokenTTL})
	if err != nil {
		return nil, err
	}
	a.tokens = tokens
	a.sessions = session.NewManager(a.config.SessionTTL)
	a.metrics = metrics.NewCollector()
	return a, nil
}

// WithConfig replaces the whole configuration.
func WithConfig(config *Config) Option {
	return func(a *Application) error {
		a.config = config
		return nil
	}
}

// WithModule registers a module factory under a name.
func WithModule(name string, factory Factory) Option {
	return func(a *Application) error {
		return a.registry.Register(name, factory)
	}
}

// WithTokenTTL overrides the join token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *Application) error {
		a.config.TokenTTL = ttl
		return nil
	}
}

// WithSessionTTL overrides the page session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(a *Application) error {
		a.config.SessionTTL = ttl
		return nil
	}
}

// WithMetricsEnabled toggles the collector.
func WithMetricsEnabled(enabled bool) Option {
	return func(a *Application) error {
		a.config.MetricsEnabled = enabled
		return nil
	}
}

// WithCheckOrigin overrides the websocket origin check. The default follows
// the websocket package and refuses cross-origin upgrades.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(a *Application) error {
		a.upgrader.CheckOrigin = check
		return nil
	}
}

// ID returns the application's instance identifier.
func (a *Application) ID() string {
	return a.id
}

// Registry exposes the module registry for registration after construction.
func (a *Application) Registry() *Registry {
	return a.registry
}

// Config returns the active configuration.
func (a *Application) Config() *Config {
	return a.config
}

// Metrics returns a snapshot of the collector.
func (a *Application) Metrics() metrics.Snapshot {
	return a.metrics.Get()
}

// SessionCount returns the number of live page sessions.
func (a *Application) SessionCount() int {
	return a.sessions.Count()
}

// CleanupExpiredSessions drops idle page sessions, returning how many went.
func (a *Application) CleanupExpiredSessions() int {
	return a.sessions.CleanupExpired()
}

// Close refuses further renders and socket connections. Connections already
// established run until their clients disconnect.
func (a *Application) Close() error {
	a.closed.Store(true)
	return nil
}
