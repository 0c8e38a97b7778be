package livewire

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config tunes an Application. The zero value is not usable; start from
// DefaultConfig or LoadConfig.
type Config struct {
	// SocketPath is the URL path the live socket is mounted on.
	SocketPath string `yaml:"socket_path" validate:"required,startswith=/"`

	// ReconnectBase and ReconnectMax bound the client's exponential backoff.
	// They are published to the client runtime through the page bootstrap.
	ReconnectBase time.Duration `yaml:"reconnect_base" validate:"gt=0"`
	ReconnectMax  time.Duration `yaml:"reconnect_max" validate:"gtefield=ReconnectBase"`

	// DebounceDefault applies to input bindings that do not name their own
	// debounce window.
	DebounceDefault time.Duration `yaml:"debounce_default" validate:"gte=0"`

	// NavCacheSize and NavCacheTTL size the client navigation page cache.
	NavCacheSize int           `yaml:"nav_cache_size" validate:"gt=0"`
	NavCacheTTL  time.Duration `yaml:"nav_cache_ttl" validate:"gt=0"`

	// PrefetchDelay is how long a link must be hovered before prefetching.
	PrefetchDelay time.Duration `yaml:"prefetch_delay" validate:"gte=0"`

	// TokenTTL bounds join token lifetime; SessionTTL bounds page sessions.
	TokenTTL   time.Duration `yaml:"token_ttl" validate:"gt=0"`
	SessionTTL time.Duration `yaml:"session_ttl" validate:"gt=0"`

	// MetricsEnabled turns the collector on.
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		SocketPath:      "/live",
		ReconnectBase:   250 * time.Millisecond,
		ReconnectMax:    10 * time.Second,
		DebounceDefault: 250 * time.Millisecond,
		NavCacheSize:    20,
		NavCacheTTL:     30 * time.Second,
		PrefetchDelay:   65 * time.Millisecond,
		TokenTTL:        24 * time.Hour,
		SessionTTL:      24 * time.Hour,
		MetricsEnabled:  true,
	}
}

// LoadConfig reads a YAML config file, fills missing fields from the
// defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// rawConfig mirrors Config with durations as strings so YAML files can say
// "250ms" or "1h". Absent fields leave the receiver untouched.
type rawConfig struct {
	SocketPath      *string `yaml:"socket_path"`
	ReconnectBase   *string `yaml:"reconnect_base"`
	ReconnectMax    *string `yaml:"reconnect_max"`
	DebounceDefault *string `yaml:"debounce_default"`
	NavCacheSize    *int    `yaml:"nav_cache_size"`
	NavCacheTTL     *string `yaml:"nav_cache_ttl"`
	PrefetchDelay   *string `yaml:"prefetch_delay"`
	TokenTTL        *string `yaml:"token_ttl"`
	SessionTTL      *string `yaml:"session_ttl"`
	MetricsEnabled  *bool   `yaml:"metrics_enabled"`
}

// UnmarshalYAML overlays the file's fields on whatever the receiver already
// holds, parsing durations with time.ParseDuration.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.SocketPath != nil {
		c.SocketPath = *raw.SocketPath
	}
	if raw.NavCacheSize != nil {
		c.NavCacheSize = *raw.NavCacheSize
	}
	if raw.MetricsEnabled != nil {
		c.MetricsEnabled = *raw.MetricsEnabled
	}

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"reconnect_base", raw.ReconnectBase, &c.ReconnectBase},
		{"reconnect_max", raw.ReconnectMax, &c.ReconnectMax},
		{"debounce_default", raw.DebounceDefault, &c.DebounceDefault},
		{"nav_cache_ttl", raw.NavCacheTTL, &c.NavCacheTTL},
		{"prefetch_delay", raw.PrefetchDelay, &c.PrefetchDelay},
		{"token_ttl", raw.TokenTTL, &c.TokenTTL},
		{"session_ttl", raw.SessionTTL, &c.SessionTTL},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Validate checks the configuration's internal consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
