package livewire

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/livefir/livewire/tree"
)

// counter is the test module used across the server tests.
type counter struct {
	n int
}

func (c *counter) Render() (*tree.Tree, error) {
	return &tree.Tree{
		Statics:  []string{"<span>", "</span>"},
		Dynamics: []tree.Dynamic{tree.Leaf(strconv.Itoa(c.n))},
	}, nil
}

func (c *counter) HandleEvent(ev Event) error {
	switch ev.Handler {
	case "inc":
		c.n++
		return nil
	case "noop":
		return nil
	case "away":
		return Redirect("/elsewhere")
	default:
		return errors.New("unknown handler")
	}
}

func counterFactory(props map[string]any) (Instance, error) {
	c := &counter{}
	if start, ok := props["start"].(float64); ok {
		c.n = int(start)
	}
	return c, nil
}

func newTestApp(t *testing.T, options ...Option) *Application {
	t.Helper()
	options = append([]Option{WithModule("counter", counterFactory)}, options...)
	app, err := NewApplication(options...)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	return app
}

func TestNewApplicationDefaults(t *testing.T) {
	app := newTestApp(t)

	if app.ID() == "" {
		t.Error("application id must be set")
	}
	if app.Config().SocketPath != "/live" {
		t.Errorf("SocketPath = %q, want /live", app.Config().SocketPath)
	}
	if !app.Registry().Has("counter") {
		t.Error("WithModule must register the factory")
	}
}

func TestNewApplicationRejectsInvalidConfig(t *testing.T) {
	bad := DefaultConfig()
	bad.SocketPath = ""
	if _, err := NewApplication(WithConfig(bad)); err == nil {
		t.Fatal("invalid config must be rejected")
	}
}

func TestNewApplicationRejectsDuplicateModule(t *testing.T) {
	_, err := NewApplication(
		WithModule("counter", counterFactory),
		WithModule("counter", counterFactory),
	)
	if !errors.Is(err, ErrModuleExists) {
		t.Fatalf("err = %v, want ErrModuleExists", err)
	}
}

func TestOptionOverrides(t *testing.T) {
	app := newTestApp(t, WithTokenTTL(time.Hour), WithSessionTTL(2*time.Hour), WithMetricsEnabled(false))

	if app.Config().TokenTTL != time.Hour {
		t.Errorf("TokenTTL = %v, want 1h", app.Config().TokenTTL)
	}
	if app.Config().SessionTTL != 2*time.Hour {
		t.Errorf("SessionTTL = %v, want 2h", app.Config().SessionTTL)
	}
	if app.Config().MetricsEnabled {
		t.Error("metrics must be disabled")
	}
}

func TestCloseRefusesNewPages(t *testing.T) {
	app := newTestApp(t)
	if err := app.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := app.NewPage(); !errors.Is(err, ErrApplicationClosed) {
		t.Fatalf("err = %v, want ErrApplicationClosed", err)
	}
}

func TestSessionAccounting(t *testing.T) {
	app := newTestApp(t)

	if _, err := app.NewPage(); err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if _, err := app.NewPage(); err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if app.SessionCount() != 2 {
		t.Errorf("SessionCount = %d, want 2", app.SessionCount())
	}
}
