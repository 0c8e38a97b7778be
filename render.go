package livewire

import (
	"encoding/json"
	"fmt"
	"html"
	"io"

	"github.com/livefir/livewire/tree"
)

// Container attributes the client runtime discovers regions by. They mirror
// the constants in client/region.
const (
	attrModule = "data-lw-module"
	attrToken  = "data-lw-token"
	attrProps  = "data-lw-props"
)

// PageSession ties the regions rendered into one page response together.
// Joins are only accepted for modules the session actually rendered.
type PageSession struct {
	app *Application
	id  string
}

// NewPage starts a page session for one HTTP response.
func (a *Application) NewPage() (*PageSession, error) {
	if a.closed.Load() {
		return nil, ErrApplicationClosed
	}
	s, err := a.sessions.Create()
	if err != nil {
		return nil, err
	}
	return &PageSession{app: a, id: s.ID}, nil
}

// ID returns the session identifier.
func (p *PageSession) ID() string {
	return p.id
}

// Render mounts a module, renders its initial tree, and writes the live
// container markup. The emitted token carries the props, so the client
// never echoes them back in clear.
func (p *PageSession) Render(w io.Writer, module string, props map[string]any) error {
	a := p.app
	if a.closed.Load() {
		return ErrApplicationClosed
	}

	inst, err := a.registry.New(module, props)
	if err != nil {
		return err
	}

	t, err := inst.Render()
	if err != nil {
		if a.config.MetricsEnabled {
			a.metrics.RenderError()
		}
		return fmt.Errorf("render module %q: %w", module, err)
	}
	if !t.Valid() {
		if a.config.MetricsEnabled {
			a.metrics.RenderError()
		}
		return fmt.Errorf("render module %q: malformed tree", module)
	}
	t.Statics = minifyStatics(t.Statics)

	var propsJSON json.RawMessage
	if len(props) > 0 {
		propsJSON, err = json.Marshal(props)
		if err != nil {
			return fmt.Errorf("encode props for module %q: %w", module, err)
		}
	}

	signed, err := a.tokens.Issue(module, p.id, propsJSON)
	if err != nil {
		return fmt.Errorf("issue join token for module %q: %w", module, err)
	}
	if a.config.MetricsEnabled {
		a.metrics.TokenIssued()
	}
	a.sessions.Permit(p.id, module)

	if _, err := fmt.Fprintf(w, `<div %s="%s" %s="%s"`,
		attrModule, html.EscapeString(module),
		attrToken, html.EscapeString(signed)); err != nil {
		return err
	}
	if propsJSON != nil {
		if _, err := fmt.Fprintf(w, ` %s="%s"`, attrProps, html.EscapeString(string(propsJSON))); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, ">%s</div>", tree.Reconstruct(t)); err != nil {
		return err
	}
	return nil
}
