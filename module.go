// Package livewire is the server side of a live-UI framework: modules render
// statics/dynamics trees, one actor per joined region drives them, and the
// client runtime applies the resulting patches over a shared websocket.
package livewire

import (
	"fmt"
	"sort"
	"sync"

	"github.com/livefir/livewire/tree"
)

// Event is one client interaction delivered to a module instance.
type Event struct {
	// Handler is the identifier from the element's binding attribute.
	Handler string

	// Type is the DOM event name (click, input, ...).
	Type string

	// Special variables, populated conditionally by the client.
	Value   *string
	Checked *bool
	Key     *string
}

// Instance is one region's live state. Every joined region gets its own
// instance; the owning actor is the only goroutine touching it.
type Instance interface {
	// Render produces the region's current statics/dynamics tree.
	Render() (*tree.Tree, error)

	// HandleEvent mutates state for one interaction. Returning an error
	// sends the client an error frame; returning Redirect sends the whole
	// page elsewhere.
	HandleEvent(ev Event) error
}

// Factory builds a module instance from the props captured at render time.
type Factory func(props map[string]any) (Instance, error)

// redirectError carries a navigation request out of an event handler.
type redirectError struct {
	url string
}

func (e *redirectError) Error() string {
	return fmt.Sprintf("redirect to %s", e.url)
}

// Redirect makes an event handler navigate the whole page. The actor turns
// it into a redirect frame instead of an error frame.
func Redirect(url string) error {
	return &redirectError{url: url}
}

// Registry maps module names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a name. Names are registered once.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("register module: empty name")
	}
	if factory == nil {
		return fmt.Errorf("register module %q: nil factory", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("register module %q: %w", name, ErrModuleExists)
	}
	r.factories[name] = factory
	return nil
}

// New builds a fresh instance of a named module.
func (r *Registry) New(name string, props map[string]any) (Instance, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("module %q: %w", name, ErrUnknownModule)
	}
	inst, err := factory(props)
	if err != nil {
		return nil, fmt.Errorf("mount module %q: %w", name, err)
	}
	return inst, nil
}

// Has reports whether a module name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
