package dom

import (
	"golang.org/x/net/html"
)

// SideTable associates ephemeral per-element state (bound-listener markers,
// debounce timers, loading snapshots) with element identity without mutating
// the element itself. Entries for elements removed from the document are
// dropped automatically via the document's removal hook.
type SideTable[T any] struct {
	entries map[*html.Node]T
	unsub   func()
}

// NewSideTable creates a side table attached to the document's removal hook.
func NewSideTable[T any](doc *Document) *SideTable[T] {
	t := &SideTable[T]{entries: make(map[*html.Node]T)}
	t.unsub = doc.OnElementRemoved(func(el *Element) {
		delete(t.entries, el.node)
	})
	return t
}

// Close detaches the table from the document's removal hook and drops its
// entries. Required when the table outlives its owner but not the document.
func (t *SideTable[T]) Close() {
	if t.unsub != nil {
		t.unsub()
		t.unsub = nil
	}
	t.entries = make(map[*html.Node]T)
}

// Get returns the entry for an element.
func (t *SideTable[T]) Get(el *Element) (T, bool) {
	v, ok := t.entries[el.node]
	return v, ok
}

// Set stores the entry for an element.
func (t *SideTable[T]) Set(el *Element, v T) {
	t.entries[el.node] = v
}

// Delete removes the entry for an element.
func (t *SideTable[T]) Delete(el *Element) {
	delete(t.entries, el.node)
}

// Len returns the number of live entries.
func (t *SideTable[T]) Len() int {
	return len(t.entries)
}
