package dom

// Event models a native DOM event as seen by the runtime: a type, a target,
// optional keyboard/pointer detail, and the propagation flags handlers can
// set.
type Event struct {
	Type   string
	Target *Element

	// Keyboard events.
	Key string

	// Pointer events.
	Button   int
	CtrlKey  bool
	ShiftKey bool
	AltKey   bool
	MetaKey  bool

	defaultPrevented   bool
	propagationStopped bool
}

// PreventDefault suppresses the default action for this event.
func (e *Event) PreventDefault() {
	e.defaultPrevented = true
}

// StopPropagation stops the event from bubbling further.
func (e *Event) StopPropagation() {
	e.propagationStopped = true
}

// DefaultPrevented reports whether a handler suppressed the default action.
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

type listener struct {
	typ string
	fn  func(*Event)
}

// AddEventListener attaches a handler to the element for the given type.
func (e *Element) AddEventListener(typ string, fn func(*Event)) {
	e.doc.listeners[e.node] = append(e.doc.listeners[e.node], &listener{typ: typ, fn: fn})
}

// RemoveEventListeners drops all handlers of the given type on the element.
func (e *Element) RemoveEventListeners(typ string) {
	kept := e.doc.listeners[e.node][:0]
	for _, l := range e.doc.listeners[e.node] {
		if l.typ != typ {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(e.doc.listeners, e.node)
		return
	}
	e.doc.listeners[e.node] = kept
}

// ListenerCount returns the number of handlers of the given type on the
// element.
func (e *Element) ListenerCount(typ string) int {
	count := 0
	for _, l := range e.doc.listeners[e.node] {
		if l.typ == typ {
			count++
		}
	}
	return count
}

// Dispatch delivers an event to the target and bubbles it up through the
// target's ancestors until stopped. It returns the event so callers can
// inspect the propagation flags.
func (d *Document) Dispatch(target *Element, ev *Event) *Event {
	if target == nil || ev == nil {
		return ev
	}
	ev.Target = target
	for el := target; el != nil; el = el.Parent() {
		for _, l := range d.listeners[el.node] {
			if l.typ == ev.Type {
				l.fn(ev)
			}
		}
		if ev.propagationStopped {
			break
		}
	}
	return ev
}

// DispatchSimple dispatches a plain event of the given type at the target.
func (d *Document) DispatchSimple(target *Element, typ string) *Event {
	return d.Dispatch(target, &Event{Type: typ})
}
