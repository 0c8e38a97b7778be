// Package events wires declarative data-lw-* attributes to DOM events: it
// scans a live container, binds listeners exactly once per element, parses
// prevent/stop/debounce modifiers, extracts special variables from the native
// event, and hands finished payloads to the region controller.
package events

import (
	"strconv"
	"sync"
	"time"

	"github.com/livefir/livewire/client/dom"
	"github.com/livefir/livewire/protocol"
)

// Binding attributes, one per supported event type.
const (
	AttrClick   = "data-lw-click"
	AttrInput   = "data-lw-input"
	AttrChange  = "data-lw-change"
	AttrSubmit  = "data-lw-submit"
	AttrKeydown = "data-lw-keydown"
	AttrKeyup   = "data-lw-keyup"
	AttrFocus   = "data-lw-focus"
	AttrBlur    = "data-lw-blur"
)

// Modifier attributes.
const (
	AttrPrevent  = "data-lw-prevent"
	AttrStop     = "data-lw-stop"
	AttrDebounce = "data-lw-debounce"
)

// DefaultDebounce applies when the debounce flag is present without a value.
const DefaultDebounce = 300 * time.Millisecond

// eventAttrs maps event names to their binding attribute, in scan order.
var eventAttrs = []struct {
	event string
	attr  string
}{
	{"click", AttrClick},
	{"input", AttrInput},
	{"change", AttrChange},
	{"submit", AttrSubmit},
	{"keydown", AttrKeydown},
	{"keyup", AttrKeyup},
	{"focus", AttrFocus},
	{"blur", AttrBlur},
}

// KeyAttrs lists the binding attributes in the priority order the morph uses
// to derive stable element keys.
func KeyAttrs() []string {
	out := make([]string, 0, len(eventAttrs))
	for _, ea := range eventAttrs {
		out = append(out, ea.attr)
	}
	return out
}

// Dispatch receives one fired binding. discrete marks click/submit
// interactions, which additionally run the loading-state sub-protocol before
// the payload is sent.
type Dispatch func(handler, event string, vars *protocol.SpecialVars, trigger *dom.Element, discrete bool)

// Binder scans a container and keeps its bindings alive across patches.
type Binder struct {
	dispatch Dispatch
	skip     func(*dom.Element) bool

	mu     sync.Mutex
	bound  *dom.SideTable[map[string]bool]
	timers *dom.SideTable[map[string]*time.Timer]

	defaultDebounce time.Duration
}

// NewBinder creates a binder for one document. skip marks elements owned by a
// descendant live region; those are left for their own region to bind.
func NewBinder(doc *dom.Document, dispatch Dispatch, skip func(*dom.Element) bool) *Binder {
	return &Binder{
		dispatch:        dispatch,
		skip:            skip,
		bound:           dom.NewSideTable[map[string]bool](doc),
		timers:          dom.NewSideTable[map[string]*time.Timer](doc),
		defaultDebounce: DefaultDebounce,
	}
}

// Close detaches the binder's side tables from the document's removal hook.
// Pending debounce timers find their table entry gone and never dispatch.
func (b *Binder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bound.Close()
	b.timers.Close()
}

// binding is the per-element modifier set, parsed once at bind time. The
// handler name is not part of it: patches may rewrite the binding attribute
// under a live listener, so the handler is read from the element at fire time.
type binding struct {
	attr     string
	event    string
	prevent  bool
	stop     bool
	debounce time.Duration
}

// Scan walks the container and binds every recognized event attribute not
// already bound. Safe to run after every patch: elements that survived the
// diff keep their single listener.
func (b *Binder) Scan(container *dom.Element) {
	candidates := append([]*dom.Element{container}, container.Descendants(func(el *dom.Element) bool {
		return true
	})...)

	for _, el := range candidates {
		if b.skip != nil && !el.Same(container) && b.skip(el) {
			continue
		}
		for _, ea := range eventAttrs {
			handler, ok := el.Attr(ea.attr)
			if !ok || handler == "" {
				continue
			}
			if b.alreadyBound(el, ea.event) {
				continue
			}
			b.markBound(el, ea.event)
			b.attach(el, &binding{
				attr:     ea.attr,
				event:    ea.event,
				prevent:  el.HasAttr(AttrPrevent),
				stop:     el.HasAttr(AttrStop),
				debounce: parseDebounce(el, b.defaultDebounce),
			})
		}
	}
}

func (b *Binder) alreadyBound(el *dom.Element, event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.bound.Get(el)
	return ok && set[event]
}

func (b *Binder) markBound(el *dom.Element, event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.bound.Get(el)
	if !ok {
		set = make(map[string]bool)
		b.bound.Set(el, set)
	}
	set[event] = true
}

func (b *Binder) attach(el *dom.Element, bd *binding) {
	el.AddEventListener(bd.event, func(ev *dom.Event) {
		if bd.prevent {
			ev.PreventDefault()
		}
		if bd.stop {
			ev.StopPropagation()
		}

		// A patch may have rewritten or dropped the attribute since binding.
		handler, ok := el.Attr(bd.attr)
		if !ok || handler == "" {
			return
		}

		vars := specialVars(el, ev)

		if bd.debounce > 0 {
			b.restartTimer(el, bd, handler, vars)
			return
		}

		discrete := bd.event == "click" || bd.event == "submit"
		b.dispatch(handler, bd.event, vars, el, discrete)
	})
}

// restartTimer cancels and restarts the element's own timer for this event;
// debouncing one element never delays another. The payload sent on expiry is
// the one captured at the last firing.
func (b *Binder) restartTimer(el *dom.Element, bd *binding, handler string, vars *protocol.SpecialVars) {
	b.mu.Lock()
	defer b.mu.Unlock()

	timers, ok := b.timers.Get(el)
	if !ok {
		timers = make(map[string]*time.Timer)
		b.timers.Set(el, timers)
	}
	if prev := timers[bd.event]; prev != nil {
		prev.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(bd.debounce, func() {
		b.mu.Lock()
		current, ok := b.timers.Get(el)
		if !ok || current[bd.event] != timer {
			// A newer firing superseded this timer.
			b.mu.Unlock()
			return
		}
		delete(current, bd.event)
		b.mu.Unlock()

		b.dispatch(handler, bd.event, vars, el, false)
	})
	timers[bd.event] = timer
}

// specialVars extracts the conditional payload fields from the element and
// the native event.
func specialVars(el *dom.Element, ev *dom.Event) *protocol.SpecialVars {
	vars := &protocol.SpecialVars{}

	switch el.Tag() {
	case "input":
		typ := el.AttrOr("type", "text")
		if typ == "checkbox" || typ == "radio" {
			checked := el.Checked()
			vars.Checked = &checked
		} else {
			value := el.Value()
			vars.Value = &value
		}
	case "textarea", "select":
		value := el.Value()
		vars.Value = &value
	}

	if ev.Type == "keydown" || ev.Type == "keyup" {
		key := ev.Key
		vars.Key = &key
	}

	if vars.Value == nil && vars.Checked == nil && vars.Key == nil {
		return nil
	}
	return vars
}

func parseDebounce(el *dom.Element, def time.Duration) time.Duration {
	raw, ok := el.Attr(AttrDebounce)
	if !ok {
		return 0
	}
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
