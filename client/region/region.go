// Package region drives one live container: it joins the server over the
// shared socket, forwards user events, and reconciles incoming snapshots and
// patches into the DOM. Each region is an independent state machine; nested
// regions inside its container belong to their own controllers and are never
// touched by this one.
package region

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/livefir/livewire/client/dom"
	"github.com/livefir/livewire/client/events"
	"github.com/livefir/livewire/client/socket"
	"github.com/livefir/livewire/protocol"
	"github.com/livefir/livewire/tree"
)

// Container attributes injected by the server-side render pipeline.
const (
	AttrModule = "data-lw-module"
	AttrToken  = "data-lw-token"
	AttrProps  = "data-lw-props"
)

// State is the region lifecycle. Transitions only move forward except for the
// Joined/Rejoining loop driven by transport drops.
type State int

const (
	Unjoined State = iota
	Joining
	Joined
	Rejoining
	Destroyed
)

func (s State) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Rejoining:
		return "rejoining"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Wire is the slice of the socket a region depends on.
type Wire interface {
	AllocateID() string
	Register(id string, h socket.Handler)
	Unregister(id string)
	Send(msg *protocol.ClientMessage)
	OnReconnect(fn func()) (unsubscribe func())
}

// Region owns one live container.
type Region struct {
	wire      Wire
	doc       *dom.Document
	container *dom.Element

	id     string
	module string
	token  string

	mu       sync.Mutex
	state    State
	snapshot *tree.Tree
	loading  loadingLedger

	binder         *events.Binder
	unsubReconnect func()
}

// New wires a region to its container and joins immediately: allocate an ID,
// register the frame handler, subscribe to reconnects, send join, flush any
// queued events, bind DOM listeners, and hide loading indicators.
func New(wire Wire, container *dom.Element) (*Region, error) {
	module, ok := container.Attr(AttrModule)
	if !ok || module == "" {
		return nil, fmt.Errorf("container is not a live region: missing %s", AttrModule)
	}

	r := &Region{
		wire:      wire,
		doc:       container.Document(),
		container: container,
		module:    module,
		token:     container.AttrOr(AttrToken, ""),
	}
	r.id = wire.AllocateID()
	r.binder = events.NewBinder(r.doc, r.dispatch, r.foreign)

	wire.Register(r.id, r.handleFrame)
	r.unsubReconnect = wire.OnReconnect(r.reconnected)

	r.mu.Lock()
	r.state = Joining
	r.mu.Unlock()

	// The join goes out (or queues on the socket) before listeners attach, so
	// any event fired from here on is ordered behind it.
	wire.Send(protocol.Join(r.id, r.module, r.token))

	r.binder.Scan(container)
	hideIndicators(container)
	return r, nil
}

// ID returns the socket-allocated region identifier.
func (r *Region) ID() string {
	return r.id
}

// Module returns the module name the region joined with.
func (r *Region) Module() string {
	return r.module
}

// State returns the current lifecycle state.
func (r *Region) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Container returns the DOM element the region owns.
func (r *Region) Container() *dom.Element {
	return r.container
}

// foreign reports whether an element belongs to a descendant live region and
// must be left to that region's own binder and morph pass.
func (r *Region) foreign(el *dom.Element) bool {
	owner := el.Closest(func(a *dom.Element) bool { return a.HasAttr(AttrModule) })
	return owner != nil && !owner.Same(r.container)
}

// dispatch receives fired bindings from the event layer. Discrete
// interactions run the loading sub-protocol before the frame goes out.
func (r *Region) dispatch(handler, event string, vars *protocol.SpecialVars, trigger *dom.Element, discrete bool) {
	r.mu.Lock()
	if r.state == Destroyed {
		r.mu.Unlock()
		return
	}
	if discrete {
		r.loading.apply(r.container, trigger)
	}
	r.mu.Unlock()

	r.wire.Send(protocol.Event(r.id, handler, event, vars))
}

// handleFrame processes one inbound server frame. Every frame type clears
// loading state first: the server answered, so nothing is in flight anymore.
func (r *Region) handleFrame(msg *protocol.ServerMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Destroyed {
		return
	}
	r.loading.clear()

	switch msg.Type {
	case protocol.TypeTrees:
		// On the first join the server-rendered markup already matches, so
		// the snapshot is held without touching the DOM. A later trees frame
		// means the server re-rendered from scratch and the DOM may be stale.
		first := r.state == Joining
		r.snapshot = msg.Tree
		r.state = Joined
		if !first {
			r.morph(tree.Reconstruct(r.snapshot))
		}

	case protocol.TypePatch:
		if r.snapshot == nil {
			glog.V(1).Infof("livewire: region %s dropped patch without snapshot", r.id)
			return
		}
		tree.Apply(r.snapshot.Dynamics, msg.Diff)
		r.morph(tree.Reconstruct(r.snapshot))

	case protocol.TypeError:
		glog.Warningf("livewire: region %s (%s) server error: %s", r.id, r.module, msg.Error)
	}
}

// morph folds the reconstructed markup into the container, rebinds whatever
// the patch introduced, and re-hides any new indicators.
func (r *Region) morph(markup string) {
	err := dom.Morph(r.container, markup, dom.MorphOptions{
		KeyAttrs: events.KeyAttrs(),
		Skip:     r.foreign,
	})
	if err != nil {
		glog.Warningf("livewire: region %s morph failed: %v", r.id, err)
		return
	}
	r.binder.Scan(r.container)
	hideIndicators(r.container)
}

// reconnected runs after the socket re-establishes. The server actor behind
// the old connection is gone, so the held snapshot is useless: drop it and
// join again from scratch.
func (r *Region) reconnected() {
	r.mu.Lock()
	if r.state == Destroyed {
		r.mu.Unlock()
		return
	}
	r.snapshot = nil
	r.state = Rejoining
	r.mu.Unlock()

	r.wire.Send(protocol.Join(r.id, r.module, r.token))
}

// Destroy takes the region out of service: reconnect subscription dropped,
// socket handler unregistered (emitting a leave frame), loading state
// reversed. Frames arriving afterwards are ignored.
func (r *Region) Destroy() {
	r.mu.Lock()
	if r.state == Destroyed {
		r.mu.Unlock()
		return
	}
	r.state = Destroyed
	r.loading.clear()
	r.mu.Unlock()

	if r.unsubReconnect != nil {
		r.unsubReconnect()
	}
	r.binder.Close()
	r.wire.Unregister(r.id)
}
