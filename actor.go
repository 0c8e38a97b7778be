package livewire

import (
	"errors"

	"github.com/golang/glog"

	"github.com/livefir/livewire/protocol"
	"github.com/livefir/livewire/tree"
)

// actor drives one joined region. It is the only goroutine touching the
// module instance; everything reaches it through the mailbox.
type actor struct {
	id      string
	app     *Application
	inst    Instance
	send    func(*protocol.ServerMessage)
	mailbox chan *protocol.ClientMessage
	done    chan struct{}

	// last is the snapshot the client holds, owned by the run goroutine.
	last *tree.Tree
}

// spawnActor starts an actor and sends the initial trees frame.
func spawnActor(app *Application, id string, inst Instance, send func(*protocol.ServerMessage)) *actor {
	a := &actor{
		id:      id,
		app:     app,
		inst:    inst,
		send:    send,
		mailbox: make(chan *protocol.ClientMessage, 16),
		done:    make(chan struct{}),
	}
	if app.config.MetricsEnabled {
		app.metrics.RegionJoined()
	}
	go a.run()
	return a
}

// deliver queues a frame. It drops the frame if the actor already stopped.
func (a *actor) deliver(msg *protocol.ClientMessage) {
	select {
	case a.mailbox <- msg:
	case <-a.done:
	}
}

// stop terminates the actor. Safe to call more than once.
func (a *actor) stop() {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
}

func (a *actor) run() {
	defer func() {
		if a.app.config.MetricsEnabled {
			a.app.metrics.RegionDestroyed()
		}
	}()

	a.renderInitial()

	for {
		select {
		case <-a.done:
			return
		case msg := <-a.mailbox:
			if msg.Type == protocol.TypeEvent {
				a.handleEvent(msg)
			}
		}
	}
}

func (a *actor) renderInitial() {
	t, err := a.inst.Render()
	if err != nil || !t.Valid() {
		if a.app.config.MetricsEnabled {
			a.app.metrics.RenderError()
		}
		glog.Warningf("region %s: initial render failed: %v", a.id, err)
		a.send(protocol.ErrorFrame(a.id, "render failed"))
		return
	}
	t.Statics = minifyStatics(t.Statics)
	a.last = t
	a.send(protocol.Trees(a.id, t))
}

// handleEvent runs one interaction. The client entered its loading state
// when it sent the frame, so every path below answers with some frame.
func (a *actor) handleEvent(msg *protocol.ClientMessage) {
	ev := Event{Handler: msg.Handler, Type: msg.Event}
	if msg.Vars != nil {
		ev.Value = msg.Vars.Value
		ev.Checked = msg.Vars.Checked
		ev.Key = msg.Vars.Key
	}

	if err := a.inst.HandleEvent(ev); err != nil {
		var redirect *redirectError
		if errors.As(err, &redirect) {
			a.send(protocol.Redirect(redirect.url))
			return
		}
		if a.app.config.MetricsEnabled {
			a.app.metrics.RenderError()
		}
		glog.Warningf("region %s: handler %q: %v", a.id, msg.Handler, err)
		a.send(protocol.ErrorFrame(a.id, err.Error()))
		return
	}

	t, err := a.inst.Render()
	if err != nil || !t.Valid() {
		if a.app.config.MetricsEnabled {
			a.app.metrics.RenderError()
		}
		glog.Warningf("region %s: render after %q failed: %v", a.id, msg.Handler, err)
		a.send(protocol.ErrorFrame(a.id, "render failed"))
		return
	}
	t.Statics = minifyStatics(t.Statics)

	// A patch only makes sense against a snapshot with the same statics.
	// No snapshot (failed initial render) or a root statics change both
	// get a fresh trees frame.
	if a.last == nil || !tree.SameStatics(a.last, t) {
		a.last = t
		a.send(protocol.Trees(a.id, t))
		return
	}

	diff := tree.Compute(a.last, t)
	a.last = t
	if a.app.config.MetricsEnabled {
		a.app.metrics.PatchSent()
	}
	// An empty diff still goes out so the client can leave loading state.
	a.send(protocol.Patch(a.id, diff))
}
