package livewire

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/livefir/livewire/protocol"
)

// HandleSocket returns the http.Handler for the live socket endpoint. Each
// connection multiplexes every region on one page: the read loop routes
// frames to per-region actors and a single writer goroutine serializes
// everything going back out.
func (a *Application) HandleSocket() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.closed.Load() {
			http.Error(w, "application closed", http.StatusServiceUnavailable)
			return
		}
		conn, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			glog.Warningf("livewire: websocket upgrade failed: %v", err)
			return
		}
		a.serveConn(conn)
	})
}

func (a *Application) serveConn(conn *websocket.Conn) {
	defer conn.Close()

	// Actors send concurrently; the writer goroutine is the only one
	// touching the connection's write side.
	outbox := make(chan *protocol.ServerMessage, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbox {
			if err := conn.WriteJSON(msg); err != nil {
				glog.V(1).Infof("livewire: websocket write failed: %v", err)
				return
			}
			if a.config.MetricsEnabled {
				a.metrics.FrameOut()
			}
		}
	}()

	send := func(msg *protocol.ServerMessage) {
		select {
		case outbox <- msg:
		case <-writerDone:
		}
	}

	// Only the read loop touches this map.
	actors := make(map[string]*actor)
	defer func() {
		for _, act := range actors {
			act.stop()
		}
		close(outbox)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				glog.Warningf("livewire: websocket read failed: %v", err)
			}
			return
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			glog.Warningf("livewire: dropping frame: %v", err)
			continue
		}
		if a.config.MetricsEnabled {
			a.metrics.FrameIn()
		}

		switch msg.Type {
		case protocol.TypeJoin:
			if err := a.join(actors, msg, send); err != nil {
				glog.Warningf("livewire: join %s (%s) refused: %v", msg.ID, msg.Module, err)
				send(protocol.ErrorFrame(msg.ID, "join refused"))
			}

		case protocol.TypeEvent:
			act, ok := actors[msg.ID]
			if !ok {
				glog.V(1).Infof("livewire: event for unknown region %s", msg.ID)
				continue
			}
			act.deliver(msg)

		case protocol.TypeLeave:
			act, ok := actors[msg.ID]
			if !ok {
				continue
			}
			act.stop()
			delete(actors, msg.ID)
		}
	}
}

// join validates a join frame and spawns the region's actor. The token must
// verify, name the joined module, and belong to a session that rendered it.
func (a *Application) join(actors map[string]*actor, msg *protocol.ClientMessage, send func(*protocol.ServerMessage)) error {
	if _, exists := actors[msg.ID]; exists {
		return fmt.Errorf("region %s: %w", msg.ID, ErrRegionExists)
	}
	if !a.registry.Has(msg.Module) {
		return fmt.Errorf("module %q: %w", msg.Module, ErrUnknownModule)
	}

	claims, err := a.tokens.Verify(msg.Token, msg.Module)
	if err != nil {
		if a.config.MetricsEnabled {
			a.metrics.TokenFailure()
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !a.sessions.Allowed(claims.Session, msg.Module) {
		if a.config.MetricsEnabled {
			a.metrics.TokenFailure()
		}
		return fmt.Errorf("session %s: %w", claims.Session, ErrSessionUnknown)
	}

	var props map[string]any
	if len(claims.Props) > 0 {
		if err := json.Unmarshal(claims.Props, &props); err != nil {
			return fmt.Errorf("decode props: %w", err)
		}
	}

	inst, err := a.registry.New(msg.Module, props)
	if err != nil {
		return err
	}
	actors[msg.ID] = spawnActor(a, msg.ID, inst, send)
	return nil
}
