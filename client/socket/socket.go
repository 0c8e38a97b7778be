// Package socket owns the single persistent connection shared by every live
// region on a page. It allocates region IDs, queues outbound frames across
// connects and reconnects, routes inbound frames to per-region handlers, and
// drives the rejoin protocol after the transport re-establishes.
package socket

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/livefir/livewire/protocol"
)

// Transport is one established bidirectional connection.
type Transport interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer establishes transports. The production implementation wraps
// gorilla/websocket; tests substitute an in-memory fake.
type Dialer interface {
	Dial(url string) (Transport, error)
}

// Handler receives the inbound frames addressed to one region.
type Handler func(*protocol.ServerMessage)

// Navigator performs an in-page navigation for global redirect frames. When
// no navigator is installed the redirect falls back to FallbackNavigate.
type Navigator interface {
	Navigate(url string) error
}

// Options configures a Socket.
type Options struct {
	BackoffBase      time.Duration // first reconnect delay, doubles per attempt
	MaxReconnects    int           // beyond this the socket halts for good
	Navigator        Navigator
	FallbackNavigate func(url string) // full browser navigation
}

const (
	defaultBackoffBase   = 250 * time.Millisecond
	defaultMaxReconnects = 8
)

// Socket multiplexes all live regions of a page over one transport.
type Socket struct {
	url    string
	dialer Dialer
	opts   Options

	mu           sync.Mutex
	conn         Transport
	connected    bool
	wasConnected bool
	attempts     int
	closed       bool
	flushing     bool

	session  string
	nextID   int
	handlers map[string]Handler
	pending  []*protocol.ClientMessage

	reconnectSeq  int
	reconnectSubs []*reconnectSub

	reconnectTimer *time.Timer
}

type reconnectSub struct {
	id int
	fn func()
}

// New creates a socket for the given endpoint. The socket stays idle until
// Connect is called.
func New(url string, dialer Dialer, opts Options) *Socket {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return &Socket{
		url:      url,
		dialer:   dialer,
		opts:     opts,
		session:  ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String(),
		handlers: make(map[string]Handler),
	}
}

// Session returns the page-session identifier embedded in every region ID.
func (s *Socket) Session() string {
	return s.session
}

// AllocateID returns a fresh region ID. IDs are monotonically increasing and
// never reused, even after a region is destroyed, so an in-flight server
// frame for a dead region can never hit a newborn one.
func (s *Socket) AllocateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("%s-%d", s.session, s.nextID)
}

// Register installs the inbound handler for a region.
func (s *Socket) Register(id string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[id] = h
}

// Unregister removes a region's handler and tells the server to release the
// region's actor immediately instead of waiting for a timeout.
func (s *Socket) Unregister(id string) {
	s.mu.Lock()
	_, known := s.handlers[id]
	delete(s.handlers, id)
	s.mu.Unlock()
	if known {
		s.Send(protocol.Leave(id))
	}
}

// Send delivers a frame now if the transport is open, otherwise queues it
// FIFO for the next successful connect. Events fired while disconnected are
// therefore never silently lost.
func (s *Socket) Send(msg *protocol.ClientMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.connected || s.conn == nil || s.flushing {
		s.pending = append(s.pending, msg)
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()

	if err := s.write(conn, msg); err != nil {
		glog.Warningf("livewire: send failed, queueing frame: %v", err)
		s.mu.Lock()
		s.pending = append(s.pending, msg)
		s.mu.Unlock()
		s.transportLost(conn)
	}
}

func (s *Socket) write(conn Transport, msg *protocol.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return conn.WriteMessage(data)
}

// OnReconnect registers a callback run, in registration order, every time the
// transport re-establishes after having been open before. The returned
// unsubscribe is idempotent.
func (s *Socket) OnReconnect(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	s.reconnectSeq++
	sub := &reconnectSub{id: s.reconnectSeq, fn: fn}
	s.reconnectSubs = append(s.reconnectSubs, sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cand := range s.reconnectSubs {
			if cand.id == sub.id {
				s.reconnectSubs = append(s.reconnectSubs[:i], s.reconnectSubs[i+1:]...)
				return
			}
		}
	}
}

// Connected reports whether the transport is currently open.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect dials the endpoint. On success the pending queue is flushed in
// FIFO order before any reconnect callback runs, so frames queued before the
// drop are never reordered behind rejoin frames.
func (s *Socket) Connect() {
	s.mu.Lock()
	if s.closed || s.connected {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	conn, err := s.dialer.Dial(s.url)
	if err != nil {
		glog.Warningf("livewire: dial %s failed: %v", s.url, err)
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.connected = true
	s.attempts = 0
	reconnected := s.wasConnected
	s.wasConnected = true
	s.mu.Unlock()

	s.flushPending(conn)

	if reconnected {
		s.mu.Lock()
		subs := make([]*reconnectSub, len(s.reconnectSubs))
		copy(subs, s.reconnectSubs)
		s.mu.Unlock()
		for _, sub := range subs {
			sub.fn()
		}
		// Rejoin frames queue behind the flushed backlog.
		s.flushPending(conn)
	}

	go s.readLoop(conn)
}

// flushPending drains the queue in order. Sends issued by handlers while the
// flush runs are appended to the queue and drained by the same loop rather
// than re-entering it.
func (s *Socket) flushPending(conn Transport) {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 || !s.connected || s.conn != conn {
			s.flushing = false
			s.mu.Unlock()
			return
		}
		msg := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		if err := s.write(conn, msg); err != nil {
			glog.Warningf("livewire: flush failed, requeueing frame: %v", err)
			s.mu.Lock()
			s.pending = append([]*protocol.ClientMessage{msg}, s.pending...)
			s.flushing = false
			s.mu.Unlock()
			s.transportLost(conn)
			return
		}
	}
}

func (s *Socket) readLoop(conn Transport) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.transportLost(conn)
			return
		}
		s.route(data)
	}
}

// route dispatches one inbound frame. Redirects are global and resolved
// before any region lookup; frames for unknown regions are dropped since the
// region may have just been unregistered.
func (s *Socket) route(data []byte) {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		glog.Warningf("livewire: dropping malformed frame: %v", err)
		return
	}

	if msg.Type == protocol.TypeRedirect {
		if s.opts.Navigator != nil {
			if err := s.opts.Navigator.Navigate(msg.URL); err == nil {
				return
			}
			glog.Warningf("livewire: client-side redirect to %s failed, falling back", msg.URL)
		}
		if s.opts.FallbackNavigate != nil {
			s.opts.FallbackNavigate(msg.URL)
		}
		return
	}

	s.mu.Lock()
	h := s.handlers[msg.ID]
	s.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

func (s *Socket) transportLost(conn Transport) {
	s.mu.Lock()
	if s.conn != conn {
		// A newer connection superseded this one already.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.connected = false
	closed := s.closed
	s.mu.Unlock()

	_ = conn.Close()
	if !closed {
		s.scheduleReconnect()
	}
}

// scheduleReconnect arms the next attempt with exponential backoff. Past the
// cap the socket gives up: the page stays non-interactive until a manual
// reload, which is the only safe recovery once retries are exhausted.
func (s *Socket) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.attempts++
	if s.attempts > s.opts.MaxReconnects {
		glog.Errorf("livewire: giving up after %d reconnect attempts; reload required", s.opts.MaxReconnects)
		return
	}
	delay := s.opts.BackoffBase * (1 << (s.attempts - 1))
	glog.V(1).Infof("livewire: reconnect attempt %d in %s", s.attempts, delay)
	s.reconnectTimer = time.AfterFunc(delay, s.Connect)
}

// Close tears the socket down for good: no reconnects, no further sends.
// Used by navigation teardown and page unload.
func (s *Socket) Close() {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.connected = false
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
