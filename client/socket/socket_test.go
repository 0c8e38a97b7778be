package socket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livefir/livewire/protocol"
)

// fakeTransport is an in-memory Transport scripted by tests.
type fakeTransport struct {
	mu      sync.Mutex
	written []string
	inbound chan []byte
	done    chan struct{}
	once    sync.Once
	failTx  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failTx {
		return errors.New("write on broken transport")
	}
	t.written = append(t.written, string(data))
	return nil
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.done:
		return nil, errors.New("transport closed")
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *fakeTransport) sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.written...)
}

func (t *fakeTransport) push(msg *protocol.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	t.inbound <- data
}

// fakeDialer hands out scripted transports in order.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	dials      int
}

func (d *fakeDialer) Dial(url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dials >= len(d.transports) {
		return nil, errors.New("no transport available")
	}
	t := d.transports[d.dials]
	d.dials++
	return t, nil
}

func newSocket(d Dialer) *Socket {
	return New("ws://test/live", d, Options{
		BackoffBase:   time.Millisecond,
		MaxReconnects: 4,
	})
}

func types(frames []string) []string {
	var out []string
	for _, f := range frames {
		var m struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}
		_ = json.Unmarshal([]byte(f), &m)
		out = append(out, m.Type+":"+m.ID)
	}
	return out
}

func TestAllocateIDMonotonicAndUnique(t *testing.T) {
	s := newSocket(&fakeDialer{})
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := s.AllocateID()
		require.False(t, seen[id], "id %s reused", id)
		seen[id] = true
	}
}

func TestSendQueuesWhileDisconnected(t *testing.T) {
	tr := newFakeTransport()
	s := newSocket(&fakeDialer{transports: []*fakeTransport{tr}})

	s.Send(protocol.Leave("a"))
	s.Send(protocol.Leave("b"))
	s.Send(protocol.Leave("c"))
	assert.Empty(t, tr.sent())

	s.Connect()
	assert.Equal(t, []string{"leave:a", "leave:b", "leave:c"}, types(tr.sent()))
}

func TestReconnectFlushOrderAndNoDuplicates(t *testing.T) {
	tr1 := newFakeTransport()
	tr2 := newFakeTransport()
	// A generous backoff keeps the reconnect from racing the queued sends.
	s := New("ws://test/live", &fakeDialer{transports: []*fakeTransport{tr1, tr2}}, Options{
		BackoffBase:   100 * time.Millisecond,
		MaxReconnects: 4,
	})

	s.Send(protocol.Leave("pre"))
	s.Connect()
	require.True(t, s.Connected())

	// The rejoin callback fires after the queued backlog is flushed.
	s.OnReconnect(func() {
		s.Send(protocol.Join(s.AllocateID(), "counter", "tok"))
	})

	// Drop the transport, queue frames while down.
	tr1.Close()
	require.Eventually(t, func() bool { return !s.Connected() }, time.Second, time.Millisecond)

	s.Send(protocol.Leave("queued-1"))
	s.Send(protocol.Leave("queued-2"))

	require.Eventually(t, func() bool { return s.Connected() }, time.Second, time.Millisecond)

	got := types(tr2.sent())
	require.Len(t, got, 3)
	assert.Equal(t, "leave:queued-1", got[0])
	assert.Equal(t, "leave:queued-2", got[1])
	assert.Contains(t, got[2], "join:")

	// Nothing delivered twice across both transports.
	all := append(types(tr1.sent()), got...)
	counts := make(map[string]int)
	for _, f := range all {
		counts[f]++
	}
	for f, n := range counts {
		assert.Equal(t, 1, n, "frame %s delivered %d times", f, n)
	}
}

func TestOnReconnectUnsubscribeIsIdempotent(t *testing.T) {
	s := newSocket(&fakeDialer{})
	calls := 0
	unsub := s.OnReconnect(func() { calls++ })
	unsub()
	unsub()

	s.mu.Lock()
	n := len(s.reconnectSubs)
	s.mu.Unlock()
	assert.Zero(t, n)
	assert.Zero(t, calls)
}

func TestRouteDispatchesToRegisteredHandler(t *testing.T) {
	tr := newFakeTransport()
	s := newSocket(&fakeDialer{transports: []*fakeTransport{tr}})
	s.Connect()

	got := make(chan *protocol.ServerMessage, 1)
	s.Register("r1", func(msg *protocol.ServerMessage) { got <- msg })

	tr.push(protocol.ErrorFrame("r1", "boom"))
	select {
	case msg := <-got:
		assert.Equal(t, "boom", msg.Error)
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}

	// Unknown region IDs are dropped silently.
	tr.push(protocol.ErrorFrame("ghost", "ignored"))
	tr.push(protocol.ErrorFrame("r1", "second"))
	select {
	case msg := <-got:
		assert.Equal(t, "second", msg.Error)
	case <-time.After(time.Second):
		t.Fatal("handler starved after unknown-region frame")
	}
}

type recordingNavigator struct {
	mu   sync.Mutex
	urls []string
}

func (n *recordingNavigator) Navigate(url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, url)
	return nil
}

func TestRedirectRoutedGlobally(t *testing.T) {
	tr := newFakeTransport()
	nav := &recordingNavigator{}
	s := New("ws://test/live", &fakeDialer{transports: []*fakeTransport{tr}}, Options{
		BackoffBase:   time.Millisecond,
		MaxReconnects: 2,
		Navigator:     nav,
	})
	s.Connect()

	tr.push(protocol.Redirect("/elsewhere"))
	require.Eventually(t, func() bool {
		nav.mu.Lock()
		defer nav.mu.Unlock()
		return len(nav.urls) == 1 && nav.urls[0] == "/elsewhere"
	}, time.Second, time.Millisecond)
}

func TestUnregisterEmitsLeave(t *testing.T) {
	tr := newFakeTransport()
	s := newSocket(&fakeDialer{transports: []*fakeTransport{tr}})
	s.Connect()

	s.Register("r1", func(msg *protocol.ServerMessage) {})
	s.Unregister("r1")
	assert.Equal(t, []string{"leave:r1"}, types(tr.sent()))

	// Unregistering an unknown region sends nothing.
	s.Unregister("never-registered")
	assert.Len(t, tr.sent(), 1)
}

func TestReconnectGivesUpPastCap(t *testing.T) {
	s := New("ws://test/live", &fakeDialer{}, Options{
		BackoffBase:   time.Millisecond,
		MaxReconnects: 2,
	})
	s.Connect()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.attempts > 2
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Connected())
	s.mu.Lock()
	attempts := s.attempts
	s.mu.Unlock()
	assert.Equal(t, 3, attempts, "no further attempts once the cap is exceeded")
}

func TestCloseStopsEverything(t *testing.T) {
	tr := newFakeTransport()
	s := newSocket(&fakeDialer{transports: []*fakeTransport{tr}})
	s.Connect()
	s.Close()

	s.Send(protocol.Leave("late"))
	assert.NotContains(t, types(tr.sent()), "leave:late")
	assert.False(t, s.Connected())
}
