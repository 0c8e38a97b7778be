package region

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livefir/livewire/client/dom"
	"github.com/livefir/livewire/client/socket"
	"github.com/livefir/livewire/protocol"
	"github.com/livefir/livewire/tree"
)

// fakeWire records outbound frames and lets tests push inbound ones.
type fakeWire struct {
	mu       sync.Mutex
	nextID   int
	sent     []*protocol.ClientMessage
	handlers map[string]socket.Handler
	subs     []func()
	unsubbed int
}

func newFakeWire() *fakeWire {
	return &fakeWire{handlers: make(map[string]socket.Handler)}
}

func (w *fakeWire) AllocateID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	return fmt.Sprintf("sess-%d", w.nextID)
}

func (w *fakeWire) Register(id string, h socket.Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[id] = h
}

func (w *fakeWire) Unregister(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.handlers[id]; ok {
		delete(w.handlers, id)
		w.sent = append(w.sent, protocol.Leave(id))
	}
}

func (w *fakeWire) Send(msg *protocol.ClientMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, msg)
}

func (w *fakeWire) OnReconnect(fn func()) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.unsubbed++
	}
}

func (w *fakeWire) frames() []*protocol.ClientMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*protocol.ClientMessage(nil), w.sent...)
}

func (w *fakeWire) deliver(t *testing.T, msg *protocol.ServerMessage) {
	t.Helper()
	w.mu.Lock()
	h := w.handlers[msg.ID]
	w.mu.Unlock()
	require.NotNil(t, h, "no handler registered for %s", msg.ID)
	h(msg)
}

func (w *fakeWire) reconnect() {
	w.mu.Lock()
	subs := append([]func(){}, w.subs...)
	w.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func newRegion(t *testing.T, inner string) (*fakeWire, *dom.Document, *Region) {
	t.Helper()
	doc := dom.MustParse(`<!DOCTYPE html><html><body>` +
		`<div id="root" data-lw-module="counter" data-lw-token="tok">` + inner + `</div>` +
		`</body></html>`)
	w := newFakeWire()
	r, err := New(w, doc.GetElementByID("root"))
	require.NoError(t, err)
	return w, doc, r
}

func snapshot(statics []string, dynamics ...tree.Dynamic) *tree.Tree {
	return &tree.Tree{Statics: statics, Dynamics: dynamics}
}

func TestNewJoinsWithModuleAndToken(t *testing.T) {
	w, _, r := newRegion(t, `<span>0</span>`)

	frames := w.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TypeJoin, frames[0].Type)
	assert.Equal(t, r.ID(), frames[0].ID)
	assert.Equal(t, "counter", frames[0].Module)
	assert.Equal(t, "tok", frames[0].Token)
	assert.Equal(t, Joining, r.State())
}

func TestNewRejectsPlainContainer(t *testing.T) {
	doc := dom.MustParse(`<!DOCTYPE html><html><body><div id="d">x</div></body></html>`)
	_, err := New(newFakeWire(), doc.GetElementByID("d"))
	require.Error(t, err)
}

func TestTreesStoresSnapshotWithoutTouchingDOM(t *testing.T) {
	w, doc, r := newRegion(t, `<span>0</span>`)
	before := doc.GetElementByID("root").InnerHTML()

	w.deliver(t, protocol.Trees(r.ID(), snapshot([]string{"<span>", "</span>"}, tree.Leaf("99"))))

	assert.Equal(t, Joined, r.State())
	assert.Equal(t, before, doc.GetElementByID("root").InnerHTML(),
		"snapshot must not rewrite server-rendered markup")
}

func TestPatchAppliesDiffAndMorphs(t *testing.T) {
	w, doc, r := newRegion(t, `<span>0</span>`)
	w.deliver(t, protocol.Trees(r.ID(), snapshot([]string{"<span>", "</span>"}, tree.Leaf("0"))))

	w.deliver(t, protocol.Patch(r.ID(), tree.Diff{0: tree.LeafPatch("7")}))

	assert.Equal(t, "<span>7</span>", doc.GetElementByID("root").InnerHTML())
}

func TestPatchWithoutSnapshotIsDropped(t *testing.T) {
	w, doc, r := newRegion(t, `<span>0</span>`)

	w.deliver(t, protocol.Patch(r.ID(), tree.Diff{0: tree.LeafPatch("7")}))

	assert.Equal(t, "<span>0</span>", doc.GetElementByID("root").InnerHTML())
}

func TestPatchLeavesNestedRegionAlone(t *testing.T) {
	inner := `<span>0</span><div data-lw-module="child"><span id="c">theirs</span></div>`
	w, doc, r := newRegion(t, inner)

	statics := []string{"<span>", `</span><div data-lw-module="child"><span id="c">overwritten</span></div>`}
	w.deliver(t, protocol.Trees(r.ID(), snapshot(statics, tree.Leaf("0"))))
	w.deliver(t, protocol.Patch(r.ID(), tree.Diff{0: tree.LeafPatch("1")}))

	assert.Equal(t, "1", doc.GetElementByID("root").Children()[0].Text())
	assert.Equal(t, "theirs", doc.GetElementByID("c").Text(),
		"a parent patch must not cross into a nested region")
}

func TestErrorFrameKeepsRegionAlive(t *testing.T) {
	w, doc, r := newRegion(t, `<span>0</span>`)
	w.deliver(t, protocol.Trees(r.ID(), snapshot([]string{"<span>", "</span>"}, tree.Leaf("0"))))

	w.deliver(t, protocol.ErrorFrame(r.ID(), "handler blew up"))
	assert.Equal(t, Joined, r.State())

	// The region still processes patches afterwards.
	w.deliver(t, protocol.Patch(r.ID(), tree.Diff{0: tree.LeafPatch("1")}))
	assert.Equal(t, "<span>1</span>", doc.GetElementByID("root").InnerHTML())
}

func TestClickSendsEventAndAppliesLoading(t *testing.T) {
	w, doc, r := newRegion(t, `<button id="save" data-lw-click="save">Save</button>`)
	btn := doc.GetElementByID("save")

	doc.DispatchSimple(btn, "click")

	frames := w.frames()
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.TypeEvent, frames[1].Type)
	assert.Equal(t, "save", frames[1].Handler)
	assert.Equal(t, "click", frames[1].Event)

	assert.True(t, btn.Disabled(), "discrete trigger auto-disables")
	assert.True(t, btn.HasClass(LoadingClass))

	// Any server response reverses the loading state.
	w.deliver(t, protocol.ErrorFrame(r.ID(), "nope"))
	assert.False(t, btn.Disabled())
	assert.False(t, btn.HasClass(LoadingClass))
}

func TestLoadingTextSwapAndExactReversal(t *testing.T) {
	w, doc, r := newRegion(t,
		`<button id="save" data-lw-click="save" data-lw-loading-text="Saving...">Save</button>`)
	btn := doc.GetElementByID("save")

	doc.DispatchSimple(btn, "click")
	assert.Equal(t, "Saving...", btn.Text())

	w.deliver(t, protocol.Trees(r.ID(), snapshot([]string{"x"})))
	assert.Equal(t, "Save", btn.Text())
}

func TestLoadingPreservesOriginalDisabled(t *testing.T) {
	w, doc, r := newRegion(t, `<button id="save" data-lw-click="save" disabled>Save</button>`)
	btn := doc.GetElementByID("save")

	doc.DispatchSimple(btn, "click")
	require.True(t, btn.Disabled())

	w.deliver(t, protocol.ErrorFrame(r.ID(), "nope"))
	assert.True(t, btn.Disabled(), "an originally disabled element stays disabled")
}

func TestLoadingDisableOptOut(t *testing.T) {
	_, doc, _ := newRegion(t,
		`<button id="save" data-lw-click="save" data-lw-no-disable>Save</button>`)
	btn := doc.GetElementByID("save")

	doc.DispatchSimple(btn, "click")
	assert.False(t, btn.Disabled())
	assert.True(t, btn.HasClass(LoadingClass), "class still applies without the disable")
}

func TestIndicatorsHiddenOnInitRevealedDuringRoundTrip(t *testing.T) {
	w, doc, r := newRegion(t,
		`<button id="save" data-lw-click="save">`+
			`<span id="spin" data-lw-loading></span>`+
			`</button>`+
			`<div data-lw-loading="save">`+
			`<span id="remote-spin" data-lw-loading>busy</span>`+
			`<span id="content">results</span>`+
			`</div>`)

	spin := doc.GetElementByID("spin")
	remoteSpin := doc.GetElementByID("remote-spin")
	content := doc.GetElementByID("content")

	// Indicators are hidden at init, everything else visible.
	assert.True(t, spin.HasAttr("hidden"))
	assert.True(t, remoteSpin.HasAttr("hidden"))
	assert.False(t, content.HasAttr("hidden"))

	doc.DispatchSimple(doc.GetElementByID("save"), "click")

	assert.False(t, spin.HasAttr("hidden"), "inline indicator revealed")
	assert.False(t, remoteSpin.HasAttr("hidden"), "remote scope mirrors the trigger")
	assert.True(t, content.HasAttr("hidden"), "non-indicator sibling hidden")

	w.deliver(t, protocol.ErrorFrame(r.ID(), "nope"))

	assert.True(t, spin.HasAttr("hidden"))
	assert.True(t, remoteSpin.HasAttr("hidden"))
	assert.False(t, content.HasAttr("hidden"))
}

func TestReconnectDropsSnapshotAndRejoins(t *testing.T) {
	w, doc, r := newRegion(t, `<span>0</span>`)
	w.deliver(t, protocol.Trees(r.ID(), snapshot([]string{"<span>", "</span>"}, tree.Leaf("0"))))
	require.Equal(t, Joined, r.State())

	w.reconnect()

	assert.Equal(t, Rejoining, r.State())
	frames := w.frames()
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.TypeJoin, frames[1].Type)

	// The stale snapshot is gone: a patch before the fresh trees frame is a no-op.
	w.deliver(t, protocol.Patch(r.ID(), tree.Diff{0: tree.LeafPatch("9")}))
	assert.Equal(t, "<span>0</span>", doc.GetElementByID("root").InnerHTML())

	w.deliver(t, protocol.Trees(r.ID(), snapshot([]string{"<span>", "</span>"}, tree.Leaf("0"))))
	assert.Equal(t, Joined, r.State())
}

func TestDestroyUnregistersAndIgnoresFurtherTraffic(t *testing.T) {
	w, doc, r := newRegion(t, `<button id="b" data-lw-click="x">go</button>`)
	w.deliver(t, protocol.Trees(r.ID(), snapshot([]string{"<span>", "</span>"}, tree.Leaf("0"))))

	r.Destroy()
	assert.Equal(t, Destroyed, r.State())

	frames := w.frames()
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.TypeLeave, frames[1].Type)

	w.mu.Lock()
	unsubbed := w.unsubbed
	w.mu.Unlock()
	assert.Equal(t, 1, unsubbed)

	// Events after destroy go nowhere.
	doc.DispatchSimple(doc.GetElementByID("b"), "click")
	assert.Len(t, w.frames(), 2)

	r.Destroy() // idempotent
	assert.Len(t, w.frames(), 2)
}

func TestRescanAfterPatchBindsNewElements(t *testing.T) {
	w, doc, r := newRegion(t, `<span>start</span>`)
	statics := []string{"", ""}
	w.deliver(t, protocol.Trees(r.ID(), snapshot(statics, tree.Leaf("<span>start</span>"))))

	w.deliver(t, protocol.Patch(r.ID(), tree.Diff{
		0: tree.LeafPatch(`<button id="fresh" data-lw-click="go">go</button>`),
	}))

	doc.DispatchSimple(doc.GetElementByID("fresh"), "click")

	frames := w.frames()
	last := frames[len(frames)-1]
	assert.Equal(t, protocol.TypeEvent, last.Type)
	assert.Equal(t, "go", last.Handler)
}
