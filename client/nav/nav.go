// Package nav turns full page loads into in-place document swaps: it
// intercepts eligible link clicks and GET form submits, fetches the target
// page (or serves it from a bounded TTL cache or a prefetch already in
// flight), replaces the body, merges the head, and maintains its own history
// with per-navigation scroll restoration. Anything it cannot handle falls
// back to a full browser navigation.
package nav

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/livefir/livewire/client/dom"
)

// AttrNavOff opts a link, form, or whole subtree out of interception.
const AttrNavOff = "data-lw-nav-off"

// Regions is the page's live-region population, torn down before the body
// swap and reinitialized after it.
type Regions interface {
	Teardown()
	Reinit()
}

// Options configures a Controller.
type Options struct {
	CacheSize     int
	CacheTTL      time.Duration
	PrefetchDelay time.Duration

	// Fallback performs a full browser navigation. Required for the
	// degraded paths; a nil fallback just logs.
	Fallback func(url string)

	// ExecScript runs one script element found in a swapped-in body.
	// Markup insertion does not execute scripts, so the controller invokes
	// this per script, externals once per src.
	ExecScript func(el *dom.Element)
}

const (
	defaultCacheSize     = 20
	defaultCacheTTL      = 30 * time.Second
	defaultPrefetchDelay = 65 * time.Millisecond
)

type historyEntry struct {
	URL   string
	NavID string // empty for foreign entries pushed by external code
}

type point struct{ x, y int }

// flight is one in-progress page fetch, shared between a primary navigation
// and any prefetch or duplicate navigation targeting the same URL.
type flight struct {
	cancel context.CancelFunc
	done   chan struct{}
	page   *Page
	err    error
}

type beforeSub struct {
	id int
	fn func(url string) bool
}

type afterSub struct {
	id int
	fn func(url string)
}

// Controller owns client-side navigation for one document.
type Controller struct {
	doc     *dom.Document
	fetcher Fetcher
	regions Regions
	opts    Options

	mu         sync.Mutex
	cache      *pageCache
	inflight   map[string]*flight
	prefetches map[string]*prefetch
	scrolls    map[string]point

	history []historyEntry
	pos     int

	current *flight // the primary navigation's fetch, if any

	subSeq     int
	beforeSubs []*beforeSub
	afterSubs  []*afterSub

	executed map[string]bool // external script srcs already run

	entropy *ulid.MonotonicEntropy
}

// New builds a controller rooted at the document's current URL. The initial
// entry carries a fresh navigation id so going back to it stays internal.
func New(doc *dom.Document, fetcher Fetcher, regions Regions, opts Options) *Controller {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.PrefetchDelay <= 0 {
		opts.PrefetchDelay = defaultPrefetchDelay
	}
	c := &Controller{
		doc:        doc,
		fetcher:    fetcher,
		regions:    regions,
		opts:       opts,
		cache:      newPageCache(opts.CacheSize, opts.CacheTTL),
		inflight:   make(map[string]*flight),
		prefetches: make(map[string]*prefetch),
		scrolls:    make(map[string]point),
		executed:   make(map[string]bool),
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	c.history = []historyEntry{{URL: doc.URL, NavID: c.newNavID()}}
	return c
}

func (c *Controller) newNavID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), c.entropy).String()
}

// OnBeforeNavigate registers a cancelable notification: returning false from
// any subscriber fully stops the navigation.
func (c *Controller) OnBeforeNavigate(fn func(url string) bool) (unsubscribe func()) {
	c.mu.Lock()
	c.subSeq++
	sub := &beforeSub{id: c.subSeq, fn: fn}
	c.beforeSubs = append(c.beforeSubs, sub)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, cand := range c.beforeSubs {
			if cand.id == sub.id {
				c.beforeSubs = append(c.beforeSubs[:i], c.beforeSubs[i+1:]...)
				return
			}
		}
	}
}

// OnAfterNavigate registers a notification fired after every successful swap.
func (c *Controller) OnAfterNavigate(fn func(url string)) (unsubscribe func()) {
	c.mu.Lock()
	c.subSeq++
	sub := &afterSub{id: c.subSeq, fn: fn}
	c.afterSubs = append(c.afterSubs, sub)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, cand := range c.afterSubs {
			if cand.id == sub.id {
				c.afterSubs = append(c.afterSubs[:i], c.afterSubs[i+1:]...)
				return
			}
		}
	}
}

// resolve turns a possibly relative reference into an absolute URL plus the
// cache key (fragment stripped).
func (c *Controller) resolve(raw string) (*url.URL, string, error) {
	base, err := url.Parse(c.doc.URL)
	if err != nil {
		return nil, "", fmt.Errorf("document url %q: %w", c.doc.URL, err)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("target url %q: %w", raw, err)
	}
	u := base.ResolveReference(ref)
	key := *u
	key.Fragment = ""
	return u, key.String(), nil
}

// Navigate performs a forward in-place navigation, pushing a history entry.
// It satisfies the socket's Navigator so server redirect frames route here.
func (c *Controller) Navigate(raw string) error {
	return c.navigate(raw, nil)
}

// Back moves one history entry backwards, Forward the mirror. Foreign
// entries (no navigation id of ours) force a full reload rather than
// rendering content we cannot vouch for.
func (c *Controller) Back()    { c.step(-1) }
func (c *Controller) Forward() { c.step(1) }

func (c *Controller) step(delta int) {
	c.mu.Lock()
	npos := c.pos + delta
	if npos < 0 || npos >= len(c.history) {
		c.mu.Unlock()
		return
	}
	entry := c.history[npos]
	c.pos = npos
	c.mu.Unlock()

	if entry.NavID == "" {
		c.fallback(entry.URL)
		return
	}
	if err := c.navigate(entry.URL, &entry); err != nil {
		glog.Warningf("livewire: history navigation to %s failed: %v", entry.URL, err)
	}
}

// PushForeignEntry records a history entry created by code outside this
// controller. Stepping onto it later triggers a full reload.
func (c *Controller) PushForeignEntry(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history[:c.pos+1], historyEntry{URL: url})
	c.pos = len(c.history) - 1
}

// navigate is the full sequence. pop is non-nil for back/forward traversal,
// which restores scroll and never pushes history.
func (c *Controller) navigate(raw string, pop *historyEntry) error {
	u, key, err := c.resolve(raw)
	if err != nil {
		return err
	}
	target := u.String()

	// A newer navigation always wins over whatever is still in flight.
	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}
	before := append([]*beforeSub(nil), c.beforeSubs...)
	c.mu.Unlock()

	for _, sub := range before {
		if !sub.fn(target) {
			return nil
		}
	}

	page, err := c.resolvePage(key, target)
	if err != nil {
		glog.Warningf("livewire: in-place navigation to %s failed, falling back: %v", target, err)
		c.fallback(target)
		return nil
	}

	newDoc, err := dom.Parse(page.HTML)
	if err != nil {
		glog.Warningf("livewire: fetched page %s unparsable, falling back: %v", target, err)
		c.fallback(target)
		return nil
	}

	c.mu.Lock()
	cur := c.history[c.pos]
	c.scrolls[cur.NavID] = point{c.doc.ScrollX, c.doc.ScrollY}
	c.mu.Unlock()

	c.regions.Teardown()
	c.swapBody(newDoc)
	c.mergeHead(newDoc)
	c.runScripts()

	c.mu.Lock()
	if pop == nil {
		c.history = append(c.history[:c.pos+1], historyEntry{URL: page.FinalURL, NavID: c.newNavID()})
		c.pos = len(c.history) - 1
	}
	c.doc.URL = page.FinalURL
	c.mu.Unlock()

	c.regions.Reinit()
	c.restoreScroll(pop)

	c.mu.Lock()
	after := append([]*afterSub(nil), c.afterSubs...)
	c.mu.Unlock()
	for _, sub := range after {
		sub.fn(page.FinalURL)
	}
	return nil
}

// resolvePage finds the target page: cache first, then an in-flight fetch to
// join, then a fresh fetch of our own.
func (c *Controller) resolvePage(key, target string) (*Page, error) {
	c.mu.Lock()
	if page, ok := c.cache.get(key); ok {
		c.mu.Unlock()
		return page, nil
	}
	if fl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-fl.done
		if fl.err == nil {
			return fl.page, nil
		}
		// The shared fetch died (likely a cancelled prefetch); try our own.
	}
	c.mu.Unlock()
	return c.fetch(key, target, true)
}

// fetch runs one deduplicated page fetch. primary fetches register as the
// current navigation so a newer one can cancel them.
func (c *Controller) fetch(key, target string, primary bool) (*Page, error) {
	ctx, cancel := context.WithCancel(context.Background())
	fl := &flight{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if existing, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		cancel()
		<-existing.done
		return existing.page, existing.err
	}
	c.inflight[key] = fl
	if primary {
		c.current = fl
	}
	c.mu.Unlock()

	fl.page, fl.err = c.fetcher.Fetch(ctx, target)
	close(fl.done)
	cancel()

	c.mu.Lock()
	delete(c.inflight, key)
	if c.current == fl {
		c.current = nil
	}
	if fl.err == nil {
		c.cache.put(key, fl.page)
	}
	c.mu.Unlock()
	return fl.page, fl.err
}

func (c *Controller) fallback(target string) {
	if c.opts.Fallback != nil {
		c.opts.Fallback(target)
		return
	}
	glog.Errorf("livewire: no fallback navigation configured for %s", target)
}

// swapBody replaces the document body wholesale. Removed nodes pass through
// the document's removal hook so listeners and side tables clean up.
func (c *Controller) swapBody(newDoc *dom.Document) {
	body := c.doc.Body()
	newBody := newDoc.Body()
	if body == nil || newBody == nil {
		return
	}
	if err := body.SetInnerHTML(newBody.InnerHTML()); err != nil {
		glog.Warningf("livewire: body swap failed: %v", err)
		return
	}
	syncAttrs(body, newBody)
}

// mergeHead reconciles the head by identity key: meta tags by name/property,
// stylesheets by href. Shared entries stay put so styles neither flash nor
// re-download; stale ones go, new ones arrive. Inline style blocks are
// page-specific and replaced wholesale.
func (c *Controller) mergeHead(newDoc *dom.Document) {
	head := c.doc.Head()
	newHead := newDoc.Head()
	if head == nil || newHead == nil {
		return
	}

	c.doc.SetTitle(newDoc.Title())

	oldKeyed := headKeyed(head)
	newKeyed := headKeyed(newHead)

	for key, el := range oldKeyed {
		if _, stays := newKeyed[key]; !stays {
			el.Remove()
		}
	}
	for key, el := range newKeyed {
		if _, present := oldKeyed[key]; !present {
			if err := appendClone(head, el); err != nil {
				glog.Warningf("livewire: head merge skipped %s: %v", key, err)
			}
		}
	}

	for _, el := range head.Children() {
		if el.Tag() == "style" {
			el.Remove()
		}
	}
	for _, el := range newHead.Children() {
		if el.Tag() == "style" {
			if err := appendClone(head, el); err != nil {
				glog.Warningf("livewire: head merge skipped inline style: %v", err)
			}
		}
	}
}

// headKeyed indexes mergeable head elements by their identity key.
func headKeyed(head *dom.Element) map[string]*dom.Element {
	keyed := make(map[string]*dom.Element)
	for _, el := range head.Children() {
		switch el.Tag() {
		case "meta":
			if name := el.AttrOr("name", el.AttrOr("property", "")); name != "" {
				keyed["meta:"+name+":"+el.AttrOr("content", "")] = el
			}
		case "link":
			if href := el.AttrOr("href", ""); href != "" {
				keyed["link:"+href] = el
			}
		}
	}
	return keyed
}

func appendClone(parent, el *dom.Element) error {
	return parent.AppendHTML(el.OuterHTML())
}

// runScripts re-executes scripts found in the swapped-in body. External
// scripts run once per src across the session; inline scripts run every time
// they appear.
func (c *Controller) runScripts() {
	body := c.doc.Body()
	if body == nil || c.opts.ExecScript == nil {
		return
	}
	for _, script := range body.Descendants(func(el *dom.Element) bool { return el.Tag() == "script" }) {
		if src := script.AttrOr("src", ""); src != "" {
			c.mu.Lock()
			ran := c.executed[src]
			c.executed[src] = true
			c.mu.Unlock()
			if ran {
				continue
			}
		}
		c.opts.ExecScript(script)
	}
}

// restoreScroll lands the viewport: the saved position for back/forward, top
// otherwise. Without layout geometry a hash target also lands at top; the
// target element is present for the host page to scroll to.
func (c *Controller) restoreScroll(pop *historyEntry) {
	if pop != nil {
		c.mu.Lock()
		p, ok := c.scrolls[pop.NavID]
		c.mu.Unlock()
		if ok {
			c.doc.ScrollX, c.doc.ScrollY = p.x, p.y
			return
		}
	}
	c.doc.ScrollX, c.doc.ScrollY = 0, 0
}

// syncAttrs copies the new element's attributes onto the old one and drops
// the rest.
func syncAttrs(old, new *dom.Element) {
	seen := make(map[string]bool)
	for _, a := range new.Attrs() {
		seen[a.Name] = true
		old.SetAttr(a.Name, a.Value)
	}
	for _, a := range old.Attrs() {
		if !seen[a.Name] {
			old.RemoveAttr(a.Name)
		}
	}
}

// sameOrigin reports whether the target shares scheme and host with the
// current document.
func (c *Controller) sameOrigin(u *url.URL) bool {
	base, err := url.Parse(c.doc.URL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}
