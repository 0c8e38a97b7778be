package nav

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/livefir/livewire/client/dom"
)

// Attach installs the document-level listeners: click and submit
// interception plus hover prefetch.
func (c *Controller) Attach() {
	root := c.doc.Root()
	if root == nil {
		return
	}
	root.AddEventListener("click", c.onClick)
	root.AddEventListener("submit", c.onSubmit)
	root.AddEventListener("mouseover", c.onMouseOver)
	root.AddEventListener("mouseout", c.onMouseOut)
}

// onClick intercepts plain left-clicks on eligible links.
func (c *Controller) onClick(ev *dom.Event) {
	if ev.DefaultPrevented() {
		return
	}
	if ev.Button != 0 || ev.CtrlKey || ev.ShiftKey || ev.AltKey || ev.MetaKey {
		return
	}
	a := linkFrom(ev.Target)
	if a == nil {
		return
	}
	u, _, ok := c.linkTarget(a)
	if !ok {
		return
	}
	ev.PreventDefault()
	if err := c.Navigate(u.String()); err != nil {
		glog.Warningf("livewire: intercepted navigation to %s failed: %v", u, err)
	}
}

// onSubmit intercepts same-origin GET forms by folding the form data into the
// action URL's query string.
func (c *Controller) onSubmit(ev *dom.Event) {
	if ev.DefaultPrevented() {
		return
	}
	form := closestTag(ev.Target, "form")
	if form == nil || optedOut(form) {
		return
	}
	if strings.ToUpper(form.AttrOr("method", "GET")) != "GET" {
		return
	}
	if strings.HasPrefix(strings.ToLower(form.AttrOr("enctype", "")), "multipart/") {
		return
	}
	if target := form.AttrOr("target", ""); target != "" && target != "_self" {
		return
	}

	u, _, err := c.resolve(form.AttrOr("action", c.doc.URL))
	if err != nil || !isHTTP(u) || !c.sameOrigin(u) {
		return
	}
	u.RawQuery = serializeForm(form).Encode()
	u.Fragment = ""

	ev.PreventDefault()
	if err := c.Navigate(u.String()); err != nil {
		glog.Warningf("livewire: intercepted form submit to %s failed: %v", u, err)
	}
}

// prefetch tracks one hover: first the armed delay timer, then, once the
// fetch starts, its cancellation.
type prefetch struct {
	timer  *time.Timer
	cancel context.CancelFunc
}

// onMouseOver arms a prefetch for an eligible link after the configured
// delay, unless its page is already cached or being fetched.
func (c *Controller) onMouseOver(ev *dom.Event) {
	a := linkFrom(ev.Target)
	if a == nil {
		return
	}
	u, key, ok := c.linkTarget(a)
	if !ok {
		return
	}
	target := u.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[key]; busy || c.cache.has(key) || c.prefetches[key] != nil {
		return
	}
	p := &prefetch{}
	p.timer = time.AfterFunc(c.opts.PrefetchDelay, func() { c.runPrefetch(key, target) })
	c.prefetches[key] = p
}

// onMouseOut disarms the hover: the delay timer if still pending, or the
// in-flight fetch if it already started.
func (c *Controller) onMouseOut(ev *dom.Event) {
	a := linkFrom(ev.Target)
	if a == nil {
		return
	}
	_, key, ok := c.linkTarget(a)
	if !ok {
		return
	}

	c.mu.Lock()
	p := c.prefetches[key]
	var cancel context.CancelFunc
	if p != nil {
		p.timer.Stop()
		cancel = p.cancel
		if cancel == nil {
			delete(c.prefetches, key)
		}
	}
	c.mu.Unlock()

	if cancel != nil {
		// Cancellation resolves the fetch to an error, which prefetch
		// treats as a silent no-op.
		cancel()
	}
}

// runPrefetch performs the delayed hover fetch. Success fills the cache;
// failure, including cancellation, is silent.
func (c *Controller) runPrefetch(key, target string) {
	ctx, cancel := context.WithCancel(context.Background())
	fl := &flight{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	p, armed := c.prefetches[key]
	if !armed {
		c.mu.Unlock()
		cancel()
		return
	}
	if _, busy := c.inflight[key]; busy || c.cache.has(key) {
		delete(c.prefetches, key)
		c.mu.Unlock()
		cancel()
		return
	}
	p.cancel = cancel
	c.inflight[key] = fl
	c.mu.Unlock()

	fl.page, fl.err = c.fetcher.Fetch(ctx, target)
	close(fl.done)
	cancel()

	c.mu.Lock()
	delete(c.inflight, key)
	delete(c.prefetches, key)
	if fl.err == nil {
		c.cache.put(key, fl.page)
	}
	c.mu.Unlock()
}

// linkFrom resolves the anchor an event belongs to, if any.
func linkFrom(target *dom.Element) *dom.Element {
	return closestTag(target, "a")
}

func closestTag(el *dom.Element, tag string) *dom.Element {
	if el == nil {
		return nil
	}
	return el.Closest(func(a *dom.Element) bool { return a.Tag() == tag })
}

// optedOut reports whether the element or an ancestor disables interception.
func optedOut(el *dom.Element) bool {
	return el.Closest(func(a *dom.Element) bool { return a.HasAttr(AttrNavOff) }) != nil
}

func isHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

// linkTarget applies the attribute-level interception rules and returns the
// resolved URL plus cache key for an eligible link.
func (c *Controller) linkTarget(a *dom.Element) (*url.URL, string, bool) {
	href, ok := a.Attr("href")
	if !ok || href == "" {
		return nil, "", false
	}
	if optedOut(a) || a.HasAttr("download") {
		return nil, "", false
	}
	if target := a.AttrOr("target", ""); target != "" && target != "_self" {
		return nil, "", false
	}

	u, key, err := c.resolve(href)
	if err != nil || !isHTTP(u) || !c.sameOrigin(u) {
		return nil, "", false
	}
	if c.hashOnly(u) {
		// Native anchor scrolling handles same-page fragments.
		return nil, "", false
	}
	return u, key, true
}

// hashOnly reports a same-page fragment-only change.
func (c *Controller) hashOnly(u *url.URL) bool {
	if u.Fragment == "" {
		return false
	}
	base, err := url.Parse(c.doc.URL)
	if err != nil {
		return false
	}
	return u.Path == base.Path && u.RawQuery == base.RawQuery
}

// serializeForm folds a form's named controls into query values the way a
// native GET submit would.
func serializeForm(form *dom.Element) url.Values {
	values := url.Values{}
	controls := form.Descendants(func(el *dom.Element) bool {
		switch el.Tag() {
		case "input", "select", "textarea":
			return true
		}
		return false
	})
	for _, el := range controls {
		name := el.AttrOr("name", "")
		if name == "" || el.Disabled() {
			continue
		}
		if el.Tag() == "input" {
			switch el.AttrOr("type", "text") {
			case "submit", "button", "reset", "image", "file":
				continue
			case "checkbox", "radio":
				if !el.Checked() {
					continue
				}
				values.Add(name, el.AttrOr("value", "on"))
				continue
			}
		}
		values.Add(name, el.Value())
	}
	return values
}
