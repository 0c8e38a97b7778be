// Package client is the page runtime: it discovers live containers in the
// document, joins each through one shared socket, and owns the navigation
// controller that swaps pages in place while keeping that socket alive.
package client

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/livefir/livewire/client/dom"
	"github.com/livefir/livewire/client/nav"
	"github.com/livefir/livewire/client/region"
	"github.com/livefir/livewire/client/socket"
)

// AttrSocket overrides the page's transport endpoint on a live container.
const AttrSocket = "data-lw-socket"

// DefaultSocketPath is the endpoint joined to the page origin when nothing
// overrides it.
const DefaultSocketPath = "/live"

// Options configures a Runtime.
type Options struct {
	// SocketURL is the transport endpoint. Empty derives ws(s)://host/live
	// from the document URL, unless a container carries its own override.
	SocketURL string

	// Dialer establishes transports; nil uses the gorilla/websocket dialer.
	Dialer socket.Dialer

	Socket socket.Options
	Nav    nav.Options

	// Fetcher retrieves pages for in-place navigation; nil uses HTTP.
	Fetcher nav.Fetcher
}

// Runtime is the per-page entry point exposed to the host.
type Runtime struct {
	doc  *dom.Document
	opts Options
	nav  *nav.Controller

	mu      sync.Mutex
	sock    *socket.Socket
	regions []*region.Region
}

// New builds the runtime and its navigation controller. Nothing connects
// until Init discovers a live container.
func New(doc *dom.Document, opts Options) *Runtime {
	rt := &Runtime{doc: doc, opts: opts}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = nav.NewHTTPFetcher(nil)
	}
	rt.nav = nav.New(doc, fetcher, rt, opts.Nav)
	rt.nav.Attach()
	return rt
}

// Nav returns the navigation controller.
func (rt *Runtime) Nav() *nav.Controller {
	return rt.nav
}

// Navigate performs a programmatic in-place navigation.
func (rt *Runtime) Navigate(url string) error {
	return rt.nav.Navigate(url)
}

// Socket returns the shared socket, or nil before the first region init.
func (rt *Runtime) Socket() *socket.Socket {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.sock
}

// Init discovers every live container in the document and joins it. The
// shared socket is constructed and connected on the first discovery.
func (rt *Runtime) Init() error {
	containers := rt.doc.FindAll(func(el *dom.Element) bool {
		return el.HasAttr(region.AttrModule)
	})
	if len(containers) == 0 {
		return nil
	}

	sock, err := rt.ensureSocket(containers[0])
	if err != nil {
		return err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, container := range containers {
		if rt.ownedLocked(container) {
			continue
		}
		r, err := region.New(sock, container)
		if err != nil {
			glog.Warningf("livewire: skipping container: %v", err)
			continue
		}
		rt.regions = append(rt.regions, r)
	}
	return nil
}

// ownedLocked reports whether a live region already drives the container.
// Discovery must skip those: binding a container twice would join it twice
// and double every event. Callers hold rt.mu.
func (rt *Runtime) ownedLocked(container *dom.Element) bool {
	for _, r := range rt.regions {
		if r.Container().Same(container) {
			return true
		}
	}
	return false
}

// Teardown destroys every live region, leaving the socket open for the
// regions of the next page.
func (rt *Runtime) Teardown() {
	rt.mu.Lock()
	regions := rt.regions
	rt.regions = nil
	rt.mu.Unlock()

	for _, r := range regions {
		r.Destroy()
	}
}

// Reinit rediscovers regions after a navigation swap.
func (rt *Runtime) Reinit() {
	if err := rt.Init(); err != nil {
		glog.Warningf("livewire: region reinit failed: %v", err)
	}
}

// Shutdown tears down the whole runtime, socket included. Used on page
// unload.
func (rt *Runtime) Shutdown() {
	rt.Teardown()
	rt.mu.Lock()
	sock := rt.sock
	rt.sock = nil
	rt.mu.Unlock()
	if sock != nil {
		sock.Close()
	}
}

// ensureSocket lazily builds and connects the page's shared socket.
func (rt *Runtime) ensureSocket(first *dom.Element) (*socket.Socket, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.sock != nil {
		return rt.sock, nil
	}

	endpoint := rt.opts.SocketURL
	if override := first.AttrOr(AttrSocket, ""); override != "" {
		endpoint = override
	}
	if endpoint == "" {
		derived, err := deriveSocketURL(rt.doc.URL)
		if err != nil {
			return nil, err
		}
		endpoint = derived
	}

	sockOpts := rt.opts.Socket
	if sockOpts.Navigator == nil {
		sockOpts.Navigator = rt.nav
	}
	if sockOpts.FallbackNavigate == nil {
		sockOpts.FallbackNavigate = rt.opts.Nav.Fallback
	}

	dialer := rt.opts.Dialer
	if dialer == nil {
		dialer = &socket.WebSocketDialer{}
	}

	rt.sock = socket.New(endpoint, dialer, sockOpts)
	rt.sock.Connect()
	return rt.sock, nil
}

// deriveSocketURL maps the page origin onto the websocket endpoint.
func deriveSocketURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("cannot derive socket endpoint from %q", pageURL)
	}
	scheme := "ws"
	if strings.EqualFold(u.Scheme, "https") {
		scheme = "wss"
	}
	return scheme + "://" + u.Host + DefaultSocketPath, nil
}
