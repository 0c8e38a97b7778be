// Command livewire-demo serves a small site with two live regions: a counter
// and a greeter that shuffles fake visitor names. It exists to exercise the
// full stack end to end: render pipeline, join tokens, the live socket, and
// patch frames.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/livefir/livewire"
	"github.com/livefir/livewire/tree"
)

const usage = `Live region demo server.

Usage:
    livewire-demo [--addr=<addr>] [--config=<path>]

Options:
    -h --help          Show this screen.
    --addr=<addr>      Listen address [default: :8080].
    --config=<path>    YAML config file.`

func main() {
	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		panic(err)
	}
	addr, _ := opts.String("--addr")

	config := livewire.DefaultConfig()
	if path, err := opts.String("--config"); err == nil && path != "" {
		config, err = livewire.LoadConfig(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "livewire-demo: %v\n", err)
			os.Exit(1)
		}
	}

	app, err := livewire.NewApplication(
		livewire.WithConfig(config),
		livewire.WithModule("counter", newCounter),
		livewire.WithModule("greeter", newGreeter),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livewire-demo: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle(config.SocketPath, app.HandleSocket())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		servePage(app, w)
	})

	glog.Infof("livewire-demo listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		glog.Exitf("livewire-demo: %v", err)
	}
}

func servePage(app *livewire.Application, w http.ResponseWriter) {
	page, err := app.NewPage()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	var counterHTML, greeterHTML strings.Builder
	if err := page.Render(&counterHTML, "counter", map[string]any{"start": float64(0)}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := page.Render(&greeterHTML, "greeter", nil); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	doc := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <title>livewire demo</title>
</head>
<body>
  <h1>Live regions</h1>
  %s
  %s
</body>
</html>`, counterHTML.String(), greeterHTML.String())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, livewire.MinifyHTML(doc))
}

// counter is a click-driven number.
type counter struct {
	n int
}

func newCounter(props map[string]any) (livewire.Instance, error) {
	c := &counter{}
	if start, ok := props["start"].(float64); ok {
		c.n = int(start)
	}
	return c, nil
}

func (c *counter) Render() (*tree.Tree, error) {
	return &tree.Tree{
		Statics: []string{
			`<button data-lw-click="dec">-</button><span>`,
			`</span><button data-lw-click="inc">+</button>`,
		},
		Dynamics: []tree.Dynamic{tree.Leaf(strconv.Itoa(c.n))},
	}, nil
}

func (c *counter) HandleEvent(ev livewire.Event) error {
	switch ev.Handler {
	case "inc":
		c.n++
	case "dec":
		c.n--
	}
	return nil
}

// greeter shows a shuffleable list of fake visitors.
type greeter struct {
	names []string
}

func newGreeter(map[string]any) (livewire.Instance, error) {
	g := &greeter{}
	g.shuffle()
	return g, nil
}

func (g *greeter) shuffle() {
	g.names = g.names[:0]
	for i := 0; i < 3; i++ {
		g.names = append(g.names, gofakeit.Name())
	}
}

func (g *greeter) Render() (*tree.Tree, error) {
	entries := make(tree.List, len(g.names))
	for i, name := range g.names {
		entries[i] = &tree.Tree{
			Statics:  []string{"<li>", "</li>"},
			Dynamics: []tree.Dynamic{tree.Leaf(name)},
		}
	}
	return &tree.Tree{
		Statics: []string{
			`<ul>`,
			`</ul><button data-lw-click="shuffle">Shuffle</button>`,
		},
		Dynamics: []tree.Dynamic{entries},
	}, nil
}

func (g *greeter) HandleEvent(ev livewire.Event) error {
	if ev.Handler == "shuffle" {
		g.shuffle()
	}
	return nil
}
