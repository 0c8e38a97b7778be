// Package dom is the headless document model the client runtime operates on.
// It wraps golang.org/x/net/html nodes with element lookup, attribute and
// class helpers, focus and scroll state, and an event dispatch path, so the
// live region controller and navigation controller can be driven and tested
// without a browser.
package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is one page: a parsed HTML tree plus the per-page state a browser
// would track for it (focus, selection, scroll).
type Document struct {
	root *html.Node

	active         *html.Node // focused element, nil when nothing holds focus
	selStart       int
	selEnd         int
	ScrollX         int
	ScrollY         int
	URL             string
	listeners       map[*html.Node][]*listener
	removedSeq      int
	removedHandlers []*removedSub
}

// removedSub is one registered removal hook.
type removedSub struct {
	id int
	fn func(*Element)
}

// Element is a live handle onto an element node. Identity is node identity:
// two Elements are the same element iff they wrap the same node.
type Element struct {
	doc  *Document
	node *html.Node
}

// Parse builds a Document from an HTML source string.
func Parse(source string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{
		root:      root,
		listeners: make(map[*html.Node][]*listener),
	}, nil
}

// MustParse is Parse for tests and static markup.
func MustParse(source string) *Document {
	d, err := Parse(source)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Document) elem(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	return &Element{doc: d, node: n}
}

// Root returns the document root element (html).
func (d *Document) Root() *Element {
	return d.elem(findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Html
	}))
}

// Body returns the document body element.
func (d *Document) Body() *Element {
	return d.elem(findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	}))
}

// Head returns the document head element.
func (d *Document) Head() *Element {
	return d.elem(findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Head
	}))
}

// Title returns the text of the title element, or "".
func (d *Document) Title() string {
	head := d.Head()
	if head == nil {
		return ""
	}
	for _, child := range head.Children() {
		if child.Tag() == "title" {
			return child.Text()
		}
	}
	return ""
}

// SetTitle replaces (or creates) the title element's text.
func (d *Document) SetTitle(title string) {
	head := d.Head()
	if head == nil {
		return
	}
	for _, child := range head.Children() {
		if child.Tag() == "title" {
			child.SetText(title)
			return
		}
	}
	node := &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
	node.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	head.node.AppendChild(node)
}

// GetElementByID returns the element with the given id attribute, or nil.
func (d *Document) GetElementByID(id string) *Element {
	if id == "" {
		return nil
	}
	return d.elem(findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attrVal(n, "id") == id
	}))
}

// FindAll returns every element under the document root matching pred, in
// document order.
func (d *Document) FindAll(pred func(*Element) bool) []*Element {
	var out []*Element
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && pred(d.elem(n)) {
			out = append(out, d.elem(n))
		}
		return true
	})
	return out
}

// SetFocus records the focused element and its selection range. Selection is
// kept only for elements that support it; others keep focus with no range.
func (d *Document) SetFocus(el *Element, selStart, selEnd int) {
	if el == nil {
		d.active = nil
		return
	}
	d.active = el.node
	if el.SupportsSelection() {
		d.selStart, d.selEnd = selStart, selEnd
	} else {
		d.selStart, d.selEnd = 0, 0
	}
}

// ActiveElement returns the focused element, or nil.
func (d *Document) ActiveElement() *Element {
	if d.active == nil {
		return nil
	}
	return d.elem(d.active)
}

// Selection returns the focused element's selection range.
func (d *Document) Selection() (start, end int) {
	return d.selStart, d.selEnd
}

// OnElementRemoved registers a hook invoked for every element detached from
// the document by a morph or body replacement. Side tables use it so state
// tied to removed nodes cleans itself up without explicit sweeps. The
// returned func unregisters the hook; owners with a shorter lifetime than
// the document must call it or the handler list grows forever.
func (d *Document) OnElementRemoved(fn func(*Element)) (unsubscribe func()) {
	d.removedSeq++
	sub := &removedSub{id: d.removedSeq, fn: fn}
	d.removedHandlers = append(d.removedHandlers, sub)

	return func() {
		for i, cand := range d.removedHandlers {
			if cand.id == sub.id {
				d.removedHandlers = append(d.removedHandlers[:i], d.removedHandlers[i+1:]...)
				return
			}
		}
	}
}

func (d *Document) noteRemoved(n *html.Node) {
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			delete(d.listeners, c)
			if d.active == c {
				d.active = nil
			}
			for _, sub := range d.removedHandlers {
				sub.fn(d.elem(c))
			}
		}
		return true
	})
}

// HTML serializes the whole document.
func (d *Document) HTML() string {
	var b strings.Builder
	_ = html.Render(&b, d.root)
	return b.String()
}

// Element accessors.

// Tag returns the lowercase tag name.
func (e *Element) Tag() string {
	return strings.ToLower(e.node.Data)
}

// Attr returns the attribute value and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or a default.
func (e *Element) AttrOr(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// Attr is one attribute name/value pair.
type Attr struct {
	Name  string
	Value string
}

// Attrs returns the element's attributes in document order.
func (e *Element) Attrs() []Attr {
	out := make([]Attr, 0, len(e.node.Attr))
	for _, a := range e.node.Attr {
		out = append(out, Attr{Name: a.Key, Value: a.Val})
	}
	return out
}

// HasAttr reports attribute presence regardless of value.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute if present.
func (e *Element) RemoveAttr(name string) {
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr = append(e.node.Attr[:i], e.node.Attr[i+1:]...)
			return
		}
	}
}

// ID returns the id attribute.
func (e *Element) ID() string {
	return e.AttrOr("id", "")
}

// Classes returns the class list.
func (e *Element) Classes() []string {
	return strings.Fields(e.AttrOr("class", ""))
}

// HasClass reports whether the class list contains name.
func (e *Element) HasClass(name string) bool {
	for _, c := range e.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

// AddClass appends a class if absent.
func (e *Element) AddClass(name string) {
	if e.HasClass(name) {
		return
	}
	classes := append(e.Classes(), name)
	e.SetAttr("class", strings.Join(classes, " "))
}

// RemoveClass removes a class if present.
func (e *Element) RemoveClass(name string) {
	var kept []string
	for _, c := range e.Classes() {
		if c != name {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		e.RemoveAttr("class")
		return
	}
	e.SetAttr("class", strings.Join(kept, " "))
}

// Disabled reports the disabled attribute.
func (e *Element) Disabled() bool {
	return e.HasAttr("disabled")
}

// SetDisabled toggles the disabled attribute.
func (e *Element) SetDisabled(disabled bool) {
	if disabled {
		e.SetAttr("disabled", "")
	} else {
		e.RemoveAttr("disabled")
	}
}

// Value returns the element's current value (inputs, textareas, selects).
func (e *Element) Value() string {
	if e.Tag() == "textarea" {
		return e.Text()
	}
	return e.AttrOr("value", "")
}

// SetValue updates the element's value.
func (e *Element) SetValue(v string) {
	if e.Tag() == "textarea" {
		e.SetText(v)
		return
	}
	e.SetAttr("value", v)
}

// Checked reports the checked state for checkboxes and radios.
func (e *Element) Checked() bool {
	return e.HasAttr("checked")
}

// SupportsSelection reports whether the element accepts selection-range
// operations. Restoring a range on anything else throws in real browsers, so
// the runtime checks first and skips.
func (e *Element) SupportsSelection() bool {
	switch e.Tag() {
	case "textarea":
		return true
	case "input":
		switch e.AttrOr("type", "text") {
		case "text", "search", "url", "tel", "password", "email":
			return true
		}
	}
	return false
}

// Parent returns the parent element, or nil at the top.
func (e *Element) Parent() *Element {
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return e.doc.elem(p)
		}
	}
	return nil
}

// Children returns the child elements (element nodes only).
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.elem(c))
		}
	}
	return out
}

// Descendants returns all descendant elements matching pred in document
// order, excluding the element itself.
func (e *Element) Descendants(pred func(*Element) bool) []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode && pred(e.doc.elem(n)) {
				out = append(out, e.doc.elem(n))
			}
			return true
		})
	}
	return out
}

// Closest walks from the element up through its ancestors and returns the
// first one matching pred, or nil.
func (e *Element) Closest(pred func(*Element) bool) *Element {
	for el := e; el != nil; el = el.Parent() {
		if pred(el) {
			return el
		}
	}
	return nil
}

// Text returns the concatenated text content.
func (e *Element) Text() string {
	var b strings.Builder
	walk(e.node, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		return true
	})
	return b.String()
}

// SetText replaces all children with a single text node.
func (e *Element) SetText(text string) {
	e.removeChildren()
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// InnerHTML serializes the element's children.
func (e *Element) InnerHTML() string {
	var b strings.Builder
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}
	return b.String()
}

// OuterHTML serializes the element itself.
func (e *Element) OuterHTML() string {
	var b strings.Builder
	_ = html.Render(&b, e.node)
	return b.String()
}

// SetInnerHTML replaces the element's children with parsed markup. Removed
// nodes go through the document's removal hook.
func (e *Element) SetInnerHTML(markup string) error {
	nodes, err := parseFragment(markup, e.node)
	if err != nil {
		return err
	}
	e.removeChildren()
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	return nil
}

// AppendHTML parses markup and appends the resulting nodes after the
// element's existing children, which stay untouched.
func (e *Element) AppendHTML(markup string) error {
	nodes, err := parseFragment(markup, e.node)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	return nil
}

// Remove detaches the element from the document.
func (e *Element) Remove() {
	if e.node.Parent == nil {
		return
	}
	e.doc.noteRemoved(e.node)
	e.node.Parent.RemoveChild(e.node)
}

// Same reports node identity.
func (e *Element) Same(other *Element) bool {
	return other != nil && e.node == other.node
}

// Document returns the owning document.
func (e *Element) Document() *Document {
	return e.doc
}

func (e *Element) removeChildren() {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.doc.noteRemoved(c)
		e.node.RemoveChild(c)
		c = next
	}
}

// parseFragment parses markup in the context of the given parent node.
func parseFragment(markup string, context *html.Node) ([]*html.Node, error) {
	ctx := context
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return nodes, nil
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found == nil && pred(n) {
			found = n
			return false
		}
		return found == nil
	})
	return found
}

// walk visits n and its subtree depth-first. Returning false from fn stops
// descent into the current node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
