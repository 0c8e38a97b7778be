package dom

import (
	"golang.org/x/net/html"
)

// MorphOptions controls the keyed minimal-diff update.
type MorphOptions struct {
	// KeyAttrs are attribute names tried in order to derive an element's
	// stable key; the native id attribute is the final fallback.
	KeyAttrs []string

	// Skip marks subtree ownership boundaries: a matched element for which
	// Skip returns true keeps its attributes and children untouched. It may
	// still be repositioned among its siblings.
	Skip func(*Element) bool
}

// Morph updates the container's children to match the given markup with the
// smallest set of node changes. Node identity is preserved via the stable key
// so listeners, focus, and skipped subtrees survive the patch.
func Morph(container *Element, markup string, opts MorphOptions) error {
	nodes, err := parseFragment(markup, container.node)
	if err != nil {
		return err
	}
	m := &morpher{doc: container.doc, opts: opts}
	m.children(container.node, nodes)
	return nil
}

type morpher struct {
	doc  *Document
	opts MorphOptions
}

func (m *morpher) key(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	for _, attr := range m.opts.KeyAttrs {
		if v := attrVal(n, attr); v != "" {
			return attr + "=" + v
		}
	}
	if id := attrVal(n, "id"); id != "" {
		return "id=" + id
	}
	return ""
}

// children reconciles oldParent's child list against the desired newKids.
func (m *morpher) children(oldParent *html.Node, newKids []*html.Node) {
	var oldKids []*html.Node
	for c := oldParent.FirstChild; c != nil; c = c.NextSibling {
		oldKids = append(oldKids, c)
	}

	keyed := make(map[string]*html.Node)
	for _, k := range oldKids {
		if key := m.key(k); key != "" {
			if _, taken := keyed[key]; !taken {
				keyed[key] = k
			}
		}
	}

	used := make(map[*html.Node]bool)
	final := make([]*html.Node, 0, len(newKids))
	cursor := 0

	for _, nk := range newKids {
		var match *html.Node

		if key := m.key(nk); key != "" {
			if cand, ok := keyed[key]; ok && !used[cand] {
				match = cand
			}
		}
		if match == nil {
			// Positional match: the next unused compatible old child.
			for i := cursor; i < len(oldKids); i++ {
				cand := oldKids[i]
				if used[cand] || !m.compatible(cand, nk) {
					continue
				}
				match = cand
				cursor = i + 1
				break
			}
		}

		if match == nil {
			final = append(final, nk)
			continue
		}
		used[match] = true
		m.node(match, nk)
		final = append(final, match)
	}

	// Anything not carried into the final list is gone.
	for _, k := range oldKids {
		if !used[k] {
			m.doc.noteRemoved(k)
		}
	}

	// Rebuild the child list in order. Re-appending the same nodes preserves
	// their identity, listeners, and skipped subtrees.
	for c := oldParent.FirstChild; c != nil; {
		next := c.NextSibling
		oldParent.RemoveChild(c)
		c = next
	}
	for _, n := range final {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		oldParent.AppendChild(n)
	}
}

// compatible reports whether an old node can be morphed into the new one.
func (m *morpher) compatible(old, new *html.Node) bool {
	if old.Type != new.Type {
		return false
	}
	if old.Type != html.ElementNode {
		return true
	}
	if old.Data != new.Data {
		return false
	}
	oldKey, newKey := m.key(old), m.key(new)
	return oldKey == "" || newKey == "" || oldKey == newKey
}

// node morphs a matched old node in place to mirror the new one.
func (m *morpher) node(old, new *html.Node) {
	if old.Type == html.TextNode {
		if old.Data != new.Data {
			old.Data = new.Data
		}
		return
	}
	if old.Type != html.ElementNode {
		return
	}

	el := m.doc.elem(old)
	if m.opts.Skip != nil && m.opts.Skip(el) {
		// Ownership boundary: a nested live region patches itself.
		return
	}

	m.attrs(old, new)

	if m.doc.active == old && el.Tag() == "textarea" {
		// A focused textarea's content is its live value; leave it alone.
		return
	}

	var newKids []*html.Node
	for c := new.FirstChild; c != nil; {
		next := c.NextSibling
		new.RemoveChild(c)
		newKids = append(newKids, c)
		c = next
	}
	m.children(old, newKids)
}

// attrs syncs old's attributes to new's. The focused element keeps its live
// value so a patch never stomps what the user is typing.
func (m *morpher) attrs(old, new *html.Node) {
	preserveValue := m.doc.active == old

	seen := make(map[string]bool, len(new.Attr))
	for _, a := range new.Attr {
		seen[a.Key] = true
		if preserveValue && a.Key == "value" {
			continue
		}
		m.doc.elem(old).SetAttr(a.Key, a.Val)
	}
	kept := old.Attr[:0]
	for _, a := range old.Attr {
		if seen[a.Key] || (preserveValue && a.Key == "value") {
			kept = append(kept, a)
		}
	}
	old.Attr = kept
}
