// Package tree implements the statics/dynamics tree codec used by the live
// update protocol. A template render is split into statics (markup fragments
// that never change) and dynamics (interpolated values), so that after the
// first full snapshot only changed dynamic slots travel over the wire.
package tree

import (
	"strings"
)

// Tree is one rendered template region: interleaved statics and dynamics.
// Invariant: len(Statics) == len(Dynamics)+1. Reconstruction interleaves
// Statics[i], render(Dynamics[i]), ... and closes with the final static.
type Tree struct {
	Statics  []string
	Dynamics []Dynamic
}

// Dynamic is one dynamic slot value: a Leaf, a *Tree subtree, or a List.
type Dynamic interface {
	isDynamic()
}

// Leaf is a pre-escaped rendered string value.
type Leaf string

// List is loop output: one Tree per iteration. Separators between entries
// must already be embedded as statics inside the iteration template.
type List []*Tree

func (Leaf) isDynamic()  {}
func (List) isDynamic()  {}
func (*Tree) isDynamic() {}

// Reconstruct produces the full HTML for a tree. Pure: no side effects, the
// output is a deterministic function of the tree's contents.
func Reconstruct(t *Tree) string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	for i, s := range t.Statics {
		b.WriteString(s)
		if i < len(t.Dynamics) {
			b.WriteString(renderDynamic(t.Dynamics[i]))
		}
	}
	return b.String()
}

// renderDynamic renders a single dynamic value. Malformed or unrecognized
// values render as the empty string rather than failing.
func renderDynamic(d Dynamic) string {
	switch v := d.(type) {
	case Leaf:
		return string(v)
	case *Tree:
		return Reconstruct(v)
	case List:
		var b strings.Builder
		for _, entry := range v {
			b.WriteString(Reconstruct(entry))
		}
		return b.String()
	default:
		return ""
	}
}

// Valid reports whether the tree satisfies the statics/dynamics invariant.
func (t *Tree) Valid() bool {
	if t == nil {
		return false
	}
	return len(t.Statics) == len(t.Dynamics)+1
}

// SameStatics reports whether two trees share their root statics. Diffs are
// only meaningful between trees that do; a statics change needs a fresh
// snapshot.
func SameStatics(a, b *Tree) bool {
	if a == nil || b == nil {
		return a == b
	}
	return equalStatics(a.Statics, b.Statics)
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	c := &Tree{
		Statics:  append([]string(nil), t.Statics...),
		Dynamics: make([]Dynamic, len(t.Dynamics)),
	}
	for i, d := range t.Dynamics {
		c.Dynamics[i] = cloneDynamic(d)
	}
	return c
}

func cloneDynamic(d Dynamic) Dynamic {
	switch v := d.(type) {
	case Leaf:
		return v
	case *Tree:
		return v.Clone()
	case List:
		out := make(List, len(v))
		for i, entry := range v {
			out[i] = entry.Clone()
		}
		return out
	default:
		return nil
	}
}

// equalDynamic reports deep equality of two dynamic values.
func equalDynamic(a, b Dynamic) bool {
	switch av := a.(type) {
	case Leaf:
		bv, ok := b.(Leaf)
		return ok && av == bv
	case *Tree:
		bv, ok := b.(*Tree)
		return ok && equalTree(av, bv)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalTree(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

func equalTree(a, b *Tree) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !equalStatics(a.Statics, b.Statics) || len(a.Dynamics) != len(b.Dynamics) {
		return false
	}
	for i := range a.Dynamics {
		if !equalDynamic(a.Dynamics[i], b.Dynamics[i]) {
			return false
		}
	}
	return true
}

func equalStatics(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
