package tree

// A Diff is a sparse update to a tree's dynamic slots: only changed indices
// are present. For a subtree patch the keys index the subtree's dynamics; for
// a list patch the keys index the list entries.
type Diff map[int]Patch

// Patch is one diff entry. Exactly four shapes exist on the wire:
//
//	LeafPatch   — full leaf replacement (a plain string)
//	ListPatch   — full list replacement (an array of trees)
//	TreePatch   — full subtree replacement, new statics included (a branch or
//	              shape change, e.g. a conditional flipping)
//	NestedPatch — dynamics-only diff applied recursively into the existing
//	              subtree, or into still-same-shape list entries
type Patch interface {
	isPatch()
}

// LeafPatch replaces a slot with a new leaf value.
type LeafPatch string

// ListPatch replaces a slot with a whole new list.
type ListPatch []*Tree

// TreePatch replaces a slot with a whole new subtree, statics and all.
type TreePatch struct {
	Tree *Tree
}

// NestedPatch carries only a dynamics-level diff. It is valid only against an
// existing value of matching shape; against anything else it is skipped.
type NestedPatch Diff

func (LeafPatch) isPatch()   {}
func (ListPatch) isPatch()   {}
func (TreePatch) isPatch()   {}
func (NestedPatch) isPatch() {}

// Apply applies a diff onto a dynamics slice in place. Unknown indices and
// shape mismatches are dropped silently: a malformed patch must never corrupt
// the other slots or crash the region holding the snapshot.
func Apply(dynamics []Dynamic, diff Diff) {
	for idx, p := range diff {
		if idx < 0 || idx >= len(dynamics) {
			continue
		}
		switch v := p.(type) {
		case LeafPatch:
			dynamics[idx] = Leaf(v)
		case ListPatch:
			dynamics[idx] = List(v)
		case TreePatch:
			dynamics[idx] = v.Tree
		case NestedPatch:
			switch cur := dynamics[idx].(type) {
			case *Tree:
				ApplySubtree(cur, Diff(v))
			case List:
				ApplyList(cur, Diff(v))
			default:
				// Nested diff against a leaf: shape mismatch, skip.
			}
		}
	}
}

// ApplySubtree applies a dynamics-level diff into an existing subtree.
func ApplySubtree(t *Tree, diff Diff) {
	if t == nil {
		return
	}
	Apply(t.Dynamics, diff)
}

// ApplyList applies a diff whose keys index into a list. Each entry is either
// a full tree replacement or a nested diff into the existing entry's
// dynamics. Out-of-range indices are no-ops; list diffs do not append.
func ApplyList(l List, diff Diff) {
	for idx, p := range diff {
		if idx < 0 || idx >= len(l) {
			continue
		}
		switch v := p.(type) {
		case TreePatch:
			l[idx] = v.Tree
		case NestedPatch:
			if l[idx] != nil && l[idx].Dynamics != nil {
				Apply(l[idx].Dynamics, Diff(v))
			}
		default:
			// Leaf and full-list patches have no meaning inside a list.
		}
	}
}
