package tree

// Compute produces the minimal sparse diff that turns old's dynamics into
// new's. Both trees must come from the same template, i.e. share statics;
// callers that detect a statics change send a fresh snapshot instead.
// Unchanged slots are omitted entirely.
func Compute(old, new *Tree) Diff {
	if old == nil || new == nil {
		return nil
	}
	return computeDynamics(old.Dynamics, new.Dynamics)
}

func computeDynamics(old, new []Dynamic) Diff {
	diff := make(Diff)
	for i := range new {
		if i >= len(old) {
			diff[i] = fullPatch(new[i])
			continue
		}
		if p := computeSlot(old[i], new[i]); p != nil {
			diff[i] = p
		}
	}
	if len(diff) == 0 {
		return nil
	}
	return diff
}

// computeSlot returns nil when the slot is unchanged.
func computeSlot(old, new Dynamic) Patch {
	if equalDynamic(old, new) {
		return nil
	}
	switch nv := new.(type) {
	case Leaf:
		return LeafPatch(nv)
	case *Tree:
		ov, ok := old.(*Tree)
		if !ok || !equalStatics(ov.Statics, nv.Statics) {
			// Branch flipped or slot changed shape: resend the whole subtree.
			return TreePatch{Tree: nv}
		}
		if nested := computeDynamics(ov.Dynamics, nv.Dynamics); nested != nil {
			return NestedPatch(nested)
		}
		return nil
	case List:
		ov, ok := old.(List)
		if !ok || len(ov) != len(nv) {
			// Length changes replace the list wholesale; list diffs carry no
			// append operation.
			return ListPatch(nv)
		}
		nested := make(Diff)
		for i := range nv {
			if equalTree(ov[i], nv[i]) {
				continue
			}
			if ov[i] != nil && nv[i] != nil && equalStatics(ov[i].Statics, nv[i].Statics) {
				if d := computeDynamics(ov[i].Dynamics, nv[i].Dynamics); d != nil {
					nested[i] = NestedPatch(d)
				}
				continue
			}
			nested[i] = TreePatch{Tree: nv[i]}
		}
		if len(nested) == 0 {
			return nil
		}
		return NestedPatch(nested)
	default:
		return nil
	}
}

func fullPatch(d Dynamic) Patch {
	switch v := d.(type) {
	case Leaf:
		return LeafPatch(v)
	case *Tree:
		return TreePatch{Tree: v}
	case List:
		return ListPatch(v)
	default:
		return LeafPatch("")
	}
}
