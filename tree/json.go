package tree

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire shape of a tree: {"s":["<b>","</b>"],"d":["0"]}. Dynamics encode as a
// string (leaf), a nested tree object (subtree), or an array of tree objects
// (list). A diff encodes as a sparse object keyed by decimal slot index:
// {"0":"5","1":{"d":{"0":"y"}},"2":{"s":[...],"d":[...]},"3":[...]}.

type wireTree struct {
	S []string          `json:"s"`
	D []json.RawMessage `json:"d"`
}

// MarshalJSON encodes the tree in wire format.
func (t *Tree) MarshalJSON() ([]byte, error) {
	w := wireTree{S: t.Statics}
	if t.Statics == nil {
		w.S = []string{}
	}
	w.D = make([]json.RawMessage, 0, len(t.Dynamics))
	for _, d := range t.Dynamics {
		raw, err := marshalDynamic(d)
		if err != nil {
			return nil, err
		}
		w.D = append(w.D, raw)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire format.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var w wireTree
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Statics = w.S
	t.Dynamics = make([]Dynamic, 0, len(w.D))
	for _, raw := range w.D {
		d, err := unmarshalDynamic(raw)
		if err != nil {
			return err
		}
		t.Dynamics = append(t.Dynamics, d)
	}
	return nil
}

func marshalDynamic(d Dynamic) (json.RawMessage, error) {
	switch v := d.(type) {
	case Leaf:
		return json.Marshal(string(v))
	case *Tree:
		return json.Marshal(v)
	case List:
		return json.Marshal([]*Tree(v))
	default:
		return json.Marshal("")
	}
}

func unmarshalDynamic(raw json.RawMessage) (Dynamic, error) {
	switch kind(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return Leaf(s), nil
	case '{':
		sub := &Tree{}
		if err := json.Unmarshal(raw, sub); err != nil {
			return nil, err
		}
		return sub, nil
	case '[':
		var list []*Tree
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return List(list), nil
	default:
		return nil, fmt.Errorf("unrecognized dynamic value: %s", string(raw))
	}
}

// kind returns the first non-whitespace byte of a JSON value.
func kind(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// MarshalJSON encodes the diff in wire format.
func (d Diff) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d))
	for idx, p := range d {
		raw, err := marshalPatch(p)
		if err != nil {
			return nil, err
		}
		out[strconv.Itoa(idx)] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire format. Non-numeric keys are dropped rather
// than rejected: an unknown extension key must not poison the whole diff.
func (d *Diff) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Diff, len(raw))
	for key, val := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		p, err := unmarshalPatch(val)
		if err != nil {
			return err
		}
		out[idx] = p
	}
	*d = out
	return nil
}

func marshalPatch(p Patch) (json.RawMessage, error) {
	switch v := p.(type) {
	case LeafPatch:
		return json.Marshal(string(v))
	case ListPatch:
		return json.Marshal([]*Tree(v))
	case TreePatch:
		return json.Marshal(v.Tree)
	case NestedPatch:
		inner, err := Diff(v).MarshalJSON()
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"d": inner})
	default:
		return nil, fmt.Errorf("unknown patch type %T", p)
	}
}

func unmarshalPatch(raw json.RawMessage) (Patch, error) {
	switch kind(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return LeafPatch(s), nil
	case '[':
		var list []*Tree
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return ListPatch(list), nil
	case '{':
		var obj struct {
			S []string        `json:"s"`
			D json.RawMessage `json:"d"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		if obj.S != nil {
			// New statics present: a full subtree replacement.
			sub := &Tree{}
			if err := json.Unmarshal(raw, sub); err != nil {
				return nil, err
			}
			return TreePatch{Tree: sub}, nil
		}
		if obj.D == nil {
			return nil, fmt.Errorf("patch object carries neither statics nor dynamics")
		}
		var nested Diff
		if err := nested.UnmarshalJSON(obj.D); err != nil {
			return nil, err
		}
		return NestedPatch(nested), nil
	default:
		return nil, fmt.Errorf("unrecognized patch value: %s", string(raw))
	}
}
