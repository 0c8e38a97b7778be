package tree

import (
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
)

func TestReconstruct(t *testing.T) {
	tests := []struct {
		name string
		tree *Tree
		want string
	}{
		{
			name: "nil tree",
			tree: nil,
			want: "",
		},
		{
			name: "static only",
			tree: &Tree{Statics: []string{"<p>hello</p>"}},
			want: "<p>hello</p>",
		},
		{
			name: "single leaf",
			tree: &Tree{Statics: []string{"<b>", "</b>"}, Dynamics: []Dynamic{Leaf("0")}},
			want: "<b>0</b>",
		},
		{
			name: "multiple leaves",
			tree: &Tree{
				Statics:  []string{"Name: ", ", Age: ", ""},
				Dynamics: []Dynamic{Leaf("Alice"), Leaf("30")},
			},
			want: "Name: Alice, Age: 30",
		},
		{
			name: "nested subtree",
			tree: &Tree{
				Statics: []string{"a", "c"},
				Dynamics: []Dynamic{
					&Tree{Statics: []string{"x", "z"}, Dynamics: []Dynamic{Leaf("y")}},
				},
			},
			want: "axyzc",
		},
		{
			name: "list of subtrees without separators",
			tree: &Tree{
				Statics: []string{"<ul>", "</ul>"},
				Dynamics: []Dynamic{
					List{
						{Statics: []string{"<li>", "</li>"}, Dynamics: []Dynamic{Leaf("A")}},
						{Statics: []string{"<li>", "</li>"}, Dynamics: []Dynamic{Leaf("B")}},
						{Statics: []string{"<li>", "</li>"}, Dynamics: []Dynamic{Leaf("C")}},
					},
				},
			},
			want: "<ul><li>A</li><li>B</li><li>C</li></ul>",
		},
		{
			name: "empty list renders nothing",
			tree: &Tree{
				Statics:  []string{"<ul>", "</ul>"},
				Dynamics: []Dynamic{List{}},
			},
			want: "<ul></ul>",
		},
		{
			name: "malformed nil dynamic renders empty",
			tree: &Tree{Statics: []string{"<b>", "</b>"}, Dynamics: []Dynamic{nil}},
			want: "<b></b>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reconstruct(tt.tree); got != tt.want {
				t.Errorf("Reconstruct() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReconstructDeterministic(t *testing.T) {
	gofakeit.Seed(11)

	// Random leaf contents must not affect determinism or interleave order.
	for i := 0; i < 50; i++ {
		n := gofakeit.Number(1, 8)
		statics := make([]string, n+1)
		dynamics := make([]Dynamic, n)
		var want strings.Builder
		for j := 0; j < n; j++ {
			statics[j] = gofakeit.Word()
			dynamics[j] = Leaf(gofakeit.Word())
			want.WriteString(statics[j])
			want.WriteString(string(dynamics[j].(Leaf)))
		}
		statics[n] = gofakeit.Word()
		want.WriteString(statics[n])

		tr := &Tree{Statics: statics, Dynamics: dynamics}
		if !tr.Valid() {
			t.Fatalf("constructed tree violates invariant: %d statics, %d dynamics", len(statics), len(dynamics))
		}
		first := Reconstruct(tr)
		if first != want.String() {
			t.Fatalf("Reconstruct() = %q, want %q", first, want.String())
		}
		if second := Reconstruct(tr); second != first {
			t.Fatalf("Reconstruct() not deterministic: %q then %q", first, second)
		}
	}
}

func TestClone(t *testing.T) {
	orig := &Tree{
		Statics: []string{"a", "b", "c"},
		Dynamics: []Dynamic{
			Leaf("x"),
			List{{Statics: []string{"1", "2"}, Dynamics: []Dynamic{Leaf("y")}}},
		},
	}
	clone := orig.Clone()
	if !equalTree(orig, clone) {
		t.Fatal("clone does not equal original")
	}

	// Mutating the clone must not leak into the original.
	clone.Dynamics[0] = Leaf("changed")
	clone.Dynamics[1].(List)[0].Dynamics[0] = Leaf("changed")
	if orig.Dynamics[0] != Leaf("x") {
		t.Error("clone mutation leaked into original leaf")
	}
	if orig.Dynamics[1].(List)[0].Dynamics[0] != Leaf("y") {
		t.Error("clone mutation leaked into original list entry")
	}
}
