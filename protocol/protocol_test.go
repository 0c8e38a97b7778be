package protocol

import (
	"encoding/json"
	"testing"

	"github.com/livefir/livewire/tree"
)

func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid join",
			raw:  `{"type":"join","id":"lw-1","module":"counter","token":"abc"}`,
		},
		{
			name: "valid event with special vars",
			raw:  `{"type":"event","id":"lw-1","handler":"set_name","event":"input","special_vars":{"value":"alice"}}`,
		},
		{
			name: "valid leave",
			raw:  `{"type":"leave","id":"lw-1"}`,
		},
		{
			name:    "join without token",
			raw:     `{"type":"join","id":"lw-1","module":"counter"}`,
			wantErr: true,
		},
		{
			name:    "event without handler",
			raw:     `{"type":"event","id":"lw-1","event":"click"}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			raw:     `{"type":"bogus","id":"lw-1"}`,
			wantErr: true,
		},
		{
			name:    "missing id",
			raw:     `{"type":"leave"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `{{{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeClientMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	snapshot := &tree.Tree{
		Statics:  []string{"<b>", "</b>"},
		Dynamics: []tree.Dynamic{tree.Leaf("0")},
	}

	tests := []struct {
		name string
		msg  *ServerMessage
	}{
		{name: "trees", msg: Trees("lw-1", snapshot)},
		{name: "patch", msg: Patch("lw-1", tree.Diff{0: tree.LeafPatch("5")})},
		{name: "redirect", msg: Redirect("/dashboard")},
		{name: "error", msg: ErrorFrame("lw-1", "handler not found")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			decoded, err := DecodeServerMessage(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.Type != tt.msg.Type || decoded.ID != tt.msg.ID ||
				decoded.URL != tt.msg.URL || decoded.Error != tt.msg.Error {
				t.Errorf("round trip changed envelope: %+v vs %+v", decoded, tt.msg)
			}
		})
	}
}

func TestServerMessageWireShape(t *testing.T) {
	data, err := json.Marshal(Trees("lw-1", &tree.Tree{
		Statics:  []string{"<b>", "</b>"},
		Dynamics: []tree.Dynamic{tree.Leaf("0")},
	}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"type", "id", "s", "d"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("trees frame missing %q key: %s", key, data)
		}
	}

	decoded, err := DecodeServerMessage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := tree.Reconstruct(decoded.Tree); got != "<b>0</b>" {
		t.Errorf("decoded snapshot reconstructs to %q", got)
	}
}

func TestDecodeServerMessageRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "trees without id", raw: `{"type":"trees","s":["a"],"d":[]}`},
		{name: "redirect without url", raw: `{"type":"redirect"}`},
		{name: "unknown type", raw: `{"type":"mystery","id":"lw-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeServerMessage([]byte(tt.raw)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
