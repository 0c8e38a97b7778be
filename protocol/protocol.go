// Package protocol defines the JSON frames exchanged between the client
// runtime and the server over the persistent socket. Frames are multiplexed:
// every frame except "redirect" carries the region ID it belongs to.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/livefir/livewire/tree"
)

// Frame types, client to server.
const (
	TypeJoin  = "join"
	TypeEvent = "event"
	TypeLeave = "leave"
)

// Frame types, server to client.
const (
	TypeTrees    = "trees"
	TypePatch    = "patch"
	TypeRedirect = "redirect"
	TypeError    = "error"
)

// SpecialVars carries values extracted from the native DOM event. Fields are
// populated conditionally: value for value-bearing inputs, checked for
// checkboxes and radios, key for keyboard events.
type SpecialVars struct {
	Value   *string `json:"value,omitempty"`
	Checked *bool   `json:"checked,omitempty"`
	Key     *string `json:"key,omitempty"`
}

// ClientMessage is a frame sent by the client runtime.
type ClientMessage struct {
	Type    string       `json:"type" validate:"required,oneof=join event leave"`
	ID      string       `json:"id" validate:"required"`
	Module  string       `json:"module,omitempty" validate:"required_if=Type join"`
	Token   string       `json:"token,omitempty" validate:"required_if=Type join"`
	Handler string       `json:"handler,omitempty" validate:"required_if=Type event"`
	Event   string       `json:"event,omitempty" validate:"required_if=Type event"`
	Vars    *SpecialVars `json:"special_vars,omitempty"`
}

// ServerMessage is a frame sent by the server. Exactly one payload is set
// depending on Type. Redirect frames are global and carry no region ID.
type ServerMessage struct {
	Type  string
	ID    string
	Tree  *tree.Tree // trees: the full snapshot
	Diff  tree.Diff  // patch: sparse update to the held snapshot
	URL   string     // redirect
	Error string     // error
}

// wireServer is the flat JSON shape. "d" is an array of dynamics for a trees
// frame but a sparse object for a patch frame, so it stays raw until Type is
// known.
type wireServer struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	S     []string        `json:"s,omitempty"`
	D     json.RawMessage `json:"d,omitempty"`
	URL   string          `json:"url,omitempty"`
	Error string          `json:"error,omitempty"`
}

// MarshalJSON encodes the frame in wire format.
func (m *ServerMessage) MarshalJSON() ([]byte, error) {
	w := wireServer{Type: m.Type, ID: m.ID, URL: m.URL, Error: m.Error}
	switch m.Type {
	case TypeTrees:
		if m.Tree == nil {
			return nil, fmt.Errorf("trees frame without a tree")
		}
		raw, err := json.Marshal(m.Tree)
		if err != nil {
			return nil, err
		}
		var flat struct {
			S []string        `json:"s"`
			D json.RawMessage `json:"d"`
		}
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, err
		}
		w.S = flat.S
		w.D = flat.D
	case TypePatch:
		raw, err := json.Marshal(m.Diff)
		if err != nil {
			return nil, err
		}
		w.D = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire format.
func (m *ServerMessage) UnmarshalJSON(data []byte) error {
	var w wireServer
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Type = w.Type
	m.ID = w.ID
	m.URL = w.URL
	m.Error = w.Error
	switch w.Type {
	case TypeTrees:
		flat, err := json.Marshal(map[string]json.RawMessage{
			"s": mustMarshal(w.S),
			"d": orEmptyArray(w.D),
		})
		if err != nil {
			return err
		}
		t := &tree.Tree{}
		if err := json.Unmarshal(flat, t); err != nil {
			return fmt.Errorf("malformed trees frame: %w", err)
		}
		m.Tree = t
	case TypePatch:
		if w.D != nil {
			var d tree.Diff
			if err := json.Unmarshal(w.D, &d); err != nil {
				return fmt.Errorf("malformed patch frame: %w", err)
			}
			m.Diff = d
		}
	}
	return nil
}

func mustMarshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}

func orEmptyArray(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return json.RawMessage("[]")
	}
	return raw
}

var validate = validator.New()

// DecodeClientMessage parses and validates a client frame.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed client frame: %w", err)
	}
	if err := validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("invalid %q frame: %w", msg.Type, err)
	}
	return &msg, nil
}

// DecodeServerMessage parses a server frame. Region-scoped frames must carry
// an ID; redirect frames must carry a URL.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed server frame: %w", err)
	}
	switch msg.Type {
	case TypeTrees, TypePatch, TypeError:
		if msg.ID == "" {
			return nil, fmt.Errorf("%q frame without region id", msg.Type)
		}
	case TypeRedirect:
		if msg.URL == "" {
			return nil, fmt.Errorf("redirect frame without url")
		}
	default:
		return nil, fmt.Errorf("unknown frame type %q", msg.Type)
	}
	return &msg, nil
}

// Join builds a join frame for a region.
func Join(id, module, token string) *ClientMessage {
	return &ClientMessage{Type: TypeJoin, ID: id, Module: module, Token: token}
}

// Event builds an event frame for a region.
func Event(id, handler, event string, vars *SpecialVars) *ClientMessage {
	return &ClientMessage{Type: TypeEvent, ID: id, Handler: handler, Event: event, Vars: vars}
}

// Leave builds a leave frame for a region.
func Leave(id string) *ClientMessage {
	return &ClientMessage{Type: TypeLeave, ID: id}
}

// Trees builds a full-snapshot frame.
func Trees(id string, t *tree.Tree) *ServerMessage {
	return &ServerMessage{Type: TypeTrees, ID: id, Tree: t}
}

// Patch builds a sparse-update frame.
func Patch(id string, d tree.Diff) *ServerMessage {
	return &ServerMessage{Type: TypePatch, ID: id, Diff: d}
}

// Redirect builds a global navigation frame.
func Redirect(url string) *ServerMessage {
	return &ServerMessage{Type: TypeRedirect, URL: url}
}

// ErrorFrame builds a region-scoped error frame.
func ErrorFrame(id, message string) *ServerMessage {
	return &ServerMessage{Type: TypeError, ID: id, Error: message}
}
