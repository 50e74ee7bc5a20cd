package types

import (
	"encoding/json"
)

// Message kinds understood by the router. Every other kind is relayed as Opaque.
const (
	KindID             = "id"
	KindUsername       = "username"
	KindRejectUsername = "rejectusername"
	KindRoster         = "roster"
	KindMessage        = "message"
)

// Inbound is a decoded client frame. The concrete type is one of
// *UsernameRequest, *ChatMessage or *Opaque.
type Inbound interface {
	Kind() string
}

// UsernameRequest asks the server to grant a display name.
type UsernameRequest struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

func (m *UsernameRequest) Kind() string { return KindUsername }

// ChatMessage is a text message. Fields the router does not use are kept
// verbatim in extra and written back out when the message is relayed.
// text is only written if the client sent it.
type ChatMessage struct {
	Text   string
	Target string
	Name   string

	hasText bool
	extra   map[string]json.RawMessage
}

func (m *ChatMessage) Kind() string { return KindMessage }

// MarshalJSON writes the original fields with text, name and target replaced.
func (m *ChatMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.extra)+4)
	for k, v := range m.extra {
		out[k] = v
	}
	out["kind"] = KindMessage
	if m.hasText {
		out["text"] = m.Text
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.Target != "" {
		out["target"] = m.Target
	}
	return json.Marshal(out)
}

// Opaque is any message kind the server relays without interpreting it,
// such as WebRTC offers, answers and ICE candidates.
type Opaque struct {
	kind   string
	Target string
	Raw    []byte
}

func (m *Opaque) Kind() string { return m.kind }

// MarshalJSON returns the frame exactly as it was received.
func (m *Opaque) MarshalJSON() ([]byte, error) {
	return m.Raw, nil
}

// IDAssignment tells a freshly connected client its session ID.
type IDAssignment struct {
	Kind string `json:"kind"`
	ID   uint32 `json:"id"`
}

// RejectUsername tells a client the name it asked for was changed.
type RejectUsername struct {
	Kind string `json:"kind"`
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// Roster lists the display names of all connected clients.
type Roster struct {
	Kind  string   `json:"kind"`
	Users []string `json:"users"`
}

func NewIDAssignment(id uint32) *IDAssignment {
	return &IDAssignment{Kind: KindID, ID: id}
}

func NewRejectUsername(id uint32, granted string) *RejectUsername {
	return &RejectUsername{Kind: KindRejectUsername, ID: id, Name: granted}
}

// NewRoster builds a roster message. A nil slice is encoded as an empty list.
func NewRoster(users []string) *Roster {
	if users == nil {
		users = []string{}
	}
	return &Roster{Kind: KindRoster, Users: users}
}
