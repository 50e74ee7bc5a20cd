package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// frame holds the top-level members of a client frame. Keys are matched
// exactly: "KIND" is not "kind".
type frame map[string]json.RawMessage

// str reads key as a string. A missing key or a JSON null reads as "".
func (f frame) str(key string) (string, bool, error) {
	raw, ok := f[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", true, fmt.Errorf("%w: %s must be a string", ErrMalformedFrame, key)
	}
	return s, true, nil
}

// Decode parses one client frame into its typed variant. Frames that are not
// JSON objects, or that lack a kind, return ErrMalformedFrame.
func Decode(data []byte) (Inbound, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedFrame
	}

	var fields frame
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	kind, _, err := fields.str("kind")
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return nil, ErrMissingKind
	}
	target, _, err := fields.str("target")
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindUsername:
		return decodeUsername(fields)

	case KindMessage:
		return decodeChat(fields, target)

	default:
		raw := make([]byte, len(data))
		copy(raw, data)
		return &Opaque{kind: kind, Target: target, Raw: raw}, nil
	}
}

func decodeUsername(fields frame) (*UsernameRequest, error) {
	req := &UsernameRequest{}
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &req.ID); err != nil {
			return nil, fmt.Errorf("%w: id must be a session number", ErrMalformedFrame)
		}
	}
	name, _, err := fields.str("name")
	if err != nil {
		return nil, err
	}
	req.Name = name
	return req, nil
}

// chatReserved are the members of a chat frame the server owns. Extra members
// that spell one of these in another case are dropped so they cannot shadow
// the sanitized or server-set value.
var chatReserved = []string{"kind", "text", "target", "name"}

func decodeChat(fields frame, target string) (*ChatMessage, error) {
	msg := &ChatMessage{Target: target}

	text, present, err := fields.str("text")
	if err != nil {
		return nil, ErrInvalidText
	}
	msg.Text, msg.hasText = text, present

	// name is always set by the server from the sender's session
	for key := range fields {
		for _, reserved := range chatReserved {
			if strings.EqualFold(key, reserved) {
				delete(fields, key)
				break
			}
		}
	}
	msg.extra = fields

	return msg, nil
}

// Encode serializes an outbound message.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}
