package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Username(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"username","id":3,"name":"alice"}`))
	require.NoError(t, err)

	req, ok := msg.(*UsernameRequest)
	require.True(t, ok, "expected *UsernameRequest, got %T", msg)
	assert.Equal(t, uint32(3), req.ID)
	assert.Equal(t, "alice", req.Name)
	assert.Equal(t, KindUsername, req.Kind())
}

func TestDecode_ChatKeepsUnknownFields(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"message","id":1,"text":"hi","target":"bob","date":1700000000,"name":"spoofed"}`))
	require.NoError(t, err)

	chat, ok := msg.(*ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "hi", chat.Text)
	assert.Equal(t, "bob", chat.Target)
	assert.Empty(t, chat.Name, "client supplied name must be discarded")

	chat.Name = "alice"
	out, err := Encode(chat)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, "message", fields["kind"])
	assert.Equal(t, "hi", fields["text"])
	assert.Equal(t, "alice", fields["name"])
	assert.Equal(t, "bob", fields["target"])
	assert.EqualValues(t, 1700000000, fields["date"])
	assert.EqualValues(t, 1, fields["id"])
}

func TestDecode_ChatCaseVariantKeys(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		target string
		want   string
	}{
		{
			name:  "upper-case target is not a target",
			input: `{"kind":"message","text":"hi","TARGET":"bob"}`,
			want:  `{"kind":"message","text":"hi","name":"alice"}`,
		},
		{
			name:  "title-case text is dropped, not relayed",
			input: `{"kind":"message","Text":"<script>x</script>"}`,
			want:  `{"kind":"message","name":"alice"}`,
		},
		{
			name:  "spoofed name variants are dropped",
			input: `{"kind":"message","text":"hi","Name":"admin","NAME":"root"}`,
			want:  `{"kind":"message","text":"hi","name":"alice"}`,
		},
		{
			name:   "other extra fields survive",
			input:  `{"kind":"message","text":"hi","target":"bob","Kind":"ice","Date":1}`,
			target: "bob",
			want:   `{"kind":"message","text":"hi","name":"alice","target":"bob","Date":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			chat, ok := msg.(*ChatMessage)
			require.True(t, ok, "expected *ChatMessage, got %T", msg)
			assert.Equal(t, tt.target, chat.Target)

			chat.Name = "alice"
			out, err := Encode(chat)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}
}

func TestDecode_OpaqueTargetIsCaseSensitive(t *testing.T) {
	raw := []byte(`{"kind":"ice","TARGET":"bob","candidate":"c"}`)
	msg, err := Decode(raw)
	require.NoError(t, err)

	opaque, ok := msg.(*Opaque)
	require.True(t, ok)
	assert.Empty(t, opaque.Target)
	out, err := Encode(opaque)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestDecode_ChatWithoutTextOmitsIt(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"message","file":"a.png"}`))
	require.NoError(t, err)
	out, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"message","file":"a.png"}`, string(out))

	msg, err = Decode([]byte(`{"kind":"message","text":""}`))
	require.NoError(t, err)
	out, err = Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"message","text":""}`, string(out))
}

func TestDecode_ChatWithoutTargetOmitsIt(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"message","text":"hello"}`))
	require.NoError(t, err)

	out, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"message","text":"hello"}`, string(out))
}

func TestDecode_OpaqueIsByteForByte(t *testing.T) {
	raw := []byte(`{"kind":"video-offer","target":"bob","sdp":{"type":"offer","sdp":"v=0\r\n"}}`)
	msg, err := Decode(raw)
	require.NoError(t, err)

	opaque, ok := msg.(*Opaque)
	require.True(t, ok)
	assert.Equal(t, "video-offer", opaque.Kind())
	assert.Equal(t, "bob", opaque.Target)

	out, err := Encode(opaque)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestDecode_ServerKindsFromClientAreOpaque(t *testing.T) {
	for _, kind := range []string{KindID, KindRoster, KindRejectUsername} {
		msg, err := Decode([]byte(`{"kind":"` + kind + `"}`))
		require.NoError(t, err)
		_, ok := msg.(*Opaque)
		assert.True(t, ok, "kind %s should decode as opaque", kind)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", ``, ErrMalformedFrame},
		{"plain text", `hello`, ErrMalformedFrame},
		{"array", `[1,2]`, ErrMalformedFrame},
		{"truncated", `{"kind":"message"`, ErrMalformedFrame},
		{"no kind", `{"text":"x"}`, ErrMissingKind},
		{"target not a string", `{"kind":"ice","target":5}`, ErrMalformedFrame},
		{"username not a string", `{"kind":"username","name":7}`, ErrMalformedFrame},
		{"text not a string", `{"kind":"message","text":{}}`, ErrInvalidText},
		{"kind not a string", `{"kind":3}`, ErrMalformedFrame},
		{"upper-case kind", `{"KIND":"username","name":"bob"}`, ErrMissingKind},
		{"title-case kind", `{"Kind":"message","text":"x"}`, ErrMissingKind},
		{"username id not a number", `{"kind":"username","id":"one"}`, ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestNewRoster_EmptyIsList(t *testing.T) {
	out, err := Encode(NewRoster(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"roster","users":[]}`, string(out))
}

func TestOutboundShapes(t *testing.T) {
	out, err := Encode(NewIDAssignment(7))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"id","id":7}`, string(out))

	out, err = Encode(NewRejectUsername(2, "alice1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"rejectusername","id":2,"name":"alice1"}`, string(out))
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hi <b>bob</b>", "hi bob"},
		{"no tags", "no tags"},
		{"<script>alert(1)</script>", "alert(1)"},
		{"a < b", "a < b"},
		{"1 > 0", "1 > 0"},
		{"<<b>>", ">"},
		{"<>", ""},
		{"<img src=x onerror=y>caption", "caption"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StripTags(tt.in), "StripTags(%q)", tt.in)
	}
}

func TestStripTags_Idempotent(t *testing.T) {
	inputs := []string{
		"", "plain", "<a>", "<<a>b>", "x<y", "x>y", "<a<b>c>d", "<>>", "<<>>",
		"hi <b>bob</b> & <i>carol", "<<<>>>", "a<b>c<d", "<\n>", "<ü>ñ",
	}
	for _, s := range inputs {
		once := StripTags(s)
		assert.Equal(t, once, StripTags(once), "not idempotent for %q", s)
	}
}
