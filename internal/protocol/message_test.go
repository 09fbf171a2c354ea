package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_DecodeBackendDelta(t *testing.T) {
	raw := `{"message":{"id":"m-1","content":{"content_type":"text","parts":["partial answer"]}},"conversation_id":"c-1"}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "m-1", msg.ID())
	assert.Equal(t, []string{"partial answer"}, msg.Message.Content.Parts)
}

func TestMessage_IsThinking(t *testing.T) {
	assert.True(t, Thinking("id").IsThinking())
	assert.False(t, Done().IsThinking())
	assert.False(t, (*Message)(nil).IsThinking())
}

func TestMessage_ID(t *testing.T) {
	assert.Equal(t, "abc", UserEcho("abc", "hi").ID())
	assert.Equal(t, "", Done().ID())
	assert.Equal(t, "", (*Message)(nil).ID())
}

func TestSetActive_MarshalsExplicitFalse(t *testing.T) {
	data, err := json.Marshal(SetActive(false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"meta","action":"set-active","active":false}`, string(data))
}
