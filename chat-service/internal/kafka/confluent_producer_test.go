package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
)

func TestEncodeEvent_KeysByCommunity(t *testing.T) {
	ev := &domain.ChatEvent{
		ID:          "e1",
		Type:        domain.EventMessageCreated,
		CommunityID: "42",
		MessageID:   "m1",
		ActorID:     "alice",
		OccurredAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	key, value, err := encodeEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "42", string(key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(value, &decoded))
	assert.Equal(t, "message.created", decoded["type"])
	assert.Equal(t, "m1", decoded["messageId"])
	assert.Equal(t, "alice", decoded["actorId"])
}
