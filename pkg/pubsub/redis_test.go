package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisPubSub(t *testing.T) *RedisPubSub {
	t.Helper()
	mr := miniredis.RunT(t)

	ps, err := NewRedisPubSub(RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	return ps
}

func TestRedisPubSub_PatternRoundTrip(t *testing.T) {
	ps := newTestRedisPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := ps.SubscribePattern(ctx, PatternRoomToGateway)
	require.NoError(t, err)

	evt, err := NewEvent("new_message", "42", map[string]string{"content": "hello"})
	require.NoError(t, err)
	evt.Exclude = "conn-1"
	require.NoError(t, ps.Publish(ctx, RoomChannel("42"), evt))

	select {
	case got := <-ch:
		require.NotNil(t, got)
		assert.Equal(t, "new_message", got.Type)
		assert.Equal(t, "42", got.RoomID)
		assert.Equal(t, "conn-1", got.Exclude)

		var payload map[string]string
		require.NoError(t, got.UnmarshalPayload(&payload))
		assert.Equal(t, "hello", payload["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNewPubSub_UnknownDriver(t *testing.T) {
	_, err := NewPubSub(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)
	assert.False(t, Config{Driver: "none"}.Enabled())
	assert.True(t, Config{Driver: "redis"}.Enabled())
}
