package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_JoinLeave(t *testing.T) {
	s := NewSession("conn-1")
	assert.False(t, s.IsAuthenticated())

	s.Authenticate("u1", "alice")
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "u1", s.GetUserID())

	assert.True(t, s.JoinCommunity("42"))
	assert.False(t, s.JoinCommunity("42"))
	assert.True(t, s.JoinCommunity("7"))
	assert.Equal(t, []string{"42", "7"}, s.Communities())

	assert.True(t, s.LeaveCommunity("42"))
	assert.False(t, s.LeaveCommunity("42"))
	assert.False(t, s.IsInCommunity("42"))
	assert.True(t, s.IsInCommunity("7"))
}

func TestSession_ConcurrentAccess(t *testing.T) {
	s := NewSession("conn-1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%5))
			s.JoinCommunity(id)
			s.IsInCommunity(id)
			s.LeaveCommunity(id)
		}(i)
	}
	wg.Wait()
	assert.Empty(t, s.Communities())
}

func TestMessagePage_TotalPages(t *testing.T) {
	assert.Equal(t, 0, (&MessagePage{Total: 0, Limit: 50}).TotalPages())
	assert.Equal(t, 1, (&MessagePage{Total: 50, Limit: 50}).TotalPages())
	assert.Equal(t, 2, (&MessagePage{Total: 51, Limit: 50}).TotalPages())
	assert.Equal(t, 0, (&MessagePage{Total: 5}).TotalPages())
}

func TestMessageKind_Valid(t *testing.T) {
	assert.True(t, KindText.Valid())
	assert.True(t, KindFile.Valid())
	assert.True(t, KindSystem.Valid())
	assert.False(t, MessageKind("video").Valid())
}
