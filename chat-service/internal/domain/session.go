package domain

import (
	"sort"
	"sync"
	"time"
)

// Session is the per-connection state: who the connection authenticated
// as and which communities it has joined on this process.
type Session struct {
	ID            string
	userID        string
	username      string
	authenticated bool
	communities   map[string]struct{}
	CreatedAt     time.Time
	lastActiveAt  time.Time
	mu            sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		communities:  make(map[string]struct{}),
		CreatedAt:    now,
		lastActiveAt: now,
	}
}

// Authenticate binds the session to a user. Re-binding is allowed.
func (s *Session) Authenticate(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.username = username
	s.authenticated = true
	s.lastActiveAt = time.Now()
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

func (s *Session) GetUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) GetUsername() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// JoinCommunity adds the community to the join-set and reports whether it
// was newly added.
func (s *Session) JoinCommunity(communityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
	if _, ok := s.communities[communityID]; ok {
		return false
	}
	s.communities[communityID] = struct{}{}
	return true
}

// LeaveCommunity removes the community and reports whether it was joined.
func (s *Session) LeaveCommunity(communityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
	if _, ok := s.communities[communityID]; !ok {
		return false
	}
	delete(s.communities, communityID)
	return true
}

func (s *Session) IsInCommunity(communityID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.communities[communityID]
	return ok
}

// Communities returns the joined communities in a stable order.
func (s *Session) Communities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.communities))
	for id := range s.communities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}
