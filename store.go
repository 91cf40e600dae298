package main

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bodul/xword/internal/progress"
)

// SessionStore holds live play sessions in memory, indexed by ID and by
// progress key so two tabs of the same player share one engine.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byKey    map[progress.Key]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		byKey:    make(map[progress.Key]*Session),
	}
}

func generateID() string {
	return uuid.NewString()
}

// Add registers sess. If a session for the same key already exists it is
// returned instead and sess is discarded.
func (s *SessionStore) Add(sess *Session) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[sess.Key]; ok {
		return existing, false
	}
	s.sessions[sess.ID] = sess
	s.byKey[sess.Key] = sess
	return sess, true
}

// Get returns a session by ID, or nil if not found.
func (s *SessionStore) Get(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// ByKey returns the live session for a progress key, or nil.
func (s *SessionStore) ByKey(key progress.Key) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byKey[key]
}

// List returns all sessions, most recent first.
func (s *SessionStore) List() []*Session {
	s.mu.RLock()
	list := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Expire removes sessions with no input since before and returns them.
// Session locks are taken without holding the store lock, so a session
// blocked on a slow save never stalls lookups of other sessions.
func (s *SessionStore) Expire(before time.Time) []*Session {
	var idle []*Session
	for _, sess := range s.List() {
		if sess.idleSince().Before(before) {
			idle = append(idle, sess)
		}
	}
	if len(idle) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	gone := idle[:0]
	for _, sess := range idle {
		if s.sessions[sess.ID] != sess {
			continue
		}
		delete(s.sessions, sess.ID)
		if s.byKey[sess.Key] == sess {
			delete(s.byKey, sess.Key)
		}
		gone = append(gone, sess)
	}
	return gone
}
