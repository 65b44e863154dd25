package session

import (
	"sync"
	"time"
)

// ClientMeta records where a session was issued from. Audit only; never an
// input to authorization decisions.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Session is a stored self-service credential bound to an identity.
type Session struct {
	Token     string
	Identity  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Meta      ClientMeta
}

// Store abstracts session persistence so the backing (in-process map,
// external cache) is swappable without touching call sites.
type Store interface {
	Get(token string) (Session, bool)
	Set(token string, s Session)
	Delete(token string)
	// Count returns the number of stored sessions, expired or not.
	Count() int
	// Sweep removes sessions expired as of now and returns how many were
	// reclaimed.
	Sweep(now time.Time) int
}

// MemoryStore is an in-process Store over sync.Map. A Set followed by a Get
// for the same token is linearizable.
type MemoryStore struct {
	entries sync.Map // token string → Session
}

// NewMemoryStore creates an empty in-process session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored session for token, if any.
func (s *MemoryStore) Get(token string) (Session, bool) {
	v, ok := s.entries.Load(token)
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

// Set stores the session under token.
func (s *MemoryStore) Set(token string, sess Session) {
	s.entries.Store(token, sess)
}

// Delete removes the session for token. Absent tokens are a no-op.
func (s *MemoryStore) Delete(token string) {
	s.entries.Delete(token)
}

// Count returns the number of stored sessions.
func (s *MemoryStore) Count() int {
	n := 0
	s.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Sweep removes expired sessions. Each entry is examined individually; no
// store-wide lock is held for the duration of the pass.
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	s.entries.Range(func(key, value interface{}) bool {
		sess := value.(Session)
		if now.After(sess.ExpiresAt) {
			s.entries.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
