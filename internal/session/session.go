// Package session issues, validates, and revokes the short-lived opaque
// tokens backing self-service authentication. Tokens are generated here and
// nowhere else, never derived from caller input, and never logged.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// tokenBytes is the entropy of an issued token (256 bits).
const tokenBytes = 32

// Manager owns the session lifecycle over an injected Store.
type Manager struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	cancel context.CancelFunc
}

// NewManager creates a Manager with the given session lifetime and starts a
// background sweep of expired sessions. Call Stop to end the sweep.
func NewManager(store Store, ttl, sweepInterval time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		cancel: cancel,
	}
	go m.sweep(ctx, sweepInterval)
	return m
}

// Issue generates a fresh unguessable token bound to identity and stores it
// with the configured expiry.
func (m *Manager) Issue(identity string, meta ClientMeta) (Session, error) {
	token, err := generateToken()
	if err != nil {
		return Session{}, fmt.Errorf("generating session token: %w", err)
	}

	now := m.now()
	sess := Session{
		Token:     token,
		Identity:  identity,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
		Meta:      meta,
	}
	m.store.Set(token, sess)
	return sess, nil
}

// Validate resolves a token to its bound identity. Absent, malformed, and
// expired tokens all report not-ok; callers cannot distinguish them.
// Expiry is not extended: renewal is a new Issue.
func (m *Manager) Validate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	sess, ok := m.store.Get(token)
	if !ok {
		return "", false
	}
	if m.now().After(sess.ExpiresAt) {
		return "", false
	}
	return sess.Identity, true
}

// Revoke deletes the session for token. Idempotent: revoking an absent
// token is a no-op, not an error.
func (m *Manager) Revoke(token string) {
	if token == "" {
		return
	}
	m.store.Delete(token)
}

// Count returns the number of stored sessions.
func (m *Manager) Count() int {
	return m.store.Count()
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Stop terminates the background sweep goroutine.
func (m *Manager) Stop() {
	m.cancel()
}

func (m *Manager) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.store.Sweep(m.now())
		}
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
