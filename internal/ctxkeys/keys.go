// Package ctxkeys defines context keys for passing data through the request
// pipeline. All keys are unexported to prevent collisions; use the
// With*/From accessor pairs.
package ctxkeys

import (
	"context"
	"time"
)

type identityKey struct{}
type correlationIDKey struct{}
type auditEntryKey struct{}

// Identity is the authenticated principal resolved by the session layer.
// It is the only source of identity headers on forwarded requests; identity
// supplied by the inbound caller is never trusted on privileged paths.
type Identity struct {
	Email string
	// Source records how the identity was established: "session" for
	// self-service opaque tokens, "federated" for provider sessions.
	Source string
	Admin  bool
}

// AuditEntry accumulates audit log data during request processing.
type AuditEntry struct {
	CorrelationID string
	Route         string
	ClientIP      string
	Subject       string
	Status        string // "ok", "blocked", "error"
	BlockReason   string
	StartTime     time.Time
}

// WithIdentity stores the resolved Identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom retrieves the resolved Identity from the context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// WithCorrelationID stores the request correlation id in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFrom retrieves the request correlation id from the context.
func CorrelationIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey{}).(string)
	return id, ok
}

// WithAuditEntry stores an AuditEntry pointer in the context.
func WithAuditEntry(ctx context.Context, entry *AuditEntry) context.Context {
	return context.WithValue(ctx, auditEntryKey{}, entry)
}

// AuditEntryFrom retrieves the AuditEntry pointer from the context.
func AuditEntryFrom(ctx context.Context) (*AuditEntry, bool) {
	entry, ok := ctx.Value(auditEntryKey{}).(*AuditEntry)
	return entry, ok
}
