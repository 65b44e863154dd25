package security

import (
	"net/http"

	"github.com/cordonlabs/cordon/internal/admin"
	"github.com/cordonlabs/cordon/internal/authmode"
	"github.com/cordonlabs/cordon/internal/ctxkeys"
	gwerrors "github.com/cordonlabs/cordon/internal/errors"
	"github.com/cordonlabs/cordon/internal/session"
)

// SessionAuth resolves the caller's session to an Identity and stores it in
// the request context. Requests without a valid session are rejected with
// 401; the response never distinguishes absent, malformed, and expired
// tokens. Applied per-route: public routes skip it entirely.
type SessionAuth struct {
	sessions *session.Manager
	admins   *admin.Resolver
	mode     authmode.Mode
}

// NewSessionAuth creates the session authentication middleware. mode is
// the resolved authentication mode, fixed for the process lifetime.
func NewSessionAuth(sessions *session.Manager, admins *admin.Resolver, mode authmode.Mode) *SessionAuth {
	return &SessionAuth{
		sessions: sessions,
		admins:   admins,
		mode:     mode,
	}
}

// Process returns an http.Handler that requires a valid session.
func (a *SessionAuth) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := a.Resolve(r)
		if !ok {
			gwerrors.WriteHTTPError(w, gwerrors.ErrUnauthenticated)
			return
		}
		if entry, ok := ctxkeys.AuditEntryFrom(r.Context()); ok {
			entry.Subject = identity.Email
		}
		ctx := ctxkeys.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Resolve validates the session token on r and returns the caller's
// Identity. Admin status is computed at resolution time, so an allow-list
// reload or a revoked grant takes effect on the next request.
func (a *SessionAuth) Resolve(r *http.Request) (ctxkeys.Identity, bool) {
	token := session.TokenFromRequest(r)
	email, ok := a.sessions.Validate(token)
	if !ok {
		return ctxkeys.Identity{}, false
	}

	source := "session"
	if a.mode == authmode.Federated {
		source = "federated"
	}

	return ctxkeys.Identity{
		Email:  email,
		Source: source,
		Admin:  a.admins.IsAdmin(email, a.mode),
	}, true
}

// Name returns the middleware name.
func (a *SessionAuth) Name() string {
	return "session_auth"
}
