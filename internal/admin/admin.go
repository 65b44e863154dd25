// Package admin resolves administrative privilege for a caller. Federated
// deployments use a static allow-list managed outside the gateway;
// self-service deployments use a mutable, rate-limited self-grant list.
// The two sets are deliberately disjoint and never reconciled.
package admin

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cordonlabs/cordon/internal/authmode"
	gwerrors "github.com/cordonlabs/cordon/internal/errors"
)

// Grant records a self-service admin grant with provenance for audit.
type Grant struct {
	Email     string    `json:"email"`
	GrantedAt time.Time `json:"granted_at"`
	GrantedBy string    `json:"granted_by"`
}

// Resolver answers "is this caller an administrator" for a resolved mode.
type Resolver struct {
	mu     sync.RWMutex
	static map[string]struct{} // federated allow-list, read-only at runtime except hot reload
	grants map[string]Grant    // self-service self-grants

	// production is captured independently of the caller's resolved mode:
	// GrantSelf must stay unreachable in production even if mode
	// resolution is misconfigured elsewhere.
	production bool
	now        func() time.Time
}

// NewResolver creates a Resolver from the normalized static allow-list and
// the deployment's production flag.
func NewResolver(allowlist []string, production bool) *Resolver {
	r := &Resolver{
		static:     make(map[string]struct{}, len(allowlist)),
		grants:     make(map[string]Grant),
		production: production,
		now:        time.Now,
	}
	for _, e := range allowlist {
		if n := Normalize(e); n != "" {
			r.static[n] = struct{}{}
		}
	}
	return r
}

// Normalize canonicalizes an identity for membership checks.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAdmin reports whether identity is an administrator under mode.
// Federated mode consults only the static allow-list; self-service mode
// consults only the self-grant list. Disabled mode has no administrators.
func (r *Resolver) IsAdmin(identity string, mode authmode.Mode) bool {
	n := Normalize(identity)
	if n == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	switch mode {
	case authmode.Federated:
		_, ok := r.static[n]
		return ok
	case authmode.SelfService:
		_, ok := r.grants[n]
		return ok
	default:
		return false
	}
}

// GrantSelf appends identity to the self-service admin list. It is
// idempotent: granting an existing admin succeeds with changed=false.
// Whenever mode is not SelfService or the deployment is production it
// returns ErrNotFound — a 404, not a 403, so the endpoint's existence is
// never confirmed where it does not apply.
func (r *Resolver) GrantSelf(identity string, mode authmode.Mode) (changed bool, err error) {
	if r.production || mode != authmode.SelfService {
		return false, gwerrors.ErrNotFound
	}

	n := Normalize(identity)
	if n == "" {
		return false, gwerrors.ErrInvalidRequest
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.grants[n]; ok {
		return false, nil
	}
	r.grants[n] = Grant{
		Email:     n,
		GrantedAt: r.now(),
		GrantedBy: n,
	}
	return true, nil
}

// Grants returns the self-service grants sorted by email, for the admin
// listing endpoint.
func (r *Resolver) Grants() []Grant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Grant, 0, len(r.grants))
	for _, g := range r.grants {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// SetAllowlist replaces the static federated allow-list, applied on config
// hot reload. Self-grants are untouched.
func (r *Resolver) SetAllowlist(allowlist []string) {
	next := make(map[string]struct{}, len(allowlist))
	for _, e := range allowlist {
		if n := Normalize(e); n != "" {
			next[n] = struct{}{}
		}
	}

	r.mu.Lock()
	r.static = next
	r.mu.Unlock()
}
