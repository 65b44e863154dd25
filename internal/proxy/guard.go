package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
)

// Guard validates a destination URL before any network call is made.
// The allow-list is closed: an origin is permitted only when its
// scheme+host+port matches an entry byte for byte.
type Guard struct {
	mu      sync.RWMutex
	allowed map[string]struct{}

	// allowLoopback relaxes the forbidden-address check for loopback
	// destinations. Set only for non-production deployments, where the
	// backend legitimately runs on 127.0.0.1. Private and link-local
	// ranges stay forbidden regardless.
	allowLoopback bool
}

// NewGuard creates a Guard from the configured allow-listed origins.
func NewGuard(origins []string, allowLoopback bool) *Guard {
	g := &Guard{allowLoopback: allowLoopback}
	g.SetAllowedOrigins(origins)
	return g
}

// SetAllowedOrigins replaces the allow-list, applied on config hot reload.
func (g *Guard) SetAllowedOrigins(origins []string) {
	next := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o != "" {
			next[o] = struct{}{}
		}
	}
	g.mu.Lock()
	g.allowed = next
	g.mu.Unlock()
}

// Check rejects the destination unless its scheme is http(s), its host does
// not land in forbidden address space, and its origin is present in the
// allow-list. A nil return means the destination may be dialed.
func (g *Guard) Check(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("unparseable destination: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not permitted", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("destination has no host")
	}

	if err := g.checkHost(u.Hostname()); err != nil {
		return err
	}

	origin := u.Scheme + "://" + u.Host

	g.mu.RLock()
	_, ok := g.allowed[origin]
	g.mu.RUnlock()

	if !ok {
		return fmt.Errorf("origin %q not in allow-list", origin)
	}
	return nil
}

// checkHost rejects loopback, private, link-local, and unspecified
// addresses, plus the obvious loopback hostnames. Non-literal hostnames
// pass here and are constrained by the allow-list alone.
func (g *Guard) checkHost(host string) error {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		if g.allowLoopback {
			return nil
		}
		return fmt.Errorf("host %q is loopback", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}

	switch {
	case ip.IsLoopback():
		if g.allowLoopback {
			return nil
		}
		return fmt.Errorf("host %q is loopback", host)
	case ip.IsPrivate():
		return fmt.Errorf("host %q is in private address space", host)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("host %q is link-local", host)
	case ip.IsUnspecified():
		return fmt.Errorf("host %q is unspecified", host)
	}
	return nil
}
