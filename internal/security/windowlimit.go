package security

import (
	"net/http"
	"time"

	gwerrors "github.com/cordonlabs/cordon/internal/errors"
	"github.com/cordonlabs/cordon/internal/ratelimit"
)

// WindowLimiter enforces a per-client fixed-window rate limit on the route
// it wraps. The key is the trusted client IP, so a client behind the
// configured proxies cannot mint fresh windows by rotating forged
// X-Forwarded-For values.
type WindowLimiter struct {
	name           string
	limiter        *ratelimit.Limiter
	trustedProxies []string

	// OnLimit, when set, is called with the client key each time a
	// request is rejected. Used for the rate limit hit counter.
	OnLimit func(route, key string)
}

// NewWindowLimiter wraps the given fixed-window limiter as middleware.
// name identifies the protected route in logs and metrics.
func NewWindowLimiter(name string, limiter *ratelimit.Limiter, trustedProxies []string) *WindowLimiter {
	return &WindowLimiter{
		name:           name,
		limiter:        limiter,
		trustedProxies: trustedProxies,
	}
}

// Process returns an http.Handler that rejects requests over the window
// ceiling with 429 and a Retry-After hint.
func (wl *WindowLimiter) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := TrustedClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), wl.trustedProxies)

		if !wl.limiter.Allow(key) {
			if wl.OnLimit != nil {
				wl.OnLimit(wl.name, key)
			}
			retry := wl.limiter.RetryAfter(key)
			gwerrors.WriteHTTPError(w, gwerrors.ErrRateLimited.WithRetryAfter(retry))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AllowKey consults the limiter under an arbitrary key, for handlers that
// additionally limit on something other than the client IP, such as the
// target identity of a login attempt. Returns the Retry-After hint when
// the ceiling is reached.
func (wl *WindowLimiter) AllowKey(key string) (bool, int) {
	if wl.limiter.Allow(key) {
		return true, 0
	}
	if wl.OnLimit != nil {
		wl.OnLimit(wl.name, key)
	}
	return false, wl.limiter.RetryAfter(key)
}

// SetLimit swaps the ceiling and window, applied on config hot reload.
func (wl *WindowLimiter) SetLimit(ceiling int, window time.Duration) {
	wl.limiter.SetLimit(ceiling, window)
}

// Stop ends the limiter's background sweep.
func (wl *WindowLimiter) Stop() {
	wl.limiter.Stop()
}

// Name returns the middleware name.
func (wl *WindowLimiter) Name() string {
	return wl.name + "_window_limiter"
}
