package security

import (
	"net/http"

	"golang.org/x/time/rate"

	gwerrors "github.com/cordonlabs/cordon/internal/errors"
)

// GlobalRateLimiter enforces a gateway-wide request ceiling using a token
// bucket. It protects the process itself; per-client fairness is handled
// by the fixed-window limiters behind it.
type GlobalRateLimiter struct {
	limiter *rate.Limiter
}

// NewGlobalRateLimiter creates a global rate limiter.
// rpm is requests per minute; internally converted to per-second.
func NewGlobalRateLimiter(rpm int) *GlobalRateLimiter {
	perSecond := float64(rpm) / 60.0
	burst := rpm / 60
	if burst < 1 {
		burst = 1
	}
	return &GlobalRateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Process returns an http.Handler that enforces the global ceiling.
func (g *GlobalRateLimiter) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.limiter.Allow() {
			gwerrors.WriteHTTPError(w, gwerrors.ErrCapacityReached)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Name returns the middleware name for logging and debugging.
func (g *GlobalRateLimiter) Name() string {
	return "global_rate_limiter"
}
