// Package security implements the middleware pipeline applied in front of
// every route: correlation IDs, the gateway-wide ceiling, and per-client
// fixed-window rate limiting. Session authentication is provided here too
// but applied per-route by the server, since public routes must stay
// reachable without a session.
package security

import (
	"net/http"
)

// Middleware is a processing step in the pipeline.
type Middleware interface {
	Process(next http.Handler) http.Handler
	Name() string
}

// PipelineConfig holds config needed for the pre-route pipeline.
type PipelineConfig struct {
	GlobalRateLimit int
	TrustedProxies  []string
}

// BuildPipeline constructs the ordered middleware chain applied to all
// routes: correlation ID first so every later step can log it, then the
// global ceiling.
func BuildPipeline(cfg PipelineConfig) []Middleware {
	var mws []Middleware

	mws = append(mws, NewCorrelationID())

	if cfg.GlobalRateLimit > 0 {
		mws = append(mws, NewGlobalRateLimiter(cfg.GlobalRateLimit))
	}

	return mws
}

// ApplyPipeline wraps a handler with all middleware in order.
// Apply in reverse order so first middleware executes first.
func ApplyPipeline(handler http.Handler, middlewares []Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i].Process(handler)
	}
	return handler
}
