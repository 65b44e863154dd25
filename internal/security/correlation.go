package security

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/cordonlabs/cordon/internal/ctxkeys"
)

// CorrelationID assigns every request a fresh correlation ID. Inbound
// X-Correlation-Id values are ignored; the ID is gateway-issued so log
// lines cannot be forged to match another request's trail.
type CorrelationID struct{}

// NewCorrelationID creates the correlation ID middleware.
func NewCorrelationID() *CorrelationID {
	return &CorrelationID{}
}

// Process stores the generated ID in the context and echoes it to the
// client for support correlation.
func (c *CorrelationID) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Correlation-Id", id)
		ctx := ctxkeys.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Name returns the middleware name.
func (c *CorrelationID) Name() string {
	return "correlation_id"
}
