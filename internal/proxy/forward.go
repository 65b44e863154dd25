package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cordonlabs/cordon/internal/ctxkeys"
	gwerrors "github.com/cordonlabs/cordon/internal/errors"
)

// Forwarder relays authenticated requests to the configured backend.
// It uses http.Client directly instead of httputil.ReverseProxy to keep
// full control over destination validation and header management.
type Forwarder struct {
	client     *http.Client
	guard      *Guard
	backendURL string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewForwarder creates a Forwarder. backendURL is the backend origin
// (e.g. "http://app.internal:8000") with no trailing slash.
func NewForwarder(transport http.RoundTripper, guard *Guard, backendURL string, timeout time.Duration, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client:     &http.Client{Transport: transport},
		guard:      guard,
		backendURL: strings.TrimSuffix(backendURL, "/"),
		timeout:    timeout,
		logger:     logger,
	}
}

// Forward validates the destination and relays the request. Validation
// happens before any connection is opened: a rejected destination never
// produces a dial. The caller must have authenticated the request; the
// identity found in the context is injected as trusted backend headers.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, targetPath string) error {
	dest := f.backendURL + targetPath
	if r.URL.RawQuery != "" {
		dest += "?" + r.URL.RawQuery
	}

	if err := f.guard.Check(dest); err != nil {
		gwerrors.WriteHTTPError(w, gwerrors.ErrInvalidTarget)
		return fmt.Errorf("destination rejected: %w", err)
	}

	identity, ok := ctxkeys.IdentityFrom(r.Context())
	if !ok {
		gwerrors.WriteHTTPError(w, gwerrors.ErrUnauthenticated)
		return fmt.Errorf("no identity in request context")
	}

	ctx := r.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var body io.Reader
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		// no body forwarded
	default:
		body = r.Body
	}

	backendReq, err := http.NewRequestWithContext(ctx, r.Method, dest, body)
	if err != nil {
		gwerrors.WriteHTTPError(w, gwerrors.ErrUpstreamUnavailable)
		return fmt.Errorf("creating backend request: %w", err)
	}

	CopyRequestHeaders(backendReq.Header, r.Header)

	backendReq.Header.Set("X-User-Email", identity.Email)
	if identity.Admin {
		backendReq.Header.Set("X-Admin", "true")
	}

	correlationID, ok := ctxkeys.CorrelationIDFrom(r.Context())
	if !ok || correlationID == "" {
		correlationID = uuid.NewString()
	}
	backendReq.Header.Set("X-Correlation-Id", correlationID)

	resp, err := f.client.Do(backendReq)
	if err != nil {
		gwerrors.WriteHTTPError(w, gwerrors.ErrUpstreamUnavailable)
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	CopyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// headers already sent, nothing recoverable
		f.logger.Warn("response relay interrupted", "error", err)
	}
	return nil
}
