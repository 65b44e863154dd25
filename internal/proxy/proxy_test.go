package proxy

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cordonlabs/cordon/internal/ctxkeys"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingTransport wraps a RoundTripper and counts how many requests
// actually went out, so tests can prove rejected destinations never dial.
type countingTransport struct {
	inner http.RoundTripper
	calls atomic.Int64
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.inner.RoundTrip(r)
}

func authenticatedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ctx := ctxkeys.WithIdentity(req.Context(), ctxkeys.Identity{
		Email:  "demo@example.com",
		Source: "session",
	})
	return req.WithContext(ctx)
}

func TestForwarderRelaysBackendResponse(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend-Header", "hello")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("backend body"))
	}))
	defer backend.Close()

	guard := NewGuard([]string{backend.URL}, true)
	fwd := NewForwarder(NewTransport(), guard, backend.URL, 10*time.Second, testLogger())

	rec := httptest.NewRecorder()
	if err := fwd.Forward(rec, authenticatedRequest(http.MethodGet, "http://gateway/proxy/api/items", nil), "/api/items"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "backend body" {
		t.Errorf("expected backend body, got %q", string(body))
	}
	if resp.Header.Get("X-Backend-Header") != "hello" {
		t.Errorf("expected X-Backend-Header=hello, got %q", resp.Header.Get("X-Backend-Header"))
	}
}

func TestForwarderInjectsIdentityHeaders(t *testing.T) {
	var received http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	guard := NewGuard([]string{backend.URL}, true)
	fwd := NewForwarder(NewTransport(), guard, backend.URL, 10*time.Second, testLogger())

	req := httptest.NewRequest(http.MethodGet, "http://gateway/proxy/api/me", nil)
	ctx := ctxkeys.WithIdentity(req.Context(), ctxkeys.Identity{
		Email:  "admin@example.com",
		Source: "federated",
		Admin:  true,
	})
	ctx = ctxkeys.WithCorrelationID(ctx, "corr-123")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	if err := fwd.Forward(rec, req, "/api/me"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := received.Get("X-User-Email"); got != "admin@example.com" {
		t.Errorf("expected X-User-Email=admin@example.com, got %q", got)
	}
	if got := received.Get("X-Admin"); got != "true" {
		t.Errorf("expected X-Admin=true, got %q", got)
	}
	if got := received.Get("X-Correlation-Id"); got != "corr-123" {
		t.Errorf("expected X-Correlation-Id=corr-123, got %q", got)
	}
}

func TestForwarderStripsClientIdentityHeaders(t *testing.T) {
	var received http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	guard := NewGuard([]string{backend.URL}, true)
	fwd := NewForwarder(NewTransport(), guard, backend.URL, 10*time.Second, testLogger())

	req := authenticatedRequest(http.MethodGet, "http://gateway/proxy/api/items", nil)
	req.Header.Set("X-User-Email", "attacker@evil.example")
	req.Header.Set("X-Admin", "true")
	req.Header.Set("Cookie", "cordon_session=stolen")
	req.Header.Set("Authorization", "Bearer stolen")
	req.Header.Set("Origin", "https://attacker.example")
	req.Header.Set("Referer", "https://attacker.example/page")
	req.Header.Set("X-Custom-Header", "keep-me")

	rec := httptest.NewRecorder()
	if err := fwd.Forward(rec, req, "/api/items"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := received.Get("X-User-Email"); got != "demo@example.com" {
		t.Errorf("client-supplied X-User-Email survived: got %q", got)
	}
	if received.Get("X-Admin") != "" {
		t.Error("client-supplied X-Admin survived for non-admin identity")
	}
	if received.Get("Cookie") != "" {
		t.Error("session cookie leaked to backend")
	}
	if received.Get("Authorization") != "" {
		t.Error("Authorization header leaked to backend")
	}
	if received.Get("Origin") != "" || received.Get("Referer") != "" {
		t.Error("browser context headers leaked to backend")
	}
	if got := received.Get("X-Custom-Header"); got != "keep-me" {
		t.Errorf("expected X-Custom-Header to pass through, got %q", got)
	}
}

func TestForwarderGeneratesCorrelationID(t *testing.T) {
	var received http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	guard := NewGuard([]string{backend.URL}, true)
	fwd := NewForwarder(NewTransport(), guard, backend.URL, 10*time.Second, testLogger())

	rec := httptest.NewRecorder()
	if err := fwd.Forward(rec, authenticatedRequest(http.MethodGet, "http://gateway/proxy/x", nil), "/x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received.Get("X-Correlation-Id") == "" {
		t.Error("expected a generated correlation id on the backend request")
	}
}

func TestForwarderForwardsBodyAndQuery(t *testing.T) {
	var gotBody string
	var gotQuery string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusCreated)
	}))
	defer backend.Close()

	guard := NewGuard([]string{backend.URL}, true)
	fwd := NewForwarder(NewTransport(), guard, backend.URL, 10*time.Second, testLogger())

	req := authenticatedRequest(http.MethodPost, "http://gateway/proxy/api/items?page=2&sort=name", strings.NewReader(`{"name":"a"}`))
	rec := httptest.NewRecorder()
	if err := fwd.Forward(rec, req, "/api/items"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if gotBody != `{"name":"a"}` {
		t.Errorf("body not forwarded, got %q", gotBody)
	}
	if gotQuery != "page=2&sort=name" {
		t.Errorf("query not forwarded, got %q", gotQuery)
	}
}

func TestForwarderRejectsWithoutDialing(t *testing.T) {
	counting := &countingTransport{inner: NewTransport()}

	tests := []struct {
		name    string
		backend string
	}{
		{"metadata endpoint", "http://169.254.169.254"},
		{"localhost outside allow-list", "http://localhost:9999"},
		{"private address", "http://10.0.0.5:8000"},
		{"origin not allow-listed", "http://other.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewGuard([]string{"http://app.internal:8000"}, false)
			fwd := NewForwarder(counting, guard, tt.backend, 10*time.Second, testLogger())

			rec := httptest.NewRecorder()
			err := fwd.Forward(rec, authenticatedRequest(http.MethodGet, "http://gateway/proxy/x", nil), "/x")
			if err == nil {
				t.Fatal("expected rejection")
			}
			if rec.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d", rec.Code)
			}
		})
	}

	if n := counting.calls.Load(); n != 0 {
		t.Errorf("rejected destinations produced %d network calls, want 0", n)
	}
}

func TestForwarderUnauthenticatedRequest(t *testing.T) {
	counting := &countingTransport{inner: NewTransport()}
	guard := NewGuard([]string{"http://app.internal:8000"}, false)
	fwd := NewForwarder(counting, guard, "http://app.internal:8000", 10*time.Second, testLogger())

	req := httptest.NewRequest(http.MethodGet, "http://gateway/proxy/x", nil)
	rec := httptest.NewRecorder()

	if err := fwd.Forward(rec, req, "/x"); err == nil {
		t.Fatal("expected error for request without identity")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if n := counting.calls.Load(); n != 0 {
		t.Errorf("unauthenticated request produced %d network calls, want 0", n)
	}
}

func TestForwarderBackendDown(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backendURL := backend.URL
	backend.Close()

	guard := NewGuard([]string{backendURL}, true)
	fwd := NewForwarder(NewTransport(), guard, backendURL, 2*time.Second, testLogger())

	rec := httptest.NewRecorder()
	err := fwd.Forward(rec, authenticatedRequest(http.MethodGet, "http://gateway/proxy/x", nil), "/x")
	if err == nil {
		t.Fatal("expected error for unreachable backend")
	}
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestGuardCheck(t *testing.T) {
	guard := NewGuard([]string{"https://app.example.com", "http://app.internal:8000"}, false)

	tests := []struct {
		name    string
		dest    string
		wantErr bool
	}{
		{"allow-listed https origin", "https://app.example.com/api/items", false},
		{"allow-listed origin with port", "http://app.internal:8000/x", false},
		{"scheme mismatch", "http://app.example.com/api", true},
		{"port mismatch", "http://app.internal:9000/x", true},
		{"unknown origin", "https://evil.example.com/", true},
		{"file scheme", "file:///etc/passwd", true},
		{"gopher scheme", "gopher://app.example.com", true},
		{"no host", "https:///path", true},
		{"localhost", "http://localhost:8000/x", true},
		{"localhost subdomain", "http://app.localhost/x", true},
		{"loopback literal", "http://127.0.0.1:8000/x", true},
		{"loopback v6", "http://[::1]:8000/x", true},
		{"private 10", "http://10.1.2.3/x", true},
		{"private 192.168", "http://192.168.1.1/x", true},
		{"link-local metadata", "http://169.254.169.254/latest/meta-data", true},
		{"unspecified", "http://0.0.0.0:8000/x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Check(tt.dest)
			if tt.wantErr && err == nil {
				t.Errorf("Check(%q) = nil, want error", tt.dest)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Check(%q) = %v, want nil", tt.dest, err)
			}
		})
	}
}

func TestGuardLoopbackAllowedInDevelopment(t *testing.T) {
	guard := NewGuard([]string{"http://127.0.0.1:8000"}, true)

	if err := guard.Check("http://127.0.0.1:8000/api"); err != nil {
		t.Errorf("allow-listed loopback backend rejected in development mode: %v", err)
	}
	// loopback relaxation does not open private ranges
	if err := guard.Check("http://10.0.0.5/x"); err == nil {
		t.Error("private address accepted in development mode")
	}
	// nor does it bypass the allow-list
	if err := guard.Check("http://127.0.0.1:9999/x"); err == nil {
		t.Error("non-allow-listed loopback origin accepted")
	}
}

func TestGuardSetAllowedOrigins(t *testing.T) {
	guard := NewGuard([]string{"https://old.example.com"}, false)

	guard.SetAllowedOrigins([]string{"https://new.example.com"})

	if err := guard.Check("https://old.example.com/x"); err == nil {
		t.Error("origin removed on reload still accepted")
	}
	if err := guard.Check("https://new.example.com/x"); err != nil {
		t.Errorf("origin added on reload rejected: %v", err)
	}
}
