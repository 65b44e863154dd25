package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cordonlabs/cordon/internal/admin"
	"github.com/cordonlabs/cordon/internal/authmode"
	"github.com/cordonlabs/cordon/internal/ctxkeys"
	gwerrors "github.com/cordonlabs/cordon/internal/errors"
	"github.com/cordonlabs/cordon/internal/federated"
	"github.com/cordonlabs/cordon/internal/security"
	"github.com/cordonlabs/cordon/internal/session"
)

// handler builds the complete HTTP handler: operational endpoints bypass
// the pipeline, everything else runs behind correlation IDs, the global
// ceiling, and the audit recorder.
func (s *Server) handler() http.Handler {
	app := http.NewServeMux()

	app.HandleFunc("POST /auth/login", s.limited(s.loginLimiter, s.handleLogin))
	app.HandleFunc("POST /auth/logout", s.handleLogout)
	app.HandleFunc("GET /auth/mode", s.handleMode)
	app.HandleFunc("GET /auth/me", s.authenticated(s.handleMe))
	app.HandleFunc("GET /auth/federated/login", s.handleFederatedLogin)
	app.HandleFunc("GET /auth/federated/callback", s.handleFederatedCallback)
	app.HandleFunc("POST /admin/self-grant", s.selfServiceOnly(s.authenticated(s.limited(s.grantLimiter, s.handleSelfGrant))))
	app.HandleFunc("GET /admin/grants", s.authenticated(s.handleGrants))
	app.HandleFunc("/proxy/", s.authenticated(s.limited(s.proxyLimiter, s.handleProxy)))

	middlewares := security.BuildPipeline(security.PipelineConfig{
		GlobalRateLimit: s.cfg.Listen.GlobalRateLimit,
		TrustedProxies:  s.cfg.Listen.TrustedProxies,
	})
	secured := security.ApplyPipeline(s.recorded(app), middlewares)

	mux := http.NewServeMux()
	mux.Handle("/healthz", s.healthHandler)
	mux.Handle("/readyz", s.healthHandler)
	mux.HandleFunc("/metrics", s.metrics.Handler())
	mux.Handle("/", secured)

	return mux
}

// authenticated requires a valid session before next runs.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return s.auth.Process(next).ServeHTTP
}

// selfServiceOnly hides a route entirely outside non-production
// self-service deployments. It runs before authentication: elsewhere the
// route answers 404 whether or not a session is presented, so its
// existence is never confirmed. The admin resolver repeats the check.
func (s *Server) selfServiceOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Production || s.mode != authmode.SelfService {
			gwerrors.WriteHTTPError(w, gwerrors.ErrNotFound)
			return
		}
		next(w, r)
	}
}

// limited applies a window limiter when rate limiting is enabled.
func (s *Server) limited(wl *security.WindowLimiter, next http.HandlerFunc) http.HandlerFunc {
	if wl == nil {
		return next
	}
	return wl.Process(next).ServeHTTP
}

// statusRecorder captures the response status for audit and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// recorded wraps next with the audit entry lifecycle and request metrics.
func (s *Server) recorded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID, _ := ctxkeys.CorrelationIDFrom(r.Context())
		entry := &ctxkeys.AuditEntry{
			CorrelationID: correlationID,
			Route:         normalizeRoute(r.URL.Path),
			ClientIP:      security.TrustedClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), s.cfg.Listen.TrustedProxies),
			StartTime:     time.Now(),
		}
		ctx := ctxkeys.WithAuditEntry(r.Context(), entry)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		switch {
		case rec.status >= 500:
			entry.Status = "error"
		case rec.status == http.StatusUnauthorized,
			rec.status == http.StatusForbidden,
			rec.status == http.StatusTooManyRequests:
			entry.Status = "blocked"
			entry.BlockReason = blockReason(rec.status)
		default:
			entry.Status = "ok"
		}

		s.metrics.RecordRequest(entry.Route, r.Method, rec.status)
		s.metrics.RecordDuration(entry.Route, r.Method, time.Since(entry.StartTime))
		if entry.Status == "blocked" && rec.status != http.StatusTooManyRequests {
			s.metrics.RecordSecurityBlock(entry.BlockReason)
		}
		s.auditLogger.LogRequest(r.Context())
	})
}

func blockReason(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusTooManyRequests:
		return "rate_limit"
	}
	return ""
}

// normalizeRoute collapses proxied paths to a single label so the metric
// cardinality stays bounded.
func normalizeRoute(path string) string {
	if strings.HasPrefix(path, "/proxy/") || path == "/proxy" {
		return "/proxy"
	}
	return path
}

func (s *Server) secureCookies() bool {
	return s.cfg.Production || s.cfg.Listen.TLS.CertFile != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin issues a self-service session. The route does not exist
// outside self-service mode: other modes answer 404, indistinguishable
// from an unknown path.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.mode != authmode.SelfService {
		gwerrors.WriteHTTPError(w, gwerrors.ErrNotFound)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		gwerrors.WriteHTTPError(w, gwerrors.ErrInvalidRequest)
		return
	}
	email := admin.Normalize(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		gwerrors.WriteHTTPError(w, gwerrors.ErrInvalidRequest)
		return
	}

	// The middleware has already limited by client IP; issuance is also
	// limited per target identity, so rotating source addresses does not
	// buy unlimited attempts against one account.
	if s.loginLimiter != nil {
		if ok, retry := s.loginLimiter.AllowKey("identity:" + email); !ok {
			gwerrors.WriteHTTPError(w, gwerrors.ErrRateLimited.WithRetryAfter(retry))
			return
		}
	}

	sess, err := s.sessions.Issue(email, session.ClientMeta{
		IP:        security.TrustedClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), s.cfg.Listen.TrustedProxies),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.logger.Error("issuing session", "error", err)
		gwerrors.WriteHTTPError(w, gwerrors.ErrUpstreamUnavailable)
		return
	}

	s.metrics.RecordSessionIssued("session")
	s.metrics.SetActiveSessions(s.sessions.Count())
	s.logger.Info("session issued", "subject", email)

	http.SetCookie(w, session.NewCookie(sess.Token, s.sessions.TTL(), s.secureCookies()))
	writeJSON(w, http.StatusOK, loginResponse{Email: email, ExpiresAt: sess.ExpiresAt})
}

// handleLogout revokes the presented session. Idempotent: a missing or
// already-revoked token still clears the cookie and returns 204.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r)
	s.sessions.Revoke(token)
	s.metrics.SetActiveSessions(s.sessions.Count())

	http.SetCookie(w, session.ClearCookie(s.secureCookies()))
	http.SetCookie(w, federated.ClearStateCookie(s.secureCookies()))
	w.WriteHeader(http.StatusNoContent)
}

type modeResponse struct {
	Mode           string `json:"mode"`
	FederatedLogin bool   `json:"federated_login"`
}

// handleMode reports the resolved authentication mode so clients can pick
// the right login flow. Public by design.
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modeResponse{
		Mode:           s.mode.String(),
		FederatedLogin: s.mode == authmode.Federated,
	})
}

type identityResponse struct {
	Email  string `json:"email"`
	Source string `json:"source"`
	Admin  bool   `json:"admin"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := ctxkeys.IdentityFrom(r.Context())
	if !ok {
		gwerrors.WriteHTTPError(w, gwerrors.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{
		Email:  identity.Email,
		Source: identity.Source,
		Admin:  identity.Admin,
	})
}

func (s *Server) handleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	if s.fed == nil {
		gwerrors.WriteHTTPError(w, gwerrors.ErrNotFound)
		return
	}
	s.fed.LoginHandler(w, r)
}

func (s *Server) handleFederatedCallback(w http.ResponseWriter, r *http.Request) {
	if s.fed == nil {
		gwerrors.WriteHTTPError(w, gwerrors.ErrNotFound)
		return
	}
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.fed.CallbackHandler(rec, r)
	if rec.status == http.StatusFound {
		s.metrics.RecordSessionIssued("federated")
		s.metrics.SetActiveSessions(s.sessions.Count())
	}
}

type selfGrantResponse struct {
	Granted bool `json:"granted"`
	Changed bool `json:"changed"`
}

// handleSelfGrant elevates the caller to admin. The resolver owns the
// decision; outside self-service mode the route reports 404.
func (s *Server) handleSelfGrant(w http.ResponseWriter, r *http.Request) {
	identity, ok := ctxkeys.IdentityFrom(r.Context())
	if !ok {
		gwerrors.WriteHTTPError(w, gwerrors.ErrUnauthenticated)
		return
	}

	changed, err := s.admins.GrantSelf(identity.Email, s.mode)
	if err != nil {
		if gwErr, ok := err.(*gwerrors.GatewayError); ok {
			gwerrors.WriteHTTPError(w, gwErr)
		} else {
			gwerrors.WriteHTTPError(w, gwerrors.ErrInvalidRequest)
		}
		return
	}

	if changed {
		s.logger.Info("admin self-grant", "subject", identity.Email)
	}
	writeJSON(w, http.StatusOK, selfGrantResponse{Granted: true, Changed: changed})
}

type grantEntry struct {
	Email     string    `json:"email"`
	GrantedAt time.Time `json:"granted_at"`
	GrantedBy string    `json:"granted_by"`
}

type grantsResponse struct {
	Grants []grantEntry `json:"grants"`
}

// handleGrants lists self-granted admins. Admin only.
func (s *Server) handleGrants(w http.ResponseWriter, r *http.Request) {
	identity, ok := ctxkeys.IdentityFrom(r.Context())
	if !ok {
		gwerrors.WriteHTTPError(w, gwerrors.ErrUnauthenticated)
		return
	}
	if !identity.Admin {
		gwerrors.WriteHTTPError(w, gwerrors.ErrForbidden)
		return
	}

	grants := s.admins.Grants()
	resp := grantsResponse{Grants: make([]grantEntry, 0, len(grants))}
	for _, g := range grants {
		resp.Grants = append(resp.Grants, grantEntry{
			Email:     g.Email,
			GrantedAt: g.GrantedAt,
			GrantedBy: g.GrantedBy,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProxy relays the request to the backend, stripping the /proxy
// prefix. The escaped form of the path is forwarded so percent-encoded
// octets reach the backend verbatim. Authentication and rate limiting
// have already run.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	targetPath := strings.TrimPrefix(r.URL.EscapedPath(), "/proxy")
	if targetPath == "" {
		targetPath = "/"
	}

	start := time.Now()
	if err := s.forwarder.Forward(w, r, targetPath); err != nil {
		s.logger.Warn("proxy forward failed", "error", err, "path", targetPath)
		return
	}
	s.metrics.RecordUpstreamLatency(time.Since(start))
}
