// Package server assembles all components into the complete HTTP edge
// gateway: authentication routes, admin routes, the guarded reverse proxy,
// and the operational endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/cordonlabs/cordon/internal/admin"
	"github.com/cordonlabs/cordon/internal/audit"
	"github.com/cordonlabs/cordon/internal/authmode"
	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/federated"
	"github.com/cordonlabs/cordon/internal/health"
	"github.com/cordonlabs/cordon/internal/proxy"
	"github.com/cordonlabs/cordon/internal/ratelimit"
	"github.com/cordonlabs/cordon/internal/security"
	"github.com/cordonlabs/cordon/internal/session"
)

// Server is the main cordon HTTP server assembling all components.
type Server struct {
	cfg      *config.Config
	mu       sync.Mutex
	listener net.Listener // if non-nil, Start uses this instead of creating one

	httpServer *http.Server

	mode     authmode.Mode
	sessions *session.Manager
	admins   *admin.Resolver
	auth     *security.SessionAuth
	fed      *federated.Handler

	guard     *proxy.Guard
	forwarder *proxy.Forwarder
	pingHTTP  *http.Client

	loginLimiter *security.WindowLimiter
	grantLimiter *security.WindowLimiter
	proxyLimiter *security.WindowLimiter

	healthHandler *health.Handler
	auditLogger   *audit.Logger
	metrics       *audit.Metrics
	logger        *slog.Logger
	version       string
}

// New creates a new Server from configuration.
func New(cfg *config.Config, version string) (*Server, error) {
	logger := buildLogger(cfg)

	mode := authmode.Resolve(cfg)
	logger.Info("authentication mode resolved", "mode", mode.String(), "production", cfg.Production)
	if cfg.Production && cfg.Auth.SelfService.Enabled {
		logger.Warn("self_service enabled in config but ignored: deployment is production")
	}

	ttl := cfg.Auth.SelfService.SessionTTL.Duration
	if mode == authmode.Federated {
		ttl = cfg.Auth.Federated.SessionTTL.Duration
	}
	sessions := session.NewManager(session.NewMemoryStore(), ttl, cfg.Auth.SelfService.SweepInterval.Duration)

	admins := admin.NewResolver(cfg.Admin.Allowlist, cfg.Production)
	auth := security.NewSessionAuth(sessions, admins, mode)

	// loopback backends are only dialable outside production
	guard := proxy.NewGuard(cfg.Proxy.AllowedOrigins, !cfg.Production)
	transport := proxy.NewTransport()
	forwarder := proxy.NewForwarder(transport, guard, cfg.Proxy.BackendURL, cfg.Proxy.Timeout.Duration, logger)

	metrics := audit.NewMetrics()
	metrics.SetBuildInfo(version, runtime.Version())

	auditLogger := audit.NewLogger(logger, audit.SamplingConfig{Rate: 1.0, ErrorRate: 1.0})

	srv := &Server{
		cfg:         cfg,
		mode:        mode,
		sessions:    sessions,
		admins:      admins,
		auth:        auth,
		guard:       guard,
		forwarder:   forwarder,
		pingHTTP:    &http.Client{Transport: transport},
		auditLogger: auditLogger,
		metrics:     metrics,
		logger:      logger,
		version:     version,
	}

	srv.healthHandler = health.NewHandler(health.PingerFunc(srv.pingBackend), version)

	if mode == authmode.Federated {
		srv.fed = federated.NewHandler(cfg.Auth.Federated, sessions, srv.secureCookies(), logger)
	}

	if cfg.RateLimit.Enabled {
		sweep := cfg.RateLimit.SweepInterval.Duration
		proxies := cfg.Listen.TrustedProxies

		srv.loginLimiter = srv.newWindowLimiter("login", cfg.RateLimit.Login, sweep, proxies)
		srv.grantLimiter = srv.newWindowLimiter("self_grant", cfg.RateLimit.SelfGrant, sweep, proxies)
		srv.proxyLimiter = srv.newWindowLimiter("proxy", cfg.RateLimit.Proxy, sweep, proxies)
	}

	return srv, nil
}

func (s *Server) newWindowLimiter(name string, wl config.WindowLimit, sweep time.Duration, proxies []string) *security.WindowLimiter {
	limiter := ratelimit.New(wl.Ceiling, wl.Window.Duration, sweep)
	mw := security.NewWindowLimiter(name, limiter, proxies)
	mw.OnLimit = func(route, key string) {
		s.metrics.RecordRateLimitHit(route)
		s.metrics.RecordSecurityBlock("rate_limit")
	}
	return mw
}

// Start begins listening and serving. It blocks until the context is
// canceled or an unrecoverable error occurs.
func (s *Server) Start(ctx context.Context) error {
	handler := s.handler()

	listenAddr := fmt.Sprintf("%s:%d", s.cfg.Listen.Host, s.cfg.Listen.Port)

	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", listenAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", listenAddr, err)
		}

		if s.cfg.Listen.MaxConnections > 0 {
			ln = newLimitedListener(ln, s.cfg.Listen.MaxConnections)
		}
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", listenAddr, "mode", s.mode.String())
		if s.cfg.Listen.TLS.CertFile != "" {
			errCh <- srv.ServeTLS(ln, s.cfg.Listen.TLS.CertFile, s.cfg.Listen.TLS.KeyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Shutdown.Timeout.Duration)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// Shutdown performs graceful shutdown: stop accepting, drain in-flight
// requests, then stop background sweeps.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hs := s.httpServer
	s.mu.Unlock()

	if hs != nil {
		if err := hs.Shutdown(ctx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	s.sessions.Stop()
	for _, wl := range []*security.WindowLimiter{s.loginLimiter, s.grantLimiter, s.proxyLimiter} {
		if wl != nil {
			wl.Stop()
		}
	}
	return nil
}

// OnConfigReload applies hot-reloadable settings: admin allow-list, proxy
// origin allow-list, and rate ceilings. Mode and listener changes require
// a restart and are ignored here.
func (s *Server) OnConfigReload(newCfg *config.Config) error {
	s.admins.SetAllowlist(newCfg.Admin.Allowlist)
	s.guard.SetAllowedOrigins(newCfg.Proxy.AllowedOrigins)

	if s.loginLimiter != nil {
		s.loginLimiter.SetLimit(newCfg.RateLimit.Login.Ceiling, newCfg.RateLimit.Login.Window.Duration)
	}
	if s.grantLimiter != nil {
		s.grantLimiter.SetLimit(newCfg.RateLimit.SelfGrant.Ceiling, newCfg.RateLimit.SelfGrant.Window.Duration)
	}
	if s.proxyLimiter != nil {
		s.proxyLimiter.SetLimit(newCfg.RateLimit.Proxy.Ceiling, newCfg.RateLimit.Proxy.Window.Duration)
	}

	s.metrics.RecordConfigReload(true)
	s.metrics.SetConfigReloadTime(time.Now())
	s.logger.Info("reloadable settings applied")
	return nil
}

// pingBackend probes the backend origin for readiness. Any HTTP response,
// including an error status, proves reachability.
func (s *Server) pingBackend(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Proxy.BackendURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := s.pingHTTP.Do(req)
	if err != nil {
		s.metrics.SetBackendHealth(false)
		return err
	}
	resp.Body.Close()
	s.metrics.SetBackendHealth(true)
	return nil
}

// buildLogger creates an slog.Logger based on configuration.
func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var output *os.File
	switch cfg.Logging.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}
