package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Validate checks the configuration for errors. It collects ALL errors
// rather than stopping at the first one, returning them as a joined message.
func Validate(cfg *Config) error {
	var errs []string

	// ── Listen ──
	if cfg.Listen.Port < 1 || cfg.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be 1-65535 (got %d)", cfg.Listen.Port))
	}
	if cfg.Listen.MaxConnections < 1 {
		errs = append(errs, fmt.Sprintf("listen.max_connections must be positive (got %d)", cfg.Listen.MaxConnections))
	}
	if cfg.Listen.GlobalRateLimit < 1 {
		errs = append(errs, fmt.Sprintf("listen.global_rate_limit must be positive (got %d)", cfg.Listen.GlobalRateLimit))
	}

	// ── Backend ──
	if cfg.Proxy.BackendURL == "" {
		errs = append(errs, "proxy.backend_url is required")
	} else if !isValidOrigin(cfg.Proxy.BackendURL) {
		errs = append(errs, fmt.Sprintf("proxy.backend_url must be an http(s) URL with a host (got %q)", cfg.Proxy.BackendURL))
	}
	for i, o := range cfg.Proxy.AllowedOrigins {
		if !isValidOrigin(o) {
			errs = append(errs, fmt.Sprintf("proxy.allowed_origins[%d]: not a valid http(s) origin (got %q)", i, o))
		}
	}
	if cfg.Proxy.Timeout.Duration < 0 {
		errs = append(errs, "proxy.timeout must be positive")
	}

	// ── Federated ──
	fed := cfg.Auth.Federated
	partial := fed.ClientID != "" || fed.ClientSecret != "" || fed.TenantID != ""
	complete := fed.ClientID != "" && fed.ClientSecret != "" && fed.TenantID != ""
	if partial && !complete {
		errs = append(errs, "auth.federated: client_id, client_secret, and tenant_id must all be set or all be empty")
	}
	if complete && fed.RedirectURL == "" {
		errs = append(errs, "auth.federated.redirect_url is required when the identity provider is configured")
	}

	// ── Sessions ──
	if cfg.Auth.SelfService.SessionTTL.Duration <= 0 {
		errs = append(errs, "auth.self_service.session_ttl must be positive")
	}

	// ── Rate limits ──
	for _, rl := range []struct {
		name string
		w    WindowLimit
	}{
		{"rate_limit.login", cfg.RateLimit.Login},
		{"rate_limit.self_grant", cfg.RateLimit.SelfGrant},
		{"rate_limit.proxy", cfg.RateLimit.Proxy},
	} {
		if rl.w.Ceiling < 1 {
			errs = append(errs, fmt.Sprintf("%s.ceiling must be positive (got %d)", rl.name, rl.w.Ceiling))
		}
		if rl.w.Window.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("%s.window must be positive", rl.name))
		}
	}

	// ── Logging ──
	if !isValidLogLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
	}
	if !isValidLogFormat(cfg.Logging.Format) {
		errs = append(errs, fmt.Sprintf("logging.format must be one of: json, text (got %q)", cfg.Logging.Format))
	}

	// ── TLS files ──
	if cfg.Listen.TLS.CertFile != "" {
		if _, err := os.Stat(cfg.Listen.TLS.CertFile); err != nil {
			errs = append(errs, fmt.Sprintf("listen.tls.cert_file: %v", err))
		}
	}
	if cfg.Listen.TLS.KeyFile != "" {
		if _, err := os.Stat(cfg.Listen.TLS.KeyFile); err != nil {
			errs = append(errs, fmt.Sprintf("listen.tls.key_file: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isValidLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isValidLogFormat(f string) bool {
	switch f {
	case "json", "text":
		return true
	}
	return false
}
