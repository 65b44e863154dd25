package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ApplyDefaults fills zero-valued fields with the shipped defaults.
// It is called after YAML parsing and environment overlay, before validation.
func ApplyDefaults(cfg *Config) {
	// ── Listen ──
	if cfg.Listen.Host == "" {
		cfg.Listen.Host = "0.0.0.0"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 8443
	}
	if cfg.Listen.MaxConnections == 0 {
		cfg.Listen.MaxConnections = 1000
	}
	if cfg.Listen.GlobalRateLimit == 0 {
		cfg.Listen.GlobalRateLimit = 3000
	}
	if cfg.Listen.TrustedProxies == nil {
		cfg.Listen.TrustedProxies = []string{}
	}

	// ── Sessions ──
	if cfg.Auth.SelfService.SessionTTL.Duration == 0 {
		cfg.Auth.SelfService.SessionTTL.Duration = 8 * time.Hour
	}
	if cfg.Auth.SelfService.SweepInterval.Duration == 0 {
		cfg.Auth.SelfService.SweepInterval.Duration = 5 * time.Minute
	}
	if cfg.Auth.Federated.SessionTTL.Duration == 0 {
		cfg.Auth.Federated.SessionTTL.Duration = 8 * time.Hour
	}

	// ── Federated endpoints derived from tenant when not set explicitly ──
	if cfg.Auth.Federated.TenantID != "" {
		if cfg.Auth.Federated.Issuer == "" {
			cfg.Auth.Federated.Issuer = fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", cfg.Auth.Federated.TenantID)
		}
		if cfg.Auth.Federated.JWKSURL == "" {
			cfg.Auth.Federated.JWKSURL = fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", cfg.Auth.Federated.TenantID)
		}
	}

	// ── Admin allow-list normalization ──
	normalized := make([]string, 0, len(cfg.Admin.Allowlist))
	for _, e := range cfg.Admin.Allowlist {
		if v := strings.ToLower(strings.TrimSpace(e)); v != "" {
			normalized = append(normalized, v)
		}
	}
	cfg.Admin.Allowlist = normalized

	// ── Proxy ──
	if cfg.Proxy.Timeout.Duration == 0 {
		cfg.Proxy.Timeout.Duration = 30 * time.Second
	}
	// The allow-list is closed: when not configured it contains exactly the
	// backend's own origin, never more.
	if len(cfg.Proxy.AllowedOrigins) == 0 && cfg.Proxy.BackendURL != "" {
		if origin, ok := originOf(cfg.Proxy.BackendURL); ok {
			cfg.Proxy.AllowedOrigins = []string{origin}
		}
	}

	// ── Rate limits ──
	if cfg.RateLimit.SweepInterval.Duration == 0 {
		cfg.RateLimit.SweepInterval.Duration = 5 * time.Minute
	}
	applyWindowDefaults(&cfg.RateLimit.Login, 5, 15*time.Minute)
	applyWindowDefaults(&cfg.RateLimit.SelfGrant, 3, time.Hour)
	applyWindowDefaults(&cfg.RateLimit.Proxy, 300, time.Minute)

	// ── Logging ──
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// ── Shutdown ──
	if cfg.Shutdown.Timeout.Duration == 0 {
		cfg.Shutdown.Timeout.Duration = 30 * time.Second
	}

	// ── Reload ──
	if cfg.Reload.Debounce.Duration == 0 {
		cfg.Reload.Debounce.Duration = 2 * time.Second
	}
}

func applyWindowDefaults(w *WindowLimit, ceiling int, window time.Duration) {
	if w.Ceiling == 0 {
		w.Ceiling = ceiling
	}
	if w.Window.Duration == 0 {
		w.Window.Duration = window
	}
}

// originOf reduces a URL to its scheme://host[:port] origin.
func originOf(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}
