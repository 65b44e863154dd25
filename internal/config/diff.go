package config

import (
	"fmt"
	"slices"
)

// Change describes a single configuration field difference between the
// running config and a freshly loaded one.
type Change struct {
	Field      string
	OldValue   interface{}
	NewValue   interface{}
	Reloadable bool
}

// Diff compares two configurations and reports the changed fields.
// Reloadable changes (allow-lists, rate ceilings, log level) take effect on
// reload; anything touching the listener, the authentication modes, or the
// backend URL requires a restart.
func Diff(old, new *Config) []Change {
	var changes []Change

	add := func(field string, oldV, newV interface{}, reloadable bool) {
		changes = append(changes, Change{Field: field, OldValue: oldV, NewValue: newV, Reloadable: reloadable})
	}

	// ── Reloadable ──
	if !slices.Equal(old.Admin.Allowlist, new.Admin.Allowlist) {
		add("admin.allowlist", old.Admin.Allowlist, new.Admin.Allowlist, true)
	}
	if !slices.Equal(old.Proxy.AllowedOrigins, new.Proxy.AllowedOrigins) {
		add("proxy.allowed_origins", old.Proxy.AllowedOrigins, new.Proxy.AllowedOrigins, true)
	}
	diffWindow := func(field string, o, n WindowLimit) {
		if o.Ceiling != n.Ceiling || o.Window != n.Window {
			add(field, fmt.Sprintf("%d/%s", o.Ceiling, o.Window), fmt.Sprintf("%d/%s", n.Ceiling, n.Window), true)
		}
	}
	diffWindow("rate_limit.login", old.RateLimit.Login, new.RateLimit.Login)
	diffWindow("rate_limit.self_grant", old.RateLimit.SelfGrant, new.RateLimit.SelfGrant)
	diffWindow("rate_limit.proxy", old.RateLimit.Proxy, new.RateLimit.Proxy)
	if old.Logging.Level != new.Logging.Level {
		add("logging.level", old.Logging.Level, new.Logging.Level, true)
	}

	// ── Restart required ──
	if old.Listen.Host != new.Listen.Host || old.Listen.Port != new.Listen.Port {
		add("listen", fmt.Sprintf("%s:%d", old.Listen.Host, old.Listen.Port), fmt.Sprintf("%s:%d", new.Listen.Host, new.Listen.Port), false)
	}
	if old.Production != new.Production {
		add("production", old.Production, new.Production, false)
	}
	if old.Auth.SelfService.Enabled != new.Auth.SelfService.Enabled {
		add("auth.self_service.enabled", old.Auth.SelfService.Enabled, new.Auth.SelfService.Enabled, false)
	}
	if old.Auth.Federated != new.Auth.Federated {
		add("auth.federated", "(old)", "(changed)", false)
	}
	if old.Proxy.BackendURL != new.Proxy.BackendURL {
		add("proxy.backend_url", old.Proxy.BackendURL, new.Proxy.BackendURL, false)
	}

	return changes
}
