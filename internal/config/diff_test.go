package config

import (
	"testing"
	"time"
)

func baseConfig() *Config {
	cfg := &Config{}
	cfg.Proxy.BackendURL = "http://127.0.0.1:8000"
	ApplyDefaults(cfg)
	return cfg
}

func TestDiffNoChanges(t *testing.T) {
	a, b := baseConfig(), baseConfig()
	if changes := Diff(a, b); len(changes) != 0 {
		t.Errorf("expected no changes, got %v", changes)
	}
}

func TestDiffReloadableFields(t *testing.T) {
	a, b := baseConfig(), baseConfig()
	b.Admin.Allowlist = []string{"root@example.com"}
	b.RateLimit.Login.Ceiling = 99
	b.Logging.Level = "debug"

	changes := Diff(a, b)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d: %v", len(changes), changes)
	}
	for _, c := range changes {
		if !c.Reloadable {
			t.Errorf("expected %s to be reloadable", c.Field)
		}
	}
}

func TestDiffRestartRequiredFields(t *testing.T) {
	a, b := baseConfig(), baseConfig()
	b.Production = true
	b.Listen.Port = 9000
	b.Proxy.BackendURL = "http://other.internal:8000"
	b.Auth.SelfService.Enabled = true

	changes := Diff(a, b)
	byField := map[string]Change{}
	for _, c := range changes {
		byField[c.Field] = c
	}
	for _, field := range []string{"production", "listen", "proxy.backend_url", "auth.self_service.enabled"} {
		c, ok := byField[field]
		if !ok {
			t.Errorf("expected change for %s", field)
			continue
		}
		if c.Reloadable {
			t.Errorf("%s must require a restart", field)
		}
	}
}

func TestDiffWindowLimit(t *testing.T) {
	a, b := baseConfig(), baseConfig()
	b.RateLimit.Proxy.Window = Duration{5 * time.Minute}

	changes := Diff(a, b)
	if len(changes) != 1 || changes[0].Field != "rate_limit.proxy" {
		t.Fatalf("expected single rate_limit.proxy change, got %v", changes)
	}
}
