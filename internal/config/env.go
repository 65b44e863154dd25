package config

import (
	"os"
	"strings"
)

// Environment variables recognized by ApplyEnv. Secrets are expected to
// arrive this way rather than sitting in the config file.
const (
	EnvProduction         = "CORDON_PRODUCTION"
	EnvSelfServiceEnabled = "CORDON_SELF_SERVICE_ENABLED"
	EnvIDPClientID        = "CORDON_IDP_CLIENT_ID"
	EnvIDPClientSecret    = "CORDON_IDP_CLIENT_SECRET"
	EnvIDPTenantID        = "CORDON_IDP_TENANT_ID"
	EnvBackendURL         = "CORDON_BACKEND_URL"
	EnvAdminAllowlist     = "CORDON_ADMIN_ALLOWLIST"
)

// ApplyEnv overlays environment variables onto the parsed config.
// It runs after YAML parsing and before defaults: the environment wins.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvProduction); ok {
		cfg.Production = isTruthy(v)
	}
	if v, ok := os.LookupEnv(EnvSelfServiceEnabled); ok {
		cfg.Auth.SelfService.Enabled = isTruthy(v)
	}
	if v := os.Getenv(EnvIDPClientID); v != "" {
		cfg.Auth.Federated.ClientID = v
	}
	if v := os.Getenv(EnvIDPClientSecret); v != "" {
		cfg.Auth.Federated.ClientSecret = v
	}
	if v := os.Getenv(EnvIDPTenantID); v != "" {
		cfg.Auth.Federated.TenantID = v
	}
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Proxy.BackendURL = v
	}
	if v := os.Getenv(EnvAdminAllowlist); v != "" {
		cfg.Admin.Allowlist = splitList(v)
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
