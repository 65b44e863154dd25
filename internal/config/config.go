// Package config handles YAML configuration parsing, environment overrides,
// defaults, and validation for the cordon edge gateway.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for cordon.
type Config struct {
	Listen     ListenConfig    `yaml:"listen"`
	Production bool            `yaml:"production"`
	Auth       AuthConfig      `yaml:"auth"`
	Admin      AdminConfig     `yaml:"admin"`
	Proxy      ProxyConfig     `yaml:"proxy"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Logging    LoggingConfig   `yaml:"logging"`
	Shutdown   ShutdownConfig  `yaml:"shutdown"`
	Reload     ReloadConfig    `yaml:"reload"`
}

// ListenConfig defines the listener address and connection limits.
type ListenConfig struct {
	Host            string    `yaml:"host"`
	Port            int       `yaml:"port"`
	MaxConnections  int       `yaml:"max_connections"`
	GlobalRateLimit int       `yaml:"global_rate_limit"`
	TrustedProxies  []string  `yaml:"trusted_proxies"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig holds optional TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AuthConfig groups the two coexisting authentication modes.
type AuthConfig struct {
	SelfService SelfServiceConfig `yaml:"self_service"`
	Federated   FederatedConfig   `yaml:"federated"`
}

// SelfServiceConfig controls the locally issued opaque-token mode.
// It is never honored when the deployment is flagged production.
type SelfServiceConfig struct {
	Enabled       bool     `yaml:"enabled"`
	SessionTTL    Duration `yaml:"session_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// FederatedConfig holds the external identity provider settings.
// The provider is fully configured when client_id, client_secret, and
// tenant_id are all present.
type FederatedConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TenantID     string   `yaml:"tenant_id"`
	RedirectURL  string   `yaml:"redirect_url"`
	Issuer       string   `yaml:"issuer"`
	JWKSURL      string   `yaml:"jwks_url"`
	SessionTTL   Duration `yaml:"session_ttl"`
}

// AdminConfig holds the static administrator allow-list used in federated
// mode. Entries are normalized (lower-cased, trimmed) at load time.
type AdminConfig struct {
	Allowlist []string `yaml:"allowlist"`
}

// ProxyConfig describes the single backend the gateway forwards to and the
// closed set of origins it may ever contact.
type ProxyConfig struct {
	BackendURL     string   `yaml:"backend_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Timeout        Duration `yaml:"timeout"`
}

// RateLimitConfig defines the fixed-window ceilings per concern.
type RateLimitConfig struct {
	Enabled       bool        `yaml:"enabled"`
	SweepInterval Duration    `yaml:"sweep_interval"`
	Login         WindowLimit `yaml:"login"`
	SelfGrant     WindowLimit `yaml:"self_grant"`
	Proxy         WindowLimit `yaml:"proxy"`
}

// WindowLimit is a fixed-window ceiling: at most Ceiling requests per key
// within each Window.
type WindowLimit struct {
	Ceiling int      `yaml:"ceiling"`
	Window  Duration `yaml:"window"`
}

// LoggingConfig defines log output format and level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ShutdownConfig defines the graceful shutdown timeout.
type ShutdownConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// ReloadConfig controls config hot-reload behavior (SIGHUP and file watching).
type ReloadConfig struct {
	Enabled   bool     `yaml:"enabled"`
	WatchFile bool     `yaml:"watch_file"`
	Debounce  Duration `yaml:"debounce"`
}

// Duration is a time.Duration that supports YAML string parsing (e.g. "8h", "15m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Load reads and parses a configuration file, applies environment overrides
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
