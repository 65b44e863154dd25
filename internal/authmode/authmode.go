// Package authmode holds the single authoritative decision for which
// authentication mode a deployment is operating in. Every endpoint that
// needs the mode calls Resolve; nothing anywhere re-derives the predicate.
package authmode

import "github.com/cordonlabs/cordon/internal/config"

// Mode is the resolved authentication mode of the deployment.
type Mode int

const (
	// Disabled means no authentication path is available: fail closed.
	Disabled Mode = iota
	// Federated delegates authentication to the external identity provider.
	Federated
	// SelfService issues local opaque session tokens without a provider.
	SelfService
)

// String returns the wire name of the mode, as served by GET /auth/mode.
func (m Mode) String() string {
	switch m {
	case Federated:
		return "federated"
	case SelfService:
		return "self_service"
	default:
		return "disabled"
	}
}

// FederatedConfigured reports whether the identity provider is fully
// configured: client id, client secret, and tenant must all be present.
func FederatedConfigured(fed config.FederatedConfig) bool {
	return fed.ClientID != "" && fed.ClientSecret != "" && fed.TenantID != ""
}

// Resolve computes the deployment's authentication mode as a pure function
// of configuration.
//
// In production self-service is never permitted, regardless of its flag:
// the deployment resolves to Federated when the provider is configured and
// otherwise to Disabled. Outside production, self-service wins when it is
// explicitly enabled and the provider is not fully configured; a fully
// configured provider takes precedence.
func Resolve(cfg *config.Config) Mode {
	federated := FederatedConfigured(cfg.Auth.Federated)

	if cfg.Production {
		if federated {
			return Federated
		}
		return Disabled
	}

	if cfg.Auth.SelfService.Enabled && !federated {
		return SelfService
	}
	if federated {
		return Federated
	}
	return Disabled
}
