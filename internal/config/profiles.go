package config

// DevProfile returns a starter configuration for local development:
// self-service mode on, relaxed ceilings, text logging.
func DevProfile() string {
	return `# cordon development configuration
listen:
  host: 127.0.0.1
  port: 8443

production: false

auth:
  self_service:
    enabled: true
    session_ttl: 8h

proxy:
  backend_url: http://127.0.0.1:8000

rate_limit:
  enabled: true
  login:
    ceiling: 10
    window: 15m
  self_grant:
    ceiling: 3
    window: 1h
  proxy:
    ceiling: 600
    window: 1m

logging:
  level: debug
  format: text
`
}

// ProdProfile returns a starter configuration for production: federated
// identity only, self-service off, JSON logging. Identity provider secrets
// come from the environment (CORDON_IDP_*).
func ProdProfile() string {
	return `# cordon production configuration
listen:
  host: 0.0.0.0
  port: 8443

production: true

auth:
  federated:
    # client_id, client_secret, and tenant_id are read from
    # CORDON_IDP_CLIENT_ID / CORDON_IDP_CLIENT_SECRET / CORDON_IDP_TENANT_ID.
    redirect_url: https://assess.example.com/auth/federated/callback

admin:
  allowlist: []

proxy:
  backend_url: http://backend.internal:8000

rate_limit:
  enabled: true

logging:
  level: info
  format: json
`
}
