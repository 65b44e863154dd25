// Package federated implements the provider-backed login flow: redirect to
// the identity provider, validate the returned ID token against the
// provider's signing keys, and exchange it for a local gateway session.
// The provider token itself is never stored and never forwarded upstream.
package federated

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"

	"github.com/cordonlabs/cordon/internal/config"
	gwerrors "github.com/cordonlabs/cordon/internal/errors"
	"github.com/cordonlabs/cordon/internal/session"
)

// StateCookieName carries the OAuth state between redirect and callback.
const StateCookieName = "cordon_oauth_state"

// stateTTL bounds how long a pending login redirect stays valid.
const stateTTL = 5 * time.Minute

// Handler drives the authorization-code flow against the configured
// provider and issues gateway sessions on success.
type Handler struct {
	oauth    *oauth2.Config
	sessions *session.Manager
	issuer   string
	clientID string
	jwksURL  string
	secure   bool
	logger   *slog.Logger

	// fetchKeys resolves the provider's signing keys. Overridable in
	// tests; defaults to fetching jwksURL.
	fetchKeys func(ctx context.Context) (jwk.Set, error)
}

// NewHandler creates a Handler from the federated provider settings.
func NewHandler(cfg config.FederatedConfig, sessions *session.Manager, secure bool, logger *slog.Logger) *Handler {
	h := &Handler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/authorize", cfg.TenantID),
				TokenURL: fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
			},
		},
		sessions: sessions,
		issuer:   cfg.Issuer,
		clientID: cfg.ClientID,
		jwksURL:  cfg.JWKSURL,
		secure:   secure,
		logger:   logger,
	}
	h.fetchKeys = func(ctx context.Context) (jwk.Set, error) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return jwk.Fetch(ctx, h.jwksURL)
	}
	return h
}

// LoginHandler starts the flow: stores a random state in a short-lived
// cookie and redirects to the provider's authorization endpoint.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		h.logger.Error("generating oauth state", "error", err)
		gwerrors.WriteHTTPError(w, gwerrors.ErrUpstreamUnavailable)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/auth/federated",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})

	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// ClearStateCookie returns an expired state cookie. Set after the callback
// consumes the state, and on logout so no federated cookie outlives the
// gateway session.
func ClearStateCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/auth/federated",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
}

// CallbackHandler completes the flow: checks state, exchanges the code,
// validates the ID token, and issues a gateway session cookie.
func (h *Handler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	state := r.FormValue("state")
	code := r.FormValue("code")
	if state == "" || code == "" {
		h.logger.Warn("callback missing state or code")
		gwerrors.WriteHTTPError(w, gwerrors.ErrInvalidRequest)
		return
	}

	cookie, err := r.Cookie(StateCookieName)
	if err != nil || cookie.Value != state {
		h.logger.Warn("callback state mismatch")
		gwerrors.WriteHTTPError(w, gwerrors.ErrInvalidRequest)
		return
	}

	// state is single-use
	http.SetCookie(w, ClearStateCookie(h.secure))

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("code exchange failed", "error", err)
		gwerrors.WriteHTTPError(w, gwerrors.ErrUnauthenticated)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		h.logger.Warn("token response missing id_token")
		gwerrors.WriteHTTPError(w, gwerrors.ErrUnauthenticated)
		return
	}

	email, err := h.verifyIDToken(r.Context(), rawIDToken)
	if err != nil {
		h.logger.Warn("id token rejected", "error", err)
		gwerrors.WriteHTTPError(w, gwerrors.ErrUnauthenticated)
		return
	}

	sess, err := h.sessions.Issue(email, session.ClientMeta{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Error("issuing session", "error", err)
		gwerrors.WriteHTTPError(w, gwerrors.ErrUpstreamUnavailable)
		return
	}

	h.logger.Info("federated login", "subject", email)
	http.SetCookie(w, session.NewCookie(sess.Token, h.sessions.TTL(), h.secure))
	http.Redirect(w, r, "/", http.StatusFound)
}

// verifyIDToken validates signature, issuer, audience, and expiry, then
// extracts the subject email. A token without a usable email claim is
// rejected: the gateway has no identity to bind a session to.
func (h *Handler) verifyIDToken(ctx context.Context, raw string) (string, error) {
	keys, err := h.fetchKeys(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching provider keys: %w", err)
	}

	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(h.issuer),
		jwt.WithAudience(h.clientID),
	)
	if err != nil {
		return "", fmt.Errorf("parsing id token: %w", err)
	}

	for _, claim := range []string{"email", "preferred_username"} {
		if v, ok := tok.Get(claim); ok {
			if email, ok := v.(string); ok && email != "" {
				return email, nil
			}
		}
	}
	return "", fmt.Errorf("id token has no email claim")
}

func generateState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
