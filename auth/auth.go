// Package auth identifies the user who owns a collection. With OIDC
// configured, users log in through the identity provider and are tracked
// with an in-memory session; without it every request acts as the single
// local user.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"tcg_catalog/config"
)

// ContextKey is a type for context keys used by the auth package.
type ContextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey ContextKey = "auth_user"

	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "tcg_session"

	// OriginalURLCookieName stores the URL the user was trying to access.
	OriginalURLCookieName = "tcg_original_url"

	// DefaultSessionDuration is the default session lifetime.
	DefaultSessionDuration = 7 * 24 * time.Hour

	// StateExpiry is how long OIDC state tokens are valid.
	StateExpiry = 10 * time.Minute

	// LocalUserID owns the collection when OIDC is not configured.
	LocalUserID = "local"
)

// User represents an authenticated user.
type User struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Groups []string `json:"groups,omitempty"`
}

// LocalUser is the user every request acts as without OIDC.
var LocalUser = &User{ID: LocalUserID, Name: "Local collector"}

// Authenticator attaches users to requests.
type Authenticator interface {
	// Identify attaches the user to the request context when known and
	// always calls next.
	Identify(next http.Handler) http.Handler
	// Require rejects requests without a user.
	Require(next http.Handler) http.Handler
	// StatusHandler reports the current user as JSON.
	StatusHandler(w http.ResponseWriter, r *http.Request)
	// Close releases background resources.
	Close()
}

// GetUserFromContext retrieves the authenticated user from a context.
func GetUserFromContext(ctx context.Context) *User {
	if user, ok := ctx.Value(UserContextKey).(*User); ok {
		return user
	}
	return nil
}

// UserID returns the id of the user attached to the request, or "".
func UserID(r *http.Request) string {
	if user := GetUserFromContext(r.Context()); user != nil {
		return user.ID
	}
	return ""
}

func withUser(r *http.Request, user *User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), UserContextKey, user))
}

type authStatus struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
	OIDCEnabled   bool  `json:"oidc_enabled"`
}

// Local is the Authenticator used when OIDC is not configured.
type Local struct{}

// Identify attaches LocalUser.
func (Local) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, withUser(r, LocalUser))
	})
}

// Require attaches LocalUser; there is nothing to reject.
func (l Local) Require(next http.Handler) http.Handler {
	return l.Identify(next)
}

// StatusHandler reports the local user.
func (Local) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(authStatus{Authenticated: true, User: LocalUser})
}

// Close is a no-op.
func (Local) Close() {}

// Provider handles OIDC authentication.
type Provider struct {
	config       *config.OIDCConfig
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	sessions     *SessionStore
	states       *StateStore
	secure       bool
	log          zerolog.Logger
}

// NewProvider discovers the identity provider at cfg.ConfigURL and creates
// a Provider for it.
func NewProvider(ctx context.Context, cfg *config.OIDCConfig, log zerolog.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("OIDC config is nil")
	}

	// The discovery document is fetched from config_url as given, which may
	// differ from the issuer's well-known path.
	discoveryDoc, err := fetchDiscoveryDocument(ctx, cfg.ConfigURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OIDC discovery document at %s: %w", cfg.ConfigURL, err)
	}

	provider, err := oidc.NewProvider(ctx, discoveryDoc.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider for issuer %s: %w", discoveryDoc.Issuer, err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  strings.TrimSuffix(cfg.ServiceURL, "/") + cfg.Callback,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return newProvider(cfg, oauth2Config, verifier, log), nil
}

func newProvider(cfg *config.OIDCConfig, oauth2Config *oauth2.Config, verifier *oidc.IDTokenVerifier, log zerolog.Logger) *Provider {
	return &Provider{
		config:       cfg,
		oauth2Config: oauth2Config,
		verifier:     verifier,
		sessions:     NewSessionStore(),
		states:       NewStateStore(),
		secure:       strings.HasPrefix(cfg.ServiceURL, "https"),
		log:          log.With().Str("component", "auth").Logger(),
	}
}

type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

func fetchDiscoveryDocument(ctx context.Context, configURL string) (*discoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s: %s", resp.Status, string(body))
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if doc.Issuer == "" {
		return nil, fmt.Errorf("discovery document missing issuer")
	}
	return &doc, nil
}

// generateRandomString generates a cryptographically secure random string.
func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

// safeRedirect returns target if it is a local path, "/" otherwise.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, `/\`) {
		return "/"
	}
	return target
}

// LoginHandler initiates the OIDC login flow.
func (p *Provider) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state, err := generateRandomString(32)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to generate state")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	p.states.Set(state)

	http.SetCookie(w, &http.Cookie{
		Name:     OriginalURLCookieName,
		Value:    safeRedirect(r.URL.Query().Get("redirect")),
		Path:     "/",
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(StateExpiry.Seconds()),
	})

	http.Redirect(w, r, p.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler handles the OIDC callback.
func (p *Provider) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !p.states.Validate(r.URL.Query().Get("state")) {
		p.log.Warn().Msg("Invalid OIDC state")
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		errDesc := r.URL.Query().Get("error_description")
		p.log.Warn().Str("error", errParam).Str("description", errDesc).Msg("OIDC provider returned an error")
		http.Error(w, fmt.Sprintf("Authentication error: %s", errDesc), http.StatusUnauthorized)
		return
	}

	token, err := p.oauth2Config.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to exchange code")
		http.Error(w, "Failed to exchange authorization code", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		p.log.Error().Msg("No ID token in response")
		http.Error(w, "No ID token in response", http.StatusInternalServerError)
		return
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to verify ID token")
		http.Error(w, "Failed to verify ID token", http.StatusUnauthorized)
		return
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		p.log.Error().Err(err).Msg("Failed to extract claims")
		http.Error(w, "Failed to extract claims", http.StatusInternalServerError)
		return
	}

	user := buildUserFromClaims(claims)
	if user.ID == "" {
		http.Error(w, "ID token has no subject", http.StatusUnauthorized)
		return
	}

	if err := p.startSession(w, user); err != nil {
		p.log.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	p.log.Info().Str("user", user.ID).Str("email", user.Email).Msg("User logged in")

	originalURL := "/"
	if cookie, err := r.Cookie(OriginalURLCookieName); err == nil {
		originalURL = safeRedirect(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     OriginalURLCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, originalURL, http.StatusTemporaryRedirect)
}

func (p *Provider) startSession(w http.ResponseWriter, user *User) error {
	sessionID, err := generateRandomString(64)
	if err != nil {
		return err
	}
	p.sessions.Set(sessionID, &Session{
		User:      user,
		ExpiresAt: time.Now().Add(DefaultSessionDuration),
	})

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(DefaultSessionDuration.Seconds()),
	})
	return nil
}

// buildUserFromClaims extracts user information from ID token claims.
func buildUserFromClaims(claims map[string]interface{}) *User {
	user := &User{}

	if sub, ok := claims["sub"].(string); ok {
		user.ID = sub
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		user.Name = name
	} else if preferredUsername, ok := claims["preferred_username"].(string); ok {
		user.Name = preferredUsername
	}
	if groups, ok := claims["groups"].([]interface{}); ok {
		for _, g := range groups {
			if group, ok := g.(string); ok {
				user.Groups = append(user.Groups, group)
			}
		}
	}

	return user
}

// LogoutHandler ends the session.
func (p *Provider) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		p.sessions.Delete(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// StatusHandler returns the current authentication status as JSON.
func (p *Provider) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status := authStatus{OIDCEnabled: true}
	if user := p.sessionUser(r); user != nil {
		status.Authenticated = true
		status.User = user
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (p *Provider) sessionUser(r *http.Request) *User {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}
	session, ok := p.sessions.Get(cookie.Value)
	if !ok {
		return nil
	}
	return session.User
}

// Identify attaches the session user, if any, and always calls next.
func (p *Provider) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := p.sessionUser(r); user != nil {
			r = withUser(r, user)
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects requests without a valid session: API calls get a 401,
// pages are redirected to the login flow.
func (p *Provider) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := p.sessionUser(r)
		if user == nil {
			p.handleUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, withUser(r, user))
	})
}

func (p *Provider) handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "authentication required",
		})
		return
	}

	http.Redirect(w, r, "/login?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusTemporaryRedirect)
}

// Close stops the session and state cleanup goroutines.
func (p *Provider) Close() {
	p.sessions.Close()
	p.states.Close()
}
