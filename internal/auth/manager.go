// Package auth owns the Gmail OAuth token lifecycle: authorization with PKCE,
// code exchange, transparent refresh, and disconnect/revoke.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"capsulemail/internal/config"
	"capsulemail/internal/credstore"
	"capsulemail/internal/model"
)

// ErrNotAuthenticated means no usable access token exists: the user never
// connected, or the refresh token is gone/revoked. The caller must re-run
// authorization.
var ErrNotAuthenticated = errors.New("not authenticated")

const (
	// Tokens within this window of expiry are refreshed before use so a
	// send never races token expiry mid-request.
	refreshWindow = 5 * time.Minute

	// Google's token responses include expires_in; this is the fallback
	// when they don't.
	defaultTokenLifetime = time.Hour

	clientIDSuffix       = ".apps.googleusercontent.com"
	reversedSchemePrefix = "com.googleusercontent.apps."
)

// AuthRequest is a prepared authorization: the UI opens URL in an external
// browser and feeds the resulting code plus Verifier to ExchangeCode.
type AuthRequest struct {
	URL      string
	Verifier string
}

type Manager struct {
	cfg   config.Config
	creds *credstore.Store

	// HTTPClient is used for userinfo and revocation calls and injected
	// into the oauth2 exchanges. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Now is the clock; overridable in tests.
	Now func() time.Time
}

func NewManager(cfg config.Config, creds *credstore.Store) *Manager {
	return &Manager{
		cfg:        cfg,
		creds:      creds,
		HTTPClient: http.DefaultClient,
		Now:        time.Now,
	}
}

// RedirectURI derives the provider-mandated redirect URI from the platform
// client ID: Google validates mobile redirects against the reversed-client-ID
// scheme registered for the app, so this must match exactly.
func (m *Manager) RedirectURI() string {
	prefix := strings.TrimSuffix(m.cfg.ClientID(), clientIDSuffix)
	return reversedSchemePrefix + prefix + ":/oauth2redirect/google"
}

func (m *Manager) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    m.cfg.ClientID(),
		RedirectURL: m.RedirectURI(),
		Scopes:      m.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  m.cfg.AuthEndpoint,
			TokenURL: m.cfg.TokenEndpoint,
		},
	}
}

func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.HTTPClient)
}

// NewAuthorization builds a PKCE authorization request. access_type=offline
// and prompt=consent are both required: without forced consent Google omits
// the refresh token on repeat authorizations.
func (m *Manager) NewAuthorization() AuthRequest {
	verifier := oauth2.GenerateVerifier()
	authURL := m.oauthConfig().AuthCodeURL("state-token",
		oauth2.S256ChallengeOption(verifier),
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	return AuthRequest{URL: authURL, Verifier: verifier}
}

// ExchangeCode trades an authorization code for tokens, looks up the
// authenticated email via the userinfo endpoint (the token endpoint does not
// return it), and persists the resulting set.
func (m *Manager) ExchangeCode(ctx context.Context, code, verifier string) (*model.TokenSet, error) {
	tok, err := m.oauthConfig().Exchange(m.httpContext(ctx), strings.TrimSpace(code), oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("token response missing access token")
	}

	email, err := m.fetchUserEmail(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("look up user email: %w", err)
	}

	set := &model.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    m.expiryMillis(tok),
		UserEmail:    email,
	}
	if err := m.creds.Save(set); err != nil {
		return nil, fmt.Errorf("persist tokens: %w", err)
	}
	return set, nil
}

// AccessToken returns a token valid for at least the refresh window,
// refreshing it first when necessary. Returns ErrNotAuthenticated when no
// token can be produced; refresh failures are reported the same way since
// the remedy is identical (re-run authorization).
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	set, err := m.creds.Load()
	if err != nil {
		return "", fmt.Errorf("load tokens: %w", err)
	}
	if set == nil {
		return "", ErrNotAuthenticated
	}

	if m.Now().UnixMilli() < set.ExpiresAt-refreshWindow.Milliseconds() {
		return set.AccessToken, nil
	}

	if set.RefreshToken == "" {
		return "", ErrNotAuthenticated
	}

	src := m.oauthConfig().TokenSource(m.httpContext(ctx), &oauth2.Token{RefreshToken: set.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		log.Printf("auth: token refresh failed: %v", err)
		return "", ErrNotAuthenticated
	}

	refreshed := &model.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    m.expiryMillis(tok),
		UserEmail:    set.UserEmail,
	}
	// Google usually omits the refresh token on refresh grants; keep the one we have.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = set.RefreshToken
	}
	if err := m.creds.Save(refreshed); err != nil {
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}
	return refreshed.AccessToken, nil
}

// Disconnect revokes the access token with the provider on a best-effort
// basis and then clears local credentials unconditionally: a revoke failure
// must never leave the user unable to disconnect.
func (m *Manager) Disconnect(ctx context.Context) error {
	set, err := m.creds.Load()
	if err == nil && set != nil {
		if err := m.revoke(ctx, set.AccessToken); err != nil {
			log.Printf("auth: token revocation failed: %v", err)
		}
	}
	return m.creds.Clear()
}

// IsConnected reports whether a token set is stored.
func (m *Manager) IsConnected() bool {
	set, err := m.creds.Load()
	return err == nil && set != nil
}

// ConnectedEmail returns the authenticated Gmail address, or "" when not
// connected. The connected account is the implicit From of every send.
func (m *Manager) ConnectedEmail() string {
	set, err := m.creds.Load()
	if err != nil || set == nil {
		return ""
	}
	return set.UserEmail
}

func (m *Manager) expiryMillis(tok *oauth2.Token) int64 {
	if tok.Expiry.IsZero() {
		return m.Now().Add(defaultTokenLifetime).UnixMilli()
	}
	return tok.Expiry.UnixMilli()
}

func (m *Manager) fetchUserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.UserInfoEndpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode userinfo: %w", err)
	}
	return info.Email, nil
}

func (m *Manager) revoke(ctx context.Context, accessToken string) error {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.RevocationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revocation returned status %d", resp.StatusCode)
	}
	return nil
}
