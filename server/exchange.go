package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Exchanger is the minimal behaviour the session issuer needs from the IdP
// token endpoint.
type Exchanger interface {
	ExchangeAuthorizationCode(ctx context.Context, code, codeVerifier string) (TokenSet, error)
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenSet, error)
}

// ExchangeError carries the upstream status and raw body of a failed token
// endpoint call. It is surfaced to the caller verbatim; this layer never
// retries.
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// TokenClient talks to the IdP's hosted OAuth2 endpoints.
type TokenClient struct {
	idp         IdPConfig
	oauthConfig *oauth2.Config
	client      *http.Client
	logger      *slog.Logger
}

// NewTokenClient constructs the client from the configured IdP endpoints.
func NewTokenClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *TokenClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	domain := strings.TrimSuffix(cfg.IdP.Domain, "/")
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.IdP.ClientID,
		ClientSecret: cfg.IdP.ClientSecret,
		RedirectURL:  cfg.IdP.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  domain + "/oauth2/authorize",
			TokenURL: domain + "/oauth2/token",
		},
		Scopes: []string{oidc.ScopeOpenID, "email", "profile"},
	}

	return &TokenClient{
		idp:         cfg.IdP,
		oauthConfig: oauthCfg,
		client:      httpClient,
		logger:      logger,
	}
}

// AuthCodeURL constructs the authorization request for the hosted login page
// with the S256 PKCE parameters bound in.
func (c *TokenClient) AuthCodeURL(state, codeChallenge string) string {
	return c.oauthConfig.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// LogoutURL constructs the hosted logout endpoint with the post-logout
// landing target.
func (c *TokenClient) LogoutURL(postLogoutRedirect string) string {
	domain := strings.TrimSuffix(c.idp.Domain, "/")
	q := url.Values{}
	q.Set("client_id", c.idp.ClientID)
	q.Set("logout_uri", postLogoutRedirect)
	return domain + "/logout?" + q.Encode()
}

// ExchangeAuthorizationCode redeems an authorization code with its PKCE
// verifier. The client authenticates with HTTP Basic credentials.
func (c *TokenClient) ExchangeAuthorizationCode(ctx context.Context, code, codeVerifier string) (TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.idp.ClientID)
	form.Set("redirect_uri", c.idp.RedirectURI)
	form.Set("code", code)
	form.Set("code_verifier", codeVerifier)

	return c.post(ctx, form, true)
}

// ExchangeRefreshToken redeems a refresh token. Unlike the code exchange this
// deliberately sends no Basic credentials and relies on client_id alone; the
// two paths are not unified on purpose.
func (c *TokenClient) ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.idp.ClientID)
	form.Set("refresh_token", refreshToken)

	return c.post(ctx, form, false)
}

func (c *TokenClient) post(ctx context.Context, form url.Values, basicAuth bool) (TokenSet, error) {
	endpoint := c.oauthConfig.Endpoint.TokenURL
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenSet{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth {
		req.SetBasicAuth(c.idp.ClientID, c.idp.ClientSecret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return TokenSet{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenSet{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenSet{}, &ExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokens TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		return TokenSet{}, fmt.Errorf("decode token response: %w", err)
	}
	if tokens.ExpiresIn < 0 {
		tokens.ExpiresIn = 0
	}
	return tokens, nil
}
