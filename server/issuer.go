package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// IdPGateway is everything the issuer needs from the identity provider: the
// two token-endpoint grants plus the hosted authorize and logout URLs.
type IdPGateway interface {
	Exchanger
	AuthCodeURL(state, codeChallenge string) string
	LogoutURL(postLogoutRedirect string) string
}

// Transition is the outcome of a session state change: where to send the
// browser and which cookies to set or clear. Refresh produces no redirect.
type Transition struct {
	RedirectURL string
	Cookies     []*http.Cookie
}

// SessionIssuer drives the login, callback, refresh, and logout transitions.
// All session state lives in the cookies it emits; nothing is stored
// server-side.
type SessionIssuer struct {
	cfg    Config
	codec  CookieCodec
	idp    IdPGateway
	logger *slog.Logger
}

// NewSessionIssuer wires the issuer from configuration.
func NewSessionIssuer(cfg Config, idp IdPGateway, logger *slog.Logger) *SessionIssuer {
	return &SessionIssuer{
		cfg:    cfg,
		codec:  CookieCodec{Domain: cfg.Server.CookieDomain},
		idp:    idp,
		logger: logger,
	}
}

// Login starts a handshake: a fresh PKCE pair and state token go into one
// short-lived auth_tmp cookie, and the browser is sent to the hosted
// authorize endpoint.
func (si *SessionIssuer) Login() (Transition, error) {
	verifier, challenge, err := GenerateChallengePair()
	if err != nil {
		return Transition{}, err
	}
	state, err := GenerateState()
	if err != nil {
		return Transition{}, err
	}

	// The JSON payload is percent-encoded: quotes are not valid cookie
	// bytes and would be stripped on write. Decoding tolerates both forms.
	handshake := url.QueryEscape(EncodeHandshake(HandshakeState{State: state, CodeVerifier: verifier}))
	tmp := si.codec.Set(cookieHandshake, handshake, int(DefaultHandshakeTTL.Seconds()))

	return Transition{
		RedirectURL: si.idp.AuthCodeURL(state, challenge),
		Cookies:     []*http.Cookie{tmp},
	}, nil
}

// Callback consumes the handshake and redeems the authorization code.
// Validation happens strictly before any network call: missing inputs are an
// InvalidCallback, a state or verifier problem is a StateMismatch, and only
// then is the token endpoint contacted.
func (si *SessionIssuer) Callback(ctx context.Context, code, state, rawCookieHeader string) (Transition, error) {
	cookies := ParseCookies(rawCookieHeader)
	tmpRaw := cookies[cookieHandshake]
	if code == "" || state == "" || tmpRaw == "" {
		return Transition{}, invalidCallback("missing code, state, or handshake cookie")
	}

	handshake, ok := DecodeHandshake(tmpRaw)
	if !ok {
		return Transition{}, invalidCallback("undecodable handshake cookie")
	}
	if handshake.State != state || handshake.CodeVerifier == "" {
		return Transition{}, stateMismatch("state mismatch or missing code_verifier")
	}

	tokens, err := si.idp.ExchangeAuthorizationCode(ctx, code, handshake.CodeVerifier)
	if err != nil {
		return Transition{}, si.exchangeFailure(KindTokenExchangeFailed, http.StatusBadGateway, err)
	}

	out := []*http.Cookie{
		si.codec.Set(cookieAccessToken, tokens.AccessToken, tokens.ExpiresIn),
		si.codec.Set(cookieIDToken, tokens.IDToken, tokens.ExpiresIn),
		si.codec.Clear(cookieHandshake),
	}
	if tokens.RefreshToken != "" {
		out = append(out, si.codec.Set(cookieRefreshToken, tokens.RefreshToken, int(DefaultRefreshWindow.Seconds())))
	}

	return Transition{RedirectURL: si.cfg.Frontend.URL, Cookies: out}, nil
}

// Refresh rotates the access token using the refresh_token cookie. A missing
// cookie means the session expired; the refresh token itself is never
// reissued here.
func (si *SessionIssuer) Refresh(ctx context.Context, rawCookieHeader string) (Transition, error) {
	cookies := ParseCookies(rawCookieHeader)
	refresh := cookies[cookieRefreshToken]
	if refresh == "" {
		return Transition{}, flowErr(KindMissingRefreshToken, http.StatusUnauthorized, "no refresh_token cookie", nil)
	}

	tokens, err := si.idp.ExchangeRefreshToken(ctx, refresh)
	if err != nil {
		return Transition{}, si.exchangeFailure(KindRefreshFailed, http.StatusUnauthorized, err)
	}

	out := []*http.Cookie{
		si.codec.Set(cookieAccessToken, tokens.AccessToken, tokens.ExpiresIn),
	}
	if tokens.IDToken != "" {
		out = append(out, si.codec.Set(cookieIDToken, tokens.IDToken, tokens.ExpiresIn))
	}

	return Transition{Cookies: out}, nil
}

// Logout clears every session cookie whether or not it was set and sends the
// browser to the hosted logout endpoint. This transition cannot fail.
func (si *SessionIssuer) Logout() Transition {
	return Transition{
		RedirectURL: si.idp.LogoutURL(si.cfg.PostLogoutRedirect()),
		Cookies: []*http.Cookie{
			si.codec.Clear(cookieAccessToken),
			si.codec.Clear(cookieIDToken),
			si.codec.Clear(cookieRefreshToken),
			si.codec.Clear(cookieHandshake),
		},
	}
}

// exchangeFailure wraps a token-endpoint failure, keeping the upstream status
// and body as diagnostic detail when available.
func (si *SessionIssuer) exchangeFailure(kind Kind, status int, err error) *FlowError {
	var xe *ExchangeError
	if errors.As(err, &xe) {
		return flowErr(kind, status, fmt.Sprintf("idp returned %d: %s", xe.StatusCode, xe.Body), err)
	}
	return flowErr(kind, status, err.Error(), err)
}
