package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

// KeySource supplies the IdP's published signing keys. The remote
// implementation caches for the process lifetime; tests substitute a static
// set.
type KeySource interface {
	Keys(ctx context.Context) (jose.JSONWebKeySet, error)
	Refresh(ctx context.Context) (jose.JSONWebKeySet, error)
}

// RemoteKeySource lazily fetches a JWKS document and caches it. Concurrent
// first fetches are coalesced so a cold cache costs exactly one network
// round-trip; no lock is held across that call.
type RemoteKeySource struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu       sync.Mutex
	cache    jwksCache
	inflight *jwksFetch
}

type jwksCache struct {
	set     jose.JSONWebKeySet
	expires time.Time
	etag    string
}

type jwksFetch struct {
	done chan struct{}
	set  jose.JSONWebKeySet
	err  error
}

// NewRemoteKeySource builds a key source for the given JWKS endpoint.
func NewRemoteKeySource(jwksURL string, httpClient *http.Client, ttl time.Duration) *RemoteKeySource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RemoteKeySource{url: jwksURL, client: httpClient, ttl: ttl}
}

// Keys returns the cached key set, fetching it on first use.
func (s *RemoteKeySource) Keys(ctx context.Context) (jose.JSONWebKeySet, error) {
	s.mu.Lock()
	if s.cache.set.Keys != nil && time.Now().Before(s.cache.expires) {
		set := s.cache.set
		s.mu.Unlock()
		return set, nil
	}
	return s.fetchLocked(ctx)
}

// Refresh forces a refetch, used when a token references an unknown key id
// after rotation at the IdP.
func (s *RemoteKeySource) Refresh(ctx context.Context) (jose.JSONWebKeySet, error) {
	s.mu.Lock()
	return s.fetchLocked(ctx)
}

// fetchLocked is entered holding mu and releases it before any network I/O.
func (s *RemoteKeySource) fetchLocked(ctx context.Context) (jose.JSONWebKeySet, error) {
	if call := s.inflight; call != nil {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.set, call.err
		case <-ctx.Done():
			return jose.JSONWebKeySet{}, ctx.Err()
		}
	}

	call := &jwksFetch{done: make(chan struct{})}
	s.inflight = call
	etag := s.cache.etag
	prev := s.cache.set
	s.mu.Unlock()

	set, newETag, err := s.fetch(ctx, etag, prev)

	s.mu.Lock()
	s.inflight = nil
	if err == nil {
		s.cache = jwksCache{set: set, expires: time.Now().Add(s.ttl), etag: newETag}
	}
	s.mu.Unlock()

	call.set, call.err = set, err
	close(call.done)
	return set, err
}

func (s *RemoteKeySource) fetch(ctx context.Context, etag string, prev jose.JSONWebKeySet) (jose.JSONWebKeySet, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return jose.JSONWebKeySet{}, "", err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return jose.JSONWebKeySet{}, "", fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return prev, etag, nil
	}
	if resp.StatusCode != http.StatusOK {
		return jose.JSONWebKeySet{}, "", fmt.Errorf("jwks fetch failed: %s", resp.Status)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return jose.JSONWebKeySet{}, "", fmt.Errorf("decode jwks: %w", err)
	}
	return set, resp.Header.Get("ETag"), nil
}

// StaticKeySet serves a fixed key set, bypassing the network entirely.
type StaticKeySet struct {
	Set jose.JSONWebKeySet
}

func (s StaticKeySet) Keys(context.Context) (jose.JSONWebKeySet, error) { return s.Set, nil }
func (s StaticKeySet) Refresh(context.Context) (jose.JSONWebKeySet, error) { return s.Set, nil }

// Verifier validates signed identity tokens against the issuer's published
// keys and projects a minimal claim set.
type Verifier struct {
	issuer string
	keys   KeySource
	logger *slog.Logger
}

// NewVerifier constructs a verifier bound to one issuer.
func NewVerifier(issuer string, keys KeySource, logger *slog.Logger) *Verifier {
	return &Verifier{issuer: issuer, keys: keys, logger: logger}
}

// ResolveIdentity extracts the id_token cookie from the raw cookie header,
// verifies it, and returns the projected claims. All failures are FlowErrors
// with a 401 status.
func (v *Verifier) ResolveIdentity(ctx context.Context, rawCookieHeader string) (IdentityClaims, error) {
	cookies := ParseCookies(rawCookieHeader)
	raw, ok := cookies[cookieIDToken]
	if !ok || raw == "" {
		return IdentityClaims{}, flowErr(KindMissingToken, http.StatusUnauthorized, "no id_token cookie", nil)
	}
	return v.Verify(ctx, raw)
}

// Verify checks the token signature, issuer, and token-use claim.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (IdentityClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
	)

	claims := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		set, err := v.keys.Keys(ctx)
		if err != nil {
			return nil, err
		}
		key := findKey(set, kid)
		if key == nil {
			// Kid miss usually means the IdP rotated keys.
			if set, err = v.keys.Refresh(ctx); err == nil {
				key = findKey(set, kid)
			}
		}
		if key == nil {
			return nil, fmt.Errorf("signing key not found")
		}
		return key.Key, nil
	})
	if err != nil {
		return IdentityClaims{}, flowErr(KindInvalidToken, http.StatusUnauthorized, "token verification failed", err)
	}
	if !tok.Valid {
		return IdentityClaims{}, flowErr(KindInvalidToken, http.StatusUnauthorized, "token invalid", nil)
	}

	if iss, _ := claims["iss"].(string); iss != v.issuer {
		return IdentityClaims{}, flowErr(KindInvalidToken, http.StatusUnauthorized, "issuer mismatch", nil)
	}

	// The guard only fires when the claim is present; a token lacking
	// token_use entirely passes through. Preserved as an observed contract.
	if use, ok := claims["token_use"].(string); ok && use != "id" {
		return IdentityClaims{}, flowErr(KindWrongTokenUse, http.StatusUnauthorized, "not an identity token", nil)
	}

	return projectClaims(claims)
}

func projectClaims(mc jwt.MapClaims) (IdentityClaims, error) {
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return IdentityClaims{}, flowErr(KindInvalidToken, http.StatusUnauthorized, "sub missing", nil)
	}

	out := IdentityClaims{Subject: sub}
	if email, ok := mc["email"].(string); ok && email != "" {
		out.Email = &email
	}
	if given, ok := mc["given_name"].(string); ok && given != "" {
		out.GivenName = &given
	}
	if family, ok := mc["family_name"].(string); ok {
		out.FamilyName = family
	}
	return out, nil
}

func findKey(set jose.JSONWebKeySet, kid string) *jose.JSONWebKey {
	for _, k := range set.Keys {
		if kid == "" || k.KeyID == kid {
			key := k
			return &key
		}
	}
	return nil
}
