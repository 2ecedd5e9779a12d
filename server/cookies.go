package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Cookie names owned by the session layer.
const (
	cookieAccessToken  = "access_token"
	cookieIDToken      = "id_token"
	cookieRefreshToken = "refresh_token"
	cookieHandshake    = "auth_tmp"
)

// CookieCodec stamps the shared attributes onto every session cookie. The
// flows are cross-origin (front-end and auth host differ), so SameSite=None
// with Secure is non-negotiable.
type CookieCodec struct {
	Domain string
}

// Set builds a session cookie with the codec's attributes. maxAge is in
// seconds; values <= 0 produce a session-scoped cookie.
func (c CookieCodec) Set(name, value string, maxAge int) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = maxAge
	}
	return cookie
}

// Clear expires a cookie with otherwise identical attributes so clients on
// any path honour the deletion.
func (c CookieCodec) Clear(name string) *http.Cookie {
	cookie := c.Set(name, "", 0)
	cookie.MaxAge = -1
	return cookie
}

// JoinCookieSource normalizes the two inbound cookie shapes into one
// semicolon-joined header string: a populated Cookie header wins, otherwise
// the individual cookie strings are joined.
func JoinCookieSource(header string, cookies []string) string {
	if header != "" {
		return header
	}
	return strings.Join(cookies, "; ")
}

// ParseCookies splits a raw Cookie header into a name/value map. Malformed
// fragments are skipped rather than rejected; absent names are simply absent
// from the result.
func ParseCookies(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return out
}

// EncodeHandshake serializes the transient login state for the auth_tmp
// cookie value.
func EncodeHandshake(hs HandshakeState) string {
	b, _ := json.Marshal(hs)
	return string(b)
}

// DecodeHandshake recovers the handshake payload from a raw cookie value.
// Browsers and proxies may percent-encode the JSON, so a failed direct parse
// falls back to URL-decoding before a second parse. Both stages failing means
// the handshake is treated as absent, never as an error.
func DecodeHandshake(raw string) (HandshakeState, bool) {
	var hs HandshakeState
	if err := json.Unmarshal([]byte(raw), &hs); err == nil {
		return hs, true
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return HandshakeState{}, false
	}
	if err := json.Unmarshal([]byte(decoded), &hs); err != nil {
		return HandshakeState{}, false
	}
	return hs, true
}
