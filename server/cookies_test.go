package server

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestSetCookieAttributes(t *testing.T) {
	codec := CookieCodec{Domain: "example.com"}
	cookie := codec.Set("access_token", "tok", 3600)

	if cookie.Name != "access_token" || cookie.Value != "tok" {
		t.Fatalf("unexpected cookie: %+v", cookie)
	}
	if !cookie.Secure || !cookie.HttpOnly {
		t.Fatalf("cookie must be Secure and HttpOnly: %+v", cookie)
	}
	if cookie.SameSite != http.SameSiteNoneMode {
		t.Fatalf("cookie must be SameSite=None, got %v", cookie.SameSite)
	}
	if cookie.Domain != "example.com" || cookie.Path != "/" {
		t.Fatalf("unexpected scoping: domain=%q path=%q", cookie.Domain, cookie.Path)
	}
	if cookie.MaxAge != 3600 {
		t.Fatalf("unexpected max-age: %d", cookie.MaxAge)
	}

	header := cookie.String()
	for _, want := range []string{"Secure", "HttpOnly", "SameSite=None", "Max-Age=3600"} {
		if !strings.Contains(header, want) {
			t.Fatalf("Set-Cookie %q missing %q", header, want)
		}
	}
}

func TestClearCookieKeepsAttributes(t *testing.T) {
	codec := CookieCodec{Domain: "example.com"}
	cookie := codec.Clear("id_token")

	if cookie.MaxAge >= 0 {
		t.Fatalf("clear cookie must expire immediately, got max-age %d", cookie.MaxAge)
	}
	if cookie.Domain != "example.com" || cookie.Path != "/" || !cookie.Secure || !cookie.HttpOnly {
		t.Fatalf("clear cookie must keep the set attributes: %+v", cookie)
	}
}

func TestParseCookiesTolerant(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"joined", "a=1; b=2", map[string]string{"a": "1", "b": "2"}},
		{"empty", "", map[string]string{}},
		{"malformed fragments", "a=1; garbage; =nope; b=2;", map[string]string{"a": "1", "b": "2"}},
		{"quoted value", `a="x y"`, map[string]string{"a": "x y"}},
		{"value with equals", "a=b=c", map[string]string{"a": "b=c"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseCookies(tc.raw)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("cookie %q: got %q want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestJoinCookieSource(t *testing.T) {
	if got := JoinCookieSource("a=1; b=2", []string{"c=3"}); got != "a=1; b=2" {
		t.Fatalf("header shape must win, got %q", got)
	}
	if got := JoinCookieSource("", []string{"a=1", "b=2"}); got != "a=1; b=2" {
		t.Fatalf("list shape must join with '; ', got %q", got)
	}
	if got := JoinCookieSource("", nil); got != "" {
		t.Fatalf("empty source must normalize to empty string, got %q", got)
	}
}

func TestHandshakeRoundTrip(t *testing.T) {
	hs := HandshakeState{State: "s1", CodeVerifier: "v1"}
	raw := EncodeHandshake(hs)

	got, ok := DecodeHandshake(raw)
	if !ok || got != hs {
		t.Fatalf("direct round-trip failed: %+v (ok=%v)", got, ok)
	}

	// Intermediaries may percent-encode the JSON cookie value.
	got, ok = DecodeHandshake(url.QueryEscape(raw))
	if !ok || got != hs {
		t.Fatalf("percent-encoded round-trip failed: %+v (ok=%v)", got, ok)
	}
}

func TestDecodeHandshakeDegradesToAbsent(t *testing.T) {
	for _, raw := range []string{"", "not json", "%zz", `{"state":`} {
		if _, ok := DecodeHandshake(raw); ok {
			t.Fatalf("expected %q to decode as absent", raw)
		}
	}
}
