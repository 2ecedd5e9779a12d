package server

import (
	"os"
	"path/filepath"
	"testing"
)

func setFlowEnv(t *testing.T) {
	t.Helper()
	for key, val := range map[string]string{
		"SESSIOND_IDP_DOMAIN":    "https://auth.example.com",
		"SESSIOND_CLIENT_ID":     "client-id",
		"SESSIOND_CLIENT_SECRET": "client-secret",
		"SESSIOND_REDIRECT_URI":  "https://api.example.com/auth/callback",
		"SESSIOND_REGION":        "eu-west-1",
		"SESSIOND_USER_POOL_ID":  "eu-west-1_abc123",
		"SESSIOND_FRONT_URL":     "https://app.example.com",
		"SESSIOND_COOKIE_DOMAIN": ".example.com",
	} {
		t.Setenv(key, val)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setFlowEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.IdP.ClientID != "client-id" {
		t.Fatalf("client id not applied: %q", cfg.IdP.ClientID)
	}
	wantIssuer := "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_abc123"
	if got := cfg.Issuer(); got != wantIssuer {
		t.Fatalf("issuer: got %q want %q", got, wantIssuer)
	}
	if got := cfg.JWKSURL(); got != wantIssuer+"/.well-known/jwks.json" {
		t.Fatalf("jwks url: got %q", got)
	}
	if got := cfg.PostLogoutRedirect(); got != "https://app.example.com" {
		t.Fatalf("logout redirect must fall back to front url, got %q", got)
	}
}

func TestLoadConfigMissingRequiredValue(t *testing.T) {
	setFlowEnv(t)
	t.Setenv("SESSIOND_CLIENT_SECRET", "")

	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected startup error for missing client secret")
	}
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	setFlowEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("idp:\n  client_id: from-file\nfrontend:\n  logout_redirect: https://app.example.com/bye\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.IdP.ClientID != "client-id" {
		t.Fatalf("environment must override file, got %q", cfg.IdP.ClientID)
	}
	if cfg.Frontend.LogoutRedirect != "https://app.example.com/bye" {
		t.Fatalf("file value lost: %q", cfg.Frontend.LogoutRedirect)
	}
	if got := cfg.PostLogoutRedirect(); got != "https://app.example.com/bye" {
		t.Fatalf("configured logout redirect must win, got %q", got)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	setFlowEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("nope: true\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected strict decoding to reject unknown keys")
	}
}

func TestValidateRequiresTLSDomainsInProduction(t *testing.T) {
	setFlowEnv(t)
	t.Setenv("SESSIOND_DEV_MODE", "false")

	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error without tls domains in production")
	}

	t.Setenv("SESSIOND_TLS_DOMAINS", "auth.example.com")
	if _, err := LoadConfig(""); err != nil {
		t.Fatalf("LoadConfig with tls domains: %v", err)
	}
}
