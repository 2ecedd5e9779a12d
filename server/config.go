package server

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cookie lifetime defaults. The refresh window is fixed and independent of
// the access-token expiry reported by the IdP.
const (
	DefaultHandshakeTTL  = 5 * time.Minute
	DefaultRefreshWindow = 30 * 24 * time.Hour
)

// Config captures the full application configuration loaded from YAML and
// environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	IdP      IdPConfig      `yaml:"idp"`
	Frontend FrontendConfig `yaml:"frontend"`
}

// ServerConfig controls listener, TLS, and cookie scoping concerns.
type ServerConfig struct {
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	CookieDomain    string    `yaml:"cookie_domain"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour for production listeners.
type TLSConfig struct {
	Domains   []string `yaml:"domains"`
	Email     string   `yaml:"email"`
	CachePath string   `yaml:"cache_path"`
}

// IdPConfig describes the upstream identity provider. Domain is the hosted
// authorization/token host; Region and UserPoolID derive the issuer URL that
// signed identity tokens must carry.
type IdPConfig struct {
	Domain       string `yaml:"domain"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	Region       string `yaml:"region"`
	UserPoolID   string `yaml:"user_pool_id"`
}

// FrontendConfig locates the browser application the flows redirect back to.
type FrontendConfig struct {
	URL            string `yaml:"url"`
	LogoutRedirect string `yaml:"logout_redirect"`
}

// Issuer returns the IdP issuer URL derived from region and user pool.
func (c Config) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.IdP.Region, c.IdP.UserPoolID)
}

// JWKSURL returns the published signing-key endpoint for the issuer.
func (c Config) JWKSURL() string {
	return c.Issuer() + "/.well-known/jwks.json"
}

// PostLogoutRedirect resolves the logout landing URL, falling back to the
// front-end URL when none is configured.
func (c Config) PostLogoutRedirect() string {
	if c.Frontend.LogoutRedirect != "" {
		return c.Frontend.LogoutRedirect
	}
	return c.Frontend.URL
}

// LoadConfig reads the optional YAML config file and merges environment
// overrides. Validation failures here are startup-time errors, never
// per-request ones.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			TLS: TLSConfig{
				CachePath: ".secrets/tls",
			},
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"SESSIOND_DEV_LISTEN_ADDR":   func(v string) { cfg.Server.DevListenAddr = v },
		"SESSIOND_HTTP_LISTEN_ADDR":  func(v string) { cfg.Server.HTTPListenAddr = v },
		"SESSIOND_HTTPS_LISTEN_ADDR": func(v string) { cfg.Server.HTTPSListenAddr = v },
		"SESSIOND_DEV_MODE":          func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"SESSIOND_COOKIE_DOMAIN":     func(v string) { cfg.Server.CookieDomain = v },
		"SESSIOND_TLS_DOMAINS":       func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"SESSIOND_TLS_EMAIL":         func(v string) { cfg.Server.TLS.Email = v },
		"SESSIOND_IDP_DOMAIN":        func(v string) { cfg.IdP.Domain = v },
		"SESSIOND_CLIENT_ID":         func(v string) { cfg.IdP.ClientID = v },
		"SESSIOND_CLIENT_SECRET":     func(v string) { cfg.IdP.ClientSecret = v },
		"SESSIOND_REDIRECT_URI":      func(v string) { cfg.IdP.RedirectURI = v },
		"SESSIOND_REGION":            func(v string) { cfg.IdP.Region = v },
		"SESSIOND_USER_POOL_ID":      func(v string) { cfg.IdP.UserPoolID = v },
		"SESSIOND_FRONT_URL":         func(v string) { cfg.Frontend.URL = v },
		"SESSIOND_LOGOUT_REDIRECT":   func(v string) { cfg.Frontend.LogoutRedirect = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

// Validate performs startup sanity checks on the config.
func (c Config) Validate() error {
	required := []struct {
		field, value string
	}{
		{"idp.domain", c.IdP.Domain},
		{"idp.client_id", c.IdP.ClientID},
		{"idp.client_secret", c.IdP.ClientSecret},
		{"idp.redirect_uri", c.IdP.RedirectURI},
		{"idp.region", c.IdP.Region},
		{"idp.user_pool_id", c.IdP.UserPoolID},
		{"frontend.url", c.Frontend.URL},
		{"server.cookie_domain", c.Server.CookieDomain},
	}
	for _, req := range required {
		if strings.TrimSpace(req.value) == "" {
			return fmt.Errorf("%s is required", req.field)
		}
	}

	for _, field := range []struct {
		name, value string
	}{
		{"idp.domain", c.IdP.Domain},
		{"idp.redirect_uri", c.IdP.RedirectURI},
		{"frontend.url", c.Frontend.URL},
	} {
		if !strings.HasPrefix(field.value, "http://") && !strings.HasPrefix(field.value, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got: %s", field.name, field.value)
		}
	}

	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		return errors.New("server.tls.domains must be provided in production")
	}

	return nil
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
