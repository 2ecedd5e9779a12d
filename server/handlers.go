package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config   Config
	Logger   *slog.Logger
	Issuer   *SessionIssuer
	Verifier *Verifier
}

// NewApp wires together the application state from configuration.
func NewApp(cfg Config, logger *slog.Logger) *App {
	tokens := NewTokenClient(cfg, nil, logger)
	keys := NewRemoteKeySource(cfg.JWKSURL(), nil, 0)
	verifier := NewVerifier(cfg.Issuer(), keys, logger)
	issuer := NewSessionIssuer(cfg, tokens, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Issuer:   issuer,
		Verifier: verifier,
	}
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	tr, err := a.Issuer.Login()
	if err != nil {
		// Entropy-source failure; nothing sensible to recover.
		a.Logger.Error("login handshake", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	a.applyTransition(w, r, tr)
}

func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tr, err := a.Issuer.Callback(r.Context(), q.Get("code"), q.Get("state"), cookieHeader(r))
	if err != nil {
		a.writeFlowError(w, r, err)
		return
	}
	a.applyTransition(w, r, tr)
}

func (a *App) handleRefresh(w http.ResponseWriter, r *http.Request) {
	tr, err := a.Issuer.Refresh(r.Context(), cookieHeader(r))
	if err != nil {
		a.writeFlowError(w, r, err)
		return
	}
	setCookies(w, tr.Cookies)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.applyTransition(w, r, a.Issuer.Logout())
}

func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, err := a.Verifier.ResolveIdentity(r.Context(), cookieHeader(r))
	if err != nil {
		a.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) applyTransition(w http.ResponseWriter, r *http.Request, tr Transition) {
	setCookies(w, tr.Cookies)
	http.Redirect(w, r, tr.RedirectURL, http.StatusFound)
}

// writeFlowError maps an expected flow failure to its status and machine
// kind. Anything outside the taxonomy is a genuine 500.
func (a *App) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *FlowError
	if errors.As(err, &fe) {
		a.Logger.Warn("flow error",
			"request_id", RequestIDFromContext(r.Context()),
			"kind", string(fe.Kind),
			"status", fe.Status,
			"details", fe.Details,
		)
		writeJSON(w, fe.Status, map[string]string{"error": string(fe.Kind), "details": fe.Details})
		return
	}
	a.Logger.Error("unexpected error", "request_id", RequestIDFromContext(r.Context()), "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// cookieHeader normalizes the inbound cookie source: requests may carry one
// joined Cookie header or several individual ones.
func cookieHeader(r *http.Request) string {
	return JoinCookieSource("", r.Header.Values("Cookie"))
}

func setCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
