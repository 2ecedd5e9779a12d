package server

import (
	"fmt"
	"net/http"
)

// Kind identifies an expected failure of the auth flow. Every Kind maps to a
// fixed HTTP status; anything outside this taxonomy is a genuine 500.
type Kind string

const (
	KindInvalidCallback     Kind = "invalid_callback"
	KindStateMismatch       Kind = "state_mismatch"
	KindTokenExchangeFailed Kind = "token_exchange_failed"
	KindMissingRefreshToken Kind = "missing_refresh_token"
	KindRefreshFailed       Kind = "refresh_failed"
	KindMissingToken        Kind = "missing_token"
	KindInvalidToken        Kind = "invalid_token"
	KindWrongTokenUse       Kind = "wrong_token_use"
)

// FlowError is a structured failure surfaced across the request boundary with
// an HTTP status and a machine-readable kind. Details carries upstream
// diagnostics (e.g. the IdP error body) and is safe to return to the caller.
type FlowError struct {
	Kind    Kind
	Status  int
	Details string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Details)
	}
	return string(e.Kind)
}

func (e *FlowError) Unwrap() error { return e.Err }

func flowErr(kind Kind, status int, details string, err error) *FlowError {
	return &FlowError{Kind: kind, Status: status, Details: details, Err: err}
}

func invalidCallback(details string) *FlowError {
	return flowErr(KindInvalidCallback, http.StatusBadRequest, details, nil)
}

func stateMismatch(details string) *FlowError {
	return flowErr(KindStateMismatch, http.StatusBadRequest, details, nil)
}
