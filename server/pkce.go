package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const randTokenBytes = 32

// GenerateChallengePair produces a PKCE verifier and its S256 challenge
// (RFC 7636). The verifier is 32 random bytes base64url-encoded without
// padding; the challenge is the unpadded base64url SHA-256 of the verifier.
func GenerateChallengePair() (verifier, challenge string, err error) {
	verifier, err = randomToken()
	if err != nil {
		return "", "", fmt.Errorf("generate code verifier: %w", err)
	}
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// GenerateState produces an opaque random token binding the authorize
// redirect to its callback. It is never derived from the code verifier.
func GenerateState() (string, error) {
	state, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return state, nil
}

func randomToken() (string, error) {
	buf := make([]byte, randTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
