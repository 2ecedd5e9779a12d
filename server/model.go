package server

// HandshakeState is the transient login state carried in the auth_tmp cookie.
// It is created when the authorize redirect is built and consumed exactly once
// by the matching callback.
type HandshakeState struct {
	State        string `json:"state"`
	CodeVerifier string `json:"codeVerifier"`
}

// TokenSet is the normalized response from the IdP token endpoint. It lives
// for the duration of one request and is only ever reflected into cookies.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// IdentityClaims is the minimal profile projected from a verified id_token.
// Email and GivenName are null when absent; FamilyName defaults to the empty
// string instead, matching the contract downstream consumers rely on.
type IdentityClaims struct {
	Subject    string  `json:"sub"`
	Email      *string `json:"email"`
	GivenName  *string `json:"given_name"`
	FamilyName string  `json:"family_name"`
}
