// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"time"
)

// The records below are the gateway's own token space, minted and verified
// by this process only. They are deliberately distinct types from the
// vendor tokens in pkg/heb: a gateway access token never reaches the
// vendor, and a vendor token never reaches an MCP client.

// authorizationCode is a pending single-use grant produced by Authorize.
type authorizationCode struct {
	code                string
	clientID            string
	userID              string
	redirectURI         string
	codeChallenge       string
	codeChallengeMethod string
	scopes              []string
	resource            string
	expiresAt           time.Time
}

// accessToken is an opaque bearer credential for the MCP surface.
type accessToken struct {
	token     string
	clientID  string
	userID    string
	scopes    []string
	resource  string
	expiresAt time.Time
}

// refreshToken is the long-lived rotation credential paired with an access
// token. Redemption consumes it and mints a replacement.
type refreshToken struct {
	token     string
	clientID  string
	userID    string
	scopes    []string
	resource  string
	expiresAt time.Time
}

// TokenPair is a successful token endpoint response per RFC 6749 Section 5.1.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthInfo is the identity bound to a verified access token.
type AuthInfo struct {
	// UserID is the tenant the token acts for.
	UserID string

	// ClientID is the OAuth client the token was issued to.
	ClientID string

	// Scopes are the granted scopes.
	Scopes []string

	// Resource is the resource indicator the token is bound to, if any.
	Resource string

	// ExpiresAt is when the token stops verifying.
	ExpiresAt time.Time
}

// HasScope reports whether the granted scopes include scope.
func (a *AuthInfo) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
