// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package auth provides authentication middleware and the identity type
// carried through request contexts.
package auth

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Identity represents an authenticated tenant.
// This is the primary type for representing authenticated principals.
type Identity struct {
	// Subject is the unique tenant identifier. It keys the credential
	// vault and the session cache, so it is always required.
	Subject string

	// Name is the human-readable name, when known.
	Name string

	// Email is the email address, when known.
	Email string

	// ClientID identifies the OAuth client the tenant connected through.
	ClientID string

	// Scopes are the scopes granted to the access token.
	Scopes []string

	// Claims contains the claim set behind this identity.
	// This preserves everything for authorization policies.
	Claims jwt.MapClaims

	// Token is the original access token (for pass-through scenarios).
	// This is redacted in String() and MarshalJSON() to prevent leakage.
	Token string

	// TokenType is the type of token (e.g., "Bearer").
	TokenType string
}

// HasScope reports whether the identity was granted the given scope.
func (i *Identity) HasScope(scope string) bool {
	if i == nil {
		return false
	}
	return slices.Contains(i.Scopes, scope)
}

// String returns a string representation of the Identity with sensitive fields redacted.
// This prevents accidental token leakage when the Identity is logged or printed.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}

	return fmt.Sprintf("Identity{Subject:%q}", i.Subject)
}

// MarshalJSON implements json.Marshaler to redact sensitive fields during JSON serialization.
// This prevents accidental token leakage in structured logs, API responses, or audit logs.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}

	type SafeIdentity struct {
		Subject   string        `json:"subject"`
		Name      string        `json:"name"`
		Email     string        `json:"email"`
		ClientID  string        `json:"clientId"`
		Scopes    []string      `json:"scopes"`
		Claims    jwt.MapClaims `json:"claims"`
		Token     string        `json:"token"`
		TokenType string        `json:"tokenType"`
	}

	token := i.Token
	if token != "" {
		token = "REDACTED"
	}

	return json.Marshal(&SafeIdentity{
		Subject:   i.Subject,
		Name:      i.Name,
		Email:     i.Email,
		ClientID:  i.ClientID,
		Scopes:    i.Scopes,
		Claims:    i.Claims,
		Token:     token,
		TokenType: i.TokenType,
	})
}
