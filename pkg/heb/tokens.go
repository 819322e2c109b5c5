// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package heb

import (
	"time"
)

// tokenExpirationBuffer is the time buffer before actual expiration to consider a token expired.
// This accounts for clock skew and network latency.
const tokenExpirationBuffer = 30 * time.Second

// Tokens represents the tokens obtained from H-E-B's OAuth endpoint.
// This is the vendor's token space; it is persisted per tenant inside a
// StoredSession and is unrelated to the tokens the gateway itself issues.
type Tokens struct {
	// AccessToken is the vendor access token.
	AccessToken string `json:"accessToken"`

	// RefreshToken is the vendor refresh token (if provided).
	RefreshToken string `json:"refreshToken,omitempty"`

	// IDToken is the vendor ID token (if provided).
	IDToken string `json:"idToken,omitempty"`

	// ExpiresAt is when the access token expires. A zero value means the
	// expiry is unknown and the token is treated as never expiring.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// IsExpired returns true if the access token has expired or will expire
// within the buffer period. Returns true for nil receivers (treating nil
// tokens as expired).
func (t *Tokens) IsExpired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt reports expiry against an injected clock. The session cache uses
// this so freshness decisions stay deterministic under test.
func (t *Tokens) ExpiredAt(now time.Time) bool {
	if t == nil {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(tokenExpirationBuffer).After(t.ExpiresAt)
}
