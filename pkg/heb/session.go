// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package heb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// AuthMode identifies how a session authenticates against the vendor.
type AuthMode string

const (
	// AuthModeCookie authenticates with browser session cookies.
	AuthModeCookie AuthMode = "cookie"

	// AuthModeBearer authenticates with vendor OAuth tokens.
	AuthModeBearer AuthMode = "bearer"
)

// Cookies holds vendor browser cookies by name (e.g. "sat", "reese84").
type Cookies map[string]string

// Equal reports whether c and other carry exactly the same cookies.
func (c Cookies) Equal(other Cookies) bool {
	if len(c) != len(other) {
		return false
	}
	for name, value := range c {
		if other[name] != value {
			return false
		}
	}
	return true
}

// Header renders the cookies as a Cookie header value. Names are sorted so
// the output is deterministic.
func (c Cookies) Header() string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+c[name])
	}
	return strings.Join(pairs, "; ")
}

// Clone returns a defensive copy so cache entries never alias caller maps.
func (c Cookies) Clone() Cookies {
	if c == nil {
		return nil
	}
	out := make(Cookies, len(c))
	for name, value := range c {
		out[name] = value
	}
	return out
}

// StoredSession is the per-tenant record persisted by the credential vault.
// Either Cookies or Tokens (or both) are set depending on AuthMode.
type StoredSession struct {
	Cookies   Cookies   `json:"cookies,omitempty"`
	Tokens    *Tokens   `json:"tokens,omitempty"`
	AuthMode  AuthMode  `json:"authMode"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RefreshFunc refreshes a bearer session's vendor tokens and writes the
// result back through the vault. It is bound to a single tenant.
type RefreshFunc func(ctx context.Context) error

// Session is the runtime form of a StoredSession: the same credential
// material plus a refresh capability for bearer mode. A Session is owned by
// the cache entry of its tenant while cached.
type Session struct {
	Cookies   Cookies
	Tokens    *Tokens
	AuthMode  AuthMode
	UpdatedAt time.Time

	refresh RefreshFunc
}

// NewCookieSession builds a cookie-mode session.
func NewCookieSession(cookies Cookies) *Session {
	return &Session{
		Cookies:   cookies.Clone(),
		AuthMode:  AuthModeCookie,
		UpdatedAt: time.Now(),
	}
}

// NewBearerSession builds a bearer-mode session. Cookies may be nil; when
// present they ride along with the tokens (some vendor endpoints want both).
func NewBearerSession(tokens *Tokens, cookies Cookies) *Session {
	return &Session{
		Cookies:   cookies.Clone(),
		Tokens:    tokens,
		AuthMode:  AuthModeBearer,
		UpdatedAt: time.Now(),
	}
}

// SessionFromStored reconstructs a runtime session from a persisted record.
func SessionFromStored(rec *StoredSession) *Session {
	if rec == nil {
		return nil
	}
	return &Session{
		Cookies:   rec.Cookies.Clone(),
		Tokens:    rec.Tokens,
		AuthMode:  rec.AuthMode,
		UpdatedAt: rec.UpdatedAt,
	}
}

// Stored converts the session back to its persisted form.
func (s *Session) Stored() *StoredSession {
	return &StoredSession{
		Cookies:   s.Cookies.Clone(),
		Tokens:    s.Tokens,
		AuthMode:  s.AuthMode,
		UpdatedAt: s.UpdatedAt,
	}
}

// SetRefreshFunc attaches the tenant-bound refresh capability.
func (s *Session) SetRefreshFunc(fn RefreshFunc) {
	s.refresh = fn
}

// CanRefresh reports whether the session is bearer mode with a refresh token
// and an attached refresh capability.
func (s *Session) CanRefresh() bool {
	return s.AuthMode == AuthModeBearer &&
		s.Tokens != nil && s.Tokens.RefreshToken != "" &&
		s.refresh != nil
}

// Refresh invokes the attached refresh capability.
func (s *Session) Refresh(ctx context.Context) error {
	if s.refresh == nil {
		return errors.New("session has no refresh capability")
	}
	return s.refresh(ctx)
}

// IsExpired reports whether the session's vendor credential has expired.
// Cookie sessions carry no expiry and never report expired here; staleness
// for them is bounded by the session cache TTL alone.
func (s *Session) IsExpired() bool {
	return s.ExpiredAt(time.Now())
}

// ExpiredAt is IsExpired against an injected clock.
func (s *Session) ExpiredAt(now time.Time) bool {
	if s.AuthMode != AuthModeBearer {
		return false
	}
	return s.Tokens.ExpiredAt(now)
}
