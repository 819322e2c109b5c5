// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"fmt"
	"net/url"
	"time"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
)

// Token lifetime defaults. Authorization codes are short-lived single-use
// artifacts; access tokens are opaque and verified by this process only;
// refresh tokens cover a month of grocery shopping before a forced signin.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultAuthCodeTTL     = 10 * time.Minute
)

// DefaultScope is granted when a client requests no explicit scope.
const DefaultScope = "mcp:tools"

// Config is the pure configuration for the OAuth authorization server.
// All values must be fully resolved (no file paths, no env vars).
type Config struct {
	// Issuer is the issuer identifier for this authorization server, e.g.
	// "http://localhost:8787". It is advertised in the metadata documents
	// and used to derive endpoint URLs.
	Issuer string

	// SigninURL is where unauthenticated authorize requests are redirected
	// so the tenant can establish a vendor session first. When empty the
	// authorize endpoint answers 401 instead.
	SigninURL string

	// SupportedScopes are the scopes this server will grant.
	// Defaults to ["mcp:tools"].
	SupportedScopes []string

	// ResourceURL is the canonical identifier of the MCP resource this
	// server protects, used for RFC 8707 resource indicator matching.
	ResourceURL string

	// EnforceResourceMatch requires every authorization to carry a resource
	// indicator exactly matching ResourceURL. When false, resource
	// indicators are optional but still pinned across the code, token and
	// refresh steps once provided.
	EnforceResourceMatch bool

	// AccessTokenTTL is the duration that access tokens are valid.
	// If zero, defaults to 1 hour.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the duration that refresh tokens are valid.
	// If zero, defaults to 30 days.
	RefreshTokenTTL time.Duration

	// AuthCodeTTL is the duration that authorization codes are valid.
	// If zero, defaults to 10 minutes.
	AuthCodeTTL time.Duration
}

// Validate checks that the Config is valid.
func (c *Config) Validate() error {
	logger.Debugw("validating authserver config", "issuer", c.Issuer)

	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	issuer, err := url.Parse(c.Issuer)
	if err != nil || issuer.Scheme == "" || issuer.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL, got %q", c.Issuer)
	}

	if c.SigninURL != "" {
		if _, err := url.Parse(c.SigninURL); err != nil {
			return fmt.Errorf("signin URL: %w", err)
		}
	}

	if c.EnforceResourceMatch && c.ResourceURL == "" {
		return fmt.Errorf("resource URL is required when resource matching is enforced")
	}

	logger.Debugw("authserver config validation passed",
		"issuer", c.Issuer,
		"scopes", c.SupportedScopes,
		"enforceResource", c.EnforceResourceMatch,
	)
	return nil
}

// applyDefaults applies default values to the config where not set.
func (c *Config) applyDefaults() {
	logger.Debug("applying default values to authserver config")

	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
		logger.Debugw("applied default access token lifespan", "duration", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
		logger.Debugw("applied default refresh token lifespan", "duration", c.RefreshTokenTTL)
	}
	if c.AuthCodeTTL == 0 {
		c.AuthCodeTTL = DefaultAuthCodeTTL
		logger.Debugw("applied default auth code lifespan", "duration", c.AuthCodeTTL)
	}
	if len(c.SupportedScopes) == 0 {
		c.SupportedScopes = []string{DefaultScope}
	}
}
