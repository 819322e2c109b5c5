// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package config materializes the gateway configuration from viper. The
// serve command binds its flags to the same keys; every key can also be set
// through the environment as HEBMCP_<KEY> with dashes mapped to underscores
// (e.g. HEBMCP_ENCRYPTION_KEY).
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/authserver"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/crypto"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/heb"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/sessions"
)

// envPrefix namespaces the gateway's environment variables.
const envPrefix = "HEBMCP"

// Viper keys. The serve command binds flags of the same names.
const (
	KeyHost            = "host"
	KeyPort            = "port"
	KeyDataDir         = "data-dir"
	KeyIssuer          = "issuer"
	KeySigninURL       = "signin-url"
	KeyEncryptionKey   = "encryption-key"
	KeyRequireEncrypt  = "require-encryption"
	KeyAccessTokenTTL  = "access-token-ttl"
	KeyRefreshTokenTTL = "refresh-token-ttl"
	KeyCodeTTL         = "code-ttl"
	KeySupportedScopes = "supported-scopes"
	KeySessionCacheTTL = "session-cache-ttl"
	KeyEnforceResource = "enforce-resource"
	KeyResourceURL     = "resource-url"
	KeyLocalMode       = "local"

	KeyHEBClientID     = "heb-client-id"
	KeyHEBAuthorizeURL = "heb-authorize-url"
	KeyHEBTokenURL     = "heb-token-url"
	KeyHEBRedirectURI  = "heb-redirect-uri"
	KeyHEBScopes       = "heb-scopes"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	// Host and Port form the listen address.
	Host string
	Port int

	// DataDir holds the client registry and the per-tenant credential vault.
	DataDir string

	// Issuer is the OAuth issuer identifier advertised in metadata.
	Issuer string

	// SigninURL receives unauthenticated authorize requests. Empty means the
	// authorize endpoint answers 401 instead of redirecting.
	SigninURL string

	// EncryptionKey protects the vault and registry at rest. Nil selects
	// plaintext-at-rest mode.
	EncryptionKey []byte

	// RequireEncryption rejects plaintext records instead of reading them as
	// a legacy format. Needs an encryption key.
	RequireEncryption bool

	// Token lifetimes for the gateway's own OAuth server.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CodeTTL         time.Duration

	// SupportedScopes are the scopes the gateway will grant.
	SupportedScopes []string

	// SessionCacheTTL bounds how long cached vendor sessions are served
	// without consulting the vault. Zero disables caching.
	SessionCacheTTL time.Duration

	// EnforceResourceMatch requires RFC 8707 resource indicators to match
	// ResourceURL exactly.
	EnforceResourceMatch bool
	ResourceURL          string

	// LocalMode disables bearer auth and resolves the tenant from the OS
	// user. Single-user desktop deployments only.
	LocalMode bool

	// HEB is the vendor OAuth block, nil when no vendor client is configured.
	HEB *heb.OAuthConfig
}

func setDefaults() {
	viper.SetDefault(KeyHost, "127.0.0.1")
	viper.SetDefault(KeyPort, 8787)
	viper.SetDefault(KeyDataDir, filepath.Join(xdg.DataHome, "hebmcp"))
	viper.SetDefault(KeyIssuer, "http://localhost:8787")
	viper.SetDefault(KeyAccessTokenTTL, int64(authserver.DefaultAccessTokenTTL/time.Second))
	viper.SetDefault(KeyRefreshTokenTTL, int64(authserver.DefaultRefreshTokenTTL/time.Second))
	viper.SetDefault(KeyCodeTTL, int64(authserver.DefaultAuthCodeTTL/time.Second))
	viper.SetDefault(KeySupportedScopes, authserver.DefaultScope)
	viper.SetDefault(KeySessionCacheTTL, int64(sessions.DefaultTTL/time.Millisecond))
}

// Load materializes a Config from viper. Flags bound by the caller take
// precedence over environment variables, which take precedence over defaults.
func Load() (*Config, error) {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	setDefaults()

	var key []byte
	if raw := viper.GetString(KeyEncryptionKey); raw != "" {
		parsed, err := crypto.ParseKey(raw)
		if err != nil {
			return nil, err
		}
		key = parsed
	}

	cacheTTL := time.Duration(viper.GetInt64(KeySessionCacheTTL)) * time.Millisecond
	if cacheTTL < 0 {
		// Negative values are almost certainly a unit mistake; fall back to
		// the default rather than silently disabling the cache.
		cacheTTL = sessions.DefaultTTL
	}

	cfg := &Config{
		Host:                 viper.GetString(KeyHost),
		Port:                 viper.GetInt(KeyPort),
		DataDir:              viper.GetString(KeyDataDir),
		Issuer:               viper.GetString(KeyIssuer),
		SigninURL:            viper.GetString(KeySigninURL),
		EncryptionKey:        key,
		RequireEncryption:    viper.GetBool(KeyRequireEncrypt),
		AccessTokenTTL:       time.Duration(viper.GetInt64(KeyAccessTokenTTL)) * time.Second,
		RefreshTokenTTL:      time.Duration(viper.GetInt64(KeyRefreshTokenTTL)) * time.Second,
		CodeTTL:              time.Duration(viper.GetInt64(KeyCodeTTL)) * time.Second,
		SupportedScopes:      SplitScopes(viper.GetString(KeySupportedScopes)),
		SessionCacheTTL:      cacheTTL,
		EnforceResourceMatch: viper.GetBool(KeyEnforceResource),
		ResourceURL:          viper.GetString(KeyResourceURL),
		LocalMode:            viper.GetBool(KeyLocalMode),
	}

	if clientID := viper.GetString(KeyHEBClientID); clientID != "" {
		cfg.HEB = &heb.OAuthConfig{
			ClientID:     clientID,
			AuthorizeURL: viper.GetString(KeyHEBAuthorizeURL),
			TokenURL:     viper.GetString(KeyHEBTokenURL),
			RedirectURI:  viper.GetString(KeyHEBRedirectURI),
			Scopes:       SplitScopes(viper.GetString(KeyHEBScopes)),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.NewConfigurationError(
			fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port), nil)
	}
	if c.DataDir == "" {
		return errors.NewConfigurationError("data directory is required", nil)
	}
	if c.AccessTokenTTL <= 0 {
		return errors.NewConfigurationError("access token TTL must be positive", nil)
	}
	if c.RefreshTokenTTL <= 0 {
		return errors.NewConfigurationError("refresh token TTL must be positive", nil)
	}
	if c.CodeTTL <= 0 {
		return errors.NewConfigurationError("authorization code TTL must be positive", nil)
	}
	if c.RequireEncryption && c.EncryptionKey == nil {
		return errors.NewConfigurationError(
			"an encryption key is required when encryption is required", nil)
	}
	if c.EnforceResourceMatch && c.ResourceURL == "" {
		return errors.NewConfigurationError(
			"resource URL is required when resource matching is enforced", nil)
	}
	if c.HEB != nil {
		if err := c.HEB.Validate(); err != nil {
			return errors.NewConfigurationError("vendor OAuth block is invalid", err)
		}
	}
	return nil
}

// Address returns the listen address in host:port form.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AuthServerConfig projects the gateway configuration into the authorization
// server's own config type.
func (c *Config) AuthServerConfig() *authserver.Config {
	return &authserver.Config{
		Issuer:               c.Issuer,
		SigninURL:            c.SigninURL,
		SupportedScopes:      c.SupportedScopes,
		ResourceURL:          c.ResourceURL,
		EnforceResourceMatch: c.EnforceResourceMatch,
		AccessTokenTTL:       c.AccessTokenTTL,
		RefreshTokenTTL:      c.RefreshTokenTTL,
		AuthCodeTTL:          c.CodeTTL,
	}
}

// SplitScopes parses a space or comma separated scope list.
func SplitScopes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
