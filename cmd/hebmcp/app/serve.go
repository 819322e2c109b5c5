// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/api"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/authserver"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/clients"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/config"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/heb"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/sessions"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/vault"
)

// File names under the data directory.
const (
	registryFileName = "clients.json"
	vaultDirName     = "users"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hebmcp gateway",
		Long: `Start the gateway: the OAuth authorization server for MCP clients plus the
per-tenant H-E-B credential API. Every flag can also be set through the
environment as HEBMCP_<FLAG> with dashes mapped to underscores
(e.g. HEBMCP_ENCRYPTION_KEY).`,
		RunE: runServe,
	}

	flags := cmd.Flags()
	flags.String(config.KeyHost, "127.0.0.1", "Host to listen on")
	flags.Int(config.KeyPort, 8787, "Port to listen on")
	flags.String("socket", "", "UNIX socket path to listen on instead of TCP")
	flags.String(config.KeyDataDir, "", "Directory for the client registry and credential vault (default: XDG data dir)")
	flags.String(config.KeyIssuer, "http://localhost:8787", "OAuth issuer identifier advertised in metadata")
	flags.String(config.KeySigninURL, "", "Sign-in URL for unauthenticated authorize requests (empty answers 401)")
	flags.String(config.KeyEncryptionKey, "", "Base64 32-byte key for at-rest encryption (empty stores plaintext)")
	flags.Bool(config.KeyRequireEncrypt, false, "Reject plaintext records instead of reading them as a legacy format")
	flags.Int64(config.KeyAccessTokenTTL, 3600, "Access token lifetime in seconds")
	flags.Int64(config.KeyRefreshTokenTTL, 2592000, "Refresh token lifetime in seconds")
	flags.Int64(config.KeyCodeTTL, 600, "Authorization code lifetime in seconds")
	flags.String(config.KeySupportedScopes, "mcp:tools", "Scopes the gateway will grant (space or comma separated)")
	flags.Int64(config.KeySessionCacheTTL, 60000, "Session cache TTL in milliseconds (0 revalidates every lookup)")
	flags.Bool(config.KeyEnforceResource, false, "Require RFC 8707 resource indicators to match --resource-url")
	flags.String(config.KeyResourceURL, "", "Canonical URL of the protected MCP resource")
	flags.Bool(config.KeyLocalMode, false, "Disable bearer auth and resolve the tenant from the OS user")
	flags.String(config.KeyHEBClientID, "", "H-E-B OAuth client id (empty disables vendor OAuth endpoints)")
	flags.String(config.KeyHEBAuthorizeURL, "", "H-E-B OAuth authorization endpoint")
	flags.String(config.KeyHEBTokenURL, "", "H-E-B OAuth token endpoint")
	flags.String(config.KeyHEBRedirectURI, "", "H-E-B OAuth redirect URI")
	flags.String(config.KeyHEBScopes, "", "H-E-B OAuth scopes (space or comma separated)")

	flags.VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(f.Name, f); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", f.Name, err)
		}
	})

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if cfg.EncryptionKey == nil {
		logger.Warn("No encryption key configured; credentials are stored in plaintext")
	}

	registry, err := clients.NewFileRegistry(filepath.Join(cfg.DataDir, registryFileName), cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to create client registry: %w", err)
	}

	var vaultOpts []vault.StoreOption
	if cfg.RequireEncryption {
		vaultOpts = append(vaultOpts, vault.RequireEncrypted())
	}
	store, err := vault.NewStore(filepath.Join(cfg.DataDir, vaultDirName), cfg.EncryptionKey, vaultOpts...)
	if err != nil {
		return fmt.Errorf("failed to create credential vault: %w", err)
	}

	// The vendor OAuth provider is optional; without it, tenants link via
	// cookies only and the vendor OAuth endpoints report 404.
	var vendor *heb.OAuthProvider
	sessionOpts := []sessions.Option{sessions.WithTTL(cfg.SessionCacheTTL)}
	if cfg.HEB != nil {
		vendor, err = heb.NewOAuthProvider(cfg.HEB)
		if err != nil {
			return fmt.Errorf("failed to create vendor OAuth provider: %w", err)
		}
		sessionOpts = append(sessionOpts, sessions.WithRefresher(vendor))
		logger.Infof("Vendor OAuth enabled (client %s)", cfg.HEB.ClientID)
	} else {
		logger.Info("Vendor OAuth not configured; tenants link with cookies only")
	}

	manager := sessions.NewManager(store, sessionOpts...)

	srv, err := authserver.NewServer(cfg.AuthServerConfig(), registry)
	if err != nil {
		return fmt.Errorf("failed to create authorization server: %w", err)
	}

	address := cfg.Address()
	isUnixSocket := false
	if socket := viper.GetString("socket"); socket != "" {
		address = socket
		isUnixSocket = true
	}

	logger.Infof("Starting hebmcp gateway on %s (issuer %s)", address, cfg.Issuer)

	return api.Serve(ctx, address, isUnixSocket, api.Deps{
		AuthServer: srv,
		Sessions:   manager,
		Vendor:     vendor,
		LocalMode:  cfg.LocalMode,
	})
}
