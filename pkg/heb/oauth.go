// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package heb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
)

// maxResponseSize is the maximum allowed token response size to prevent DoS.
const maxResponseSize = 1024 * 1024 // 1MB

const pkceChallengeMethodS256 = "S256"

// OAuthConfig describes the vendor's OAuth endpoints and this gateway's
// registration with them.
type OAuthConfig struct {
	// ClientID is the client identifier registered with the vendor.
	ClientID string

	// ClientSecret is the client secret, empty for public clients.
	ClientSecret string

	// AuthorizeURL is the vendor's authorization endpoint.
	AuthorizeURL string

	// TokenURL is the vendor's token endpoint.
	TokenURL string

	// RedirectURI is where the vendor sends the user back after consent.
	RedirectURI string

	// Scopes are requested during authorization.
	Scopes []string
}

// Validate checks that the required endpoints are present.
func (c *OAuthConfig) Validate() error {
	if c.ClientID == "" {
		return errors.New("client id is required")
	}
	if c.AuthorizeURL == "" {
		return errors.New("authorize url is required")
	}
	if c.TokenURL == "" {
		return errors.New("token url is required")
	}
	return nil
}

// Compile-time interface compliance check.
var _ TokenSource = (*OAuthProvider)(nil)

// TokenSource exchanges and refreshes vendor tokens.
type TokenSource interface {
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*Tokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error)
}

// OAuthProvider drives the vendor's OAuth token endpoint. It performs no
// automatic retries; a failed call surfaces to the caller, which decides
// whether to re-prompt the user for re-linking.
type OAuthProvider struct {
	config     *OAuthConfig
	httpClient *http.Client
}

// OAuthProviderOption configures an OAuthProvider.
type OAuthProviderOption func(*OAuthProvider)

// WithOAuthHTTPClient sets a custom HTTP client.
func WithOAuthHTTPClient(client *http.Client) OAuthProviderOption {
	return func(p *OAuthProvider) {
		p.httpClient = client
	}
}

// NewOAuthProvider creates a vendor OAuth provider from explicit endpoints.
func NewOAuthProvider(config *OAuthConfig, opts ...OAuthProviderOption) (*OAuthProvider, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &OAuthProvider{
		config:     config,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}

	logger.Debugw("vendor OAuth provider created",
		"authorize_url", config.AuthorizeURL,
		"token_url", config.TokenURL,
		"client_id", config.ClientID,
	)

	return p, nil
}

// Config returns the provider configuration. Callers must not mutate it.
func (p *OAuthProvider) Config() *OAuthConfig {
	return p.config
}

// AuthorizationURL builds the URL to send the user to the vendor's consent
// page. The caller supplies the PKCE challenge and opaque state.
func (p *OAuthProvider) AuthorizationURL(state, codeChallenge string) (string, error) {
	if state == "" {
		return "", errors.New("state parameter is required")
	}

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURI},
		"state":         {state},
	}
	if len(p.config.Scopes) > 0 {
		params.Set("scope", strings.Join(p.config.Scopes, " "))
	}
	if codeChallenge != "" {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", pkceChallengeMethodS256)
	}

	return p.config.AuthorizeURL + "?" + params.Encode(), nil
}

// ExchangeCode exchanges an authorization code for vendor tokens.
// redirectURI overrides the configured redirect when non-empty; it must be
// the value used during authorization.
func (p *OAuthProvider) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*Tokens, error) {
	if code == "" {
		return nil, errors.New("authorization code is required")
	}
	if redirectURI == "" {
		redirectURI = p.config.RedirectURI
	}

	params := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
		"client_id":    {p.config.ClientID},
	}
	if p.config.ClientSecret != "" {
		params.Set("client_secret", p.config.ClientSecret)
	}
	if codeVerifier != "" {
		params.Set("code_verifier", codeVerifier)
	}

	tokens, err := p.tokenRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	logger.Infow("vendor code exchange successful",
		"has_refresh_token", tokens.RefreshToken != "",
		"expires_at", tokens.ExpiresAt.Format(time.RFC3339),
	)

	return tokens, nil
}

// RefreshTokens refreshes the vendor tokens.
func (p *OAuthProvider) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}

	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {p.config.ClientID},
	}
	if p.config.ClientSecret != "" {
		params.Set("client_secret", p.config.ClientSecret)
	}

	tokens, err := p.tokenRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	logger.Infow("vendor token refresh successful",
		"has_new_refresh_token", tokens.RefreshToken != "",
		"expires_at", tokens.ExpiresAt.Format(time.RFC3339),
	)

	return tokens, nil
}

// tokenRequest performs a form-encoded request against the vendor token
// endpoint.
func (p *OAuthProvider) tokenRequest(ctx context.Context, params url.Values) (*Tokens, error) {
	logger.Debugw("sending vendor token request",
		"token_url", p.config.TokenURL,
		"grant_type", params.Get("grant_type"),
	)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.config.TokenURL,
		strings.NewReader(params.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	return parseTokenResponse(body, resp.StatusCode)
}

// tokenResponse represents the response from the vendor token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// tokenErrorResponse represents an error response from the vendor token endpoint.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func parseTokenResponse(body []byte, statusCode int) (*Tokens, error) {
	if statusCode != http.StatusOK {
		var tokenError tokenErrorResponse
		if err := json.Unmarshal(body, &tokenError); err == nil && tokenError.Error != "" {
			// OAuth error responses are standardized and safe to surface.
			return nil, fmt.Errorf("token request failed: %s - %s", tokenError.Error, tokenError.ErrorDescription)
		}
		logger.Debugw("vendor token request failed",
			"status", statusCode,
			"body", string(body))
		return nil, fmt.Errorf("token request failed with status %d", statusCode)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}

	// token_type comparison is case-insensitive per RFC 6749 section 5.1.
	// The vendor omits it on some responses, so empty is tolerated.
	if tokenResp.TokenType != "" && !strings.EqualFold(tokenResp.TokenType, "bearer") {
		return nil, fmt.Errorf("unexpected token_type: expected \"Bearer\", got %q", tokenResp.TokenType)
	}

	expiresAt := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	if tokenResp.ExpiresIn == 0 {
		// Default to 1 hour if not specified
		expiresAt = time.Now().Add(time.Hour)
	}

	return &Tokens{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		IDToken:      tokenResp.IDToken,
		ExpiresAt:    expiresAt,
	}, nil
}
