// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package authserver implements the OAuth 2.0 authorization server fronting
// the MCP gateway. It mints and verifies the gateway's own opaque tokens;
// vendor credentials never pass through here. All state is process-local:
// authorization codes, access tokens and refresh tokens live in maps on the
// Server and are gone after a restart, which at worst forces clients
// through the authorization flow again.
package authserver

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/clients"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
)

const (
	responseTypeCode        = "code"
	grantTypeAuthorization  = "authorization_code"
	grantTypeRefresh        = "refresh_token"
	codeChallengeMethodS256 = "S256"
	tokenTypeBearer         = "Bearer"
)

// Server is the authorization server instance. Each token class lives in
// its own map behind its own mutex so the three lifecycles never contend
// with each other.
type Server struct {
	config   *Config
	registry clients.Registry
	now      func() time.Time

	codesMu sync.Mutex
	codes   map[string]*authorizationCode

	accessMu sync.Mutex
	access   map[string]*accessToken

	refreshMu sync.Mutex
	refresh   map[string]*refreshToken
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the time source used for minting and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates an authorization server backed by the given client
// registry. The config is validated and defaulted here; a bad config is a
// startup failure, not a per-request one.
func NewServer(cfg *Config, registry clients.Registry, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.NewConfigurationError("authserver config is required", nil)
	}
	if registry == nil {
		return nil, errors.NewConfigurationError("client registry is required", nil)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigurationError("invalid authserver config", err)
	}

	s := &Server{
		config:   cfg,
		registry: registry,
		now:      time.Now,
		codes:    make(map[string]*authorizationCode),
		access:   make(map[string]*accessToken),
		refresh:  make(map[string]*refreshToken),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the server's resolved configuration.
func (s *Server) Config() *Config {
	return s.config
}

// AuthorizeRequest carries the parameters of an authorization request.
// UserID identifies the already-authenticated tenant; empty means nobody is
// signed in yet.
type AuthorizeRequest struct {
	UserID              string
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Resource            string
}

// AuthorizeResult is the outcome of a valid authorization request: either
// the signin redirect for an unauthenticated tenant, or the client redirect
// carrying a fresh authorization code.
type AuthorizeResult struct {
	// RedirectURL is where to send the user agent. Empty together with
	// SigninRequired when no signin URL is configured; the transport then
	// answers 401.
	RedirectURL string

	// SigninRequired is true when the tenant must establish a session first.
	SigninRequired bool

	// Code is the minted authorization code, empty on signin redirects.
	Code string
}

// Authorize validates an authorization request and mints a single-use code
// bound to the client, tenant, redirect URI, PKCE challenge, scopes and
// resource. Client identity and redirect URI are checked before anything
// else so no error can ever be delivered to an unregistered redirect.
func (s *Server) Authorize(req *AuthorizeRequest) (*AuthorizeResult, error) {
	client, err := s.registry.GetClient(req.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.NewInvalidClientError(fmt.Sprintf("unknown client %q", req.ClientID), nil)
	}
	if req.RedirectURI == "" || !client.MatchRedirectURI(req.RedirectURI) {
		return nil, errors.NewInvalidClientError("redirect_uri does not match a registered redirect URI", nil)
	}
	redirectURI := client.GetMatchingRedirectURI(req.RedirectURI)

	if req.ResponseType != responseTypeCode {
		return nil, errors.NewInvalidGrantError(
			fmt.Sprintf("unsupported response_type %q", req.ResponseType), nil)
	}
	if !client.AllowsResponseType(responseTypeCode) {
		return nil, errors.NewInvalidClientError("client is not registered for the code response type", nil)
	}

	if req.CodeChallenge == "" {
		return nil, errors.NewInvalidGrantError("code_challenge is required", nil)
	}
	if req.CodeChallengeMethod != codeChallengeMethodS256 {
		return nil, errors.NewInvalidGrantError(
			fmt.Sprintf("unsupported code_challenge_method %q, only S256 is supported", req.CodeChallengeMethod), nil)
	}

	scopes, err := s.resolveScopes(req.Scope)
	if err != nil {
		return nil, err
	}

	if err := s.checkResource(req.Resource); err != nil {
		return nil, err
	}

	// Only now, with the client and redirect URI vetted, decide whether the
	// tenant still has to sign in.
	if req.UserID == "" {
		return &AuthorizeResult{
			RedirectURL:    s.config.SigninURL,
			SigninRequired: true,
		}, nil
	}

	now := s.now()
	code := &authorizationCode{
		code:                uuid.NewString(),
		clientID:            client.ClientID,
		userID:              req.UserID,
		redirectURI:         redirectURI,
		codeChallenge:       req.CodeChallenge,
		codeChallengeMethod: req.CodeChallengeMethod,
		scopes:              scopes,
		resource:            req.Resource,
		expiresAt:           now.Add(s.config.AuthCodeTTL),
	}

	s.codesMu.Lock()
	for k, v := range s.codes {
		if now.After(v.expiresAt) {
			delete(s.codes, k)
		}
	}
	s.codes[code.code] = code
	s.codesMu.Unlock()

	logger.Infow("issued authorization code",
		"client_id", client.ClientID,
		"user_id", req.UserID,
		"scopes", scopes,
	)

	location, err := url.Parse(redirectURI)
	if err != nil {
		return nil, errors.NewInvalidClientError("registered redirect URI is not a valid URL", err)
	}
	q := location.Query()
	q.Set("code", code.code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	location.RawQuery = q.Encode()

	return &AuthorizeResult{
		RedirectURL: location.String(),
		Code:        code.code,
	}, nil
}

// ChallengeForAuthorizationCode returns the PKCE challenge stored with the
// code so the transport can verify the verifier before redeeming it. The
// code is left in place; redemption happens in ExchangeAuthorizationCode.
func (s *Server) ChallengeForAuthorizationCode(clientID, code string) (string, error) {
	s.codesMu.Lock()
	defer s.codesMu.Unlock()

	rec, ok := s.codes[code]
	if !ok {
		return "", errors.NewInvalidGrantError("authorization code is invalid or expired", nil)
	}
	if s.now().After(rec.expiresAt) {
		delete(s.codes, code)
		return "", errors.NewInvalidGrantError("authorization code is invalid or expired", nil)
	}
	if rec.clientID != clientID {
		return "", errors.NewInvalidGrantError("authorization code was issued to a different client", nil)
	}
	return rec.codeChallenge, nil
}

// ExchangeCodeRequest carries the parameters of an authorization_code grant.
type ExchangeCodeRequest struct {
	ClientID    string
	Code        string
	RedirectURI string
	Resource    string
}

// ExchangeAuthorizationCode redeems a single-use authorization code for an
// access/refresh token pair. The code is consumed on success; a second
// redemption fails no matter how fast it follows the first.
func (s *Server) ExchangeAuthorizationCode(req *ExchangeCodeRequest) (*TokenPair, error) {
	s.codesMu.Lock()
	rec, ok := s.codes[req.Code]
	if !ok {
		s.codesMu.Unlock()
		return nil, errors.NewInvalidGrantError("authorization code is invalid or expired", nil)
	}
	if s.now().After(rec.expiresAt) {
		delete(s.codes, req.Code)
		s.codesMu.Unlock()
		return nil, errors.NewInvalidGrantError("authorization code is invalid or expired", nil)
	}
	if rec.clientID != req.ClientID {
		s.codesMu.Unlock()
		return nil, errors.NewInvalidGrantError("authorization code was issued to a different client", nil)
	}
	if rec.redirectURI != req.RedirectURI {
		s.codesMu.Unlock()
		return nil, errors.NewInvalidGrantError("redirect_uri does not match the authorization request", nil)
	}
	if req.Resource != rec.resource {
		s.codesMu.Unlock()
		return nil, errors.NewInvalidTargetError("resource does not match the authorization request", nil)
	}
	delete(s.codes, req.Code)
	s.codesMu.Unlock()

	pair := s.mintPair(rec.clientID, rec.userID, rec.scopes, rec.resource)

	logger.Infow("exchanged authorization code",
		"client_id", rec.clientID,
		"user_id", rec.userID,
		"scopes", rec.scopes,
	)
	return pair, nil
}

// ExchangeRefreshRequest carries the parameters of a refresh_token grant.
// Scope may narrow the original grant; it can never widen it.
type ExchangeRefreshRequest struct {
	ClientID     string
	RefreshToken string
	Scope        string
	Resource     string
}

// ExchangeRefreshToken rotates a refresh token: the presented token is
// consumed and a fresh access/refresh pair is minted. Access tokens already
// issued stay valid until their own expiry.
func (s *Server) ExchangeRefreshToken(req *ExchangeRefreshRequest) (*TokenPair, error) {
	s.refreshMu.Lock()
	rec, ok := s.refresh[req.RefreshToken]
	if !ok {
		s.refreshMu.Unlock()
		return nil, errors.NewInvalidGrantError("refresh token is invalid or expired", nil)
	}
	if s.now().After(rec.expiresAt) {
		delete(s.refresh, req.RefreshToken)
		s.refreshMu.Unlock()
		return nil, errors.NewInvalidGrantError("refresh token is invalid or expired", nil)
	}
	if rec.clientID != req.ClientID {
		s.refreshMu.Unlock()
		return nil, errors.NewInvalidGrantError("refresh token was issued to a different client", nil)
	}

	scopes := rec.scopes
	if req.Scope != "" {
		requested := parseScope(req.Scope)
		for _, scope := range requested {
			if !containsScope(rec.scopes, scope) {
				s.refreshMu.Unlock()
				return nil, errors.NewInvalidGrantError(
					fmt.Sprintf("requested scope %q exceeds the original grant", scope), nil)
			}
		}
		scopes = requested
	}

	if req.Resource != "" && req.Resource != rec.resource {
		s.refreshMu.Unlock()
		return nil, errors.NewInvalidTargetError("resource does not match the original grant", nil)
	}

	delete(s.refresh, req.RefreshToken)
	s.refreshMu.Unlock()

	pair := s.mintPair(rec.clientID, rec.userID, scopes, rec.resource)

	logger.Infow("rotated refresh token",
		"client_id", rec.clientID,
		"user_id", rec.userID,
		"scopes", scopes,
	)
	return pair, nil
}

// VerifyAccessToken authenticates a bearer token presented to the MCP
// surface and returns the identity bound to it.
func (s *Server) VerifyAccessToken(token string) (*AuthInfo, error) {
	if token == "" {
		return nil, errors.NewInvalidTokenError("no access token provided", nil)
	}

	s.accessMu.Lock()
	defer s.accessMu.Unlock()

	rec, ok := s.access[token]
	if !ok {
		return nil, errors.NewInvalidTokenError("access token is invalid", nil)
	}
	if s.now().After(rec.expiresAt) {
		delete(s.access, token)
		return nil, errors.NewInvalidTokenError("access token has expired", nil)
	}
	if s.config.EnforceResourceMatch && !resourceAllowed(rec.resource, s.config.ResourceURL) {
		return nil, errors.NewInvalidTokenError("access token is bound to a different resource", nil)
	}

	return &AuthInfo{
		UserID:    rec.userID,
		ClientID:  rec.clientID,
		Scopes:    append([]string(nil), rec.scopes...),
		Resource:  rec.resource,
		ExpiresAt: rec.expiresAt,
	}, nil
}

// RevokeToken invalidates a refresh or access token per RFC 7009. Unknown
// tokens are a silent no-op so callers cannot probe the token space, and a
// token issued to a different client stays live for its owner.
func (s *Server) RevokeToken(clientID, token string) error {
	if token == "" {
		return nil
	}

	s.refreshMu.Lock()
	if rec, ok := s.refresh[token]; ok {
		if rec.clientID == clientID {
			delete(s.refresh, token)
			logger.Debugw("revoked refresh token", "client_id", clientID)
		}
		s.refreshMu.Unlock()
		return nil
	}
	s.refreshMu.Unlock()

	s.accessMu.Lock()
	if rec, ok := s.access[token]; ok && rec.clientID == clientID {
		delete(s.access, token)
		logger.Debugw("revoked access token", "client_id", clientID)
	}
	s.accessMu.Unlock()
	return nil
}

// mintPair issues a fresh access/refresh token pair. Expired leftovers are
// swept opportunistically while the respective lock is held.
func (s *Server) mintPair(clientID, userID string, scopes []string, resource string) *TokenPair {
	now := s.now()

	at := &accessToken{
		token:     uuid.NewString(),
		clientID:  clientID,
		userID:    userID,
		scopes:    scopes,
		resource:  resource,
		expiresAt: now.Add(s.config.AccessTokenTTL),
	}
	rt := &refreshToken{
		token:     uuid.NewString(),
		clientID:  clientID,
		userID:    userID,
		scopes:    scopes,
		resource:  resource,
		expiresAt: now.Add(s.config.RefreshTokenTTL),
	}

	s.accessMu.Lock()
	for k, v := range s.access {
		if now.After(v.expiresAt) {
			delete(s.access, k)
		}
	}
	s.access[at.token] = at
	s.accessMu.Unlock()

	s.refreshMu.Lock()
	for k, v := range s.refresh {
		if now.After(v.expiresAt) {
			delete(s.refresh, k)
		}
	}
	s.refresh[rt.token] = rt
	s.refreshMu.Unlock()

	return &TokenPair{
		AccessToken:  at.token,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.config.AccessTokenTTL / time.Second),
		RefreshToken: rt.token,
		Scope:        strings.Join(scopes, " "),
	}
}

// resolveScopes parses and validates the requested scope string; an empty
// request falls back to the server's full supported set.
func (s *Server) resolveScopes(scope string) ([]string, error) {
	requested := parseScope(scope)
	if len(requested) == 0 {
		return append([]string(nil), s.config.SupportedScopes...), nil
	}
	for _, sc := range requested {
		if !containsScope(s.config.SupportedScopes, sc) {
			return nil, errors.NewInvalidGrantError(fmt.Sprintf("unsupported scope %q", sc), nil)
		}
	}
	return requested, nil
}

// checkResource applies the RFC 8707 policy at authorization time.
func (s *Server) checkResource(resource string) error {
	if s.config.EnforceResourceMatch {
		if resource == "" {
			return errors.NewInvalidTargetError("resource indicator is required", nil)
		}
		if !resourceAllowed(resource, s.config.ResourceURL) {
			return errors.NewInvalidTargetError(
				fmt.Sprintf("resource %q does not identify this server", resource), nil)
		}
		return nil
	}
	// Not enforced: any resource (or none) is accepted here and pinned for
	// the rest of the grant's lifecycle.
	return nil
}

// resourceAllowed implements the RFC 8707 comparison: an exact match against
// the configured resource URL, or a resource that extends it with additional
// path segments (e.g. ".../mcp/tools" under ".../mcp").
func resourceAllowed(resource, configured string) bool {
	if resource == configured {
		return true
	}
	prefix := configured
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(resource, prefix)
}

func parseScope(scope string) []string {
	return strings.Fields(scope)
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
