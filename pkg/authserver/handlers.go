// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
)

// maxRequestBody caps token and registration request bodies.
const maxRequestBody = 1 << 20 // 1MB

// UserCookieName is the cookie carrying the signed-in tenant id. The signin
// flow sets it after the tenant links a vendor session; the authorize
// endpoint only reads it.
const UserCookieName = "hebmcp_user"

// AuthorizeHandler handles GET /oauth/authorize requests. Tenants that have
// not signed in yet are bounced to the signin page with a return_to back to
// this request.
func (r *Router) AuthorizeHandler(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()

	userID := ""
	if cookie, err := req.Cookie(UserCookieName); err == nil {
		userID = cookie.Value
	}

	result, err := r.server.Authorize(&AuthorizeRequest{
		UserID:              userID,
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseType:        query.Get("response_type"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
		Resource:            query.Get("resource"),
	})
	if err != nil {
		logger.Warnw("authorization request rejected", "error", err.Error())
		writeOAuthError(w, err)
		return
	}

	if result.SigninRequired {
		if result.RedirectURL == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		signin, err := url.Parse(result.RedirectURL)
		if err != nil {
			writeOAuthError(w, errors.NewConfigurationError("signin URL is not a valid URL", err))
			return
		}
		q := signin.Query()
		q.Set("return_to", req.URL.RequestURI())
		signin.RawQuery = q.Encode()
		http.Redirect(w, req, signin.String(), http.StatusFound)
		return
	}

	http.Redirect(w, req, result.RedirectURL, http.StatusFound)
}

// TokenHandler handles POST /oauth/token requests for the
// authorization_code and refresh_token grants. PKCE verification happens
// here, at the transport boundary, so the server core never sees verifiers.
func (r *Router) TokenHandler(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxRequestBody)
	if err := req.ParseForm(); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	clientID := req.PostFormValue("client_id")

	switch req.PostFormValue("grant_type") {
	case grantTypeAuthorization:
		r.handleAuthorizationCodeGrant(w, req, clientID)
	case grantTypeRefresh:
		r.handleRefreshTokenGrant(w, req, clientID)
	default:
		writeErrorJSON(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

func (r *Router) handleAuthorizationCodeGrant(w http.ResponseWriter, req *http.Request, clientID string) {
	code := req.PostFormValue("code")

	challenge, err := r.server.ChallengeForAuthorizationCode(clientID, code)
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	verifier := req.PostFormValue("code_verifier")
	if verifier == "" {
		writeOAuthError(w, errors.NewInvalidGrantError("code_verifier is required", nil))
		return
	}
	computed := oauth2.S256ChallengeFromVerifier(verifier)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		writeOAuthError(w, errors.NewInvalidGrantError("code_verifier does not match the challenge", nil))
		return
	}

	pair, err := r.server.ExchangeAuthorizationCode(&ExchangeCodeRequest{
		ClientID:    clientID,
		Code:        code,
		RedirectURI: req.PostFormValue("redirect_uri"),
		Resource:    req.PostFormValue("resource"),
	})
	if err != nil {
		writeOAuthError(w, err)
		return
	}
	writeTokenResponse(w, pair)
}

func (r *Router) handleRefreshTokenGrant(w http.ResponseWriter, req *http.Request, clientID string) {
	pair, err := r.server.ExchangeRefreshToken(&ExchangeRefreshRequest{
		ClientID:     clientID,
		RefreshToken: req.PostFormValue("refresh_token"),
		Scope:        req.PostFormValue("scope"),
		Resource:     req.PostFormValue("resource"),
	})
	if err != nil {
		writeOAuthError(w, err)
		return
	}
	writeTokenResponse(w, pair)
}

// RevokeHandler handles POST /oauth/revoke requests per RFC 7009. The
// response is 200 regardless of whether the token existed.
func (r *Router) RevokeHandler(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxRequestBody)
	if err := req.ParseForm(); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	if err := r.server.RevokeToken(req.PostFormValue("client_id"), req.PostFormValue("token")); err != nil {
		writeOAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// MetadataHandler handles GET /.well-known/oauth-authorization-server.
func (r *Router) MetadataHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if err := json.NewEncoder(w).Encode(r.server.Metadata()); err != nil {
		logger.Errorw("failed to encode authorization server metadata", "error", err.Error())
	}
}

// ResourceMetadataHandler handles GET /.well-known/oauth-protected-resource.
func (r *Router) ResourceMetadataHandler(w http.ResponseWriter, _ *http.Request) {
	metadata := r.server.ResourceMetadata()
	if metadata == nil {
		http.NotFound(w, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if err := json.NewEncoder(w).Encode(metadata); err != nil {
		logger.Errorw("failed to encode protected resource metadata", "error", err.Error())
	}
}

// writeTokenResponse writes a successful token endpoint response with the
// cache headers RFC 6749 Section 5.1 requires.
func writeTokenResponse(w http.ResponseWriter, pair *TokenPair) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := json.NewEncoder(w).Encode(pair); err != nil {
		logger.Errorw("failed to encode token response", "error", err.Error())
	}
}

// writeOAuthError maps the error taxonomy onto OAuth HTTP responses. The
// taxonomy's type strings double as RFC 6749 error codes; anything outside
// it is an opaque server_error so internals never leak to clients.
func writeOAuthError(w http.ResponseWriter, err error) {
	e, ok := err.(*errors.Error)
	if !ok {
		writeErrorJSON(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	switch e.Type {
	case errors.ErrInvalidGrant, errors.ErrInvalidTarget:
		writeErrorJSON(w, http.StatusBadRequest, e.Type, e.Message)
	case errors.ErrInvalidClient:
		writeErrorJSON(w, http.StatusUnauthorized, e.Type, e.Message)
	case errors.ErrInvalidToken:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeErrorJSON(w, http.StatusUnauthorized, e.Type, e.Message)
	default:
		writeErrorJSON(w, http.StatusInternalServerError, "server_error", "")
	}
}

func writeErrorJSON(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	body := map[string]string{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	_ = json.NewEncoder(w).Encode(body)
}
