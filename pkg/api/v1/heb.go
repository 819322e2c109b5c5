// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/auth"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/heb"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/sessions"
)

// HEBRoutes defines the routes for the per-tenant vendor credential API.
type HEBRoutes struct {
	sessions *sessions.Manager
	vendor   *heb.OAuthProvider
}

// HEBRouter creates a new router for the vendor credential API. The vendor
// provider may be nil; the OAuth endpoints then report it as unconfigured.
func HEBRouter(
	manager *sessions.Manager,
	vendor *heb.OAuthProvider,
) http.Handler {
	routes := HEBRoutes{
		sessions: manager,
		vendor:   vendor,
	}

	r := chi.NewRouter()
	r.Get("/status", routes.getStatus)
	r.Post("/cookies", routes.saveCookies)
	r.Get("/oauth/config", routes.getOAuthConfig)
	r.Post("/oauth/exchange", routes.exchangeCode)
	r.Post("/oauth/refresh", routes.refreshTokens)
	return r
}

// tenantFromRequest resolves the tenant from the authenticated identity.
// It writes a 401 and returns false when no identity is present.
func tenantFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity.Subject == "" {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return "", false
	}
	return identity.Subject, true
}

// getStatus
//
//	@Summary		Get vendor link status
//	@Description	Report whether the authenticated tenant has a linked H-E-B session
//	@Tags			heb
//	@Produce		json
//	@Success		200	{object}	linkStatusResponse
//	@Failure		401	{string}	string	"Unauthorized"
//	@Router			/api/v1beta/heb/status [get]
func (h *HEBRoutes) getStatus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromRequest(w, r)
	if !ok {
		return
	}

	client, err := h.sessions.LoadUser(r.Context(), tenant)
	if err != nil {
		if errors.IsConfiguration(err) {
			logger.Errorf("Credential store misconfigured: %v", err)
			http.Error(w, "Credential store misconfigured", http.StatusInternalServerError)
			return
		}
		// The stored link exists but could not be made usable, typically a
		// failed transparent refresh. Report it as linked but unusable.
		logger.Warnf("Failed to load session for %q: %v", tenant, err)
		writeJSON(w, linkStatusResponse{Linked: true})
		return
	}
	if client == nil {
		writeJSON(w, linkStatusResponse{})
		return
	}

	writeJSON(w, linkStatusFromSession(client.Session()))
}

// saveCookies
//
//	@Summary		Save vendor cookies
//	@Description	Store browser session cookies for the authenticated tenant, switching it to cookie mode
//	@Tags			heb
//	@Accept			json
//	@Param			cookies	body	saveCookiesRequest	true	"Cookies to store"
//	@Success		204
//	@Failure		400	{string}	string	"Invalid request"
//	@Failure		401	{string}	string	"Unauthorized"
//	@Router			/api/v1beta/heb/cookies [post]
func (h *HEBRoutes) saveCookies(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromRequest(w, r)
	if !ok {
		return
	}

	var req saveCookiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Errorf("Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Cookies) == 0 {
		http.Error(w, "At least one cookie is required", http.StatusBadRequest)
		return
	}

	if err := h.sessions.SaveCookies(tenant, req.Cookies); err != nil {
		logger.Errorf("Failed to save cookies for %q: %v", tenant, err)
		http.Error(w, "Failed to save cookies", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getOAuthConfig
//
//	@Summary		Get vendor OAuth configuration
//	@Description	Return the public part of the vendor OAuth configuration for client-driven flows
//	@Tags			heb
//	@Produce		json
//	@Success		200	{object}	oauthConfigResponse
//	@Failure		404	{string}	string	"Vendor OAuth not configured"
//	@Router			/api/v1beta/heb/oauth/config [get]
func (h *HEBRoutes) getOAuthConfig(w http.ResponseWriter, r *http.Request) {
	if _, ok := tenantFromRequest(w, r); !ok {
		return
	}
	if h.vendor == nil {
		http.Error(w, "Vendor OAuth is not configured", http.StatusNotFound)
		return
	}

	cfg := h.vendor.Config()
	writeJSON(w, oauthConfigResponse{
		ClientID:     cfg.ClientID,
		AuthorizeURL: cfg.AuthorizeURL,
		TokenURL:     cfg.TokenURL,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
	})
}

// exchangeCode
//
//	@Summary		Exchange a vendor authorization code
//	@Description	Redeem a vendor authorization code for tokens and store them for the authenticated tenant
//	@Tags			heb
//	@Accept			json
//	@Produce		json
//	@Param			exchange	body		exchangeCodeRequest	true	"Authorization code"
//	@Success		200			{object}	linkStatusResponse
//	@Failure		400			{string}	string	"Invalid request"
//	@Failure		404			{string}	string	"Vendor OAuth not configured"
//	@Failure		502			{string}	string	"Vendor rejected the exchange"
//	@Router			/api/v1beta/heb/oauth/exchange [post]
func (h *HEBRoutes) exchangeCode(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromRequest(w, r)
	if !ok {
		return
	}
	if h.vendor == nil {
		http.Error(w, "Vendor OAuth is not configured", http.StatusNotFound)
		return
	}

	var req exchangeCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Errorf("Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "Authorization code is required", http.StatusBadRequest)
		return
	}

	tokens, err := h.vendor.ExchangeCode(r.Context(), req.Code, req.Verifier, req.RedirectURI)
	if err != nil {
		logger.Errorf("Vendor code exchange failed for %q: %v", tenant, err)
		http.Error(w, "Vendor rejected the code exchange", http.StatusBadGateway)
		return
	}

	if err := h.sessions.SaveTokens(tenant, tokens, nil); err != nil {
		logger.Errorf("Failed to save tokens for %q: %v", tenant, err)
		http.Error(w, "Failed to save tokens", http.StatusInternalServerError)
		return
	}

	h.writeLinkStatus(w, r, tenant)
}

// refreshTokens
//
//	@Summary		Refresh vendor tokens
//	@Description	Force a vendor token refresh for the authenticated tenant
//	@Tags			heb
//	@Produce		json
//	@Success		200	{object}	linkStatusResponse
//	@Failure		409	{string}	string	"Session cannot refresh"
//	@Failure		502	{string}	string	"Vendor rejected the refresh"
//	@Router			/api/v1beta/heb/oauth/refresh [post]
func (h *HEBRoutes) refreshTokens(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromRequest(w, r)
	if !ok {
		return
	}

	client, err := h.sessions.LoadUser(r.Context(), tenant)
	if err != nil {
		if errors.IsConfiguration(err) {
			logger.Errorf("Credential store misconfigured: %v", err)
			http.Error(w, "Credential store misconfigured", http.StatusInternalServerError)
			return
		}
		logger.Errorf("Vendor token refresh failed for %q: %v", tenant, err)
		http.Error(w, "Vendor rejected the token refresh", http.StatusBadGateway)
		return
	}
	if client == nil {
		http.Error(w, "No linked session", http.StatusConflict)
		return
	}

	session := client.Session()
	if !session.CanRefresh() {
		http.Error(w, "Session cannot refresh", http.StatusConflict)
		return
	}

	if err := session.Refresh(r.Context()); err != nil {
		logger.Errorf("Vendor token refresh failed for %q: %v", tenant, err)
		http.Error(w, "Vendor rejected the token refresh", http.StatusBadGateway)
		return
	}

	// The refresh swapped a replacement session into the cache; report that
	// one, not the stale session this handler still holds.
	h.writeLinkStatus(w, r, tenant)
}

// writeLinkStatus responds with the tenant's link status after a mutation.
func (h *HEBRoutes) writeLinkStatus(w http.ResponseWriter, r *http.Request, tenant string) {
	client, err := h.sessions.LoadUser(r.Context(), tenant)
	if err != nil || client == nil {
		// The mutation already succeeded; degrade to the bare flag.
		if err != nil {
			logger.Warnf("Failed to reload session for %q: %v", tenant, err)
		}
		writeJSON(w, linkStatusResponse{Linked: true})
		return
	}
	writeJSON(w, linkStatusFromSession(client.Session()))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// linkStatusFromSession projects a session into its API representation.
func linkStatusFromSession(session *heb.Session) linkStatusResponse {
	if session == nil {
		return linkStatusResponse{}
	}

	status := linkStatusResponse{
		Linked:     true,
		AuthMode:   string(session.AuthMode),
		CanRefresh: session.CanRefresh(),
	}
	if !session.UpdatedAt.IsZero() {
		updatedAt := session.UpdatedAt
		status.UpdatedAt = &updatedAt
	}
	if session.Tokens != nil && !session.Tokens.ExpiresAt.IsZero() {
		expiresAt := session.Tokens.ExpiresAt
		status.ExpiresAt = &expiresAt
	}
	return status
}

type saveCookiesRequest struct {
	// Cookies holds vendor browser cookies by name.
	Cookies heb.Cookies `json:"cookies"`
}

type oauthConfigResponse struct {
	// ClientID is the public client identifier registered with the vendor.
	ClientID string `json:"client_id"`
	// AuthorizeURL is the vendor's authorization endpoint.
	AuthorizeURL string `json:"authorize_url"`
	// TokenURL is the vendor's token endpoint.
	TokenURL string `json:"token_url"`
	// RedirectURI is where the vendor sends the user back after consent.
	RedirectURI string `json:"redirect_uri,omitempty"`
	// Scopes are requested during authorization.
	Scopes []string `json:"scopes,omitempty"`
}

type exchangeCodeRequest struct {
	// Code is the authorization code returned by the vendor.
	Code string `json:"code"`
	// Verifier is the PKCE code verifier used during authorization.
	Verifier string `json:"verifier,omitempty"`
	// RedirectURI overrides the configured redirect when non-empty.
	RedirectURI string `json:"redirect_uri,omitempty"`
}

type linkStatusResponse struct {
	// Linked reports whether the tenant has a stored vendor session.
	Linked bool `json:"linked"`
	// AuthMode is "cookie" or "bearer" when linked.
	AuthMode string `json:"auth_mode,omitempty"`
	// CanRefresh reports whether the session can mint fresh vendor tokens.
	CanRefresh bool `json:"can_refresh"`
	// ExpiresAt is the vendor access token expiry for bearer sessions.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// UpdatedAt is when the stored session last changed.
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
