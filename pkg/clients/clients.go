// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package clients defines the OAuth client records registered with the
// authorization server and the file-backed registry that persists them
// across restarts. Clients are public (PKCE-only) per RFC 7591; redirect
// URI matching follows RFC 8252 Section 7.3 so native clients may bind an
// ephemeral loopback port.
package clients

import (
	"slices"
)

// Client is a registered OAuth client as persisted in the registry. The
// JSON field names follow RFC 7591 client metadata.
type Client struct {
	// ClientID is the unique identifier for the client.
	ClientID string `json:"client_id"`

	// ClientIDIssuedAt is the time at which the client identifier was
	// issued, as a Unix timestamp.
	ClientIDIssuedAt int64 `json:"client_id_issued_at,omitempty"`

	// RedirectURIs is an array of redirection URIs for the client.
	RedirectURIs []string `json:"redirect_uris"`

	// ClientName is a human-readable name for the client.
	ClientName string `json:"client_name,omitempty"`

	// TokenEndpointAuthMethod is the authentication method for the token
	// endpoint. Registered clients are public, so this is always "none".
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method"`

	// GrantTypes is an array of OAuth 2.0 grant types the client may use.
	GrantTypes []string `json:"grant_types"`

	// ResponseTypes is an array of OAuth 2.0 response types the client may use.
	ResponseTypes []string `json:"response_types"`

	// Scope is the space-separated scope the client registered for.
	Scope string `json:"scope,omitempty"`
}

// AllowsGrantType reports whether the client registered for the grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// AllowsResponseType reports whether the client registered for the response type.
func (c *Client) AllowsResponseType(responseType string) bool {
	return slices.Contains(c.ResponseTypes, responseType)
}

// MatchRedirectURI checks if the given redirect URI matches one of the
// client's registered redirect URIs, with RFC 8252 Section 7.3 loopback
// support (any port is accepted for loopback hosts).
func (c *Client) MatchRedirectURI(requestedURI string) bool {
	for _, registeredURI := range c.RedirectURIs {
		if matchesRedirectURI(requestedURI, registeredURI) {
			return true
		}
	}
	return false
}

// GetMatchingRedirectURI returns the matching redirect URI if found, or an
// empty string. For loopback URIs, returns the requested URI (with its
// port) if it matches a registered loopback pattern.
func (c *Client) GetMatchingRedirectURI(requestedURI string) string {
	for _, registeredURI := range c.RedirectURIs {
		if matchesRedirectURI(requestedURI, registeredURI) {
			if isLoopbackURI(requestedURI) {
				return requestedURI
			}
			return registeredURI
		}
	}
	return ""
}
