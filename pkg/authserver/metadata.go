// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package authserver

// AuthorizationServerMetadata is the RFC 8414 metadata document describing
// this server's capabilities. Access tokens are opaque, so no jwks_uri is
// advertised; verification only works against this process.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// ProtectedResourceMetadata is the RFC 9728 metadata document MCP clients
// use to locate the authorization server guarding the resource.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// Metadata builds the RFC 8414 document from the server's config.
func (s *Server) Metadata() *AuthorizationServerMetadata {
	issuer := s.config.Issuer
	return &AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/oauth/authorize",
		TokenEndpoint:                     issuer + "/oauth/token",
		RegistrationEndpoint:              issuer + "/oauth/register",
		RevocationEndpoint:                issuer + "/oauth/revoke",
		ScopesSupported:                   s.config.SupportedScopes,
		ResponseTypesSupported:            []string{responseTypeCode},
		GrantTypesSupported:               []string{grantTypeAuthorization, grantTypeRefresh},
		CodeChallengeMethodsSupported:     []string{codeChallengeMethodS256},
		TokenEndpointAuthMethodsSupported: []string{"none"},
	}
}

// ResourceMetadata builds the RFC 9728 document, or nil when no resource
// URL is configured.
func (s *Server) ResourceMetadata() *ProtectedResourceMetadata {
	if s.config.ResourceURL == "" {
		return nil
	}
	return &ProtectedResourceMetadata{
		Resource:               s.config.ResourceURL,
		AuthorizationServers:   []string{s.config.Issuer},
		ScopesSupported:        s.config.SupportedScopes,
		BearerMethodsSupported: []string{"header"},
	}
}
