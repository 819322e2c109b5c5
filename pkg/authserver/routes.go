// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router provides HTTP handlers for the OAuth authorization server endpoints.
type Router struct {
	server *Server
}

// NewRouter creates a new Router serving the given authorization server.
func NewRouter(server *Server) *Router {
	return &Router{server: server}
}

// Handler returns an http.Handler that serves all OAuth endpoints:
//   - /.well-known/oauth-authorization-server (RFC 8414 AS metadata)
//   - /.well-known/oauth-protected-resource (RFC 9728 resource metadata)
//   - /oauth/authorize (Authorization endpoint)
//   - /oauth/token (Token endpoint)
//   - /oauth/revoke (Revocation endpoint, RFC 7009)
//   - /oauth/register (Dynamic Client Registration, RFC 7591)
func (r *Router) Handler() http.Handler {
	mux := chi.NewRouter()

	mux.Get("/.well-known/oauth-authorization-server", r.MetadataHandler)
	mux.Get("/.well-known/oauth-protected-resource", r.ResourceMetadataHandler)

	mux.Get("/oauth/authorize", r.AuthorizeHandler)
	mux.Post("/oauth/token", r.TokenHandler)
	mux.Post("/oauth/revoke", r.RevokeHandler)
	mux.Post("/oauth/register", r.RegisterClientHandler)

	return mux
}
