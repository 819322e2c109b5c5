// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package api contains the HTTP API for the H-E-B MCP gateway.
package api

// The OpenAPI spec is generated using "github.com/swaggo/swag/v2/cmd/swag@v2.0.0-rc4"
// To update the OpenAPI spec, run:
// install swag:
//	go install github.com/swaggo/swag/v2/cmd/swag@v2.0.0-rc4
// generate the spec:
//	swag init -g pkg/api/server.go --v3.1 -o docs/server

// @title           hebmcp API
// @version         1.0
// @description     OAuth authorization server and credential vault API for the H-E-B MCP gateway.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/iHildy/heb-sdk-unofficial-sub000/pkg/api/v1"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/auth"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/authserver"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/heb"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/sessions"
)

// Not sure if these values need to be configurable.
const (
	middlewareTimeout  = 60 * time.Second
	readHeaderTimeout  = 10 * time.Second
	socketPermissions  = 0660    // Socket file permissions (owner/group read-write)
	maxRequestBodySize = 1 << 20 // 1MB request body cap for all endpoints
)

// Deps carries the wired services the API serves.
type Deps struct {
	// AuthServer issues and verifies the gateway's own OAuth tokens and
	// serves the /oauth/* and /.well-known/* endpoints from the root.
	AuthServer *authserver.Server

	// Sessions resolves per-user H-E-B credentials.
	Sessions *sessions.Manager

	// Vendor drives the upstream H-E-B OAuth flow. May be nil when the
	// deployment has no vendor OAuth configuration; the /oauth/config,
	// /oauth/exchange and /oauth/refresh endpoints then report it as absent.
	Vendor *heb.OAuthProvider

	// LocalMode disables bearer token validation and resolves the tenant
	// from the OS user instead. Only suitable for single-user desktop use.
	LocalMode bool
}

func setupTCPListener(address string) (net.Listener, error) {
	return net.Listen("tcp", address)
}

func setupUnixSocket(address string) (net.Listener, error) {
	// Remove the socket file if it already exists
	if _, err := os.Stat(address); err == nil {
		if err := os.Remove(address); err != nil {
			return nil, fmt.Errorf("failed to remove existing socket: %v", err)
		}
	}

	// Create the directory for the socket file if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(address), 0750); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %v", err)
	}

	// Create UNIX socket listener
	listener, err := net.Listen("unix", address)
	if err != nil {
		return nil, fmt.Errorf("failed to create UNIX socket listener: %v", err)
	}

	// Set file permissions on the socket to allow other local processes to connect
	if err := os.Chmod(address, socketPermissions); err != nil {
		return nil, fmt.Errorf("failed to set socket permissions: %v", err)
	}

	return listener, nil
}

func cleanupUnixSocket(address string) {
	if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove socket file: %v", err)
	}
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// bodyLimitedReader wraps the MaxBytesReader-guarded request body and
// records when a read tripped the size limit, so the response writer can
// report the correct status.
type bodyLimitedReader struct {
	body     io.ReadCloser
	limitHit *bool
}

func (b *bodyLimitedReader) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		*b.limitHit = true
	}
	return n, err
}

func (b *bodyLimitedReader) Close() error {
	return b.body.Close()
}

// bodySizeResponseWriter rewrites a handler's 400 response to 413 when the
// request body exceeded the size limit. Handlers surface truncated bodies
// as decode failures; the client should see the real cause.
type bodySizeResponseWriter struct {
	http.ResponseWriter
	limitHit *bool
}

func (w *bodySizeResponseWriter) WriteHeader(status int) {
	if status == http.StatusBadRequest && *w.limitHit {
		w.ResponseWriter.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	w.ResponseWriter.WriteHeader(status)
}

// requestBodySizeLimitMiddleware rejects request bodies larger than maxBodySize.
// Bodies with an honest Content-Length are rejected before the handler runs;
// chunked or understated bodies are cut off by MaxBytesReader mid-read.
func requestBodySizeLimitMiddleware(maxBodySize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBodySize {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}

			limitHit := false
			r.Body = &bodyLimitedReader{
				body:     http.MaxBytesReader(w, r.Body, maxBodySize),
				limitHit: &limitHit,
			}
			next.ServeHTTP(&bodySizeResponseWriter{ResponseWriter: w, limitHit: &limitHit}, r)
		})
	}
}

// Serve starts the server on the given address and serves the API.
// It is assumed that the caller sets up appropriate signal handling.
// If isUnixSocket is true, address is treated as a UNIX socket path.
// The OAuth endpoints and discovery metadata are mounted at the root; the
// credential endpoints under /api/v1beta/heb require a bearer token issued
// by deps.AuthServer unless deps.LocalMode is set.
func Serve(
	ctx context.Context,
	address string,
	isUnixSocket bool,
	deps Deps,
) error {
	if deps.AuthServer == nil {
		return fmt.Errorf("authorization server is required")
	}
	if deps.Sessions == nil {
		return fmt.Errorf("session manager is required")
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		// TODO: Figure out logging middleware. We may want to use a different logger.
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
		requestBodySizeLimitMiddleware(maxRequestBodySize),
	)

	// In local mode the verifier stays nil and the middleware falls back to
	// the OS user. The interface must hold an untyped nil for that check.
	var verifier auth.TokenVerifier
	if !deps.LocalMode {
		verifier = deps.AuthServer
	}
	issuer := deps.AuthServer.Config().Issuer
	authMiddleware := auth.GetAuthenticationMiddleware(
		verifier,
		issuer,
		issuer+"/.well-known/oauth-protected-resource",
	)

	routers := map[string]http.Handler{
		"/health":             v1.HealthcheckRouter(),
		"/api/v1beta/version": v1.VersionRouter(),
	}

	for prefix, router := range routers {
		r.Mount(prefix, router)
	}

	// Credential endpoints need an authenticated tenant.
	r.With(authMiddleware).Mount("/api/v1beta/heb", v1.HEBRouter(deps.Sessions, deps.Vendor))

	// The authorization server owns everything else: /oauth/* plus the
	// /.well-known/* discovery documents, which must live at the root.
	r.Mount("/", authserver.NewRouter(deps.AuthServer).Handler())

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Create a listener based on the connection type
	var listener net.Listener
	var addrType string
	var err error

	if isUnixSocket {
		listener, err = setupUnixSocket(address)
		addrType = "UNIX socket"
	} else {
		listener, err = setupTCPListener(address)
		addrType = "HTTP"
	}
	if err != nil {
		return err
	}

	logger.Infof("starting %s server on %s", addrType, address)

	// Start server.
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Panicf("server stopped with error: %v", err)
		}
	}()

	<-ctx.Done()
	if err := srv.Shutdown(ctx); err != nil {
		if isUnixSocket {
			cleanupUnixSocket(address)
		}
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if isUnixSocket {
		cleanupUnixSocket(address)
	}

	logger.Infof("%s server stopped", addrType)
	return nil
}
