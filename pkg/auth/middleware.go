// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"net/http"
	"os/user"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/authserver"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
)

// TokenVerifier checks opaque access tokens minted by the authorization
// server and reports who they belong to.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*authserver.AuthInfo, error)
}

var _ TokenVerifier = (*authserver.Server)(nil)

// BearerMiddleware creates an HTTP middleware that validates bearer access
// tokens and stores the resulting Identity in the request context.
func BearerMiddleware(verifier TokenVerifier, realm, resourceMetadataURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				w.Header().Set("WWW-Authenticate", buildWWWAuthenticate(realm, resourceMetadataURL, false, ""))
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				w.Header().Set("WWW-Authenticate", buildWWWAuthenticate(realm, resourceMetadataURL, false, ""))
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			info, err := verifier.VerifyAccessToken(tokenString)
			if err != nil {
				w.Header().Set("WWW-Authenticate", buildWWWAuthenticate(realm, resourceMetadataURL, true, err.Error()))
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}

			identity := identityFromAuthInfo(info, tokenString)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// identityFromAuthInfo translates a verified access token into an Identity.
// The claim set mirrors what a JWT for the same grant would carry so that
// policy code has one shape to work with.
func identityFromAuthInfo(info *authserver.AuthInfo, token string) *Identity {
	claims := jwt.MapClaims{
		"sub":       info.UserID,
		"client_id": info.ClientID,
		"scope":     strings.Join(info.Scopes, " "),
	}
	if info.Resource != "" {
		claims["aud"] = info.Resource
	}
	if !info.ExpiresAt.IsZero() {
		claims["exp"] = info.ExpiresAt.Unix()
	}

	return &Identity{
		Subject:   info.UserID,
		ClientID:  info.ClientID,
		Scopes:    slices.Clone(info.Scopes),
		Claims:    claims,
		Token:     token,
		TokenType: "Bearer",
	}
}

// buildWWWAuthenticate builds a RFC 6750 / RFC 9728 compliant value for the
// WWW-Authenticate header. It always includes realm and, if set, resource_metadata.
// If includeError is true, it appends error="invalid_token" and an optional description.
func buildWWWAuthenticate(realm, resourceMetadataURL string, includeError bool, errDescription string) string {
	var parts []string

	if realm != "" {
		parts = append(parts, fmt.Sprintf(`realm="%s"`, EscapeQuotes(realm)))
	}

	// resource_metadata (RFC 9728)
	if resourceMetadataURL != "" {
		parts = append(parts, fmt.Sprintf(`resource_metadata="%s"`, EscapeQuotes(resourceMetadataURL)))
	}

	// error fields (RFC 6750 Section 3)
	if includeError {
		parts = append(parts, `error="invalid_token"`)
		if errDescription != "" {
			parts = append(parts, fmt.Sprintf(`error_description="%s"`, EscapeQuotes(errDescription)))
		}
	}
	return "Bearer " + strings.Join(parts, ", ")
}

// EscapeQuotes escapes quotes in a string for use in a quoted-string context.
func EscapeQuotes(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// AnonymousMiddleware creates an HTTP middleware that sets up an anonymous
// identity. This is useful for testing and local environments where handlers
// expect an identity without requiring actual authentication.
//
// This is heavily discouraged in production settings.
func AnonymousMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		claims := jwt.MapClaims{
			"sub":   "anonymous",
			"iss":   "hebmcp-local",
			"aud":   "hebmcp",
			"exp":   now.Add(24 * time.Hour).Unix(),
			"iat":   now.Unix(),
			"nbf":   now.Unix(),
			"email": "anonymous@localhost",
			"name":  "Anonymous User",
		}

		identity := &Identity{
			Subject:   "anonymous",
			Name:      "Anonymous User",
			Email:     "anonymous@localhost",
			Claims:    claims,
			TokenType: "Bearer",
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// LocalUserMiddleware creates an HTTP middleware that sets up a local user
// identity. This allows specifying a tenant id while bypassing
// authentication, so a single-tenant deployment can skip the OAuth flow.
//
// Like AnonymousMiddleware, this is heavily discouraged in production settings.
func LocalUserMiddleware(username string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			claims := jwt.MapClaims{
				"sub":   username,
				"iss":   "hebmcp-local",
				"aud":   "hebmcp",
				"exp":   now.Add(24 * time.Hour).Unix(),
				"iat":   now.Unix(),
				"nbf":   now.Unix(),
				"email": username + "@localhost",
				"name":  "Local User: " + username,
			}

			identity := &Identity{
				Subject:   username,
				Name:      "Local User: " + username,
				Email:     username + "@localhost",
				Claims:    claims,
				TokenType: "Bearer",
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// GetAuthenticationMiddleware returns the authentication middleware matching
// the configuration. With a verifier it validates bearer tokens; without one
// it falls back to the current OS user for local single-tenant use.
func GetAuthenticationMiddleware(verifier TokenVerifier, realm, resourceMetadataURL string) func(http.Handler) http.Handler {
	if verifier != nil {
		logger.Info("Access token validation enabled")
		return BearerMiddleware(verifier, realm, resourceMetadataURL)
	}

	logger.Info("Access token validation disabled, using local user authentication")

	currentUser, err := user.Current()
	if err != nil {
		logger.Warnf("Failed to get current user, using 'local' as default: %v", err)
		return LocalUserMiddleware("local")
	}

	logger.Infof("Using local user authentication for user: %s", currentUser.Username)
	return LocalUserMiddleware(currentUser.Username)
}
