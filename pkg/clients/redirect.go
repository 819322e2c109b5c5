// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package clients

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// ValidateRedirectURI validates a redirect URI per RFC 8252:
//   - HTTPS is allowed for any address (web-based redirects)
//   - HTTP is only allowed for loopback addresses (127.0.0.1, [::1], localhost)
//   - Fragments are never allowed in redirect URIs
func ValidateRedirectURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid redirect URI %q: %w", uri, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("redirect URI %q must be absolute", uri)
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("redirect URI %q must not contain a fragment", uri)
	}

	switch parsed.Scheme {
	case schemeHTTPS:
		return nil
	case schemeHTTP:
		if IsLoopbackHost(parsed.Hostname()) {
			return nil
		}
		return fmt.Errorf("http redirect URIs are only allowed for loopback addresses: %q", uri)
	default:
		return fmt.Errorf("unsupported redirect URI scheme %q", parsed.Scheme)
	}
}

// matchesRedirectURI checks if a requested URI matches a registered URI.
// Implements RFC 8252 Section 7.3 loopback matching.
func matchesRedirectURI(requestedURI, registeredURI string) bool {
	// Exact match always works
	if requestedURI == registeredURI {
		return true
	}

	return matchesAsLoopback(requestedURI, registeredURI)
}

// matchesAsLoopback checks if the requested URI matches the registered URI
// using RFC 8252 Section 7.3 loopback rules.
//
// Per RFC 8252 Section 7.3:
//   - Loopback redirect URIs use the "http" scheme
//   - The host must be 127.0.0.1, [::1], or localhost
//   - The authorization server MUST allow any port
//   - The path and query components must match exactly
func matchesAsLoopback(requestedURI, registeredURI string) bool {
	requested, err := url.Parse(requestedURI)
	if err != nil {
		return false
	}

	registered, err := url.Parse(registeredURI)
	if err != nil {
		return false
	}

	// Must use http scheme (not https) for loopback
	if requested.Scheme != schemeHTTP || registered.Scheme != schemeHTTP {
		return false
	}

	// Both must be loopback addresses
	if !IsLoopbackHost(requested.Hostname()) || !IsLoopbackHost(registered.Hostname()) {
		return false
	}

	// Hostnames must match (e.g., both 127.0.0.1 or both localhost)
	if !hostnamesMatch(requested.Hostname(), registered.Hostname()) {
		return false
	}

	// Path must match exactly
	if requested.Path != registered.Path {
		return false
	}

	// Query must match exactly
	if requested.RawQuery != registered.RawQuery {
		return false
	}

	// Port can be any value (this is the key RFC 8252 requirement)
	return true
}

// isLoopbackURI checks if the URI uses a loopback address.
func isLoopbackURI(uri string) bool {
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return IsLoopbackHost(parsed.Hostname())
}

// IsLoopbackHost checks if the hostname is a loopback address per RFC 8252
// Section 7.3. Valid loopback hosts are "127.0.0.1", "::1" (written as
// "[::1]" in URLs), and "localhost".
func IsLoopbackHost(hostname string) bool {
	if strings.EqualFold(hostname, "localhost") {
		return true
	}

	ip := net.ParseIP(hostname)
	if ip != nil && ip.IsLoopback() {
		return true
	}

	return false
}

// hostnamesMatch checks if two hostnames should be considered equivalent for
// loopback matching purposes.
//
// The hostname must match exactly; localhost is compared case-insensitively,
// but 127.0.0.1 and localhost are different hostnames (a client registered
// with 127.0.0.1 will not match localhost requests).
func hostnamesMatch(requested, registered string) bool {
	if strings.EqualFold(requested, "localhost") && strings.EqualFold(registered, "localhost") {
		return true
	}

	return requested == registered
}
