// Package heb holds the vendor-facing domain: H-E-B session material
// (cookies or OAuth tokens), the API client facade that attaches it to
// outbound requests, and the OAuth provider that exchanges and refreshes
// tokens against H-E-B's own token endpoint.
//
// The token types in this package are the vendor's token space. They are
// deliberately distinct from the gateway's own OAuth tokens issued by
// pkg/authserver; one must never be presented where the other is expected.
package heb
