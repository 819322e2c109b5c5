// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"strings"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
)

// SanitizeTenantID maps a tenant identifier to a filesystem-safe name.
// Letters, digits, underscores and hyphens pass through; every other rune
// becomes an underscore, so identifiers like OIDC subjects or email
// addresses can never traverse out of the vault directory.
func SanitizeTenantID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", errors.NewIOError("tenant id cannot be empty", nil)
	}

	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '_' || r == '-':
			return r
		default:
			return '_'
		}
	}, trimmed)

	return sanitized, nil
}
