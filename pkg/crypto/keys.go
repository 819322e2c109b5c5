// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
)

// KeySize is the required symmetric key length in bytes (AES-256).
const KeySize = 32

// keyPrefix may be prepended to the base64 key material in the environment.
const keyPrefix = "base64:"

// ValidateKey checks that key is usable for the envelope algorithm.
// Key problems are configuration errors and should abort startup.
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return errors.NewConfigurationError(
			fmt.Sprintf("encryption key must be exactly %d bytes, got %d", KeySize, len(key)), nil)
	}
	return nil
}

// ParseKey decodes key material supplied via the environment: standard
// base64, optionally prefixed with "base64:". The decoded key must be
// exactly KeySize bytes.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), keyPrefix)
	if s == "" {
		return nil, errors.NewConfigurationError("encryption key is empty", nil)
	}

	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.NewConfigurationError("encryption key is not valid base64", err)
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}
