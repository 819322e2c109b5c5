// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package crypto implements the authenticated-encryption envelope used for
// records at rest. Payloads are JSON-marshaled and sealed with AES-256-GCM
// under a 32-byte key; the result is a versioned, self-describing
// EncryptedRecord. Decryption fails closed: a missing key, an unknown
// version, or a tag that does not verify is always an error, never partial
// plaintext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
)

const (
	// EnvelopeVersion is the only envelope format version written or read.
	EnvelopeVersion = 1

	// EnvelopeAlg identifies AES-256-GCM, the only supported algorithm.
	EnvelopeAlg = "aes-256-gcm"
)

// EncryptedRecord is the self-describing ciphertext envelope written to disk.
// IV, Tag, and Data are standard base64.
type EncryptedRecord struct {
	V    int    `json:"v"`
	Alg  string `json:"alg"`
	IV   string `json:"iv"`
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

// Format classifies the on-disk shape of a stored record.
type Format int

const (
	// FormatCorrupt marks bytes that are neither a whole plaintext JSON
	// object nor a whole well-formed envelope. Partial envelopes are corrupt.
	FormatCorrupt Format = iota

	// FormatPlaintext marks a plain JSON object carrying no envelope markers.
	FormatPlaintext

	// FormatEncrypted marks a well-formed EncryptedRecord.
	FormatEncrypted
)

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatPlaintext:
		return "plaintext"
	case FormatEncrypted:
		return "encrypted"
	default:
		return "corrupt"
	}
}

var envelopeMarkers = []string{"v", "alg", "iv", "tag", "data"}

// DetectFormat classifies raw bytes without a key and without decrypting.
// It is a pure function: callers decide how to react to each format.
func DetectFormat(raw []byte) Format {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return FormatCorrupt
	}

	markers := 0
	for _, k := range envelopeMarkers {
		if _, ok := probe[k]; ok {
			markers++
		}
	}

	switch markers {
	case 0:
		return FormatPlaintext
	case len(envelopeMarkers):
		var rec EncryptedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return FormatCorrupt
		}
		if rec.V != EnvelopeVersion || rec.Alg != EnvelopeAlg ||
			rec.IV == "" || rec.Tag == "" || rec.Data == "" {
			return FormatCorrupt
		}
		return FormatEncrypted
	default:
		// A record carrying only some envelope fields is neither format.
		return FormatCorrupt
	}
}

// Encrypt seals payload into an EncryptedRecord under key. A fresh random
// nonce is generated for every call, so encrypting the same payload twice
// yields different envelopes.
func Encrypt(payload any, key []byte) (*EncryptedRecord, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewIOError("failed to marshal payload", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.NewIOError("failed to generate nonce", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	// GCM appends the tag to the ciphertext; the envelope stores them apart.
	tagStart := len(sealed) - gcm.Overhead()
	return &EncryptedRecord{
		V:    EnvelopeVersion,
		Alg:  EnvelopeAlg,
		IV:   base64.StdEncoding.EncodeToString(nonce),
		Tag:  base64.StdEncoding.EncodeToString(sealed[tagStart:]),
		Data: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
	}, nil
}

// Decrypt opens rec under key and unmarshals the plaintext into out.
func Decrypt(rec *EncryptedRecord, key []byte, out any) error {
	if rec == nil {
		return errors.NewIOError("nil encrypted record", nil)
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if rec.V != EnvelopeVersion || rec.Alg != EnvelopeAlg {
		return errors.NewIOError(
			fmt.Sprintf("unsupported envelope version %d / algorithm %q", rec.V, rec.Alg), nil)
	}

	nonce, err := base64.StdEncoding.DecodeString(rec.IV)
	if err != nil {
		return errors.NewIOError("malformed envelope iv", err)
	}
	tag, err := base64.StdEncoding.DecodeString(rec.Tag)
	if err != nil {
		return errors.NewIOError("malformed envelope tag", err)
	}
	data, err := base64.StdEncoding.DecodeString(rec.Data)
	if err != nil {
		return errors.NewIOError("malformed envelope data", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}
	if len(nonce) != gcm.NonceSize() {
		return errors.NewIOError(
			fmt.Sprintf("envelope iv must be %d bytes, got %d", gcm.NonceSize(), len(nonce)), nil)
	}

	sealed := make([]byte, 0, len(data)+len(tag))
	sealed = append(sealed, data...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return errors.NewIOError("unable to decrypt record", err)
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return errors.NewIOError("failed to decode decrypted payload", err)
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to construct cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to construct gcm", err)
	}
	return gcm, nil
}
