// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package vault persists per-tenant vendor credentials. Each tenant gets one
// JSON file named by its sanitized id; records are wrapped in the crypto
// envelope whenever an encryption key is configured. The vault is the single
// source of truth for a tenant's session material; the session cache in
// pkg/sessions is only a derived view over it.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/crypto"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/heb"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
)

// lockTimeout is the maximum time to wait for a file lock
const lockTimeout = 1 * time.Second

// Store reads and writes one credential file per tenant under dir.
type Store struct {
	dir string
	// key encrypts records at rest; nil selects plaintext mode.
	key []byte
	// requireEncrypted turns plaintext records into configuration errors
	// instead of a readable legacy format.
	requireEncrypted bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// RequireEncrypted makes Load reject plaintext records. Without it a
// plaintext record found under an encrypting vault is still readable and is
// rewritten encrypted on the next save, which is the migration path for
// vaults that predate the key.
func RequireEncrypted() StoreOption {
	return func(s *Store) {
		s.requireEncrypted = true
	}
}

// NewStore creates a vault rooted at dir. When key is non-nil it must be a
// valid envelope key; all subsequent writes are encrypted with it.
func NewStore(dir string, key []byte, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		return nil, errors.NewConfigurationError("vault directory is required", nil)
	}
	if key != nil {
		if err := crypto.ValidateKey(key); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewIOError(fmt.Sprintf("failed to create vault directory %s", dir), err)
	}
	s := &Store{dir: dir, key: key}
	for _, opt := range opts {
		opt(s)
	}
	if s.requireEncrypted && s.key == nil {
		return nil, errors.NewConfigurationError("encryption is required but no encryption key is configured", nil)
	}
	return s, nil
}

// Load reads the stored session for userID. A missing file is not an error:
// it returns (nil, nil). An encrypted record without a configured key is a
// configuration error; corrupt or undecryptable records are I/O errors.
func (s *Store) Load(userID string) (*heb.StoredSession, error) {
	path, err := s.recordPath(userID)
	if err != nil {
		return nil, err
	}

	// #nosec G304: the path is confined to the vault dir by sanitization.
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOError(fmt.Sprintf("failed to read session record for %q", userID), err)
	}

	switch crypto.DetectFormat(raw) {
	case crypto.FormatEncrypted:
		if s.key == nil {
			return nil, errors.NewConfigurationError(
				fmt.Sprintf("session record for %q is encrypted but no encryption key is configured", userID), nil)
		}
		var envelope crypto.EncryptedRecord
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, errors.NewIOError(fmt.Sprintf("failed to decode envelope for %q", userID), err)
		}
		var rec heb.StoredSession
		if err := crypto.Decrypt(&envelope, s.key, &rec); err != nil {
			return nil, err
		}
		return &rec, nil

	case crypto.FormatPlaintext:
		if s.requireEncrypted {
			return nil, errors.NewConfigurationError(
				fmt.Sprintf("session record for %q is stored in plaintext but encryption is required", userID), nil)
		}
		if s.key != nil {
			// Legacy plaintext record read under an encrypting vault; it is
			// rewritten encrypted on the next save.
			logger.Warnf("session record for %q is stored in plaintext", userID)
		}
		var rec heb.StoredSession
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, errors.NewIOError(fmt.Sprintf("failed to decode session record for %q", userID), err)
		}
		return &rec, nil

	default:
		return nil, errors.NewIOError(fmt.Sprintf("session record for %q is corrupt", userID), nil)
	}
}

// Save writes the stored session for userID, encrypting when a key is
// configured. Write failures propagate so the caller knows persistence did
// not happen.
func (s *Store) Save(userID string, rec *heb.StoredSession) error {
	if rec == nil {
		return errors.NewIOError("cannot save a nil session record", nil)
	}

	path, err := s.recordPath(userID)
	if err != nil {
		return err
	}

	var contents []byte
	if s.key != nil {
		envelope, err := crypto.Encrypt(rec, s.key)
		if err != nil {
			return err
		}
		contents, err = json.Marshal(envelope)
		if err != nil {
			return errors.NewIOError("failed to marshal envelope", err)
		}
	} else {
		contents, err = json.Marshal(rec)
		if err != nil {
			return errors.NewIOError("failed to marshal session record", err)
		}
	}

	// Use a separate lock file for cross-platform compatibility
	lockPath := path + ".lock"
	fileLock := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return errors.NewIOError("failed to acquire vault lock", err)
	}
	if !locked {
		return errors.NewIOError(fmt.Sprintf("failed to acquire vault lock: timeout after %v", lockTimeout), nil)
	}
	defer fileLock.Unlock()

	if err := os.WriteFile(path, contents, 0600); err != nil {
		return errors.NewIOError(fmt.Sprintf("failed to write session record for %q", userID), err)
	}
	return nil
}

// recordPath resolves the file for userID inside the vault dir.
func (s *Store) recordPath(userID string) (string, error) {
	sanitized, err := SanitizeTenantID(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, sanitized+".json"), nil
}
