// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/crypto"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
)

// lockTimeout is the maximum time to wait for the registry file lock
const lockTimeout = 1 * time.Second

// Registry provides lookup and persistence of registered OAuth clients.
type Registry interface {
	// GetClient returns the client for clientID, or (nil, nil) when no such
	// client is registered.
	GetClient(clientID string) (*Client, error)

	// Upsert registers the client, replacing any existing record with the
	// same client_id. Re-registering an identical record is a no-op.
	Upsert(client *Client) error
}

// FileRegistry stores all registered clients in a single JSON file, keyed
// by client_id. The file is read lazily on first access and cached; every
// upsert rewrites the whole file under a file lock. Records are wrapped in
// the crypto envelope when an encryption key is configured.
type FileRegistry struct {
	path string
	key  []byte

	mu      sync.Mutex
	loaded  bool
	clients map[string]*Client
}

var _ Registry = (*FileRegistry)(nil)

// NewFileRegistry creates a registry backed by the file at path. The file
// does not need to exist yet; its directory is created when missing.
func NewFileRegistry(path string, key []byte) (*FileRegistry, error) {
	if path == "" {
		return nil, errors.NewConfigurationError("client registry path is required", nil)
	}
	if key != nil {
		if err := crypto.ValidateKey(key); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewIOError(fmt.Sprintf("failed to create registry directory for %s", path), err)
	}
	return &FileRegistry{path: path, key: key}, nil
}

// GetClient returns the registered client for clientID, or (nil, nil) when
// the id is unknown. Unknown ids are left for the caller to turn into the
// protocol error appropriate for its endpoint.
func (r *FileRegistry) GetClient(clientID string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(); err != nil {
		return nil, err
	}
	return r.clients[clientID], nil
}

// Upsert registers the client, replacing any previous record with the same
// client_id. Last write wins.
func (r *FileRegistry) Upsert(client *Client) error {
	if client == nil || client.ClientID == "" {
		return errors.NewInvalidClientError("client_id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(); err != nil {
		return err
	}
	r.clients[client.ClientID] = client
	return r.save()
}

// load populates the in-memory cache from disk once. Callers must hold mu.
func (r *FileRegistry) load() error {
	if r.loaded {
		return nil
	}

	// #nosec G304: the path is fixed at construction time.
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.clients = make(map[string]*Client)
			r.loaded = true
			return nil
		}
		return errors.NewIOError(fmt.Sprintf("failed to read client registry %s", r.path), err)
	}

	clients := make(map[string]*Client)
	switch crypto.DetectFormat(raw) {
	case crypto.FormatEncrypted:
		if r.key == nil {
			return errors.NewConfigurationError(
				"client registry is encrypted but no encryption key is configured", nil)
		}
		var envelope crypto.EncryptedRecord
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return errors.NewIOError("failed to decode client registry envelope", err)
		}
		if err := crypto.Decrypt(&envelope, r.key, &clients); err != nil {
			return err
		}

	case crypto.FormatPlaintext:
		if err := json.Unmarshal(raw, &clients); err != nil {
			return errors.NewIOError("failed to decode client registry", err)
		}

	default:
		return errors.NewIOError(fmt.Sprintf("client registry %s is corrupt", r.path), nil)
	}

	r.clients = clients
	r.loaded = true
	return nil
}

// save writes the full registry back to disk. Callers must hold mu.
func (r *FileRegistry) save() error {
	var contents []byte
	var err error
	if r.key != nil {
		var envelope *crypto.EncryptedRecord
		envelope, err = crypto.Encrypt(r.clients, r.key)
		if err != nil {
			return err
		}
		contents, err = json.Marshal(envelope)
	} else {
		contents, err = json.Marshal(r.clients)
	}
	if err != nil {
		return errors.NewIOError("failed to marshal client registry", err)
	}

	// Use a separate lock file for cross-platform compatibility
	lockPath := r.path + ".lock"
	fileLock := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return errors.NewIOError("failed to acquire registry lock", err)
	}
	if !locked {
		return errors.NewIOError(fmt.Sprintf("failed to acquire registry lock: timeout after %v", lockTimeout), nil)
	}
	defer fileLock.Unlock()

	if err := os.WriteFile(r.path, contents, 0600); err != nil {
		return errors.NewIOError(fmt.Sprintf("failed to write client registry %s", r.path), err)
	}
	return nil
}
