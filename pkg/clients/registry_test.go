// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package clients

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/crypto"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err, "failed to generate test key")
	return key
}

func testClient(id string) *Client {
	return &Client{
		ClientID:                id,
		ClientIDIssuedAt:        time.Now().Unix(),
		RedirectURIs:            []string{"http://127.0.0.1:8080/callback"},
		ClientName:              "Test Client",
		TokenEndpointAuthMethod: "none",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
	}
}

func TestFileRegistryRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.json")
	registry, err := NewFileRegistry(path, nil)
	require.NoError(t, err)

	require.NoError(t, registry.Upsert(testClient("c1")))

	got, err := registry.GetClient("c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c1", got.ClientID)
	assert.Equal(t, []string{"http://127.0.0.1:8080/callback"}, got.RedirectURIs)
}

func TestFileRegistryUnknownClient(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.json")
	registry, err := NewFileRegistry(path, nil)
	require.NoError(t, err)

	got, err := registry.GetClient("nope")
	require.NoError(t, err, "an unknown client is not an error")
	assert.Nil(t, got)
}

func TestFileRegistrySurvivesRestart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.json")

	first, err := NewFileRegistry(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Upsert(testClient("c1")))
	require.NoError(t, first.Upsert(testClient("c2")))

	// A fresh registry instance over the same file sees both clients.
	second, err := NewFileRegistry(path, nil)
	require.NoError(t, err)

	got, err := second.GetClient("c1")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = second.GetClient("c2")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestFileRegistryUpsertReplaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.json")
	registry, err := NewFileRegistry(path, nil)
	require.NoError(t, err)

	require.NoError(t, registry.Upsert(testClient("c1")))

	updated := testClient("c1")
	updated.ClientName = "Renamed Client"
	require.NoError(t, registry.Upsert(updated))

	got, err := registry.GetClient("c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Renamed Client", got.ClientName)
}

func TestFileRegistryRejectsInvalidUpsert(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.json")
	registry, err := NewFileRegistry(path, nil)
	require.NoError(t, err)

	err = registry.Upsert(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidClient(err))

	err = registry.Upsert(&Client{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidClient(err))
}

func TestFileRegistryEncryptedAtRest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.json")
	key := newTestKey(t)

	registry, err := NewFileRegistry(path, key)
	require.NoError(t, err)

	client := testClient("c1")
	client.ClientName = "Sensitive Client Name"
	require.NoError(t, registry.Upsert(client))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, crypto.FormatEncrypted, crypto.DetectFormat(raw))
	assert.NotContains(t, string(raw), "Sensitive Client Name")

	// A new instance with the same key reads it back.
	reopened, err := NewFileRegistry(path, key)
	require.NoError(t, err)
	got, err := reopened.GetClient("c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sensitive Client Name", got.ClientName)
}

func TestFileRegistryEncryptedWithoutKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.json")
	key := newTestKey(t)

	encrypting, err := NewFileRegistry(path, key)
	require.NoError(t, err)
	require.NoError(t, encrypting.Upsert(testClient("c1")))

	keyless, err := NewFileRegistry(path, nil)
	require.NoError(t, err)

	_, err = keyless.GetClient("c1")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err), "missing key is a configuration error, got %v", err)
}

func TestFileRegistryCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0600))

	registry, err := NewFileRegistry(path, nil)
	require.NoError(t, err)

	_, err = registry.GetClient("c1")
	require.Error(t, err)
	assert.True(t, errors.IsIO(err), "corrupt registry surfaces as an I/O error, got %v", err)
}

func TestFileRegistryLazyLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.json")

	seed, err := NewFileRegistry(path, nil)
	require.NoError(t, err)
	require.NoError(t, seed.Upsert(testClient("c1")))

	registry, err := NewFileRegistry(path, nil)
	require.NoError(t, err)

	// Mutating the file after construction but before first read is still
	// observed: nothing is loaded until the first lookup.
	require.NoError(t, seed.Upsert(testClient("c2")))

	got, err := registry.GetClient("c2")
	require.NoError(t, err)
	require.NotNil(t, got, "client written before first read should be visible")

	// After the first read the cache is authoritative.
	require.NoError(t, seed.Upsert(testClient("c3")))
	got, err = registry.GetClient("c3")
	require.NoError(t, err)
	assert.Nil(t, got, "cache is not re-read on every lookup")
}
