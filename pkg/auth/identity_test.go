// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		identity *Identity
		want     string
	}{
		{
			name: "normal_identity",
			identity: &Identity{
				Subject: "auth0|64ab12cd",
				Name:    "Alice",
				Token:   "secret-token",
			},
			want: `Identity{Subject:"auth0|64ab12cd"}`,
		},
		{
			name:     "nil_identity",
			identity: nil,
			want:     "<nil>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.identity.String())
		})
	}
}

func TestIdentityMarshalJSON(t *testing.T) {
	t.Parallel()

	t.Run("redacts_token", func(t *testing.T) {
		t.Parallel()

		identity := &Identity{
			Subject:   "auth0|64ab12cd",
			Name:      "Alice",
			Email:     "alice@example.com",
			ClientID:  "c1",
			Scopes:    []string{"mcp:tools"},
			Token:     "secret-token",
			TokenType: "Bearer",
			Claims: jwt.MapClaims{
				"sub": "auth0|64ab12cd",
			},
		}

		data, err := json.Marshal(identity)
		require.NoError(t, err)

		var result map[string]any
		require.NoError(t, json.Unmarshal(data, &result))
		assert.Equal(t, "auth0|64ab12cd", result["subject"])
		assert.Equal(t, "Alice", result["name"])
		assert.Equal(t, "c1", result["clientId"])
		assert.Equal(t, "REDACTED", result["token"])
		assert.Equal(t, "Bearer", result["tokenType"])
		assert.NotContains(t, string(data), "secret-token")
	})

	t.Run("empty_token_not_redacted", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(&Identity{Subject: "u1"})
		require.NoError(t, err)

		var result map[string]any
		require.NoError(t, json.Unmarshal(data, &result))
		assert.Equal(t, "", result["token"])
	})

	t.Run("nil_identity", func(t *testing.T) {
		t.Parallel()

		var identity *Identity
		data, err := identity.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})
}

func TestIdentityHasScope(t *testing.T) {
	t.Parallel()

	identity := &Identity{
		Subject: "u1",
		Scopes:  []string{"mcp:tools", "mcp:resources"},
	}

	assert.True(t, identity.HasScope("mcp:tools"))
	assert.True(t, identity.HasScope("mcp:resources"))
	assert.False(t, identity.HasScope("admin"))

	var nilIdentity *Identity
	assert.False(t, nilIdentity.HasScope("mcp:tools"))
}
