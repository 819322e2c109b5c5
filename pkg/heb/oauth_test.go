package heb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTokenResponse is a test helper to produce vendor token responses.
type testTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// mockVendorServer imitates the vendor's OAuth endpoints for testing.
type mockVendorServer struct {
	*httptest.Server
	tokenHandler func(w http.ResponseWriter, r *http.Request)
	lastForm     url.Values
}

func newMockVendorServer() *mockVendorServer {
	mock := &mockVendorServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", mock.handleToken)

	mock.Server = httptest.NewServer(mux)
	return mock
}

func (m *mockVendorServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.lastForm = r.PostForm

	if m.tokenHandler != nil {
		m.tokenHandler(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := testTokenResponse{
		AccessToken:  "vendor-access-token",
		TokenType:    "Bearer",
		RefreshToken: "vendor-refresh-token",
		ExpiresIn:    3600,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m *mockVendorServer) config() *OAuthConfig {
	return &OAuthConfig{
		ClientID:     "heb-client",
		AuthorizeURL: m.URL + "/authorize",
		TokenURL:     m.URL + "/token",
		RedirectURI:  "http://localhost:8090/callback",
		Scopes:       []string{"openid", "offline_access"},
	}
}

func TestNewOAuthProvider(t *testing.T) {
	t.Parallel()

	t.Run("valid config creates provider", func(t *testing.T) {
		t.Parallel()
		mock := newMockVendorServer()
		t.Cleanup(mock.Close)

		provider, err := NewOAuthProvider(mock.config())
		require.NoError(t, err)
		require.NotNil(t, provider)
	})

	t.Run("nil config returns error", func(t *testing.T) {
		t.Parallel()
		_, err := NewOAuthProvider(nil)
		require.Error(t, err)
	})

	t.Run("missing token url returns error", func(t *testing.T) {
		t.Parallel()
		_, err := NewOAuthProvider(&OAuthConfig{
			ClientID:     "heb-client",
			AuthorizeURL: "https://vendor.example/authorize",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token url")
	})
}

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()
	mock := newMockVendorServer()
	t.Cleanup(mock.Close)

	provider, err := NewOAuthProvider(mock.config())
	require.NoError(t, err)

	raw, err := provider.AuthorizationURL("state-123", "challenge-abc")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "heb-client", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "challenge-abc", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "openid offline_access", q.Get("scope"))

	_, err = provider.AuthorizationURL("", "challenge-abc")
	require.Error(t, err, "state is required")
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	t.Run("successful exchange sends the right form", func(t *testing.T) {
		t.Parallel()
		mock := newMockVendorServer()
		t.Cleanup(mock.Close)

		provider, err := NewOAuthProvider(mock.config())
		require.NoError(t, err)

		before := time.Now()
		tokens, err := provider.ExchangeCode(t.Context(), "code-1", "verifier-1", "")
		require.NoError(t, err)

		assert.Equal(t, "vendor-access-token", tokens.AccessToken)
		assert.Equal(t, "vendor-refresh-token", tokens.RefreshToken)
		assert.WithinRange(t, tokens.ExpiresAt, before.Add(59*time.Minute), before.Add(61*time.Minute))

		assert.Equal(t, "authorization_code", mock.lastForm.Get("grant_type"))
		assert.Equal(t, "code-1", mock.lastForm.Get("code"))
		assert.Equal(t, "verifier-1", mock.lastForm.Get("code_verifier"))
		assert.Equal(t, "http://localhost:8090/callback", mock.lastForm.Get("redirect_uri"))
		assert.Equal(t, "heb-client", mock.lastForm.Get("client_id"))
		assert.Empty(t, mock.lastForm.Get("client_secret"), "public client must not send a secret")
	})

	t.Run("explicit redirect uri overrides config", func(t *testing.T) {
		t.Parallel()
		mock := newMockVendorServer()
		t.Cleanup(mock.Close)

		provider, err := NewOAuthProvider(mock.config())
		require.NoError(t, err)

		_, err = provider.ExchangeCode(t.Context(), "code-1", "verifier-1", "http://localhost:9999/cb")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9999/cb", mock.lastForm.Get("redirect_uri"))
	})

	t.Run("empty code returns error without calling the vendor", func(t *testing.T) {
		t.Parallel()
		mock := newMockVendorServer()
		t.Cleanup(mock.Close)

		provider, err := NewOAuthProvider(mock.config())
		require.NoError(t, err)

		_, err = provider.ExchangeCode(t.Context(), "", "verifier-1", "")
		require.Error(t, err)
		assert.Nil(t, mock.lastForm)
	})

	t.Run("oauth error response surfaces error code", func(t *testing.T) {
		t.Parallel()
		mock := newMockVendorServer()
		t.Cleanup(mock.Close)
		mock.tokenHandler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_grant",
				"error_description": "code expired",
			})
		}

		provider, err := NewOAuthProvider(mock.config())
		require.NoError(t, err)

		_, err = provider.ExchangeCode(t.Context(), "code-1", "verifier-1", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid_grant")
		assert.Contains(t, err.Error(), "code expired")
	})
}

func TestRefreshTokens(t *testing.T) {
	t.Parallel()

	t.Run("successful refresh", func(t *testing.T) {
		t.Parallel()
		mock := newMockVendorServer()
		t.Cleanup(mock.Close)

		provider, err := NewOAuthProvider(mock.config())
		require.NoError(t, err)

		tokens, err := provider.RefreshTokens(t.Context(), "old-refresh")
		require.NoError(t, err)
		assert.Equal(t, "vendor-access-token", tokens.AccessToken)

		assert.Equal(t, "refresh_token", mock.lastForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", mock.lastForm.Get("refresh_token"))
	})

	t.Run("empty refresh token returns error", func(t *testing.T) {
		t.Parallel()
		mock := newMockVendorServer()
		t.Cleanup(mock.Close)

		provider, err := NewOAuthProvider(mock.config())
		require.NoError(t, err)

		_, err = provider.RefreshTokens(t.Context(), "")
		require.Error(t, err)
	})

	t.Run("non-json failure reports status only", func(t *testing.T) {
		t.Parallel()
		mock := newMockVendorServer()
		t.Cleanup(mock.Close)
		mock.tokenHandler = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
		}

		provider, err := NewOAuthProvider(mock.config())
		require.NoError(t, err)

		_, err = provider.RefreshTokens(t.Context(), "old-refresh")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 504")
	})
}

func TestParseTokenResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		statusCode int
		wantErr    string
	}{
		{
			name:       "missing access token",
			body:       `{"token_type":"Bearer"}`,
			statusCode: http.StatusOK,
			wantErr:    "missing access_token",
		},
		{
			name:       "unexpected token type",
			body:       `{"access_token":"a","token_type":"mac"}`,
			statusCode: http.StatusOK,
			wantErr:    "unexpected token_type",
		},
		{
			name:       "malformed json",
			body:       `{`,
			statusCode: http.StatusOK,
			wantErr:    "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseTokenResponse([]byte(tt.body), tt.statusCode)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("token type omitted is tolerated", func(t *testing.T) {
		t.Parallel()
		tokens, err := parseTokenResponse([]byte(`{"access_token":"a","expires_in":60}`), http.StatusOK)
		require.NoError(t, err)
		assert.Equal(t, "a", tokens.AccessToken)
	})
}
