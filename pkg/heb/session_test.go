package heb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookiesEqual(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Cookies
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs empty", nil, Cookies{}, true},
		{"identical", Cookies{"sat": "x", "reese84": "y"}, Cookies{"sat": "x", "reese84": "y"}, true},
		{"different value", Cookies{"sat": "x"}, Cookies{"sat": "z"}, false},
		{"different keys", Cookies{"sat": "x"}, Cookies{"reese84": "x"}, false},
		{"subset", Cookies{"sat": "x"}, Cookies{"sat": "x", "reese84": "y"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestCookiesHeader(t *testing.T) {
	t.Parallel()

	c := Cookies{"reese84": "y", "sat": "x"}
	assert.Equal(t, "reese84=y; sat=x", c.Header(), "names must be sorted")
	assert.Empty(t, Cookies(nil).Header())
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()
	now := time.Now()

	tests := []struct {
		name    string
		session *Session
		want    bool
	}{
		{
			name:    "cookie session never expires",
			session: NewCookieSession(Cookies{"sat": "x"}),
			want:    false,
		},
		{
			name:    "bearer session with future expiry",
			session: NewBearerSession(&Tokens{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}, nil),
			want:    false,
		},
		{
			name:    "bearer session with past expiry",
			session: NewBearerSession(&Tokens{AccessToken: "a", ExpiresAt: now.Add(-time.Hour)}, nil),
			want:    true,
		},
		{
			name:    "bearer session inside the expiry buffer",
			session: NewBearerSession(&Tokens{AccessToken: "a", ExpiresAt: now.Add(10 * time.Second)}, nil),
			want:    true,
		},
		{
			name:    "bearer session with unknown expiry",
			session: NewBearerSession(&Tokens{AccessToken: "a"}, nil),
			want:    false,
		},
		{
			name:    "bearer session with nil tokens",
			session: NewBearerSession(nil, nil),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.session.ExpiredAt(now))
		})
	}
}

func TestSessionRefresh(t *testing.T) {
	t.Parallel()

	t.Run("no capability", func(t *testing.T) {
		t.Parallel()
		s := NewBearerSession(&Tokens{AccessToken: "a", RefreshToken: "r"}, nil)
		assert.False(t, s.CanRefresh(), "no refresh func attached yet")
		require.Error(t, s.Refresh(t.Context()))
	})

	t.Run("capability invoked", func(t *testing.T) {
		t.Parallel()
		s := NewBearerSession(&Tokens{AccessToken: "a", RefreshToken: "r"}, nil)

		called := 0
		s.SetRefreshFunc(func(_ context.Context) error {
			called++
			return nil
		})

		assert.True(t, s.CanRefresh())
		require.NoError(t, s.Refresh(t.Context()))
		assert.Equal(t, 1, called)
	})

	t.Run("refresh error surfaces", func(t *testing.T) {
		t.Parallel()
		s := NewBearerSession(&Tokens{AccessToken: "a", RefreshToken: "r"}, nil)
		s.SetRefreshFunc(func(_ context.Context) error {
			return errors.New("vendor unavailable")
		})

		err := s.Refresh(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vendor unavailable")
	})

	t.Run("cookie sessions cannot refresh", func(t *testing.T) {
		t.Parallel()
		s := NewCookieSession(Cookies{"sat": "x"})
		s.SetRefreshFunc(func(_ context.Context) error { return nil })
		assert.False(t, s.CanRefresh())
	})

	t.Run("no refresh token means no refresh", func(t *testing.T) {
		t.Parallel()
		s := NewBearerSession(&Tokens{AccessToken: "a"}, nil)
		s.SetRefreshFunc(func(_ context.Context) error { return nil })
		assert.False(t, s.CanRefresh())
	})
}

func TestStoredRoundTrip(t *testing.T) {
	t.Parallel()

	original := NewBearerSession(
		&Tokens{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)},
		Cookies{"sat": "x"},
	)

	rec := original.Stored()
	require.NotNil(t, rec)
	assert.Equal(t, AuthModeBearer, rec.AuthMode)
	assert.Equal(t, original.Cookies, rec.Cookies)
	assert.Equal(t, original.Tokens, rec.Tokens)

	rebuilt := SessionFromStored(rec)
	require.NotNil(t, rebuilt)
	assert.Equal(t, original.AuthMode, rebuilt.AuthMode)
	assert.Equal(t, original.Cookies, rebuilt.Cookies)
	assert.Equal(t, original.Tokens, rebuilt.Tokens)

	assert.Nil(t, SessionFromStored(nil))
}

func TestSessionCookieIsolation(t *testing.T) {
	t.Parallel()

	cookies := Cookies{"sat": "x"}
	s := NewCookieSession(cookies)

	cookies["sat"] = "mutated"
	assert.Equal(t, "x", s.Cookies["sat"], "session must not alias the caller's map")
}
