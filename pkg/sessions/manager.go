// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

// Package sessions caches per-tenant vendor sessions in memory on top of
// the credential vault. Cache entries are TTL-bounded: a fresh hit costs no
// I/O, a stale or missing entry is revalidated against the vault. The cache
// never outlives the process; the vault is the durable layer.
package sessions

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/errors"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/heb"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
)

//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Vault,TokenRefresher

// DefaultTTL bounds how long a cache entry is served without consulting
// the vault.
const DefaultTTL = 60 * time.Second

// Vault is the durable per-tenant credential store behind the cache.
type Vault interface {
	// Load returns the stored session for userID, or (nil, nil) when the
	// tenant has none.
	Load(userID string) (*heb.StoredSession, error)

	// Save persists the stored session for userID.
	Save(userID string, rec *heb.StoredSession) error
}

// TokenRefresher exchanges a vendor refresh token for fresh tokens.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*heb.Tokens, error)
}

// entry is one cached tenant session. updatedAt drives TTL freshness,
// independent of any expiry carried by the credential itself. The session and
// client are never written after publication; a token refresh swaps in a
// replacement entry, so request goroutines holding the old pair keep reading
// a consistent credential.
type entry struct {
	client    *heb.Client
	session   *heb.Session
	updatedAt time.Time
}

// isFresh reports whether the entry may be served without revalidation: its
// age must be inside the TTL and the session's own vendor credential must
// not have expired. Cookie sessions carry no expiry, so their freshness is
// TTL-only. A zero or negative TTL disables caching entirely.
func isFresh(e *entry, now time.Time, ttl time.Duration) bool {
	if e == nil {
		return false
	}
	if ttl <= 0 {
		return false
	}
	if e.session != nil && e.session.ExpiredAt(now) {
		return false
	}
	return now.Sub(e.updatedAt) < ttl
}

// Manager is the in-memory session cache for all tenants.
type Manager struct {
	vault     Vault
	refresher TokenRefresher
	ttl       time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	// loads collapses concurrent vault reads for the same tenant so a burst
	// of tool calls costs one disk read, not one per call.
	loads singleflight.Group

	// refreshes collapses concurrent token refreshes for the same tenant so
	// an expired session costs one vendor round trip, never a second call
	// that would burn the already-rotated refresh token.
	refreshes singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the cache freshness window. Zero disables caching so every
// lookup revalidates against the vault.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithRefresher enables transparent vendor token refresh for bearer sessions.
func WithRefresher(r TokenRefresher) Option {
	return func(m *Manager) {
		m.refresher = r
	}
}

// WithClock overrides the time source. Tests use this to step through TTL
// windows without sleeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session cache over the given vault.
func NewManager(vault Vault, opts ...Option) *Manager {
	m := &Manager{
		vault:   vault,
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadUser returns an authenticated vendor client for userID, consulting the
// cache first and the vault on a miss. Concurrent misses for the same tenant
// share one vault read. A tenant with no stored session yields (nil, nil).
// Vault read failures degrade to (nil, nil) with a warning so one corrupt
// record cannot take requests down; configuration errors (an encrypted
// record with no key) propagate because no retry can succeed. Expired bearer
// sessions are refreshed transparently when a refresher is configured, with
// concurrent callers sharing one vendor round trip.
func (m *Manager) LoadUser(ctx context.Context, userID string) (*heb.Client, error) {
	m.mu.Lock()
	if e, ok := m.entries[userID]; ok && isFresh(e, m.now(), m.ttl) {
		client := e.client
		m.mu.Unlock()
		return client, nil
	}
	m.mu.Unlock()

	result, err, _ := m.loads.Do(userID, func() (any, error) {
		// Another caller may have revalidated while we waited.
		m.mu.Lock()
		if e, ok := m.entries[userID]; ok && isFresh(e, m.now(), m.ttl) {
			client := e.client
			m.mu.Unlock()
			return client, nil
		}
		m.mu.Unlock()

		stored, err := m.vault.Load(userID)
		if err != nil {
			if errors.IsConfiguration(err) {
				return nil, err
			}
			logger.Warnf("failed to load session for %q, treating as signed out: %v", userID, err)
			m.evict(userID)
			return nil, nil
		}
		if stored == nil {
			m.evict(userID)
			return nil, nil
		}

		session := heb.SessionFromStored(stored)
		m.wireRefresh(userID, session)

		client, err := heb.NewClient(session)
		if err != nil {
			return nil, err
		}
		m.store(userID, client, session)
		return client, nil
	})
	if err != nil {
		return nil, err
	}

	client, _ := result.(*heb.Client)
	if client == nil {
		return nil, nil
	}
	if session := client.Session(); session.ExpiredAt(m.now()) && session.CanRefresh() {
		return m.refreshUser(ctx, userID, session)
	}
	return client, nil
}

// GetClient returns the cached client for userID, or nil when the tenant
// has no fresh cache entry. It never touches the vault.
func (m *Manager) GetClient(userID string) *heb.Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[userID]; ok && isFresh(e, m.now(), m.ttl) {
		return e.client
	}
	return nil
}

// GetSession returns the cached session for userID, or nil when the tenant
// has no fresh cache entry. It never touches the vault.
func (m *Manager) GetSession(userID string) *heb.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[userID]; ok && isFresh(e, m.now(), m.ttl) {
		return e.session
	}
	return nil
}

// SaveCookies stores browser cookies for userID, switching the tenant to
// cookie mode. When the cookies are identical to the cached ones only the
// freshness timestamp moves; the vault file is left untouched.
func (m *Manager) SaveCookies(userID string, cookies heb.Cookies) error {
	now := m.now()

	m.mu.Lock()
	if e, ok := m.entries[userID]; ok && e.session != nil &&
		e.session.AuthMode == heb.AuthModeCookie && e.session.Cookies.Equal(cookies) {
		// Only the entry timestamp moves; the published session stays
		// untouched so concurrent readers never observe a write.
		e.updatedAt = now
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	session := heb.NewCookieSession(cookies)
	session.UpdatedAt = now

	if err := m.vault.Save(userID, session.Stored()); err != nil {
		return err
	}

	client, err := heb.NewClient(session)
	if err != nil {
		return err
	}
	m.store(userID, client, session)
	return nil
}

// SaveTokens stores vendor OAuth tokens for userID, switching the tenant to
// bearer mode. When cookies is nil the cookies already held for the tenant
// are carried forward so anti-bot clearance survives the switch; a non-nil
// set replaces them.
func (m *Manager) SaveTokens(userID string, tokens *heb.Tokens, cookies heb.Cookies) error {
	if tokens == nil {
		return errors.NewIOError("cannot save nil tokens", nil)
	}
	now := m.now()

	if cookies == nil {
		m.mu.Lock()
		if e, ok := m.entries[userID]; ok && e.session != nil {
			cookies = e.session.Cookies.Clone()
		}
		m.mu.Unlock()
	}

	if cookies == nil {
		stored, err := m.vault.Load(userID)
		if err != nil {
			if errors.IsConfiguration(err) {
				return err
			}
			logger.Warnf("failed to load prior session for %q while saving tokens: %v", userID, err)
		} else if stored != nil {
			cookies = stored.Cookies
		}
	}

	session := heb.NewBearerSession(tokens, cookies)
	session.UpdatedAt = now
	m.wireRefresh(userID, session)

	if err := m.vault.Save(userID, session.Stored()); err != nil {
		return err
	}

	client, err := heb.NewClient(session)
	if err != nil {
		return err
	}
	m.store(userID, client, session)
	return nil
}

// wireRefresh attaches the refresh capability to bearer sessions. The closure
// never writes the session it is bound to; it hands the work to refreshUser,
// which publishes a replacement session through the cache.
func (m *Manager) wireRefresh(userID string, session *heb.Session) {
	if m.refresher == nil || session == nil || session.AuthMode != heb.AuthModeBearer {
		return
	}

	session.SetRefreshFunc(func(ctx context.Context) error {
		_, err := m.refreshUser(ctx, userID, session)
		return err
	})
}

// refreshUser exchanges the tenant's vendor refresh token for fresh tokens,
// persists them and swaps a new session and client into the cache. old is the
// session the caller found expired; it is read, never written. Concurrent
// callers for the same tenant share one vendor round trip, and a caller
// arriving after the swap gets the already-refreshed client without another.
func (m *Manager) refreshUser(ctx context.Context, userID string, old *heb.Session) (*heb.Client, error) {
	result, err, _ := m.refreshes.Do(userID, func() (any, error) {
		// Another caller holding the same stale session may have already
		// completed the swap.
		m.mu.Lock()
		if e, ok := m.entries[userID]; ok && e.session != old && isFresh(e, m.now(), m.ttl) {
			client := e.client
			m.mu.Unlock()
			return client, nil
		}
		m.mu.Unlock()

		refreshToken := ""
		if old.Tokens != nil {
			refreshToken = old.Tokens.RefreshToken
		}
		fresh, err := m.refresher.RefreshTokens(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		// The vendor may omit a rotated refresh token; keep the old one.
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = refreshToken
		}

		session := heb.NewBearerSession(fresh, old.Cookies)
		session.UpdatedAt = m.now()
		m.wireRefresh(userID, session)

		if err := m.vault.Save(userID, session.Stored()); err != nil {
			return nil, err
		}
		client, err := heb.NewClient(session)
		if err != nil {
			return nil, err
		}
		m.store(userID, client, session)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	client, _ := result.(*heb.Client)
	return client, nil
}

func (m *Manager) store(userID string, client *heb.Client, session *heb.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = &entry{client: client, session: session, updatedAt: m.now()}
}

func (m *Manager) evict(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
}
