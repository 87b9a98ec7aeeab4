// Package session issues and validates the bearer tokens that carry a
// request's subject, and keeps the token cache coherent with identity
// mutations.
package session

import (
	"sync"
	"time"

	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/util/common"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Claims is the token payload: subject name, user id and the registered
// time claims.
type Claims struct {
	UserId int `json:"uid"`
	jwt.RegisteredClaims
}

type cacheEntry struct {
	claims *Claims
	epoch  int64
}

// Manager signs and verifies tokens. The signing secret is loaded once
// at startup and never leaves the process.
type Manager struct {
	secret   []byte
	lifetime time.Duration

	mu     sync.Mutex
	epochs map[int]*atomic.Int64
	cache  sync.Map // token string -> cacheEntry
}

func NewManager(secret string, lifetimeMinutes int) *Manager {
	return &Manager{
		secret:   []byte(secret),
		lifetime: time.Duration(lifetimeMinutes) * time.Minute,
		epochs:   make(map[int]*atomic.Int64),
	}
}

func (m *Manager) epoch(userID int) *atomic.Int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.epochs[userID]
	if !ok {
		e = atomic.NewInt64(0)
		m.epochs[userID] = e
	}
	return e
}

// Issue signs a token for the user with the configured lifetime.
func (m *Manager) Issue(user *model.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(m.lifetime)

	claims := &Claims{
		UserId: user.Id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, common.Wrap(common.KindInternal, err, "sign token")
	}
	return token, expires, nil
}

// Verify parses and validates a bearer token, returning its claims. The
// result is cached until the token expires or the subject is mutated.
func (m *Manager) Verify(token string) (*Claims, error) {
	if cached, ok := m.cache.Load(token); ok {
		entry := cached.(cacheEntry)
		if time.Now().Before(entry.claims.ExpiresAt.Time) &&
			m.epoch(entry.claims.UserId).Load() == entry.epoch {
			return entry.claims, nil
		}
		m.cache.Delete(token)
		if time.Now().After(entry.claims.ExpiresAt.Time) {
			return nil, common.New(common.KindUnauthorized, "token expired")
		}
	}

	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}

	m.cache.Store(token, cacheEntry{
		claims: claims,
		epoch:  m.epoch(claims.UserId).Load(),
	})
	return claims, nil
}

func (m *Manager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.New(common.KindUnauthorized, "unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, common.Wrap(common.KindUnauthorized, err, "invalid token")
	}
	return claims, nil
}

// InvalidateUser drops every cached token for the user; called on any
// identity mutation affecting the subject.
func (m *Manager) InvalidateUser(userID int) {
	m.epoch(userID).Inc()
}
