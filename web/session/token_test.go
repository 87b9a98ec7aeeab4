package session

import (
	"testing"
	"time"

	"github.com/modix-panel/modix/database/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser() *model.User {
	return &model.User{Id: 7, Username: "alice", Active: true}
}

func TestIssueAndVerify(t *testing.T) {
	m := NewManager("secret", 60)

	token, expires, err := m.Issue(testUser())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserId)
	assert.Equal(t, "alice", claims.Subject)

	// Second verify is served from the cache and agrees.
	cached, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, claims.UserId, cached.UserId)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewManager("secret-a", 60)
	verifier := NewManager("secret-b", 60)

	token, _, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewManager("secret", 60)

	_, err := m.Verify("not-a-token")
	require.Error(t, err)
	_, err = m.Verify("")
	require.Error(t, err)
}

func TestVerifyExpiryWindow(t *testing.T) {
	// Negative lifetime makes the token already expired at issue time.
	expired := NewManager("secret", -1)
	token, _, err := expired.Issue(testUser())
	require.NoError(t, err)

	_, err = expired.Verify(token)
	require.Error(t, err)

	// A short but positive lifetime is valid right after issue.
	valid := NewManager("secret", 1)
	token, _, err = valid.Issue(testUser())
	require.NoError(t, err)

	_, err = valid.Verify(token)
	require.NoError(t, err)
}

func TestVerifyCachedTokenExpires(t *testing.T) {
	m := NewManager("secret", 60)

	token, _, err := m.Issue(testUser())
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)

	// Force the cached entry past its expiry; the cache must not keep a
	// dead token alive.
	claims.ExpiresAt.Time = time.Now().Add(-time.Minute)

	_, err = m.Verify(token)
	require.Error(t, err)
}

func TestInvalidateUserDropsCache(t *testing.T) {
	m := NewManager("secret", 60)

	token, _, err := m.Issue(testUser())
	require.NoError(t, err)

	first, err := m.Verify(token)
	require.NoError(t, err)

	m.InvalidateUser(7)

	// The token itself is still signed and unexpired, so verification
	// succeeds, but through a fresh parse rather than the stale entry.
	second, err := m.Verify(token)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
