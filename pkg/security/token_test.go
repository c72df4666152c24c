package security

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T, clock *fakeClock) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(&TokenConfig{Secret: "cluster-secret", TTL: time.Minute, Leeway: time.Second},
		WithClock(clock.Now))
	require.NoError(t, err)
	return m
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	_, err := NewTokenManager(&TokenConfig{})
	assert.True(t, errors.Is(err, ErrSecretEmpty))

	_, err = NewTokenManager(nil)
	assert.True(t, errors.Is(err, ErrSecretEmpty))
}

func TestNewTokenManager_Defaults(t *testing.T) {
	m, err := NewTokenManager(&TokenConfig{Secret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "httpremote", m.Config().Issuer)
	assert.Equal(t, 5*time.Minute, m.Config().TTL)
	assert.Equal(t, 30*time.Second, m.Config().Leeway)
}

func TestTokenManager_IssueAndValidate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, clock)

	token, expiresAt, err := m.Issue("httpremote-worker", "WORKER")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), expiresAt)

	claims, err := m.Validate(BearerPrefix + token)
	require.NoError(t, err)
	assert.Equal(t, "httpremote-worker", claims.Subject)
	assert.Equal(t, "WORKER", claims.Role)
	assert.Equal(t, "httpremote", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_ValidateErrors(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, clock)
	token, _, err := m.Issue("node", "SERVER")
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, err := m.Validate("Bearer ")
		assert.True(t, errors.Is(err, ErrTokenMissing))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := m.Validate("not-a-token")
		assert.True(t, errors.Is(err, ErrTokenMalformed))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenManager(&TokenConfig{Secret: "other-secret"}, WithClock(clock.Now))
		require.NoError(t, err)
		_, err = other.Validate(token)
		assert.True(t, errors.Is(err, ErrSignatureInvalid))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewTokenManager(&TokenConfig{Secret: "cluster-secret", Issuer: "someone-else"}, WithClock(clock.Now))
		require.NoError(t, err)
		_, err = other.Validate(token)
		assert.True(t, errors.Is(err, ErrTokenInvalid))
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:    "httpremote",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Validate(unsigned)
		assert.Error(t, err)
	})

	t.Run("tampered", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		_, err := m.Validate(parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2])))
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		clock.Advance(2 * time.Minute)
		_, err := m.Validate(token)
		assert.True(t, errors.Is(err, ErrTokenExpired))
	})
}

func TestTokenSource_CachesUntilHalfLife(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, clock)
	src := m.Source("httpremote-server", "SERVER")

	first, err := src.Token()
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	second, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	clock.Advance(20 * time.Second)
	third, err := src.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	header, err := src.Authorization()
	require.NoError(t, err)
	assert.Equal(t, BearerPrefix+third, header)

	claims, err := m.Validate(header)
	require.NoError(t, err)
	assert.Equal(t, "SERVER", claims.Role)
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithClaims(context.Background(), &Claims{Role: "WORKER"})
	claims, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "WORKER", claims.Role)
}
