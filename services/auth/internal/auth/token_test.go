package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789"
	testRefreshSecret = "refresh-secret-for-tests-987654321"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T, opts ...CodecOption) *TokenCodec {
	t.Helper()
	c, err := NewTokenCodec(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "credipesca-auth",
	}, opts...)
	require.NoError(t, err)
	return c
}

func TestNewTokenCodec_Validation(t *testing.T) {
	_, err := NewTokenCodec(TokenConfig{AccessSecret: "same", RefreshSecret: "same"})
	assert.ErrorContains(t, err, "must differ")

	_, err = NewTokenCodec(TokenConfig{AccessSecret: "a"})
	assert.ErrorContains(t, err, "must not be empty")
}

func TestNewTokenCodec_DefaultTTLs(t *testing.T) {
	c := newTestCodec(t)
	assert.Equal(t, 15*time.Minute, c.TTL(PurposeAccess))
	assert.Equal(t, 7*24*time.Hour, c.TTL(PurposeRefresh))
	assert.Equal(t, time.Hour, c.TTL(PurposeReset))
}

func TestTokenCodec_IssueAndVerify(t *testing.T) {
	c := newTestCodec(t)

	for _, p := range []Purpose{PurposeAccess, PurposeRefresh, PurposeReset} {
		t.Run(string(p), func(t *testing.T) {
			token, expiresAt, err := c.Issue("user-1", p, c.TTL(p))
			require.NoError(t, err)
			assert.WithinDuration(t, time.Now().Add(c.TTL(p)), expiresAt, 2*time.Second)

			claims, err := c.Verify(token, p)
			require.NoError(t, err)
			assert.Equal(t, "user-1", claims.Subject)
			assert.Equal(t, p, claims.Purpose)
			assert.Equal(t, "credipesca-auth", claims.Issuer)
			assert.NotEmpty(t, claims.ID)
		})
	}
}

func TestTokenCodec_IssuePair(t *testing.T) {
	c := newTestCodec(t)

	pair, err := c.IssuePair("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	_, err = c.Verify(pair.AccessToken, PurposeAccess)
	assert.NoError(t, err)
	_, err = c.Verify(pair.RefreshToken, PurposeRefresh)
	assert.NoError(t, err)
}

func TestTokenCodec_PurposeIsEnforced(t *testing.T) {
	c := newTestCodec(t)
	pair, err := c.IssuePair("user-1")
	require.NoError(t, err)
	reset, _, err := c.Issue("user-1", PurposeReset, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		expected Purpose
		wantErr  error
	}{
		{"refresh as access", pair.RefreshToken, PurposeAccess, ErrPurposeMismatch},
		{"access as refresh", pair.AccessToken, PurposeRefresh, ErrPurposeMismatch},
		{"reset as access", reset, PurposeAccess, ErrPurposeMismatch},
		{"access as reset", pair.AccessToken, PurposeReset, ErrPurposeMismatch},
		{"reset as refresh", reset, PurposeRefresh, ErrPurposeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := c.Verify(tt.token, tt.expected)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTokenCodec_CrossClassKeyIsPurposeMismatch(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, WithClock(clock.Now))

	refresh, _, err := c.Issue("user-1", PurposeRefresh, time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = c.Verify(refresh, PurposeAccess)
	assert.ErrorIs(t, err, ErrPurposeMismatch)
	assert.NotErrorIs(t, err, ErrSignatureInvalid)
}

func TestTokenCodec_UnknownKeyIsSignatureInvalid(t *testing.T) {
	stranger, err := NewTokenCodec(TokenConfig{
		AccessSecret:  "another-access-secret-of-32-chars!!",
		RefreshSecret: "another-refresh-secret-of-32-chars!",
		Issuer:        "credipesca-auth",
	})
	require.NoError(t, err)

	pair, err := stranger.IssuePair("user-1")
	require.NoError(t, err)

	c := newTestCodec(t)
	_, err = c.Verify(pair.AccessToken, PurposeAccess)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
	_, err = c.Verify(pair.RefreshToken, PurposeAccess)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestTokenCodec_ExpiredAccessToken(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, WithClock(clock.Now))

	token, _, err := c.Issue("user-1", PurposeAccess, c.TTL(PurposeAccess))
	require.NoError(t, err)

	clock.Advance(14 * time.Minute)
	_, err = c.Verify(token, PurposeAccess)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = c.Verify(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTokenCodec_TamperedToken(t *testing.T) {
	c := newTestCodec(t)
	pair, err := c.IssuePair("user-1")
	require.NoError(t, err)

	// Flip a single bit in the payload segment.
	parts := strings.Split(pair.RefreshToken, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	payload[len(payload)/2] ^= 0x01
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = c.Verify(tampered, PurposeRefresh)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestTokenCodec_Garbage(t *testing.T) {
	c := newTestCodec(t)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := c.Verify(token, PurposeAccess)
		assert.ErrorIs(t, err, ErrSignatureInvalid, token)
	}
}

func TestTokenCodec_RejectsOtherAlgorithms(t *testing.T) {
	c := newTestCodec(t)

	claims := &Claims{
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "credipesca-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Verify(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestTokenCodec_RejectsForeignIssuer(t *testing.T) {
	other, err := NewTokenCodec(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "someone-else",
	})
	require.NoError(t, err)

	token, _, err := other.Issue("user-1", PurposeAccess, time.Minute)
	require.NoError(t, err)

	_, err = newTestCodec(t).Verify(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestTokenCodec_UnknownPurpose(t *testing.T) {
	c := newTestCodec(t)
	_, _, err := c.Issue("user-1", Purpose("admin"), time.Minute)
	assert.Error(t, err)
}
