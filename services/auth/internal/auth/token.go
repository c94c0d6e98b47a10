package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
)

// Purpose discriminates what a token may be used for.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
	PurposeReset   Purpose = "reset"
)

// Default lifetimes per purpose.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultResetTTL   = time.Hour
)

// Verification failures. Callers must not expose which one occurred.
var (
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrPurposeMismatch  = errors.New("token purpose mismatch")
)

// Claims are the verified contents of a token.
type Claims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	// AccessSecret signs access and reset tokens.
	AccessSecret string
	// RefreshSecret signs refresh tokens and must differ from AccessSecret.
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
}

// TokenCodec issues and verifies HS256 tokens. Refresh tokens are keyed
// separately so that leaking one secret does not allow forging the other
// token class.
type TokenCodec struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	ttl        map[Purpose]time.Duration
	now        func() time.Time
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces the time source used for issuing and verifying.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec validates cfg and builds a codec. Zero TTLs take the defaults.
func NewTokenCodec(cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	c := &TokenCodec{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		issuer:     cfg.Issuer,
		ttl: map[Purpose]time.Duration{
			PurposeAccess:  orDefault(cfg.AccessTTL, DefaultAccessTTL),
			PurposeRefresh: orDefault(cfg.RefreshTTL, DefaultRefreshTTL),
			PurposeReset:   orDefault(cfg.ResetTTL, DefaultResetTTL),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// TTL returns the configured lifetime for purpose.
func (c *TokenCodec) TTL(purpose Purpose) time.Duration {
	return c.ttl[purpose]
}

func (c *TokenCodec) key(purpose Purpose) ([]byte, error) {
	switch purpose {
	case PurposeAccess, PurposeReset:
		return c.accessKey, nil
	case PurposeRefresh:
		return c.refreshKey, nil
	default:
		return nil, fmt.Errorf("unknown token purpose %q", purpose)
	}
}

// Issue signs a token for subject with the given purpose and lifetime and
// returns it with its expiry.
func (c *TokenCodec) Issue(subject string, purpose Purpose, ttl time.Duration) (string, time.Time, error) {
	key, err := c.key(purpose)
	if err != nil {
		return "", time.Time{}, err
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, expiresAt, nil
}

// IssuePair issues an access and a refresh token for subject.
func (c *TokenCodec) IssuePair(subject string) (domain.TokenPair, error) {
	access, _, err := c.Issue(subject, PurposeAccess, c.ttl[PurposeAccess])
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, _, err := c.Issue(subject, PurposeRefresh, c.ttl[PurposeRefresh])
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks the signature, expiry and purpose of token. It fails with
// ErrSignatureInvalid, ErrExpired or ErrPurposeMismatch. A token signed with
// the other class's key is a purpose mismatch, not a bad signature.
func (c *TokenCodec) Verify(token string, expected Purpose) (*Claims, error) {
	key, err := c.key(expected)
	if err != nil {
		return nil, err
	}

	claims, err := c.parse(token, key)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid) && c.signedWith(token, c.otherKey(expected)):
		return nil, fmt.Errorf("%w: want %s, signed for another class", ErrPurposeMismatch, expected)
	default:
		return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}

	if claims.Purpose != expected {
		return nil, fmt.Errorf("%w: want %s, got %q", ErrPurposeMismatch, expected, claims.Purpose)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrSignatureInvalid)
	}
	return claims, nil
}

func (c *TokenCodec) parse(token string, key []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	return claims, err
}

func (c *TokenCodec) otherKey(purpose Purpose) []byte {
	if purpose == PurposeRefresh {
		return c.accessKey
	}
	return c.refreshKey
}

// signedWith reports whether token carries a valid signature under key,
// regardless of its expiry.
func (c *TokenCodec) signedWith(token string, key []byte) bool {
	_, err := c.parse(token, key)
	return err == nil || errors.Is(err, jwt.ErrTokenExpired)
}
