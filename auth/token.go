package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrTokenMissing is returned when no token was presented at all.
	ErrTokenMissing = errors.New("session token missing")
	// ErrTokenInvalid covers malformed, forged, re-signed, subject-less and
	// expired tokens alike. Callers must not try to tell them apart.
	ErrTokenInvalid = errors.New("session token invalid")
)

// TokenIssuer mints and verifies HMAC-signed JWT session tokens. It holds no
// mutable state and is safe for concurrent use.
type TokenIssuer struct {
	secret []byte
	method jwt.SigningMethod
	clock  clockwork.Clock
}

// NewTokenIssuer returns an issuer for one of HS256, HS384 or HS512.
func NewTokenIssuer(secret []byte, algorithm string, clock clockwork.Clock) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token signing secret is empty")
	}

	var method jwt.SigningMethod
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &TokenIssuer{secret: key, method: method, clock: clock}, nil
}

// Claims is what a verified token asserts.
type Claims struct {
	Subject string
	// UserID binds the token to one account; empty when the token was
	// issued without it.
	UserID   string
	IssuedAt time.Time
}

type sessionClaims struct {
	UserID string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a token for subject that expires ttl from now.
func (i *TokenIssuer) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	return i.IssueFor(subject, "", ttl)
}

// IssueFor is Issue with the subject bound to the account userID, so the
// token stops resolving if subject later names a different account.
func (i *TokenIssuer) IssueFor(subject, userID string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("token subject is empty")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}

	now := i.clock.Now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(i.method, sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt.Truncate(time.Second), nil
}

// Verify checks signature and expiry and returns the token's subject.
func (i *TokenIssuer) Verify(tokenString string) (string, error) {
	claims, err := i.VerifyClaims(tokenString)
	return claims.Subject, err
}

// VerifyClaims is Verify returning every claim the session relies on.
func (i *TokenIssuer) VerifyClaims(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, ErrTokenMissing
	}

	parsed := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, parsed,
		func(*jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if parsed.Subject == "" {
		return Claims{}, ErrTokenInvalid
	}

	claims := Claims{Subject: parsed.Subject, UserID: parsed.UserID}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	return claims, nil
}
