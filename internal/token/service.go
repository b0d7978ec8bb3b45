// Package token issues and verifies the signed credentials used by the
// request gate: short-lived HS256 access tokens and single-use password
// reset tokens whose digest is the only thing ever persisted.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalid covers every verification failure: bad signature, malformed
// payload, unexpected algorithm, expired token. Callers never see the
// underlying parser error across the package boundary.
var ErrInvalid = errors.New("token: invalid or expired")

// Claims is the payload embedded in an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// PrincipalID parses the subject claim.
func (c *Claims) PrincipalID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token: parse subject: %w", err)
	}
	return id, nil
}

// Service signs and verifies access tokens with a shared HMAC secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(secret string, ttl time.Duration, issuer string) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue produces a signed token for the principal with the configured TTL.
func (s *Service) Issue(principalID int64) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(principalID, 10),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the claims.
func (s *Service) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}
