// Package session issues and verifies the self-contained session token
// carried in the "session" cookie. Nothing is stored server-side: the token
// is an HS256 JWT embedding the Discord identity and the provider tokens.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// TTL is how long an issued session stays valid.
const TTL = 7 * 24 * time.Hour

var (
	ErrInvalid = errors.New("invalid session")
	ErrExpired = errors.New("session expired")
)

// Claims is the decoded session payload.
type Claims struct {
	UserID       string  `json:"id"`
	Username     string  `json:"username"`
	Avatar       *string `json:"avatar,omitempty"`
	AccessToken  string  `json:"token"`
	RefreshToken string  `json:"refresh"`
	jwt.RegisteredClaims
}

type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner derives the HMAC key from secret with HKDF-SHA256.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("guilddash session v1")), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &Signer{key: key, ttl: TTL, now: time.Now}, nil
}

// Issue signs claims for the user, valid for TTL from now.
func (s *Signer) Issue(c Claims) (string, error) {
	now := s.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// Verify checks signature and expiry and returns the embedded claims.
// Failures wrap ErrExpired or ErrInvalid.
func (s *Signer) Verify(token string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	case c.UserID == "" || c.Subject != c.UserID:
		return nil, fmt.Errorf("%w: subject mismatch", ErrInvalid)
	}
	return &c, nil
}
