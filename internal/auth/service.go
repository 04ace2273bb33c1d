// Package auth guards the admin surface: the operator exchanges the admin
// key for a short-lived bearer token.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid admin key")
	ErrInvalidToken       = errors.New("invalid token")
	ErrDisabled           = errors.New("admin access is not configured")
)

// TokenPair is the login response.
type TokenPair struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"` // seconds
}

// Claims are the JWT claims carried by an admin token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service verifies the bcrypt-hashed admin key and issues HS256 tokens.
// An empty key hash disables the whole admin surface.
type Service struct {
	keyHash []byte
	secret  []byte
	ttl     time.Duration

	now func() time.Time
}

func NewService(keyHash, jwtSecret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		keyHash: []byte(keyHash),
		secret:  []byte(jwtSecret),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Enabled reports whether admin access is configured.
func (s *Service) Enabled() bool { return len(s.keyHash) > 0 }

// Login exchanges the admin key for a token pair.
func (s *Service) Login(key string) (*TokenPair, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword(s.keyHash, []byte(key)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	claims := Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "toolbox",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: signed, ExpiresIn: int(s.ttl.Seconds())}, nil
}

// ValidateToken parses and verifies an admin token.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != "admin" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
