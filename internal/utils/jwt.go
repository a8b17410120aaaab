// Package utils provides token, password and randomness helpers.
package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidClaims is returned when a token verifies but lacks an identity.
var ErrInvalidClaims = errors.New("token is missing identity claims")

// AccessClaims is the typed payload of an access token.
type AccessClaims struct {
	UserID   uint64 `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the validated identity extracted from an access token.
type Identity struct {
	UserID    uint64
	Username  string
	Role      string
	ExpiresAt time.Time
}

// AccessSigner signs and verifies HS256 access tokens.
type AccessSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAccessSigner returns a signer. now may be nil.
func NewAccessSigner(secret, issuer string, ttl time.Duration, now func() time.Time) *AccessSigner {
	if now == nil {
		now = time.Now
	}
	return &AccessSigner{secret: []byte(secret), issuer: issuer, ttl: ttl, now: now}
}

// Sign issues a token for the identity and returns it with its expiry.
func (s *AccessSigner) Sign(userID uint64, username, role string) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := AccessClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry, then requires a non-empty
// user id, username and role.
func (s *AccessSigner) Verify(raw string) (Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var claims AccessClaims
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return Identity{}, err
	}
	if claims.UserID == 0 || claims.Username == "" || claims.Role == "" {
		return Identity{}, ErrInvalidClaims
	}
	return Identity{
		UserID:    claims.UserID,
		Username:  claims.Username,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
