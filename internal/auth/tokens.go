// Package auth issues and checks session tokens and guards routes by role.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs HS256 session tokens carrying the user id (sub) and role.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) TTL() time.Duration { return t.ttl }

func (t *Tokens) Issue(userID int64, role models.Role) (string, error) {
	now := t.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates the signature and expiry and returns the subject and role.
func (t *Tokens) Parse(raw string) (int64, models.Role, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return 0, "", fmt.Errorf("invalid token: %w", apperr.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("invalid subject claim: %w", apperr.ErrUnauthorized)
	}
	if !claims.Role.Valid() {
		return 0, "", fmt.Errorf("invalid role claim: %w", apperr.ErrUnauthorized)
	}
	return id, claims.Role, nil
}
