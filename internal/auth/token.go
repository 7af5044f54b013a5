// Package auth issues and verifies the JWT access tokens the API uses and
// wraps password hashing.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/talep-board/internal/domain"
)

// Claims is the access token payload. Role flags are baked in at login;
// a role change requires a new token.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	OrgUnit string `json:"org_unit,omitempty"`
	Title   string `json:"title,omitempty"`
	Editor  bool   `json:"editor"`
	Monitor bool   `json:"monitor"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies access tokens with a shared HMAC secret.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a manager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token carrying the identity.
func (m *TokenManager) Issue(identity domain.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:   identity.Email,
		Name:    identity.DisplayName,
		OrgUnit: identity.OrgUnit,
		Title:   identity.Title,
		Editor:  identity.Editor,
		Monitor: identity.Monitor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse verifies a token and returns its claims.
func (m *TokenManager) Parse(raw string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return &claims, nil
}

// Identity rebuilds the acting identity from verified claims.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{
		Email:       c.Email,
		DisplayName: c.Name,
		OrgUnit:     c.OrgUnit,
		Title:       c.Title,
		Editor:      c.Editor,
		Monitor:     c.Monitor,
	}
}
