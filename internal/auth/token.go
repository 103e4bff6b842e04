// Package auth provides the session token model, its persistent store and
// the hosted authentication service.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/smarttourjo/core/internal/errors"
)

// Token is the persisted session credential pair.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Valid reports whether the token carries an access token.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != ""
}

// Claims are the access token claims the client reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Claims parses the access token without verifying its signature.
func (t *Token) Claims() (*Claims, error) {
	if !t.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, "no access token")
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, claims); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "malformed access token", err)
	}
	return claims, nil
}

// UserID returns the token subject.
func (t *Token) UserID() (string, error) {
	claims, err := t.Claims()
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", apperrors.New(apperrors.ErrInvalid, "access token has no subject")
	}
	return claims.Subject, nil
}

// ExpiresAt returns the access token expiry. ok is false when absent.
func (t *Token) ExpiresAt() (exp time.Time, ok bool) {
	claims, err := t.Claims()
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether the token has an expiry at or before now.
func (t *Token) Expired(now time.Time) bool {
	exp, ok := t.ExpiresAt()
	return ok && !now.Before(exp)
}
