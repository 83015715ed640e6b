package domain

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair is the credential pair issued by the backend on login and refresh
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// HasAccessToken reports whether the pair carries a usable access token
func (p TokenPair) HasAccessToken() bool {
	return strings.TrimSpace(p.AccessToken) != ""
}

// HasRefreshToken reports whether the pair carries a usable refresh token
func (p TokenPair) HasRefreshToken() bool {
	return strings.TrimSpace(p.RefreshToken) != ""
}

// AccessClaims holds the subset of access token claims the client cares about.
// The signature is never verified client side; the values are informational.
type AccessClaims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// ParseAccessClaims decodes the claims of a JWT access token without verifying it
func ParseAccessClaims(token string) (*AccessClaims, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, err
	}

	result := &AccessClaims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	return result, nil
}

// HasExpiry reports whether the token carried an exp claim
func (c *AccessClaims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// IsExpired checks if the token has expired
func (c *AccessClaims) IsExpired() bool {
	return c.HasExpiry() && time.Now().After(c.ExpiresAt)
}

// ShouldRefresh checks if the token should be refreshed
// Returns true if the token will expire within the given duration
func (c *AccessClaims) ShouldRefresh(refreshAhead time.Duration) bool {
	if !c.HasExpiry() {
		return false
	}
	return time.Now().After(c.ExpiresAt.Add(-refreshAhead))
}

// TimeUntilExpiry returns the duration until the token expires
func (c *AccessClaims) TimeUntilExpiry() time.Duration {
	if !c.HasExpiry() {
		return 0
	}
	return time.Until(c.ExpiresAt)
}
