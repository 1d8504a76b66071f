// Package auth inspects the bearer credential issued by the remote API. The
// client never holds the signing secret, so tokens are decoded without
// verification; the API remains the authority and answers 401 when it
// disagrees.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the decoded view of a bearer token.
type Credential struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the credential carries an expiry that is already past.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// InspectCredential decodes token without verifying its signature.
func InspectCredential(token string) (Credential, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Credential{}, fmt.Errorf("credential is empty")
	}

	claims := &CredentialClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Credential{}, fmt.Errorf("decoding credential: %w", err)
	}

	cred := Credential{UserID: claims.Subject()}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred, nil
}

// BearerHeader formats token for the Authorization header.
func BearerHeader(token string) string {
	return "Bearer " + strings.TrimSpace(token)
}
