package auth

import "github.com/golang-jwt/jwt/v5"

// CredentialClaims is the subset of the remote API's bearer token the client reads.
// The API has used both "id" and "userId" for the subject over time.
type CredentialClaims struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// Subject returns the user id carried by the token, preferring the explicit claims.
func (c *CredentialClaims) Subject() string {
	switch {
	case c == nil:
		return ""
	case c.UserID != "":
		return c.UserID
	case c.ID != "":
		return c.ID
	default:
		return c.RegisteredClaims.Subject
	}
}
