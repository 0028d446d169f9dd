package auth

import "github.com/golang-jwt/jwt/v5"

// AdminClaims is the payload of access and refresh tokens. Subject, IssuedAt,
// ExpiresAt and ID (jti) come from the registered claims.
type AdminClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}
