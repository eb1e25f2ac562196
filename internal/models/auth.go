package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries the identity attached to scheduling requests. Identity
// management itself lives in a separate system; this API only validates
// tokens it is handed.
type JWTClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
