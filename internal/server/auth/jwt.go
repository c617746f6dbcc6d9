// Package auth issues and verifies the admin JWTs that guard maintenance
// endpoints. There is a single role; a valid token means the caller proved
// knowledge of the admin secret at login.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mjuhl/wortkiste/internal/common"
)

const adminRole = "admin"

// Claims includes the registered claims plus the role granted at login.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// GenerateToken signs an admin token valid for validityDuration.
func GenerateToken(secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Role: adminRole,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// VerifyAdminToken checks signature, expiry and role. Any failure maps to
// ErrInvalidToken so callers never leak parser details.
func VerifyAdminToken(tokenString string, secretKey []byte) error {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrInvalidToken
		}
		return secretKey, nil
	})
	if err != nil || !token.Valid {
		return common.ErrInvalidToken
	}
	if claims.Role != adminRole {
		return common.ErrInvalidToken
	}

	return nil
}
