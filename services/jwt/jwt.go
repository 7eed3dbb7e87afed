package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// AccessTokenValidity is how long an issued token stays valid.
const AccessTokenValidity = time.Hour * 24

// ValidateAndGetClaims validates a token against the secret and returns
// its claims.
func ValidateAndGetClaims(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// GenerateToken issues a signed access token for a user.
func GenerateToken(userID uint, isAdmin bool, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is not set")
	}
	claims := jwt.MapClaims{
		"id":       userID,
		"is_admin": isAdmin,
		"exp":      time.Now().Add(AccessTokenValidity).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
