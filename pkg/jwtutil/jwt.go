package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"mealorder-service/pkg/config"
)

var cfg *config.JWTConfig

// Initialize sets the JWT configuration used for signing and validation.
func Initialize(jwtConfig *config.JWTConfig) {
	cfg = jwtConfig
}

// UserClaims represents the JWT claims for an authenticated principal.
// Role and account status are baked into the token so downstream checks
// do not need a user lookup on every request; forced-logout revocation is
// checked separately against the issued-at timestamp.
type UserClaims struct {
	Email        string `json:"email"`
	UserID       uint   `json:"user_id"`
	UniversityID *uint  `json:"university_id,omitempty"`
	Role         string `json:"role"`
	Status       string `json:"status"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the given principal.
func GenerateToken(email string, userID uint, universityID *uint, role, status string) (string, error) {
	if cfg == nil {
		return "", errors.New("JWT configuration not provided")
	}

	claims := UserClaims{
		Email:        email,
		UserID:       userID,
		UniversityID: universityID,
		Role:         role,
		Status:       status,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(cfg.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.SigningKey))
}

// ValidateToken validates and parses the JWT token
func ValidateToken(tokenString string) (*UserClaims, error) {
	if cfg == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(cfg.SigningKey), nil
		},
	)

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
