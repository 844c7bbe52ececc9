package services

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminTokenTTL = 7 * 24 * time.Hour

// AuthService issues and validates bearer tokens for the administrative
// surface. Guest identity is an opaque token minted elsewhere and is not
// validated here.
type AuthService struct {
	password  string
	jwtSecret string
}

// NewAuthService creates a new auth service
func NewAuthService(password, jwtSecret string) *AuthService {
	return &AuthService{password: password, jwtSecret: jwtSecret}
}

// Login exchanges the configured admin password for a signed token
func (s *AuthService) Login(password string) (string, error) {
	if s.password == "" {
		return "", fmt.Errorf("admin access is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) != 1 {
		return "", fmt.Errorf("invalid password")
	}

	claims := jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(adminTokenTTL).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateAdminToken checks a bearer token and its admin role claim
func (s *AuthService) ValidateAdminToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("invalid token claims")
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return fmt.Errorf("token is not an admin token")
	}
	return nil
}
