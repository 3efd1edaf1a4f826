// Package auth issues and validates the bearer tokens accepted by the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the caller's role claim.
type Role string

const (
	RoleDriver Role = "driver"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

// Claims are the custom JWT claims.
type Claims struct {
	UserID uuid.UUID `json:"uid"`
	Role   Role      `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies HS256 tokens.
type JWTManager struct {
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// NewJWTManager creates a JWTManager.
func NewJWTManager(secret string, accessTokenTTL, refreshTokenTTL time.Duration) *JWTManager {
	return &JWTManager{
		secret:          []byte(secret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// GenerateAccessToken signs a short-lived token for the user.
func (m *JWTManager) GenerateAccessToken(userID uuid.UUID, role Role) (string, error) {
	return m.sign(userID, role, m.accessTokenTTL)
}

// GenerateRefreshToken signs a long-lived token for the user.
func (m *JWTManager) GenerateRefreshToken(userID uuid.UUID, role Role) (string, error) {
	return m.sign(userID, role, m.refreshTokenTTL)
}

func (m *JWTManager) sign(userID uuid.UUID, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token string.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}
