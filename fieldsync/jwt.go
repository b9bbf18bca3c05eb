// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClientAuthenticator extracts the acting user's identity from HTTP requests.
// Implementations should validate auth (e.g., JWT) and provide both the
// stable user ID and the human-readable display name recorded on events.
type ClientAuthenticator interface {
	GetUserID(r *http.Request) (string, error)
	GetUserName(r *http.Request) (string, error)
}

// JWTAuth handles JWT authentication
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a new JWT authenticator
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// JWTClaims carries the user identity for the tracker API: the user ID in
// the standard sub claim and the display name in a custom claim.
type JWTClaims struct {
	UserName string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateToken generates a JWT token for one user session.
func (j *JWTAuth) GenerateToken(userID, userName string, expiration time.Duration) (string, error) {
	claims := &JWTClaims{
		UserName: userName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "videodept-tracker",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, fmt.Errorf("missing sub (user ID) in token")
		}
		if claims.UserName == "" {
			return nil, fmt.Errorf("missing name (display name) in token")
		}
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// tokenFromRequest pulls the bearer token from the Authorization header, or
// from the token query parameter for websocket upgrades (browsers cannot set
// headers on WebSocket connections).
func tokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return "", fmt.Errorf("bearer token required")
		}
		return tokenString, nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("authorization required")
}

func (j *JWTAuth) claimsFromRequest(r *http.Request) (*JWTClaims, error) {
	tokenString, err := tokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// GetUserID extracts the user ID from the JWT sub claim (implements ClientAuthenticator)
func (j *JWTAuth) GetUserID(r *http.Request) (string, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// GetUserName extracts the display name from the JWT name claim (implements ClientAuthenticator)
func (j *JWTAuth) GetUserName(r *http.Request) (string, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return "", err
	}
	return claims.UserName, nil
}
