// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTAuth_GenerateToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	userID := "user-123"
	userName := "Dana Ops"
	duration := time.Hour

	token, err := jwtAuth.GenerateToken(userID, userName, duration)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Generated token should not be empty")
	}

	claims, err := jwtAuth.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate generated token: %v", err)
	}
	if claims.Subject != userID {
		t.Errorf("Expected sub %s, got %s", userID, claims.Subject)
	}
	if claims.UserName != userName {
		t.Errorf("Expected name %s, got %s", userName, claims.UserName)
	}
	if claims.Issuer != "videodept-tracker" {
		t.Errorf("Expected issuer videodept-tracker, got %s", claims.Issuer)
	}

	if claims.ExpiresAt == nil {
		t.Fatal("Token should have expiration time")
	}
	timeDiff := claims.ExpiresAt.Time.Sub(time.Now().Add(duration)).Abs()
	if timeDiff > time.Second {
		t.Errorf("Token expiry differs by more than 1 second: %v", timeDiff)
	}
}

func TestJWTAuth_ValidateToken_InvalidSecret(t *testing.T) {
	jwtAuth1 := NewJWTAuth("secret-1")
	jwtAuth2 := NewJWTAuth("secret-2")

	token, err := jwtAuth1.GenerateToken("user-1", "User One", time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := jwtAuth2.ValidateToken(token); err == nil {
		t.Error("Expected validation to fail with different secret")
	}
}

func TestJWTAuth_ValidateToken_ExpiredToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	token, err := jwtAuth.GenerateToken("user-1", "User One", time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := jwtAuth.ValidateToken(token); err == nil {
		t.Error("Expected validation to fail for expired token")
	}
}

func TestJWTAuth_ValidateToken_MalformedToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	testCases := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"invalid format", "not.a.jwt"},
		{"random string", "random-string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := jwtAuth.ValidateToken(tc.token); err == nil {
				t.Errorf("Expected validation to fail for %s", tc.name)
			}
		})
	}
}

func TestJWTAuth_ValidateToken_MissingName(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	claims := &JWTClaims{
		UserName: "",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   "user-1",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtAuth.secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	if _, err := jwtAuth.ValidateToken(tokenString); err == nil {
		t.Error("Expected validation to fail for missing display name")
	}
}

func TestJWTAuth_ValidateToken_MissingSubject(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	claims := &JWTClaims{
		UserName: "User One",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtAuth.secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	if _, err := jwtAuth.ValidateToken(tokenString); err == nil {
		t.Error("Expected validation to fail for missing subject")
	}
}

func TestJWTAuth_GetUserFromRequest(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	token, err := jwtAuth.GenerateToken("user-9", "Niner", time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	t.Run("authorization header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/productions/p1/camera", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		userID, err := jwtAuth.GetUserID(r)
		if err != nil {
			t.Fatalf("GetUserID: %v", err)
		}
		if userID != "user-9" {
			t.Errorf("Expected user-9, got %s", userID)
		}
		userName, err := jwtAuth.GetUserName(r)
		if err != nil {
			t.Fatalf("GetUserName: %v", err)
		}
		if userName != "Niner" {
			t.Errorf("Expected Niner, got %s", userName)
		}
	})

	t.Run("query parameter for websocket upgrades", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token="+token, nil)

		userID, err := jwtAuth.GetUserID(r)
		if err != nil {
			t.Fatalf("GetUserID: %v", err)
		}
		if userID != "user-9" {
			t.Errorf("Expected user-9, got %s", userID)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/productions/p1/camera", nil)
		if _, err := jwtAuth.GetUserID(r); err == nil {
			t.Error("Expected error without credentials")
		}
	})

	t.Run("non-bearer authorization", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/productions/p1/camera", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		if _, err := jwtAuth.GetUserID(r); err == nil {
			t.Error("Expected error for non-bearer authorization")
		}
	})
}
