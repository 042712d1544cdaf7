package server

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("any-secret-works-since-we-never-verify"))
	require.NoError(t, err)
	return signed
}

func TestDecodeBearerClaims(t *testing.T) {
	t.Run("no authorization header yields empty claims", func(t *testing.T) {
		claims, err := decodeBearerClaims("")
		require.NoError(t, err)
		assert.Empty(t, claims)
	})

	t.Run("non-bearer scheme yields empty claims", func(t *testing.T) {
		claims, err := decodeBearerClaims("Basic dXNlcjpwYXNz")
		require.NoError(t, err)
		assert.Empty(t, claims)
	})

	t.Run("decodes an unverified bearer token", func(t *testing.T) {
		token := signedTestToken(t, jwt.MapClaims{
			"role": "editor",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		claims, err := decodeBearerClaims("Bearer " + token)
		require.NoError(t, err)
		assert.Equal(t, "editor", claims["role"])
	})

	t.Run("malformed token is rejected", func(t *testing.T) {
		_, err := decodeBearerClaims("Bearer not-a-jwt")
		assert.Error(t, err)
	})
}

func TestRoleFromClaims(t *testing.T) {
	tests := []struct {
		name     string
		claims   map[string]any
		claimKey string
		anonRole string
		expected string
	}{
		{
			name:     "top-level claim",
			claims:   map[string]any{"role": "editor"},
			claimKey: "role",
			anonRole: "anon",
			expected: "editor",
		},
		{
			name:     "nested dotted path",
			claims:   map[string]any{"app_metadata": map[string]any{"role": "admin"}},
			claimKey: "app_metadata.role",
			anonRole: "anon",
			expected: "admin",
		},
		{
			name:     "missing claim falls back to anon",
			claims:   map[string]any{},
			claimKey: "role",
			anonRole: "anon",
			expected: "anon",
		},
		{
			name:     "non-string claim value falls back to anon",
			claims:   map[string]any{"role": 123},
			claimKey: "role",
			anonRole: "anon",
			expected: "anon",
		},
		{
			name:     "intermediate path segment not a map falls back to anon",
			claims:   map[string]any{"app_metadata": "not-a-map"},
			claimKey: "app_metadata.role",
			anonRole: "anon",
			expected: "anon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roleFromClaims(tt.claims, tt.claimKey, tt.anonRole)
			assert.Equal(t, tt.expected, got)
		})
	}
}
