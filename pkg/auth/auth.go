// Package auth guards the HTTP surface: a shared-secret bearer for the
// scheduler trigger and HMAC-signed service tokens for operator
// endpoints.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Moziba-Labs/likelemba/core/pkg/api"
)

// OperatorClaims are the JWT claims expected on operator tokens.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// JWTValidator validates HMAC-signed operator tokens.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator. Returns nil for an empty secret,
// which makes the operator middleware fail closed.
func NewJWTValidator(secret string) *JWTValidator {
	if secret == "" {
		return nil
	}
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses and validates a token string.
func (v *JWTValidator) Validate(tokenStr string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// IssueToken signs an operator token, used by ops tooling and tests.
func (v *JWTValidator) IssueToken(subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// RequireSecret guards the scheduler trigger with a shared-secret
// bearer. An empty configured secret rejects everything (fail closed).
func RequireSecret(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			api.WriteUnauthorized(w, "Trigger authentication not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			api.WriteUnauthorized(w, "Missing or malformed Authorization header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			api.WriteUnauthorized(w, "Invalid trigger secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOperator guards operator endpoints with a validated service
// token carrying the operator role.
func RequireOperator(validator *JWTValidator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if validator == nil {
			api.WriteUnauthorized(w, "Operator authentication not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			api.WriteUnauthorized(w, "Missing or malformed Authorization header")
			return
		}
		claims, err := validator.Validate(token)
		if err != nil {
			api.WriteUnauthorized(w, "Invalid or expired token")
			return
		}
		if claims.Subject == "" {
			api.WriteUnauthorized(w, "Token subject is required")
			return
		}
		if !hasRole(claims.Roles, "operator") {
			api.WriteForbidden(w, "Operator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
