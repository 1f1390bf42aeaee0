package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireSecret(t *testing.T) {
	h := RequireSecret("s3cret", okHandler())

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"valid", "Bearer s3cret", http.StatusOK},
		{"wrong secret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic s3cret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestRequireSecretFailsClosed(t *testing.T) {
	h := RequireSecret("", okHandler())
	r := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	r.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireOperator(t *testing.T) {
	v := NewJWTValidator("operator-secret")
	h := RequireOperator(v, okHandler())

	opToken, err := v.IssueToken("ops@likelemba", []string{"operator"}, time.Hour)
	require.NoError(t, err)
	viewerToken, err := v.IssueToken("viewer@likelemba", []string{"viewer"}, time.Hour)
	require.NoError(t, err)
	expiredToken, err := v.IssueToken("ops@likelemba", []string{"operator"}, -time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		code  int
	}{
		{"operator role", opToken, http.StatusOK},
		{"missing role", viewerToken, http.StatusForbidden},
		{"expired", expiredToken, http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/operator/restitutions", nil)
			r.Header.Set("Authorization", "Bearer "+tc.token)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestRequireOperatorNilValidator(t *testing.T) {
	h := RequireOperator(nil, okHandler())
	r := httptest.NewRequest(http.MethodPost, "/operator/restitutions", nil)
	r.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidatorRejectsForeignSignature(t *testing.T) {
	issuer := NewJWTValidator("other-secret")
	token, err := issuer.IssueToken("ops", []string{"operator"}, time.Hour)
	require.NoError(t, err)

	v := NewJWTValidator("operator-secret")
	_, err = v.Validate(token)
	assert.Error(t, err)
}
