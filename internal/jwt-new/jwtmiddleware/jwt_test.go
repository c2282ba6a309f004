package jwtmiddleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	security "github.com/linemk/lookbox-ledger/internal/jwt-new"
	"github.com/linemk/lookbox-ledger/internal/jwt-new/jwtmiddleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "testsecret"

func echoAccount() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "account not found", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(accountID))
	})
}

func serve(authHeader string) *httptest.ResponseRecorder {
	handler := jwtmiddleware.NewJWTMiddleware(testSecret)(echoAccount())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestJWTMiddleware_MissingAuthorization(t *testing.T) {
	rr := serve("")

	assert.Equal(t, http.StatusUnauthorized, rr.Code, "Expected unauthorized status when no token provided")
	assert.True(t, strings.Contains(rr.Body.String(), "missing token"))
}

func TestJWTMiddleware_InvalidAuthorizationFormat(t *testing.T) {
	rr := serve("InvalidFormat")

	assert.Equal(t, http.StatusUnauthorized, rr.Code, "Expected unauthorized status for invalid token format")
	assert.True(t, strings.Contains(rr.Body.String(), "invalid token format"))
}

func TestJWTMiddleware_InvalidToken(t *testing.T) {
	rr := serve("Bearer invalid.token.value")

	assert.Equal(t, http.StatusUnauthorized, rr.Code, "Expected unauthorized status for invalid token")
	assert.True(t, strings.Contains(rr.Body.String(), "invalid token"))
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	tokenStr, err := security.NewToken("acc-1", "other-secret", time.Hour)
	require.NoError(t, err)

	rr := serve("Bearer " + tokenStr)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	tokenStr, err := security.NewToken("acc-1", testSecret, -time.Minute)
	require.NoError(t, err)

	rr := serve("Bearer " + tokenStr)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestJWTMiddleware_MissingSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rr := serve("Bearer " + tokenStr)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "sub not found")
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr, err := security.NewToken("7f1c2a9e-user", testSecret, time.Hour)
	require.NoError(t, err)

	rr := serve("Bearer " + tokenStr)

	assert.Equal(t, http.StatusOK, rr.Code, "Expected OK status for valid token")
	assert.Equal(t, "7f1c2a9e-user", rr.Body.String())
}

func TestNewJWTMiddleware_EmptySecretPanics(t *testing.T) {
	assert.Panics(t, func() {
		jwtmiddleware.NewJWTMiddleware("")
	})
}

func TestFromContext(t *testing.T) {
	ctx := jwtmiddleware.WithAccountID(context.Background(), "acc-456")
	accountID, ok := jwtmiddleware.FromContext(ctx)
	assert.True(t, ok, "Expected to retrieve account from context")
	assert.Equal(t, "acc-456", accountID)

	_, ok = jwtmiddleware.FromContext(context.Background())
	assert.False(t, ok)
}
