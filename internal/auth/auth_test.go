package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	j, err := NewJWT("s3cret", "resq")
	require.NoError(t, err)

	token, err := j.Issue("user-1", time.Hour)
	require.NoError(t, err)

	uid, err := j.AuthenticateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
}

func TestJWTRejects(t *testing.T) {
	j, err := NewJWT("s3cret", "resq")
	require.NoError(t, err)

	other, err := NewJWT("other", "resq")
	require.NoError(t, err)
	wrongSecret, err := other.Issue("user-1", time.Hour)
	require.NoError(t, err)

	expired, err := j.Issue("user-1", -time.Minute)
	require.NoError(t, err)

	foreign, err := NewJWT("s3cret", "someone-else")
	require.NoError(t, err)
	wrongIssuer, err := foreign.Issue("user-1", time.Hour)
	require.NoError(t, err)

	noSubject, err := j.Issue("", time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.StandardClaims{Subject: "user-1", Issuer: "resq"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": wrongSecret,
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := j.AuthenticateToken(context.Background(), token)
			assert.Error(t, err)
		})
	}

	_, err = NewJWT("", "resq")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	var seen string
	handler := Middleware(MockClient{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/user/push/vapid-key", nil)
	req.Header.Set("Authorization", "Bearer user-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "user-42", seen)

	for _, header := range []string{"", "Bearer", "Basic dXNlcjpwYXNz", "Bearer  "} {
		seen = ""
		req := httptest.NewRequest("GET", "/user/push/vapid-key", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, header)
		assert.JSONEq(t, `{"success":false,"error":"Missing bearer token"}`, rr.Body.String())
		assert.Empty(t, seen)
	}
}

func TestMiddlewareInvalidToken(t *testing.T) {
	j, err := NewJWT("s3cret", "resq")
	require.NoError(t, err)

	handler := Middleware(j)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid token"}`, rr.Body.String())
}

func TestUserIDFromContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = UserIDFromContext(WithUserID(context.Background(), ""))
	assert.False(t, ok)

	id, ok := UserIDFromContext(WithUserID(context.Background(), "u"))
	assert.True(t, ok)
	assert.Equal(t, "u", id)
}
