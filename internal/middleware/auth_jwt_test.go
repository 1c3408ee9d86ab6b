package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyJWTRoundTrip(t *testing.T) {
	token, err := SignJWT("s3cret", TokenClaims{Sub: "user-1", Exp: time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)

	claims, err := VerifyJWT("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Sub)

	_, err = VerifyJWT("other", token)
	assert.Error(t, err)
}

func TestVerifyJWTRejectsExpiredAndAnonymous(t *testing.T) {
	expired, _ := SignJWT("s", TokenClaims{Sub: "u", Exp: time.Now().Add(-time.Minute).Unix()})
	_, err := VerifyJWT("s", expired)
	assert.ErrorIs(t, err, errTokenExpired)

	anon, _ := SignJWT("s", TokenClaims{})
	_, err = VerifyJWT("s", anon)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestAuthJWTMiddleware(t *testing.T) {
	var seen string
	h := AuthJWT("s")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"unauthorized"`)

	token, _ := SignJWT("s", TokenClaims{Sub: "owner-9"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner-9", seen)
}
