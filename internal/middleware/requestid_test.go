package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDKeepsWellFormedHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "edge-7f3a:01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "edge-7f3a:01", seen)
	assert.Equal(t, "edge-7f3a:01", rec.Header().Get("X-Request-ID"))
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	for _, raw := range []string{"", "has space", "line\nbreak", strings.Repeat("a", 129)} {
		var seen string
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", raw)
		h.ServeHTTP(httptest.NewRecorder(), req)

		_, err := uuid.Parse(seen)
		require.NoError(t, err, "raw=%q", raw)
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	t.Run("listed origin gets credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		CORS([]string{"https://app.example.com"})(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("wildcard omits credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
		req.Header.Set("Origin", "https://other.example.com")
		rec := httptest.NewRecorder()
		CORS([]string{"*"})(next).ServeHTTP(rec, req)

		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		CORS([]string{"https://app.example.com"})(next).ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/tasks", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		CORS([]string{"https://app.example.com"})(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	})
}
