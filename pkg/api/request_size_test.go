package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestBodySizeLimitMiddleware(t *testing.T) {
	t.Parallel()

	const limit = 1 << 20

	wrap := requestBodySizeLimitMiddleware(limit)

	// readingHandler drains the body so the MaxBytesReader wrapping is
	// actually exercised, then reports 200.
	readingHandler := func(t *testing.T) http.Handler {
		t.Helper()
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := io.Copy(io.Discard, r.Body)
			assert.NoError(t, err, "a body within the limit should read cleanly")
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("bodies up to the limit pass", func(t *testing.T) {
		t.Parallel()
		for _, size := range []int{0, limit - 1, limit} {
			req := httptest.NewRequest(http.MethodPost, "/api/v1beta/heb/cookies", bytes.NewReader(make([]byte, size)))
			rec := httptest.NewRecorder()

			wrap(readingHandler(t)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code, "a %d byte body should pass", size)
		}
	})

	t.Run("oversized Content-Length is rejected before the handler", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/api/v1beta/heb/cookies", bytes.NewReader(make([]byte, limit+1)))
		rec := httptest.NewRecorder()

		var reached bool
		next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true })
		wrap(next).ServeHTTP(rec, req)

		assert.False(t, reached, "the handler should never run for an oversized Content-Length")
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, rec.Body.String(), "Request Entity Too Large")
	})

	t.Run("understated Content-Length still ends in 413", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/api/v1beta/heb/cookies", bytes.NewReader(make([]byte, limit+100)))
		// Understate the length so the early check passes and MaxBytesReader
		// trips mid-read instead.
		req.ContentLength = limit - 1
		rec := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		wrap(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code,
			"the handler's 400 should surface as 413 once the limit tripped")
	})
}
