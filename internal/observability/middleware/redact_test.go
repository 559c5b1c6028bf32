package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactQuery(t *testing.T) {
	redact, restore := RedactQuery("code")

	var seenByLogger, seenByHandler string
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenByLogger = r.URL.String()
			next.ServeHTTP(w, r)
		})
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenByHandler = r.URL.Query().Get("code")
	})

	h := redact(logger(restore(handler)))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?code=secret&x=1", nil))

	assert.NotContains(t, seenByLogger, "secret")
	assert.Contains(t, seenByLogger, "code=REDACTED")
	assert.Equal(t, "secret", seenByHandler)
}

func TestRequestIDGeneration(t *testing.T) {
	var got string
	h := RequestIDGeneration(RequestIDPropagation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = RequestIDFromContext(r.Context())
	})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", got)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, got)
	assert.NotEqual(t, "abc", got)
	assert.Equal(t, got, rec.Header().Get("X-Request-ID"))
}
