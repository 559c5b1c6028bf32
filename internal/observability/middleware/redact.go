package middleware

import (
	"context"
	"net/http"
	"net/url"
)

type originalURLContextKey struct{}

// RedactQuery hides sensitive query parameters from the middlewares between
// redact and restore, typically Logging. Handlers behind restore see the
// original URL.
func RedactQuery(params ...string) (redact, restore func(http.Handler) http.Handler) {
	redact = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			changed := false
			for _, p := range params {
				if query.Has(p) {
					query.Set(p, "REDACTED")
					changed = true
				}
			}
			if !changed {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), originalURLContextKey{}, r.URL)
			redacted := r.Clone(ctx)
			u := *r.URL
			u.RawQuery = query.Encode()
			redacted.URL = &u
			redacted.RequestURI = u.RequestURI()
			next.ServeHTTP(w, redacted)
		})
	}

	restore = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if original, ok := r.Context().Value(originalURLContextKey{}).(*url.URL); ok {
				r = r.Clone(r.Context())
				r.URL = original
				r.RequestURI = original.RequestURI()
			}
			next.ServeHTTP(w, r)
		})
	}

	return redact, restore
}
