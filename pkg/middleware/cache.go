package middleware

import "net/http"

// CacheControl sets the Cache-Control header on GET and HEAD responses.
// Review pages must reflect the latest commit, so routes use "no-cache"
// (revalidate with the ETag) or "no-store".
func CacheControl(value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
