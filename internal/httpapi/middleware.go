package httpapi

import (
	"net/http"
	"strings"

	"github.com/mktetts/sei-solar-depin/internal/security"
)

// RequireBearer gates a handler behind a static bearer token. An empty token
// disables the gate, for local development only. Comparison runs over hashes
// so token length never leaks.
func RequireBearer(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	want := security.HashSecretSHA256(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		got := security.HashSecretSHA256(strings.TrimPrefix(auth, "Bearer "))
		if !security.ConstantTimeEqualHex(want, got) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
