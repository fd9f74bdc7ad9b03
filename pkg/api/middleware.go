package api

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireBasicAuth checks HTTP basic credentials against the configured
// bcrypt hashes.
func (s *server) requireBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !s.checkCredentials(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ctesttrace"`)
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), username)))
	})
}

type contextKey int

const userContextKey contextKey = iota

// withUser records the authenticated basic auth user on ctx.
func withUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userContextKey, username)
}

// userFromContext returns the user set by requireBasicAuth.
func userFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userContextKey).(string)

	return user, ok && user != ""
}

// checkCredentials reports whether username exists and password matches
// its hash.
func (s *server) checkCredentials(username, password string) bool {
	for _, u := range s.cfg.Auth.Basic.Users {
		if u.Username != username {
			continue
		}

		return checkPassword(u.PasswordHash, password)
	}

	return false
}

// checkPassword compares a bcrypt hash with a plaintext password.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword(
		[]byte(hash), []byte(password),
	) == nil
}
