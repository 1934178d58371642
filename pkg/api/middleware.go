package api

import (
	"net/http"
	"time"

	"github.com/ethpandaops/minibench/pkg/config"
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
func (s *server) requireBasicAuth(
	users []config.BasicAuthUser,
) func(http.Handler) http.Handler {
	hashes := make(map[string][]byte, len(users))
	for _, u := range users {
		hashes[u.Username] = []byte(u.PasswordHash)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w, "authentication required")

				return
			}

			hash, known := hashes[username]
			if !known || !checkPassword(hash, password) {
				s.log.WithField("username", username).
					WithField("remote", r.RemoteAddr).
					Debug("Rejected basic auth credentials")

				unauthorized(w, "invalid credentials")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checkPassword compares a bcrypt hash with a plaintext password.
func checkPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="minibench"`)
	writeJSON(w, http.StatusUnauthorized, errorResponse{msg})
}
