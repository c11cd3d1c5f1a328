package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
)

const SchedulerTokenHeader = "X-Scheduler-Token"

// SchedulerAuth admits only requests carrying the shared scheduler token.
// An empty configured token closes the job endpoints entirely.
func SchedulerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(SchedulerTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				log.Printf("[AUTH] Scheduler trigger rejected from %s", r.RemoteAddr)
				http.Error(w, "Invalid scheduler token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
