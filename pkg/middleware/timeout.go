package middleware

import (
	"net/http"
	"time"
)

// Timeout bounds handler run time. Handlers that overrun get a 503 with a
// JSON error body; their later writes are discarded.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.TimeoutHandler(next, timeout, `{"error":"request timeout"}`)
	}
}
