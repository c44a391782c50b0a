package middleware

import (
	"net/http"
	"time"

	"plinth/pkg/requestcontext"
)

// RequestTime captures one timestamp at the start of the request so every
// write within it carries the same "now". Audit events, domain timestamps,
// and log entries from a single request never disagree on time.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
