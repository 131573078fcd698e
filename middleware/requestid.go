package middleware

import (
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/xraph/bastion"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID or generates a ULID,
// echoes it on the response and stores it in the request context where
// audit entries pick it up.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if rid == "" || len(rid) > 128 {
			rid = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(bastion.WithRequestID(r.Context(), rid)))
	})
}
