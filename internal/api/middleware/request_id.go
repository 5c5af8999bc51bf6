// Package middleware holds the http.Handler wrappers shared by every AuraCast
// route.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Client IDs longer than this are replaced.
const maxRequestIDLength = 128

type requestIDKey struct{}

// RequestID keeps a caller-supplied X-Request-Id or mints a "req_" ID, then
// echoes it on the response and exposes it through GetRequestID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:22]
		}

		w.Header().Set("X-Request-Id", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the ID set by RequestID, or "" outside that middleware.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
