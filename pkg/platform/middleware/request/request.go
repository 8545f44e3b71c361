// Package request assigns every inbound request an ID so log lines across
// the middleware chain, handlers, and services correlate.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"veristay/pkg/requestcontext"
)

// HeaderRequestID carries a caller-supplied request ID; one is generated
// when absent.
const HeaderRequestID = "X-Request-ID"

// Middleware ensures a request ID is present in the context and echoed on
// the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
