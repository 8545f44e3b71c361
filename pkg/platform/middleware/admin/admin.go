package admin

import (
	"log/slog"
	"net/http"

	id "veristay/pkg/domain"
	request "veristay/pkg/platform/middleware/request"
	"veristay/pkg/requestcontext"
)

// RequireAdmin gates routes on the ADMIN role resolved by the auth
// middleware. It must run after RequireAuth in the chain.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.Role(ctx) != id.RoleAdmin {
				logger.WarnContext(ctx, "admin route denied",
					"request_id", request.GetRequestID(ctx),
					"user_id", requestcontext.UserID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"admin role required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
