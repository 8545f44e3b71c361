package testutil

import (
	"net/http"

	id "veristay/pkg/domain"
	"veristay/pkg/requestcontext"
)

// WithUser adds a user ID and role to the request context, simulating what
// the auth middleware does for authenticated requests.
func WithUser(req *http.Request, userID id.UserID, role id.Role) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}

// WithManager marks the request as coming from a property manager.
func WithManager(req *http.Request, userID id.UserID) *http.Request {
	return WithUser(req, userID, id.RoleManager)
}

// WithAdmin marks the request as coming from an admin.
func WithAdmin(req *http.Request, userID id.UserID) *http.Request {
	return WithUser(req, userID, id.RoleAdmin)
}
