// Package http assembles the chi router: middleware chain, public probes,
// the analyzer callback, and the authenticated API surface.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	documenthandler "veristay/internal/document/handler"
	amihandler "veristay/internal/incomelimits/handler"
	overridehandler "veristay/internal/override/handler"
	propertyhandler "veristay/internal/property/handler"
	rentrollhandler "veristay/internal/rentroll/handler"
	residenthandler "veristay/internal/resident/handler"
	verificationhandler "veristay/internal/verification/handler"
	"veristay/pkg/platform/middleware/admin"
	"veristay/pkg/platform/middleware/auth"
	request "veristay/pkg/platform/middleware/request"
	"veristay/pkg/platform/middleware/requesttime"
)

// Handlers are the per-module handlers the router mounts.
type Handlers struct {
	Property     *propertyhandler.Handler
	Verification *verificationhandler.Handler
	Document     *documenthandler.Handler
	Resident     *residenthandler.Handler
	Override     *overridehandler.Handler
	RentRoll     *rentrollhandler.Handler
	AMI          *amihandler.Handler
}

// Health reports readiness of the process's dependencies.
type Health func() error

// New builds the full router. The analyzer callback sits outside the user
// auth chain; it carries its own token check. Everything else under the
// API requires a valid bearer token, and /admin additionally requires the
// ADMIN role.
func New(h Handlers, validator *auth.Validator, health Health, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(request.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Analyzer callback: token-authenticated, not user-authenticated.
	r.Group(func(r chi.Router) {
		h.Document.RegisterCallback(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(validator, logger))

		h.Property.Register(r)
		h.Verification.Register(r)
		h.Document.Register(r)
		h.Resident.Register(r)
		h.Override.Register(r)
		h.RentRoll.Register(r)
		h.AMI.Register(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(admin.RequireAdmin(logger))
			h.Override.RegisterAdmin(r)
		})
	})

	return r
}
