// Package server builds the HTTP and gRPC listeners and supervises them with the background tasks.
package server

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"opsgate/internal/admission"
	healthhandler "opsgate/internal/health/handler"
	"opsgate/internal/platform/httputil"
	"opsgate/internal/platform/metrics"
	"opsgate/internal/policy/engine"
	"opsgate/internal/server/interceptors"
	sessionhandler "opsgate/internal/session/handler"
)

// RouterDeps holds what the public router needs. Metrics may be nil.
type RouterDeps struct {
	Sessions       *sessionhandler.Handler
	Health         *healthhandler.HTTP
	Admission      interceptors.Admitter
	Tokens         interceptors.AccessVerifier
	Policy         engine.Evaluator
	TrustedProxies []netip.Prefix
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// NewRouter returns the public API handler. The global chain runs on every request,
// then each route adds admission for its class and, for privileged routes, authentication and role checks.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		interceptors.RequestID,
		interceptors.ClientMetadata(d.TrustedProxies),
		interceptors.Logging(d.Logger, d.Metrics),
		interceptors.Recover(d.Logger),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	admit := func(class admission.Class) func(http.Handler) http.Handler {
		return interceptors.Admission(d.Admission, class, d.Logger, d.Metrics)
	}

	r.With(admit(admission.ClassGeneral)).Get("/healthz", d.Health.Live)
	r.With(admit(admission.ClassGeneral)).Get("/readyz", d.Health.Ready)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(admit(admission.ClassAuth))
			r.Post("/login", d.Sessions.Login)
			r.Post("/refresh", d.Sessions.Refresh)
		})
		r.Group(func(r chi.Router) {
			r.Use(
				admit(admission.ClassPrivileged),
				interceptors.Authenticate(d.Tokens, d.Logger),
				interceptors.RequireRole(d.Policy, d.Logger),
			)
			r.Post("/logout", d.Sessions.Logout)
			r.Put("/change-password", d.Sessions.ChangePassword)
			r.Get("/profile", d.Sessions.Profile)
			r.Post("/sessions/revoke-all", d.Sessions.RevokeAll)
		})
	})
	return r
}

// NewAdminRouter serves /metrics. Bind it to a non-public address.
func NewAdminRouter(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	return r
}

// NewHTTPServer wraps handler with the timeouts every listener uses.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
