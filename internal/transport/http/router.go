// Package http mounts the public API surface. Handlers stay thin: decode,
// delegate to a service, encode.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	orghandler "custodia/internal/org/handler"
	parthandler "custodia/internal/partnership/handler"
	"custodia/internal/platform/middleware"
)

const requestTimeout = 30 * time.Second

// Deps collects everything the router mounts.
type Deps struct {
	Org        *orghandler.Handler
	Partners   *parthandler.Handler
	Products   *ProductsHandler
	Auth       middleware.TokenValidator
	Logger     *slog.Logger
	HealthFunc func() error
}

// NewRouter wires middleware, the public group and the authenticated group.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", healthHandler(deps.HealthFunc))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public: registration, login, and the consumer-facing product surface.
	r.Group(func(r chi.Router) {
		deps.Org.RegisterPublic(r)
		deps.Products.RegisterPublic(r)
	})

	// Everything else requires a valid access token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Auth, deps.Logger))
		deps.Org.RegisterProtected(r)
		deps.Partners.Register(r)
		deps.Products.RegisterProtected(r)
	})

	return r
}

func healthHandler(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
