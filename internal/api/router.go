// Package api provides the admin HTTP surface: health, per-instance
// snapshots and the manual refresh trigger.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ddareungi/ddareungi/internal/api/handler"
	"github.com/ddareungi/ddareungi/internal/api/middleware"
	"github.com/ddareungi/ddareungi/internal/station"
	"github.com/ddareungi/ddareungi/internal/upstream"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Upstreams *upstream.Registry
	Instances map[string]*handler.Instance

	// Directory backs the station resolve endpoint. Optional; without it
	// the endpoint is not mounted.
	Directory *station.Directory
}

// NewRouter creates a chi router with the admin routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Upstreams)
	instancesHandler := handler.NewInstancesHandler(cfg.Instances)

	r.Get("/health", opsHandler.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/instances", func(r chi.Router) {
			r.Get("/", instancesHandler.List)
			r.Route("/{instanceID}", func(r chi.Router) {
				r.Get("/snapshot", instancesHandler.Snapshot)
				r.Post("/refresh", instancesHandler.Refresh)
			})
		})

		if cfg.Directory != nil {
			stationsHandler := handler.NewStationsHandler(cfg.Directory)
			r.Get("/stations/resolve", stationsHandler.Resolve)
		}
	})

	return r
}
