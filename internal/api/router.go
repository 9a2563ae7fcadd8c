// Package api exposes the fleet telemetry pipeline over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/savegress/fleetsense/internal/analytics"
	"github.com/savegress/fleetsense/internal/config"
	"github.com/savegress/fleetsense/internal/metrics"
	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/internal/telemetry"
)

// Server represents the API server
type Server struct {
	router     chi.Router
	store      storage.Store
	telemetry  *telemetry.Service
	aggregator *analytics.Aggregator
	log        zerolog.Logger
}

// NewServer creates a new API server
func NewServer(store storage.Store, telemetrySvc *telemetry.Service, aggregator *analytics.Aggregator, auth config.AuthConfig, log zerolog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		store:      store,
		telemetry:  telemetrySvc,
		aggregator: aggregator,
		log:        log.With().Str("component", "api").Logger(),
	}

	s.setupRoutes(auth)
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(auth config.AuthConfig) {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health and metrics stay outside auth.
	s.router.Get("/health", s.healthCheck)
	s.router.Method(http.MethodGet, "/monitoring/metrics", metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(auth))

		r.Route("/fleets", func(r chi.Router) {
			r.Get("/", s.listFleets)
			r.Post("/", s.createFleet)
		})

		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", s.listVehicles)
			r.Post("/{vin}", s.registerVehicle)
			r.Get("/{vin}", s.getVehicle)
		})

		r.Route("/telemetry", func(r chi.Router) {
			r.Post("/bulk", s.ingestTelemetryBulk)
			r.Post("/{vin}", s.ingestTelemetry)
			r.Get("/history/{vin}", s.telemetryHistory)
			r.Get("/latest/{vin}", s.latestTelemetry)
			r.Get("/fleet/{fleetID}", s.fleetTelemetry)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/history/{vin}", s.alertHistory)
			r.Get("/latest/{vin}", s.latestAlert)
			r.Get("/summary/{vin}", s.alertSummary)
			r.Get("/fleet/{fleetID}", s.fleetAlerts)
			r.Get("/stats/fleet/{fleetID}", s.fleetAlertStats)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/", s.allFleetAnalytics)
			r.Post("/refresh", s.refreshAnalytics)
			r.Get("/{fleetID}", s.fleetAnalytics)
			r.Get("/{fleetID}/vehicles/status", s.fleetVehicleStatus)
		})
	})
}
