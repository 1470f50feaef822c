// Package routes configures the HTTP surface of the router.
package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/solforge/rpc-router/app"
	"github.com/solforge/rpc-router/handlers"
	"github.com/solforge/rpc-router/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	requestTimeout := deps.Config.Server.WriteTimeout.Std()
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	r.Use(chimiddleware.Timeout(requestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.Router, deps.Logger)
	rpcHandler := handlers.NewRPCHandler(deps.Router, deps.Logger)
	bundleHandler := handlers.NewBundleHandler(deps.Router, deps.Logger)
	feeHandler := handlers.NewFeeHandler(deps.Router, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleLiveness)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// Prometheus scrape endpoint
	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Router.MetricsRegistry().Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", healthHandler.HandleStatus)
		r.Get("/metrics", healthHandler.HandleMetrics)

		r.Post("/rpc", rpcHandler.HandleCall)
		r.Post("/bundles", bundleHandler.HandleSubmit)
		r.Get("/fees", feeHandler.HandleEstimate)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
