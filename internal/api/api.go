// Package api implements the REST surface of the Bifrost engine.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/bifrost/internal/bucketing"
	"github.com/rafaeljc/bifrost/internal/catalog"
	"github.com/rafaeljc/bifrost/internal/config"
	"github.com/rafaeljc/bifrost/internal/experiments"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
	"github.com/rafaeljc/bifrost/internal/validation"
)

// Engine is the subset of experiments.Service the handlers use.
type Engine interface {
	LoadSegmentsAndExperiments(ctx context.Context) error
	CatalogStatus() experiments.CatalogStatus
	Experiment(name string) (catalog.Experiment, bool)
	ExperimentActive(name string) bool
	InExperiment(ctx context.Context, name, variant string, user ruleengine.UserContext) experiments.Result
	SetVariantOverride(name, variant string) bool
	TestDistribution(identities []string, salt string, percentages ...float64) bucketing.DistributionReport
}

// Dimensions resolves and resets the telemetry dimension of a user.
type Dimensions interface {
	CustomDimension(ctx context.Context, identity string) (string, error)
	Forget(ctx context.Context, identity string) error
}

// API holds the dependencies and the router of the REST server.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	engine     Engine
	dimensions Dimensions

	// apiKeyHash is the hex SHA-256 of the valid API key. Empty disables auth.
	apiKeyHash   string
	maxBodyBytes int64
}

// NewAPI wires the router. Authentication on /api/v1 is enabled when
// cfg.APIKeyHash is set; config validation rejects an empty hash in production.
//
// Panics if engine, dimensions or cfg are nil.
func NewAPI(engine Engine, dimensions Dimensions, cfg *config.ServerConfig) *API {
	validation.AssertProvided(engine, "engine")
	validation.AssertProvided(dimensions, "dimensions")
	validation.AssertNotNil(cfg, "server config")

	a := &API{
		Router:       chi.NewRouter(),
		engine:       engine,
		dimensions:   dimensions,
		apiKeyHash:   strings.ToLower(cfg.APIKeyHash),
		maxBodyBytes: cfg.MaxBodyBytes,
	}

	a.configureRoutes()
	return a
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	a.Router.Use(RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger)
	a.Router.Use(RequestMetrics)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))
	if a.maxBodyBytes > 0 {
		a.Router.Use(middleware.RequestSize(a.maxBodyBytes))
	}

	a.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "Route not found")
	})

	// Public routes
	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Get("/catalog", a.handleCatalogStatus)
		r.Post("/catalog/reload", a.handleReload)

		r.Route("/experiments/{name}", func(r chi.Router) {
			r.Get("/", a.handleGetExperiment)
			r.Get("/active", a.handleExperimentActive)
			r.Post("/assignments", a.handleAssign)
			r.Put("/override", a.handleSetOverride)
		})

		r.Post("/distribution", a.handleDistribution)
		r.Get("/dimensions/{identity}", a.handleGetDimension)
		r.Delete("/dimensions/{identity}", a.handleForgetDimension)
	})
}

// handleHealthCheck only reports that the HTTP server is serving.
// Dependency checks live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
