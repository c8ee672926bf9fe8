package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/bifrost/internal/logger"
)

// handleReload processes POST /api/v1/catalog/reload.
// A failed load keeps the previous catalog and answers 502, since the
// failure belongs to the upstream feed.
func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if err := a.engine.LoadSegmentsAndExperiments(r.Context()); err != nil {
		log.Error("catalog reload failed", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadGateway, "ERR_LOAD_FAILED", err.Error())
		return
	}

	status := a.engine.CatalogStatus()
	log.Info("catalog reloaded via api",
		slog.Int("experiments", status.Experiments),
		slog.Int("segments", status.Segments),
	)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, status)
}

// handleCatalogStatus processes GET /api/v1/catalog.
func (a *API) handleCatalogStatus(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, a.engine.CatalogStatus())
}

// handleGetExperiment processes GET /api/v1/experiments/{name}.
func (a *API) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	exp, ok := a.engine.Experiment(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "Experiment not found")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ExperimentResponse{
		Experiment: exp,
		Active:     a.engine.ExperimentActive(name),
	})
}

// handleExperimentActive processes GET /api/v1/experiments/{name}/active.
// Unknown experiments are reported inactive rather than 404, matching the engine.
func (a *API) handleExperimentActive(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ActiveResponse{Active: a.engine.ExperimentActive(chi.URLParam(r, "name"))})
}

// handleAssign processes POST /api/v1/experiments/{name}/assignments.
func (a *API) handleAssign(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	name := chi.URLParam(r, "name")

	var req AssignRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}
	req.Sanitize()

	res := a.engine.InExperiment(r.Context(), name, req.Variant, req.User)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, res)
}

// handleSetOverride processes PUT /api/v1/experiments/{name}/override.
func (a *API) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	name := chi.URLParam(r, "name")

	var req OverrideRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}

	if !a.engine.SetVariantOverride(name, strings.TrimSpace(req.Variant)) {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "Experiment not found")
		return
	}

	log.Info("variant override updated",
		slog.String("experiment", name),
		slog.String("variant", req.Variant),
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleDistribution processes POST /api/v1/distribution.
func (a *API) handleDistribution(w http.ResponseWriter, r *http.Request) {
	var req DistributionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}

	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, a.engine.TestDistribution(req.Identities, req.Salt, req.Percentages...))
}

// handleGetDimension processes GET /api/v1/dimensions/{identity}.
func (a *API) handleGetDimension(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	identity := chi.URLParam(r, "identity")

	dim, err := a.dimensions.CustomDimension(r.Context(), identity)
	if err != nil {
		log.Error("failed to resolve custom dimension",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Failed to resolve custom dimension")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DimensionResponse{Identity: identity, CustomDimension: dim})
}

// handleForgetDimension processes DELETE /api/v1/dimensions/{identity}.
func (a *API) handleForgetDimension(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	if err := a.dimensions.Forget(r.Context(), identity); err != nil {
		logger.FromContext(r.Context()).Error("failed to forget custom dimension",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Failed to forget custom dimension")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
