package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/rafaeljc/bifrost/internal/catalog"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
)

// maxDistributionIdentities bounds the population of one distribution request.
const maxDistributionIdentities = 1_000_000

// ExperimentResponse is an experiment definition plus its current activity.
type ExperimentResponse struct {
	catalog.Experiment
	Active bool `json:"active"`
}

// ActiveResponse answers GET /experiments/{name}/active.
type ActiveResponse struct {
	Active bool `json:"active"`
}

// AssignRequest is the payload of POST /experiments/{name}/assignments.
type AssignRequest struct {
	// Variant is optional. When set, the result is true only for that variant.
	Variant string                 `json:"variant,omitempty"`
	User    ruleengine.UserContext `json:"user"`
}

// Sanitize trims whitespace from free-form fields.
func (r *AssignRequest) Sanitize() {
	r.Variant = strings.TrimSpace(r.Variant)
	r.User.Identity = strings.TrimSpace(r.User.Identity)
	r.User.Locale = strings.TrimSpace(r.User.Locale)
	r.User.Storefront = strings.TrimSpace(r.User.Storefront)
}

// OverrideRequest is the payload of PUT /experiments/{name}/override.
// An empty variant clears the override.
type OverrideRequest struct {
	Variant string `json:"variant"`
}

// DistributionRequest is the payload of POST /distribution.
type DistributionRequest struct {
	Identities  []string  `json:"identities"`
	Salt        string    `json:"salt"`
	Percentages []float64 `json:"percentages"`
}

// Validate checks the request against the bucketing contract.
func (r *DistributionRequest) Validate() *ErrorResponse {
	var details []ErrorDetail

	if len(r.Identities) == 0 {
		details = append(details, ErrorDetail{Field: "identities", Issue: "must not be empty"})
	}
	if len(r.Identities) > maxDistributionIdentities {
		details = append(details, ErrorDetail{Field: "identities", Issue: "too many identities"})
	}
	if len(r.Percentages) == 0 {
		details = append(details, ErrorDetail{Field: "percentages", Issue: "must not be empty"})
	}
	sum := 0.0
	for _, p := range r.Percentages {
		if p < 0 || p > 1 {
			details = append(details, ErrorDetail{Field: "percentages", Issue: "each value must be between 0 and 1"})
			break
		}
		sum += p
	}
	if sum > 1.0+1e-9 {
		details = append(details, ErrorDetail{Field: "percentages", Issue: "values must not sum above 1"})
	}

	if len(details) == 0 {
		return nil
	}
	return &ErrorResponse{
		Code:    "ERR_INVALID_INPUT",
		Message: "Invalid distribution request",
		Details: details,
	}
}

// DimensionResponse answers GET /dimensions/{identity}.
type DimensionResponse struct {
	Identity        string `json:"identity"`
	CustomDimension string `json:"custom_dimension"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: code, Message: message})
}
