// Package catalog holds the experiment and segment definitions of a session.
// Definitions are parsed from the two external feeds, validated as a whole and
// published as an immutable snapshot that readers can use without locking.
package catalog

import (
	"slices"
	"time"
)

// Variant is one treatment arm of an experiment.
type Variant struct {
	Name string `json:"name"`

	// Percentage is the fraction of total traffic (0.0-1.0) assigned to this variant.
	Percentage float64 `json:"percentage"`
}

// Experiment is a named, time-boxed configuration.
type Experiment struct {
	// Name is the unique key of the experiment.
	Name string `json:"name"`

	// ExperimentID is the opaque salt appended to the user identity before hashing.
	ExperimentID string `json:"experiment_id"`

	StartDate time.Time `json:"start_date"`

	// EndDate is the zero time when the experiment runs indefinitely.
	EndDate time.Time `json:"end_date,omitzero"`

	// Segments gate eligibility. An empty list makes everyone eligible.
	Segments []string `json:"segments"`

	// Variants are evaluated in order. Percentages need not sum to 1.0;
	// the remainder is not bucketed.
	Variants []Variant `json:"variants"`

	// VariantOverride forces every eligible user into this variant when non-empty.
	VariantOverride string `json:"variant_override,omitempty"`
}

// HasEndDate reports whether the experiment is bounded.
func (e *Experiment) HasEndDate() bool {
	return !e.EndDate.IsZero()
}

// IsActive reports whether now falls in [StartDate, EndDate).
func (e *Experiment) IsActive(now time.Time) bool {
	if now.Before(e.StartDate) {
		return false
	}
	return !e.HasEndDate() || e.EndDate.After(now)
}

// Percentages returns the variant percentages in evaluation order.
func (e *Experiment) Percentages() []float64 {
	out := make([]float64, len(e.Variants))
	for i, v := range e.Variants {
		out[i] = v.Percentage
	}
	return out
}

// clone returns a copy that shares no mutable state with e.
func (e *Experiment) clone() *Experiment {
	c := *e
	c.Segments = slices.Clone(e.Segments)
	c.Variants = slices.Clone(e.Variants)
	return &c
}
