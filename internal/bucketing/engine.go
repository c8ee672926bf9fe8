package bucketing

import (
	"log/slog"
	"time"

	"github.com/rafaeljc/bifrost/internal/catalog"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
	"github.com/rafaeljc/bifrost/internal/validation"
)

// Reason explains why an assignment left the user out of the experiment.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonNoIdentity   Reason = "no_identity"
	ReasonNotLoaded    Reason = "not_loaded"
	ReasonUnknown      Reason = "unknown"
	ReasonInactive     Reason = "inactive"
	ReasonNotInSegment Reason = "not_in_segment"
)

// Assignment is the result of one bucketing call. The zero value means
// "not in experiment".
type Assignment struct {
	// InSegment is true when the experiment is active and the user passed every segment.
	InSegment bool `json:"in_segment"`

	// Variant is the resolved variant name. Empty when the user is not in the
	// experiment or falls in the unallocated remainder.
	Variant string `json:"variant"`

	// MatchedRequestedVariant is true when the caller asked for no particular
	// variant, or the resolved variant equals the requested one.
	MatchedRequestedVariant bool `json:"matched_requested_variant"`

	// Overridden is true when the variant came from the experiment's override.
	Overridden bool `json:"overridden,omitempty"`

	// Reason is set whenever InSegment is false, decided on the same
	// snapshot as the assignment itself.
	Reason Reason `json:"-"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine resolves experiment variants for users.
// Assign has no side effects; it is safe for concurrent use.
type Engine struct {
	catalog   *catalog.Catalog
	evaluator *ruleengine.Evaluator
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a new Engine reading definitions from cat.
// If logger is nil, it defaults to slog.Default().
func NewEngine(cat *catalog.Catalog, logger *slog.Logger, opts ...Option) *Engine {
	validation.AssertNotNil(cat, "catalog")
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		catalog:   cat,
		evaluator: ruleengine.NewEvaluator(logger),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assign decides whether the user is in the experiment and which variant they get.
// requested may be empty to ask only whether the user is in the experiment at all.
func (e *Engine) Assign(experimentName, requested string, user ruleengine.UserContext) Assignment {
	// 1. Preconditions (Fail Closed)
	// Signed-out users have nothing stable to hash.
	if !user.HasIdentity() {
		return Assignment{Reason: ReasonNoIdentity}
	}

	snap := e.catalog.Snapshot()
	if snap == nil {
		e.logger.Debug("catalog not loaded", slog.String("experiment", experimentName))
		return Assignment{Reason: ReasonNotLoaded}
	}

	exp, ok := snap.Experiment(experimentName)
	if !ok {
		e.logger.Debug("unknown experiment", slog.String("experiment", experimentName))
		return Assignment{Reason: ReasonUnknown}
	}
	if !exp.IsActive(e.now()) {
		return Assignment{Reason: ReasonInactive}
	}

	// 2. Segment Eligibility (AND across segments)
	if !e.inSegments(snap, exp, user) {
		return Assignment{Reason: ReasonNotInSegment}
	}

	// 3. Resolve Variant
	variant, overridden := exp.VariantOverride, true
	if variant == "" {
		variant, overridden = ResolveVariant(exp, user.Identity), false
	}

	return Assignment{
		InSegment:               true,
		Variant:                 variant,
		MatchedRequestedVariant: requested == "" || requested == variant,
		Overridden:              overridden,
	}
}

// inSegments requires membership of every listed segment. A segment missing
// from the catalog stops the evaluation of the whole list.
func (e *Engine) inSegments(snap *catalog.Snapshot, exp *catalog.Experiment, user ruleengine.UserContext) bool {
	for _, name := range exp.Segments {
		seg, ok := snap.Segment(name)
		if !ok {
			e.logger.Warn("experiment references unknown segment",
				slog.String("experiment", exp.Name),
				slog.String("segment", name),
			)
			return false
		}
		if !e.evaluator.Evaluate(seg, user) {
			return false
		}
	}
	return true
}

// ResolveVariant hashes identity+ExperimentID and walks the cumulative
// variant thresholds. It returns "" when the bucket is in the unallocated remainder.
func ResolveVariant(exp *catalog.Experiment, identity string) string {
	bucket := SaltedHash(identity, exp.ExperimentID)
	idx := NewThresholds(exp.Percentages()).Index(bucket)
	if idx < 0 {
		return ""
	}
	return exp.Variants[idx].Name
}
