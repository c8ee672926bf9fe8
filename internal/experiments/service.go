// Package experiments is the entry point the host application calls: it loads
// the catalog from a feed source, answers membership questions, and reports
// observed variants to the telemetry sink.
package experiments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/bifrost/internal/bucketing"
	"github.com/rafaeljc/bifrost/internal/catalog"
	"github.com/rafaeljc/bifrost/internal/feed"
	"github.com/rafaeljc/bifrost/internal/logger"
	"github.com/rafaeljc/bifrost/internal/observability"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
	"github.com/rafaeljc/bifrost/internal/validation"
)

// ErrLoadFailed wraps every failure of LoadSegmentsAndExperiments.
var ErrLoadFailed = errors.New("catalog load failed")

const defaultFetchTimeout = 10 * time.Second

// DimensionSink receives the variants users were observed in.
// Tag reports whether the observation is a new tag; ctx bounds any I/O it does.
type DimensionSink interface {
	Tag(ctx context.Context, identity, experiment, variant string) bool
}

// Result is the answer to InExperiment.
type Result struct {
	// Result is true when the user is in the experiment and, if a variant was
	// requested, resolved to that variant.
	Result bool `json:"result"`

	// AddedCustomDimension is true when the observation produced a new telemetry tag.
	AddedCustomDimension bool `json:"added_custom_dimension"`

	Variant   string `json:"variant"`
	InSegment bool   `json:"in_segment"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now for activity checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithFetchTimeout bounds each feed fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithSink sets the telemetry collaborator. Without one, observations are discarded.
func WithSink(sink DimensionSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// Service wires the catalog, the bucketing engine, a feed source and a telemetry sink.
// It is safe for concurrent use.
type Service struct {
	catalog      *catalog.Catalog
	engine       *bucketing.Engine
	source       feed.Source
	sink         DimensionSink
	logger       *slog.Logger
	now          func() time.Time
	fetchTimeout time.Duration
}

// NewService creates a Service over cat, loading from source.
func NewService(cat *catalog.Catalog, source feed.Source, log *slog.Logger, opts ...Option) *Service {
	validation.AssertNotNil(cat, "catalog")
	validation.AssertProvided(source, "feed source")

	s := &Service{
		catalog:      cat,
		source:       source,
		logger:       logger.Component(log, "experiments"),
		now:          time.Now,
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = bucketing.NewEngine(cat, s.logger, bucketing.WithClock(s.now))
	return s
}

// Catalog returns the catalog the service reads.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// LoadSegmentsAndExperiments fetches both feeds and installs them as the new
// catalog. On any failure the previous catalog stays in place and the error
// wraps ErrLoadFailed.
func (s *Service) LoadSegmentsAndExperiments(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.CatalogLoadDuration.Observe(time.Since(start).Seconds())
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	payload, err := s.source.Fetch(fetchCtx)
	if err != nil {
		return s.loadFailed(fmt.Errorf("%w: fetch from %s: %w", ErrLoadFailed, s.source.Name(), err))
	}

	if err := s.catalog.Load(payload.Experiments, payload.Segments); err != nil {
		return s.loadFailed(fmt.Errorf("%w: %w", ErrLoadFailed, err))
	}

	status := s.CatalogStatus()
	observability.CatalogExperiments.Set(float64(status.Experiments))
	observability.CatalogSegments.Set(float64(status.Segments))
	observability.CatalogLoadsTotal.WithLabelValues("success").Inc()
	return nil
}

func (s *Service) loadFailed(err error) error {
	observability.CatalogLoadsTotal.WithLabelValues("fail").Inc()
	s.logger.Error("catalog load failed",
		slog.String("source", s.source.Name()),
		slog.Bool("previous_catalog_kept", s.catalog.Loaded()),
		slog.Any("error", err),
	)
	return err
}

// CatalogStatus describes the installed catalog snapshot.
type CatalogStatus struct {
	Loaded      bool      `json:"loaded"`
	LoadedAt    time.Time `json:"loaded_at"`
	Experiments int       `json:"experiments"`
	Segments    int       `json:"segments"`
}

// CatalogStatus reports what the current snapshot holds and when it was installed.
func (s *Service) CatalogStatus() CatalogStatus {
	snap := s.catalog.Snapshot()
	if snap == nil {
		return CatalogStatus{}
	}
	experiments, segments := snap.Counts()
	return CatalogStatus{
		Loaded:      true,
		LoadedAt:    snap.LoadedAt(),
		Experiments: experiments,
		Segments:    segments,
	}
}

// ExperimentActive reports whether the named experiment exists and is running now.
func (s *Service) ExperimentActive(name string) bool {
	return s.catalog.IsActive(name, s.now())
}

// Experiment returns a copy of the named experiment definition.
func (s *Service) Experiment(name string) (catalog.Experiment, bool) {
	return s.catalog.Get(name)
}

// InExperiment decides whether user is in the experiment, optionally in a
// specific variant. Whenever the user is in segment, the resolved variant is
// reported to the sink, whichever variant was requested.
// It never fails: every failure mode yields a "not in experiment" result.
func (s *Service) InExperiment(ctx context.Context, name, variant string, user ruleengine.UserContext) Result {
	start := time.Now()
	a := s.engine.Assign(name, variant, user)
	observability.EngineAssignDuration.Observe(time.Since(start).Seconds())

	recordOutcome(name, a)

	if !a.InSegment {
		return Result{}
	}

	added := false
	if s.sink != nil {
		added = s.sink.Tag(ctx, user.Identity, name, a.Variant)
	}

	if added {
		logger.FromContext(ctx).Debug("new custom dimension tag",
			slog.String("experiment", name),
			slog.String("variant", a.Variant),
		)
	}

	return Result{
		Result:               a.MatchedRequestedVariant,
		AddedCustomDimension: added,
		Variant:              a.Variant,
		InSegment:            true,
	}
}

// recordOutcome classifies the assignment for metrics. Per-experiment labels
// are only used for experiments that exist, to keep cardinality bounded.
func recordOutcome(name string, a bucketing.Assignment) {
	switch {
	case a.InSegment && a.Overridden:
		observability.EngineAssignmentsTotal.WithLabelValues(name, observability.OutcomeOverridden).Inc()
	case a.InSegment && a.Variant == "":
		observability.EngineAssignmentsTotal.WithLabelValues(name, observability.OutcomeUnallocated).Inc()
	case a.InSegment:
		observability.EngineAssignmentsTotal.WithLabelValues(name, observability.OutcomeAssigned).Inc()
	case a.Reason == bucketing.ReasonNotInSegment:
		observability.EngineAssignmentsTotal.WithLabelValues(name, observability.OutcomeNotInSegment).Inc()
	default:
		observability.EngineSkippedTotal.WithLabelValues(string(a.Reason)).Inc()
	}
}

// SetVariantOverride forces every in-segment user of the experiment into
// variant; an empty variant clears the override. It reports false for an
// unknown experiment.
func (s *Service) SetVariantOverride(name, variant string) bool {
	return s.catalog.SetVariantOverride(name, variant)
}

// TestDistribution replays the bucketing hash over identities. It is pure.
func (s *Service) TestDistribution(identities []string, salt string, percentages ...float64) bucketing.DistributionReport {
	return bucketing.Distribution(identities, salt, percentages...)
}
