package catalog

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rafaeljc/bifrost/internal/ruleengine"
)

// Snapshot is an immutable view of a fully loaded catalog.
// Readers obtain one per operation so they never observe a half-applied load.
type Snapshot struct {
	experiments map[string]*Experiment
	segments    map[string]*ruleengine.Segment
	loadedAt    time.Time
}

// Experiment returns the named experiment. The returned value must not be modified.
func (s *Snapshot) Experiment(name string) (*Experiment, bool) {
	exp, ok := s.experiments[name]
	return exp, ok
}

// Segment returns the named segment.
func (s *Snapshot) Segment(name string) (*ruleengine.Segment, bool) {
	seg, ok := s.segments[name]
	return seg, ok
}

// IsActive reports whether the named experiment exists and is running at now.
func (s *Snapshot) IsActive(name string, now time.Time) bool {
	exp, ok := s.experiments[name]
	return ok && exp.IsActive(now)
}

// Counts returns the number of experiments and segments in the snapshot.
func (s *Snapshot) Counts() (experiments, segments int) {
	return len(s.experiments), len(s.segments)
}

// LoadedAt returns when the snapshot was published.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Catalog owns the current Snapshot. It starts empty (Unloaded) and is
// replaced wholesale by each successful Load.
// It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	snap   *Snapshot
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty catalog.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		logger: logger,
		now:    time.Now,
	}
}

// Load parses both feeds and, only if both are valid, replaces the current
// catalog. On error the previous catalog stays in place.
func (c *Catalog) Load(experimentsFeed, segmentsFeed []byte) error {
	experiments, err := ParseExperiments(experimentsFeed)
	if err != nil {
		return err
	}
	segments, err := ParseSegments(segmentsFeed)
	if err != nil {
		return err
	}

	c.warnDanglingSegments(experiments, segments)

	snap := &Snapshot{
		experiments: experiments,
		segments:    segments,
		loadedAt:    c.now(),
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	c.logger.Info("catalog loaded",
		slog.Int("experiments", len(experiments)),
		slog.Int("segments", len(segments)),
	)
	return nil
}

// Snapshot returns the current snapshot, or nil if nothing has been loaded yet.
func (c *Catalog) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Loaded reports whether a Load has completed successfully.
func (c *Catalog) Loaded() bool {
	return c.Snapshot() != nil
}

// IsActive reports whether the named experiment exists and is running at now.
func (c *Catalog) IsActive(name string, now time.Time) bool {
	snap := c.Snapshot()
	return snap != nil && snap.IsActive(name, now)
}

// Get returns a copy of the named experiment.
func (c *Catalog) Get(name string) (Experiment, bool) {
	snap := c.Snapshot()
	if snap == nil {
		return Experiment{}, false
	}
	exp, ok := snap.Experiment(name)
	if !ok {
		return Experiment{}, false
	}
	return *exp.clone(), true
}

// Names returns the sorted experiment names of the current snapshot.
func (c *Catalog) Names() []string {
	snap := c.Snapshot()
	if snap == nil {
		return nil
	}
	names := make([]string, 0, len(snap.experiments))
	for name := range snap.experiments {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SetVariantOverride forces the named experiment into variant. An empty variant
// clears the override. It reports false if the experiment is unknown.
//
// The snapshot is copied on write: in-flight readers keep the view they started with.
// A later Load discards runtime overrides.
func (c *Catalog) SetVariantOverride(name, variant string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap == nil {
		return false
	}
	exp, ok := c.snap.experiments[name]
	if !ok {
		return false
	}

	experiments := make(map[string]*Experiment, len(c.snap.experiments))
	for k, v := range c.snap.experiments {
		experiments[k] = v
	}
	updated := exp.clone()
	updated.VariantOverride = variant
	experiments[name] = updated

	c.snap = &Snapshot{
		experiments: experiments,
		segments:    c.snap.segments,
		loadedAt:    c.snap.loadedAt,
	}

	c.logger.Info("variant override set",
		slog.String("experiment", name),
		slog.String("variant", variant),
	)
	return true
}

// warnDanglingSegments reports experiments referencing segments that are not in the feed.
// Such experiments load, but never admit anyone.
func (c *Catalog) warnDanglingSegments(experiments map[string]*Experiment, segments map[string]*ruleengine.Segment) {
	for name, exp := range experiments {
		for _, segName := range exp.Segments {
			if _, ok := segments[segName]; !ok {
				c.logger.Warn("experiment references unknown segment",
					slog.String("experiment", name),
					slog.String("segment", segName),
				)
			}
		}
	}
}
