package cache

import (
	"maps"
	"sync"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/bifrost/internal/observability"
)

// tagSet holds the experiment -> variant tags recorded for one identity.
type tagSet struct {
	mu   sync.Mutex
	tags map[string]string
	// hydrated is set once the persisted tags have been merged in.
	hydrated bool
}

// MemoryDimensions is the L1 store of custom dimension tags, keyed by identity.
// It uses the contention-free S3-FIFO cache from 'otter', so the set of tracked
// identities is bounded by capacity and entries expire after ttl.
type MemoryDimensions struct {
	store otter.Cache[string, *tagSet]
}

// NewMemoryDimensions initializes the in-memory store with strict limits.
// capacity: Max number of identities (Hard Cap to prevent OOM).
// ttl: Time-To-Live of an identity's entry, counted from when it entered the
// cache. Later tags mutate the entry in place and do not extend it.
func NewMemoryDimensions(capacity int, ttl time.Duration) (*MemoryDimensions, error) {
	store, err := otter.MustBuilder[string, *tagSet](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}

	return &MemoryDimensions{store: store}, nil
}

// Tag records variant for experiment under identity.
// It returns true when the identity had no tag for experiment, or a different one.
func (m *MemoryDimensions) Tag(identity, experiment, variant string) bool {
	set := m.entry(identity)

	set.mu.Lock()
	defer set.mu.Unlock()

	if prev, ok := set.tags[experiment]; ok && prev == variant {
		return false
	}
	set.tags[experiment] = variant
	return true
}

// Seed merges previously persisted tags into the identity's entry without
// overwriting anything recorded since, and marks the entry hydrated. It is
// used to hydrate L1 from Redis; an empty tags map still marks the entry.
func (m *MemoryDimensions) Seed(identity string, tags map[string]string) {
	set := m.entry(identity)

	set.mu.Lock()
	defer set.mu.Unlock()

	for exp, variant := range tags {
		if _, ok := set.tags[exp]; !ok {
			set.tags[exp] = variant
		}
	}
	set.hydrated = true
}

// Hydrated reports whether the identity is cached and has been seeded.
func (m *MemoryDimensions) Hydrated(identity string) bool {
	set, ok := m.store.Get(identity)
	if !ok {
		return false
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	return set.hydrated
}

// Tags returns a copy of the identity's tags and whether the identity is cached.
func (m *MemoryDimensions) Tags(identity string) (map[string]string, bool) {
	set, ok := m.store.Get(identity)
	if !ok {
		observability.TelemetryCacheMisses.Inc()
		return nil, false
	}
	observability.TelemetryCacheHits.Inc()

	set.mu.Lock()
	defer set.mu.Unlock()
	return maps.Clone(set.tags), true
}

// Forget drops every tag of the identity.
func (m *MemoryDimensions) Forget(identity string) {
	m.store.Delete(identity)
}

// Size reports the number of identities currently cached.
func (m *MemoryDimensions) Size() int {
	return m.store.Size()
}

// Close shuts down the cache and its background cleanup goroutines.
func (m *MemoryDimensions) Close() {
	m.store.Close()
}

// entry returns the identity's tag set, creating it when absent.
func (m *MemoryDimensions) entry(identity string) *tagSet {
	if set, ok := m.store.Get(identity); ok {
		observability.TelemetryCacheHits.Inc()
		return set
	}
	observability.TelemetryCacheMisses.Inc()

	fresh := &tagSet{tags: make(map[string]string)}
	if m.store.SetIfAbsent(identity, fresh) {
		return fresh
	}
	// Lost the race to a concurrent writer.
	if set, ok := m.store.Get(identity); ok {
		return set
	}
	// Rejected by the admission policy: the tag is tracked for this call only.
	return fresh
}
