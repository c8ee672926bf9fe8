// Package telemetry tracks which experiment variants each identity has been
// observed in (its custom dimension) and publishes new observations to Redis.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/rafaeljc/bifrost/internal/cache"
	"github.com/rafaeljc/bifrost/internal/logger"
	"github.com/rafaeljc/bifrost/internal/observability"
	"github.com/rafaeljc/bifrost/internal/validation"
)

const (
	defaultQueueSize      = 1024
	defaultPublishTimeout = 2 * time.Second
	// drainTimeout bounds how long Run keeps flushing queued tags after cancellation.
	drainTimeout = 5 * time.Second
)

// update is one tag waiting to be published.
type update struct {
	identity   string
	experiment string
	variant    string
}

// Option configures Dimensions.
type Option func(*Dimensions)

// WithPublisher enables asynchronous publishing of new tags to store.
// queueSize bounds the number of pending tags; when the queue is full new
// tags are dropped from publishing (they stay recorded in memory).
func WithPublisher(store cache.DimensionStore, queueSize int, timeout time.Duration) Option {
	return func(d *Dimensions) {
		if queueSize <= 0 {
			queueSize = defaultQueueSize
		}
		if timeout <= 0 {
			timeout = defaultPublishTimeout
		}
		d.store = store
		d.queue = make(chan update, queueSize)
		d.publishTimeout = timeout
	}
}

// Dimensions records experiment observations per identity.
// The in-memory L1 answers Tag synchronously. With a publisher configured, an
// identity's persisted tags are read from Redis once per L1 entry before its
// first decision, and new tags are written on the Run goroutine.
type Dimensions struct {
	memory         *cache.MemoryDimensions
	store          cache.DimensionStore
	queue          chan update
	publishTimeout time.Duration
	logger         *slog.Logger
}

// NewDimensions creates a tracker over memory. Without WithPublisher it never touches Redis.
func NewDimensions(memory *cache.MemoryDimensions, log *slog.Logger, opts ...Option) *Dimensions {
	validation.AssertNotNil(memory, "memory dimensions")

	d := &Dimensions{
		memory: memory,
		logger: logger.Component(log, "telemetry"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publishing reports whether a Redis publisher is configured.
func (d *Dimensions) Publishing() bool {
	return d.store != nil
}

// Tag records that identity observed variant of experiment.
// It returns true when this is a new tag for the identity (first observation
// of the experiment, or a different variant than before).
// If the persisted tags cannot be read, the decision falls back to L1 alone
// and hydration is retried on the next call.
func (d *Dimensions) Tag(ctx context.Context, identity, experiment, variant string) bool {
	if d.store != nil && !d.memory.Hydrated(identity) {
		if _, err := d.hydrate(ctx, identity); err != nil {
			d.logger.Warn("tagging without persisted dimensions",
				slog.String("experiment", experiment),
				slog.Any("error", err),
			)
		}
	}

	added := d.memory.Tag(identity, experiment, variant)
	observability.TelemetryCacheItems.Set(float64(d.memory.Size()))

	if !added {
		observability.TelemetryTagsTotal.WithLabelValues("unchanged").Inc()
		return false
	}
	observability.TelemetryTagsTotal.WithLabelValues("added").Inc()

	if d.queue != nil {
		d.enqueue(update{identity: identity, experiment: experiment, variant: variant})
	}
	return true
}

func (d *Dimensions) enqueue(u update) {
	select {
	case d.queue <- u:
		observability.TelemetryQueueDepth.Set(float64(len(d.queue)))
	default:
		observability.TelemetryPublishTotal.WithLabelValues("dropped").Inc()
		d.logger.Debug("dimension publish queue full, dropping tag",
			slog.String("experiment", u.experiment),
		)
	}
}

// hydrate merges the identity's persisted tags into L1 and returns them.
func (d *Dimensions) hydrate(ctx context.Context, identity string) (map[string]string, error) {
	getCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	persisted, err := d.store.Get(getCtx, identity)
	if err != nil {
		observability.TelemetryHydrationsTotal.WithLabelValues("fail").Inc()
		return nil, fmt.Errorf("failed to hydrate dimensions: %w", err)
	}
	observability.TelemetryHydrationsTotal.WithLabelValues("success").Inc()
	d.memory.Seed(identity, persisted)
	return persisted, nil
}

// Lookup returns the identity's tags. Unless the L1 entry is already hydrated,
// the persisted tags are merged under it first when a publisher is configured;
// a Redis failure is returned as an error.
func (d *Dimensions) Lookup(ctx context.Context, identity string) (map[string]string, error) {
	if d.store == nil || d.memory.Hydrated(identity) {
		if tags, ok := d.memory.Tags(identity); ok {
			return tags, nil
		}
		return map[string]string{}, nil
	}

	persisted, err := d.hydrate(ctx, identity)
	if err != nil {
		return nil, err
	}
	if tags, ok := d.memory.Tags(identity); ok {
		return tags, nil
	}
	// The admission policy rejected the entry; Redis is all there is.
	return persisted, nil
}

// Forget drops the identity's tags from L1 and, with a publisher, from Redis.
func (d *Dimensions) Forget(ctx context.Context, identity string) error {
	d.memory.Forget(identity)
	observability.TelemetryCacheItems.Set(float64(d.memory.Size()))

	if d.store == nil {
		return nil
	}
	delCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	return d.store.Delete(delCtx, identity)
}

// CustomDimension returns the identity's tags rendered by FormatDimension.
func (d *Dimensions) CustomDimension(ctx context.Context, identity string) (string, error) {
	tags, err := d.Lookup(ctx, identity)
	if err != nil {
		return "", err
	}
	return FormatDimension(tags), nil
}

// Run publishes queued tags until ctx is cancelled, then flushes what is
// left in the queue for a bounded time. It returns nil immediately when no
// publisher is configured.
func (d *Dimensions) Run(ctx context.Context) error {
	if d.queue == nil {
		return nil
	}
	d.logger.Info("dimension publisher started")

	for {
		select {
		case <-ctx.Done():
			d.drain()
			d.logger.Info("dimension publisher stopped")
			return nil
		case u := <-d.queue:
			d.publish(ctx, u)
		}
	}
}

func (d *Dimensions) drain() {
	// The parent context is already cancelled; flush on a fresh, bounded one.
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case u := <-d.queue:
			d.publish(ctx, u)
		default:
			return
		}
	}
}

func (d *Dimensions) publish(ctx context.Context, u update) {
	observability.TelemetryQueueDepth.Set(float64(len(d.queue)))

	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	res, err := d.store.Put(pubCtx, u.identity, u.experiment, u.variant)
	if err != nil {
		observability.TelemetryPublishTotal.WithLabelValues("fail").Inc()
		d.logger.Warn("failed to publish dimension",
			slog.String("experiment", u.experiment),
			slog.Any("error", err),
		)
		return
	}
	if res == cache.PutResultUnchanged {
		observability.TelemetryPublishTotal.WithLabelValues("unchanged").Inc()
		return
	}
	observability.TelemetryPublishTotal.WithLabelValues("success").Inc()
}

// FormatDimension renders tags as "experiment:variant" pairs joined by commas,
// ordered by experiment name so equal tag sets always render identically.
func FormatDimension(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}

	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(tags[name])
	}
	return b.String()
}
