// Package syncer implements the background worker that keeps the installed
// catalog in step with its feed source.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/rafaeljc/bifrost/internal/logger"
	"github.com/rafaeljc/bifrost/internal/observability"
)

// Trigger labels the reason for a refresh cycle.
const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerWatch    = "watch"
)

// Loader installs a fresh catalog. experiments.Service implements it.
type Loader interface {
	LoadSegmentsAndExperiments(ctx context.Context) error
}

// Config holds the configuration for the Syncer service.
type Config struct {
	// Interval is the duration between refresh cycles. Zero disables polling.
	Interval time.Duration

	// SkipInitial disables the load on startup, for callers that already loaded.
	SkipInitial bool
}

// Service orchestrates catalog refreshes.
type Service struct {
	logger  *slog.Logger
	config  Config
	loader  Loader
	changes <-chan struct{}
}

// New creates a new Syncer service. changes may be nil; otherwise every value
// received triggers a refresh (typically feed.Watcher.Changes()).
func New(log *slog.Logger, cfg Config, loader Loader, changes <-chan struct{}) *Service {
	if loader == nil {
		panic("syncer: loader cannot be nil")
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}

	return &Service{
		logger:  logger.Component(log, "syncer"),
		config:  cfg,
		loader:  loader,
		changes: changes,
	}
}

// Run starts the syncer loop. It blocks until the context is cancelled.
// Failed cycles are logged and retried on the next trigger; they never stop the loop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service",
		slog.Duration("interval", s.config.Interval),
		slog.Bool("watching", s.changes != nil),
	)

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	if !s.config.SkipInitial {
		s.sync(ctx, TriggerStartup)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer service stopping")
			return nil
		case <-tick:
			s.sync(ctx, TriggerInterval)
		case _, ok := <-s.changes:
			if !ok {
				// Watcher gone; keep polling.
				s.changes = nil
				continue
			}
			s.sync(ctx, TriggerWatch)
		}
	}
}

// sync performs a single refresh cycle.
func (s *Service) sync(ctx context.Context, trigger string) {
	start := time.Now()

	if err := s.loader.LoadSegmentsAndExperiments(ctx); err != nil {
		observability.SyncerRunsTotal.WithLabelValues(trigger, "fail").Inc()
		s.logger.Error("catalog refresh failed",
			slog.String("trigger", trigger),
			slog.Any("error", err),
		)
		return
	}

	observability.SyncerRunsTotal.WithLabelValues(trigger, "success").Inc()
	s.logger.Info("catalog refreshed",
		slog.String("trigger", trigger),
		slog.Duration("duration", time.Since(start)),
	)
}
