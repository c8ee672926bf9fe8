package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/bifrost/internal/testsupport"
)

type countingLoader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *countingLoader) LoadSegmentsAndExperiments(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.err
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func start(t *testing.T, s *Service) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return cancel
}

func TestService_LoadsOnStartup(t *testing.T) {
	loader := &countingLoader{}

	testsupport.AssertMetricDeltaAsync(t, "bifrost_syncer_runs_total", map[string]string{"trigger": "startup", "status": "success"}, 1, func() {
		start(t, New(nil, Config{}, loader, nil))
	})
	assert.Equal(t, 1, loader.count())
}

func TestService_SkipInitial(t *testing.T) {
	loader := &countingLoader{}
	start(t, New(nil, Config{SkipInitial: true}, loader, nil))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, loader.count())
}

func TestService_PollsOnInterval(t *testing.T) {
	loader := &countingLoader{}
	start(t, New(nil, Config{Interval: 10 * time.Millisecond}, loader, nil))

	require.Eventually(t, func() bool { return loader.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestService_ReloadsOnWatchSignal(t *testing.T) {
	loader := &countingLoader{}
	changes := make(chan struct{})
	start(t, New(nil, Config{SkipInitial: true}, loader, changes))

	changes <- struct{}{}
	changes <- struct{}{}

	require.Eventually(t, func() bool { return loader.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestService_ClosedWatchChannelKeepsPolling(t *testing.T) {
	loader := &countingLoader{}
	changes := make(chan struct{})
	close(changes)
	start(t, New(nil, Config{SkipInitial: true, Interval: 10 * time.Millisecond}, loader, changes))

	require.Eventually(t, func() bool { return loader.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestService_FailuresAreNotFatal(t *testing.T) {
	labels := map[string]string{"trigger": "interval", "status": "fail"}
	before := testsupport.GetMetricValue(t, "bifrost_syncer_runs_total", labels)

	loader := &countingLoader{err: errors.New("feed unavailable")}
	start(t, New(nil, Config{SkipInitial: true, Interval: 20 * time.Millisecond}, loader, nil))

	// The loop keeps ticking after failures.
	testsupport.AssertMetricEventuallyAtLeast(t, "bifrost_syncer_runs_total", labels, before, 2)
	assert.GreaterOrEqual(t, loader.count(), 2)
}

func TestNew_NilLoaderPanics(t *testing.T) {
	assert.Panics(t, func() { New(nil, Config{}, nil, nil) })
}
