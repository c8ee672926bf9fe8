package catalog

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testExperimentsFeed = `{
		"checkout": {
			"experimentId": "exp-checkout",
			"startDate": "2024-01-01T00:00:00Z",
			"segments": ["na", "ghost"],
			"variants": [{"name": "control", "percentage": 0.5}, {"name": "new", "percentage": 0.5}]
		},
		"banner": {
			"experimentId": "exp-banner",
			"startDate": "2024-01-01T00:00:00Z",
			"endDate": "2024-03-01T00:00:00Z",
			"variants": [{"name": "on", "percentage": 1}]
		}
	}`
	testSegmentsFeed = `{
		"na": {"rule": {"operator": "OR", "parameters": {"storefront": {"arg": ["US"]}}}}
	}`
)

func newTestCatalog(t *testing.T) (*Catalog, *bytes.Buffer) {
	t.Helper()

	var logBuffer bytes.Buffer
	c := New(slog.New(slog.NewTextHandler(&logBuffer, nil)))
	require.NoError(t, c.Load([]byte(testExperimentsFeed), []byte(testSegmentsFeed)))
	return c, &logBuffer
}

func TestCatalog_Unloaded(t *testing.T) {
	t.Parallel()

	c := New(nil)

	assert.False(t, c.Loaded())
	assert.Nil(t, c.Snapshot())
	assert.False(t, c.IsActive("checkout", time.Now()))
	assert.False(t, c.SetVariantOverride("checkout", "new"))
	assert.Nil(t, c.Names())

	_, ok := c.Get("checkout")
	assert.False(t, ok)
}

func TestCatalog_Load(t *testing.T) {
	t.Parallel()

	c, logs := newTestCatalog(t)

	assert.True(t, c.Loaded())
	assert.Equal(t, []string{"banner", "checkout"}, c.Names())

	exp, ok := c.Get("checkout")
	require.True(t, ok)
	assert.Equal(t, "exp-checkout", exp.ExperimentID)

	_, ok = c.Snapshot().Segment("na")
	assert.True(t, ok)

	assert.Contains(t, logs.String(), "experiment references unknown segment")
	assert.Contains(t, logs.String(), "ghost")
}

func TestCatalog_LoadFailureKeepsPreviousCatalog(t *testing.T) {
	t.Parallel()

	c, _ := newTestCatalog(t)
	before := c.Snapshot()

	// Valid experiments, malformed segments: nothing may be applied.
	err := c.Load([]byte(`{}`), []byte(`{"x": {"rule": {"operator": "NOPE"}}}`))

	require.ErrorIs(t, err, ErrMalformedFeed)
	assert.Same(t, before, c.Snapshot())
	assert.Equal(t, []string{"banner", "checkout"}, c.Names())
}

func TestCatalog_LoadReplacesWithoutMerge(t *testing.T) {
	t.Parallel()

	c, _ := newTestCatalog(t)

	err := c.Load([]byte(`{"solo": {"experimentId": "s", "startDate": "2024-01-01", "variants": []}}`), []byte(`{}`))

	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, c.Names())
	_, ok := c.Snapshot().Segment("na")
	assert.False(t, ok)
}

func TestCatalog_IsActive(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	day := 24 * time.Hour

	c := New(nil)
	feed := `{
		"window":   {"experimentId": "a", "startDate": "` + now.Add(-day).Format(time.RFC3339) + `", "endDate": "` + now.Add(day).Format(time.RFC3339) + `", "variants": []},
		"expired":  {"experimentId": "b", "startDate": "` + now.Add(-2*day).Format(time.RFC3339) + `", "endDate": "` + now.Add(-day).Format(time.RFC3339) + `", "variants": []},
		"forever":  {"experimentId": "c", "startDate": "` + now.Add(-day).Format(time.RFC3339) + `", "variants": []},
		"upcoming": {"experimentId": "d", "startDate": "` + now.Add(day).Format(time.RFC3339) + `", "variants": []}
	}`
	require.NoError(t, c.Load([]byte(feed), []byte(`{}`)))

	assert.True(t, c.IsActive("window", now))
	assert.False(t, c.IsActive("expired", now))
	assert.True(t, c.IsActive("forever", now))
	assert.True(t, c.IsActive("forever", now.Add(3650*day)), "open-ended experiments never expire")
	assert.False(t, c.IsActive("upcoming", now))
	assert.False(t, c.IsActive("missing", now))
}

func TestCatalog_SetVariantOverride(t *testing.T) {
	t.Parallel()

	c, _ := newTestCatalog(t)
	before := c.Snapshot()

	assert.True(t, c.SetVariantOverride("checkout", "control"))
	assert.False(t, c.SetVariantOverride("unknown", "control"))

	exp, _ := c.Get("checkout")
	assert.Equal(t, "control", exp.VariantOverride)

	// Snapshots handed out earlier are never mutated.
	old, _ := before.Experiment("checkout")
	assert.Empty(t, old.VariantOverride)

	// Clearing the override
	assert.True(t, c.SetVariantOverride("checkout", ""))
	exp, _ = c.Get("checkout")
	assert.Empty(t, exp.VariantOverride)
}

func TestCatalog_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	c, _ := newTestCatalog(t)

	exp, _ := c.Get("checkout")
	exp.Variants[0].Name = "tampered"
	exp.VariantOverride = "tampered"

	again, _ := c.Get("checkout")
	assert.Equal(t, "control", again.Variants[0].Name)
	assert.Empty(t, again.VariantOverride)
}

func TestCatalog_ConcurrentLoadAndRead(t *testing.T) {
	t.Parallel()

	c, _ := newTestCatalog(t)
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Load([]byte(testExperimentsFeed), []byte(testSegmentsFeed))
		}()
		go func() {
			defer wg.Done()
			if snap := c.Snapshot(); snap != nil {
				// A snapshot is always complete: both experiments are present.
				_, okA := snap.Experiment("checkout")
				_, okB := snap.Experiment("banner")
				assert.True(t, okA && okB, "iteration %d observed a partial catalog", i)
			}
			c.SetVariantOverride("banner", "on")
		}()
	}
	wg.Wait()
}
