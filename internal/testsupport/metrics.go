package testsupport

import (
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	asyncWait = 2 * time.Second
	asyncTick = 20 * time.Millisecond
)

// findMetric returns the first series of metricName whose labels include filter.
func findMetric(t *testing.T, metricName string, filter map[string]string) *dto.Metric {
	t.Helper()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "failed to gather metrics")

	// Gather sorts families by name.
	idx := sort.Search(len(mfs), func(i int) bool { return mfs[i].GetName() >= metricName })
	if idx == len(mfs) || mfs[idx].GetName() != metricName {
		return nil
	}

	for _, m := range mfs[idx].GetMetric() {
		if matchesLabels(m, filter) {
			return m
		}
	}
	return nil
}

func matchesLabels(m *dto.Metric, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	labels := make(map[string]string, len(m.GetLabel()))
	for _, pair := range m.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	for k, v := range filter {
		if got, ok := labels[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// GetMetricValue returns the value of a counter or gauge, or the sample count
// of a histogram. A series that was never touched reads as 0.
func GetMetricValue(t *testing.T, metricName string, labels map[string]string) float64 {
	t.Helper()

	m := findMetric(t, metricName, labels)
	switch {
	case m == nil:
		return 0
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}

// AssertMetricDelta asserts that fn changes the metric by exactly expectedDelta.
func AssertMetricDelta(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	initial := GetMetricValue(t, metricName, labels)
	fn()
	assert.Equal(t, expectedDelta, GetMetricValue(t, metricName, labels)-initial,
		"metric %s%v delta mismatch", metricName, labels)
}

// AssertMetricDeltaAsync asserts that the metric eventually moves by exactly
// expectedDelta after fn, for effects produced by background goroutines.
func AssertMetricDeltaAsync(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	initial := GetMetricValue(t, metricName, labels)
	fn()

	require.Eventually(t, func() bool {
		return GetMetricValue(t, metricName, labels) == initial+expectedDelta
	}, asyncWait, asyncTick, "metric %s%v did not reach delta %+.0f", metricName, labels, expectedDelta)
}

// AssertMetricEventuallyAtLeast waits until the metric has grown by at least
// minDelta since baseline. Use it for loops whose exact count is timing dependent.
func AssertMetricEventuallyAtLeast(t *testing.T, metricName string, labels map[string]string, baseline, minDelta float64) {
	t.Helper()

	require.Eventually(t, func() bool {
		return GetMetricValue(t, metricName, labels)-baseline >= minDelta
	}, asyncWait, asyncTick, "metric %s%v did not grow by %.0f", metricName, labels, minDelta)
}

// AssertHistogramRecorded asserts that a histogram holds at least one sample.
func AssertHistogramRecorded(t *testing.T, metricName string, labels map[string]string) {
	t.Helper()

	assert.Greater(t, GetMetricValue(t, metricName, labels), 0.0,
		"histogram %s%v should have recorded samples", metricName, labels)
}
