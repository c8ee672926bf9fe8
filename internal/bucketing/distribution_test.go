package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticIdentities(n int) []string {
	ids := make([]string, n)
	for i := range n {
		ids[i] = fmt.Sprintf("user%d", i)
	}
	return ids
}

func TestDistribution_EvenSplit(t *testing.T) {
	t.Parallel()

	report := Distribution(syntheticIdentities(10000), "exp123", 0.5, 0.5)

	assert.Equal(t, 10000, report.ExpectedTotal)
	assert.Equal(t, report.ExpectedTotal, report.ActualTotal)
	require.Len(t, report.Buckets, 2)
	for _, b := range report.Buckets {
		assert.InDelta(t, 0.5, b.Fraction, 0.02)
	}
	assert.Equal(t, report.ActualTotal, report.Buckets[0].Count+report.Buckets[1].Count)
	assert.True(t, report.WithinTolerance(0.02))
}

func TestDistribution_Remainder(t *testing.T) {
	t.Parallel()

	report := Distribution(syntheticIdentities(10000), "exp123", 0.1, 0.2)

	assert.Equal(t, 10000, report.ExpectedTotal)
	assert.Less(t, report.ActualTotal, report.ExpectedTotal)
	assert.InDelta(t, 3000, report.ActualTotal, 300)
	assert.InDelta(t, 0.1, report.Buckets[0].Fraction, 0.02)
	assert.InDelta(t, 0.2, report.Buckets[1].Fraction, 0.02)
}

func TestDistribution_MatchesEngineResolution(t *testing.T) {
	t.Parallel()

	// The tester must replay exactly what the engine does for a real experiment.
	ids := syntheticIdentities(2000)
	report := Distribution(ids, "salt", 0.3, 0.3)

	counts := []int{0, 0}
	th := NewThresholds([]float64{0.3, 0.3})
	for _, id := range ids {
		if idx := th.Index(Hash(id + "salt")); idx >= 0 {
			counts[idx]++
		}
	}
	assert.Equal(t, counts[0], report.Buckets[0].Count)
	assert.Equal(t, counts[1], report.Buckets[1].Count)
}

func TestDistribution_Empty(t *testing.T) {
	t.Parallel()

	report := Distribution(nil, "salt", 0.5, 0.5)

	assert.Zero(t, report.ExpectedTotal)
	assert.Zero(t, report.ActualTotal)
	assert.Zero(t, report.Buckets[0].Fraction)

	noBuckets := Distribution(syntheticIdentities(10), "salt")
	assert.Equal(t, 10, noBuckets.ExpectedTotal)
	assert.Zero(t, noBuckets.ActualTotal)
	assert.Empty(t, noBuckets.Buckets)
}

func TestDistributionReport_WithinTolerance(t *testing.T) {
	t.Parallel()

	report := DistributionReport{Buckets: []BucketReport{
		{Percentage: 0.5, Fraction: 0.51},
		{Percentage: 0.5, Fraction: 0.45},
	}}

	assert.False(t, report.WithinTolerance(0.02))
	assert.True(t, report.WithinTolerance(0.06))
}
