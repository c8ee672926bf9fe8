package bucketing

import "math"

// DistributionReport summarizes how a population of identities spreads over
// a candidate percentage split.
type DistributionReport struct {
	// ExpectedTotal is the number of identities tested.
	ExpectedTotal int `json:"expected_total"`

	// ActualTotal is the number of identities that landed in some bucket.
	// It is lower than ExpectedTotal when the percentages sum below 1.0.
	ActualTotal int `json:"actual_total"`

	Buckets []BucketReport `json:"buckets"`
}

// BucketReport holds the observed share of one configured percentage.
type BucketReport struct {
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`

	// Fraction is Count / ExpectedTotal.
	Fraction float64 `json:"fraction"`
}

// Distribution replays the bucketing hash and threshold walk over identities,
// salting each with salt, and counts how many land in each percentage bucket.
// Identities beyond the last threshold are not counted.
//
// It runs in a single pass, O(n*k) for n identities and k percentages.
func Distribution(identities []string, salt string, percentages ...float64) DistributionReport {
	thresholds := NewThresholds(percentages)
	counts := make([]int, len(percentages))

	actual := 0
	for _, id := range identities {
		if idx := thresholds.Index(SaltedHash(id, salt)); idx >= 0 {
			counts[idx]++
			actual++
		}
	}

	report := DistributionReport{
		ExpectedTotal: len(identities),
		ActualTotal:   actual,
		Buckets:       make([]BucketReport, len(percentages)),
	}
	for i, p := range percentages {
		var fraction float64
		if report.ExpectedTotal > 0 {
			fraction = float64(counts[i]) / float64(report.ExpectedTotal)
		}
		report.Buckets[i] = BucketReport{Percentage: p, Count: counts[i], Fraction: fraction}
	}
	return report
}

// WithinTolerance reports whether every bucket's observed fraction is within
// tolerance of its configured percentage.
func (r DistributionReport) WithinTolerance(tolerance float64) bool {
	for _, b := range r.Buckets {
		if math.Abs(b.Fraction-b.Percentage) > tolerance {
			return false
		}
	}
	return true
}
