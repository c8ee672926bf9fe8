package bucketing

// Thresholds is the cumulative upper bound (exclusive, in buckets) of each variant.
// Thresholds[i] = sum(percentages[0..i]) * BucketSpace.
type Thresholds []float64

// NewThresholds builds the cumulative threshold table for the given percentages.
// The accumulation is done in float64, in order, matching existing assignments.
func NewThresholds(percentages []float64) Thresholds {
	t := make(Thresholds, len(percentages))
	cumulative := 0.0
	for i, p := range percentages {
		cumulative += p * BucketSpace
		t[i] = cumulative
	}
	return t
}

// Index returns the position of the first threshold exceeding bucket,
// or -1 when the bucket falls in the unallocated remainder.
func (t Thresholds) Index(bucket int) int {
	b := float64(bucket)
	for i, threshold := range t {
		if threshold > b {
			return i
		}
	}
	return -1
}
