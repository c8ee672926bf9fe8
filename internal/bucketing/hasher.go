// Package bucketing assigns users to experiment variants.
// It uses consistent hashing (Murmur3, 32-bit, seed 1) so the same identity
// always lands in the same bucket for a given experiment (Stickiness).
package bucketing

import (
	"github.com/spaolacci/murmur3"
)

const (
	// BucketSpace is the number of buckets. Percentages are resolved in basis points.
	BucketSpace = 10_000

	// Seed must stay 1: stored and expected assignments were computed with it.
	Seed uint32 = 1
)

// Hash maps an identifier to a bucket in [0, BucketSpace).
//
// The 32-bit hash is normalized as floor(hash / 2^32 * BucketSpace). The integer
// form below is exact, so it agrees bit for bit with a float64 computation.
func Hash(identifier string) int {
	h := murmur3.Sum32WithSeed([]byte(identifier), Seed)
	return int((uint64(h) * BucketSpace) >> 32)
}

// SaltedHash hashes the identity concatenated with the experiment salt.
// The salt ensures a user who is in the first 10% of experiment A is not
// necessarily in the first 10% of experiment B.
func SaltedHash(identity, salt string) int {
	return Hash(identity + salt)
}
