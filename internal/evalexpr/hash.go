package evalexpr

import "github.com/cespare/xxhash/v2"

// Bucket computes the one stable bucketing primitive shared by the HASH
// builtin and the rule interpreter's VARIATIONS/ROLLOUT percentage math.
// xxHash64 is deterministic across processes and languages for a given
// input, which is all deterministic bucketing requires.
func Bucket(id string, modulus uint64) uint64 {
	if modulus == 0 {
		return 0
	}
	return xxhash.Sum64String(id) % modulus
}

// PercentBucket maps id onto [0, 100), the range ROLLOUT percentages and
// segment-free bucketing compare against.
func PercentBucket(id string) int {
	return int(Bucket(id, 100))
}
