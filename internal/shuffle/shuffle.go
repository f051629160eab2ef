// Package shuffle provides a seeded, platform-independent permutation used
// to place players into bracket positions. The same (items, seed) pair
// always yields the same order, so a stored draw seed fully reproduces the
// draw.
package shuffle

// hashSeed folds a seed string into a 32-bit signed integer with a
// DJB2-style rolling hash. Arithmetic wraps in int32 on purpose.
func hashSeed(seed string) int32 {
	var hash int32
	for _, c := range []byte(seed) {
		hash = hash*33 + int32(c)
	}
	return hash
}

// newRand returns a small multiply-xor-shift generator producing floats in
// [0, 1). It is deliberately not crypto-grade: it only has to be fast,
// well-mixed and identical everywhere.
func newRand(seed int32) func() float64 {
	state := uint32(seed)
	return func() float64 {
		state += 0x6D2B79F5
		z := state
		z = (z ^ (z >> 15)) * (z | 1)
		z ^= z + (z^(z>>7))*(z|61)
		z ^= z >> 14
		return float64(z) / 4294967296.0
	}
}

// Shuffle returns a Fisher-Yates permutation of items driven by seed. The
// input slice is never mutated.
func Shuffle[T any](items []T, seed string) []T {
	out := make([]T, len(items))
	copy(out, items)

	random := newRand(hashSeed(seed))
	for i := len(out) - 1; i > 0; i-- {
		j := int(random() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
