// Package randutil centralises how deterministic RNGs are derived so that
// shuffles, bot jitter and fallback grace periods are all reproducible from a
// single configured seed.
package randutil

import (
	"time"

	rand "math/rand/v2"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a *rand.Rand seeded deterministically from the provided int64.
// rand/v2's PCG wants two 64-bit seeds; both are derived from the one value
// via a splitmix-style finalizer so call sites get reproducible sequences.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// NewTimeSeeded returns a *rand.Rand seeded from the current time, for
// callers that have no configured seed.
func NewTimeSeeded() *rand.Rand {
	return New(time.Now().UnixNano())
}

// DurationBetween draws a uniform duration in [min, max] from rng. It is the
// shared source of bot-delay jitter and timeout fallback grace. min > max or
// a nil rng yields min.
func DurationBetween(rng *rand.Rand, min, max time.Duration) time.Duration {
	if rng == nil || min >= max {
		return min
	}
	return min + time.Duration(rng.Int64N(int64(max-min)+1))
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
