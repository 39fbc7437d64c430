// Package simrand wraps math/rand/v2 with the sampling helpers the generators share.
// Every generator takes an explicit *rand.Rand; nothing here touches global state.
package simrand

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// New returns a PCG-backed generator for (seed, stream).
func New(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// Derive returns a generator whose stream is keyed by parts, so independent
// callers get reproducible, non-overlapping sequences regardless of call order.
func Derive(seed uint64, parts ...string) *rand.Rand {
	return New(seed, Hash(parts...))
}

// Hash folds parts into a 64-bit FNV-1a key.
func Hash(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Uniform draws from [lo, hi).
func Uniform(r *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}

// IntRange draws from [lo, hi] inclusive.
func IntRange(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

// Normal draws from N(mean, stddev).
func Normal(r *rand.Rand, mean, stddev float64) float64 {
	return mean + r.NormFloat64()*stddev
}

// LogNormal draws exp(N(mu, sigma)).
func LogNormal(r *rand.Rand, mu, sigma float64) float64 {
	return math.Exp(Normal(r, mu, sigma))
}

// Bernoulli returns true with probability p.
func Bernoulli(r *rand.Rand, p float64) bool {
	if p <= 0 {
		return false
	}
	return r.Float64() < p
}

// Weighted picks an index proportionally to weights. Non-positive weights are never picked;
// -1 is returned when no weight is positive.
func Weighted(r *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	x := r.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if x < w {
			return i
		}
		x -= w
	}
	return last
}

// Pick returns a uniformly chosen element of items; items must be non-empty.
func Pick[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
