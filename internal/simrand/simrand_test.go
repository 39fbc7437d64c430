package simrand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive_Reproducible(t *testing.T) {
	a := Derive(42, "driver_000001")
	b := Derive(42, "driver_000001")
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestDerive_DistinctStreams(t *testing.T) {
	a := Derive(42, "driver_000001")
	b := Derive(42, "driver_000002")
	assert.NotEqual(t, a.Uint64(), b.Uint64())
}

func TestHash_SeparatesParts(t *testing.T) {
	assert.NotEqual(t, Hash("ab", "c"), Hash("a", "bc"))
}

func TestUniformAndIntRange_Bounds(t *testing.T) {
	r := New(1, 2)
	for i := 0; i < 1000; i++ {
		u := Uniform(r, 0.85, 1.0)
		assert.GreaterOrEqual(t, u, 0.85)
		assert.Less(t, u, 1.0)

		n := IntRange(r, 35, 50)
		assert.GreaterOrEqual(t, n, 35)
		assert.LessOrEqual(t, n, 50)
	}
	assert.Equal(t, 3.0, Uniform(r, 3, 3))
	assert.Equal(t, 7, IntRange(r, 7, 2))
}

func TestWeighted(t *testing.T) {
	r := New(7, 7)
	assert.Equal(t, -1, Weighted(r, nil))
	assert.Equal(t, -1, Weighted(r, []float64{0, -1}))

	for i := 0; i < 100; i++ {
		assert.Equal(t, 1, Weighted(r, []float64{0, 2, 0}))
	}

	counts := make([]int, 2)
	for i := 0; i < 10000; i++ {
		counts[Weighted(r, []float64{0.9, 0.1})]++
	}
	assert.Greater(t, counts[0], counts[1]*5)
}

func TestBernoulli_Edges(t *testing.T) {
	r := New(3, 3)
	for i := 0; i < 100; i++ {
		assert.False(t, Bernoulli(r, 0))
		assert.True(t, Bernoulli(r, 1))
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 80.0, Clamp(95, 0, 80))
	assert.Equal(t, 0.0, Clamp(-3, 0, 80))
	assert.Equal(t, 42.0, Clamp(42, 0, 80))
}
