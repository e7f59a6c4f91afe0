package randutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDeterministic(t *testing.T) {
	a := New(7)
	b := New(7)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64(), "sequence diverged at %d", i)
	}
}

func TestNewDifferentSeeds(t *testing.T) {
	assert.NotEqual(t, New(1).Uint64(), New(2).Uint64())
}

func TestDurationBetween(t *testing.T) {
	rng := New(99)
	min, max := 300*time.Millisecond, 1250*time.Millisecond
	for i := 0; i < 1000; i++ {
		d := DurationBetween(rng, min, max)
		assert.GreaterOrEqual(t, d, min)
		assert.LessOrEqual(t, d, max)
	}
}

func TestDurationBetweenDegenerate(t *testing.T) {
	rng := New(1)
	assert.Equal(t, time.Second, DurationBetween(rng, time.Second, time.Second))
	assert.Equal(t, time.Second, DurationBetween(rng, time.Second, time.Millisecond))
	assert.Equal(t, time.Second, DurationBetween(nil, time.Second, 2*time.Second))
}
