package sim

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// minSample keeps exponential draws strictly positive so a unit never loops
// on a zero-length episode.
const minSample = time.Millisecond

// Sampler draws the random variates used by the state machine.
type Sampler interface {
	// Exponential draws a duration with the given mean. A non-positive mean
	// is treated as one second.
	Exponential(mean time.Duration) time.Duration
	Gaussian(mean, stddev float64) float64
	Uniform(lo, hi float64) float64
	// UniformInt draws an integer in [lo, hi], both ends inclusive.
	UniformInt(lo, hi int) int
}

// RandSampler is the production Sampler. It owns its source so that runs can
// be reproduced from a seed.
type RandSampler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandSampler returns a sampler seeded with seed, or with the current time
// when seed is zero.
func NewRandSampler(seed uint64) *RandSampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandSampler{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *RandSampler) Exponential(mean time.Duration) time.Duration {
	if mean <= 0 {
		mean = time.Second
	}
	s.mu.Lock()
	x := s.rnd.ExpFloat64()
	s.mu.Unlock()

	d := time.Duration(x * float64(mean))
	if d < minSample {
		d = minSample
	}
	return d
}

func (s *RandSampler) Gaussian(mean, stddev float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mean + stddev*s.rnd.NormFloat64()
}

func (s *RandSampler) Uniform(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + (hi-lo)*s.rnd.Float64()
}

func (s *RandSampler) UniformInt(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rnd.IntN(hi-lo+1)
}

// round2 rounds to two decimals, the precision efficiency is stored with.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
