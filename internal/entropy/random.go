// Package entropy provides the injectable random source used by stochastic
// systems (AI decisions, world seeding). Seeded sources are reproducible;
// unseeded runs draw their seed from crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
)

// Source is the randomness the simulation consumes.
type Source interface {
	Float64() float64 // [0, 1)
	IntN(n int) int   // [0, n)
}

// Seeded is a deterministic PCG-backed Source. Safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a deterministic source from seed.
func NewSeeded(seed uint64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandom creates a source seeded from crypto/rand.
func NewRandom() *Seeded {
	return NewSeeded(CryptoSeed())
}

// Float64 returns a float in [0, 1).
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// IntN returns an int in [0, n). Returns 0 when n <= 0.
func (s *Seeded) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// CryptoSeed reads a 64-bit seed from crypto/rand.
func CryptoSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; fall back to a fixed seed.
		return 0x5eed
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// Jitter scales v by a uniform factor in [1-spread, 1+spread].
func Jitter(src Source, v, spread float64) float64 {
	return v * (1 - spread + 2*spread*src.Float64())
}

// Chance returns true with probability p.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// Fixed is a Source that replays a scripted sequence of floats, cycling.
// IntN maps the next float onto [0, n).
type Fixed struct {
	mu     sync.Mutex
	Values []float64
	next   int
}

// NewFixed creates a scripted source.
func NewFixed(values ...float64) *Fixed {
	return &Fixed{Values: values}
}

// Float64 returns the next scripted value.
func (f *Fixed) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return 0
	}
	v := f.Values[f.next%len(f.Values)]
	f.next++
	return v
}

// IntN maps the next scripted value onto [0, n).
func (f *Fixed) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(f.Float64() * float64(n))
	return min(i, n-1)
}
