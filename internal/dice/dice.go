// Package dice holds the randomness and time sources every draft decision goes through.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

const D20 = 20

// Roller is the single source of randomness for a draft.
type Roller interface {
	RollDie(sides int) int
	Intn(n int) int
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// Clock abstracts wall time so timers can be driven from tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Rand is a mutex guarded math/rand source.
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRoller(seed int64) *Rand {
	return &Rand{rng: rand.New(rand.NewSource(seed))}
}

// NewSeed returns a seed read from crypto/rand, falling back to the clock.
func NewSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]) & (1<<63 - 1))
}

func (r *Rand) RollDie(sides int) int {
	if sides <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(sides) + 1
}

func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng.Shuffle(n, swap)
}

// Choice picks a uniformly random element. ok is false for an empty slice.
func Choice[T any](r Roller, items []T) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	return items[r.Intn(len(items))], true
}

// Sample returns k distinct elements of items in random order.
func Sample[T any](r Roller, items []T, k int) []T {
	if k <= 0 {
		return nil
	}
	out := append([]T(nil), items...)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if k < len(out) {
		out = out[:k]
	}
	return out
}

type systemClock struct{}

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
