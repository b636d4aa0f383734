package fleet

import (
	"math/rand"
	"sync"
	"time"
)

// Rand is the randomness source injected into generation and mutation.
// *rand.Rand satisfies it for single-goroutine use (tests).
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// NewRand returns a Rand that is safe for concurrent use by several tasks.
// seed == 0 seeds from the clock.
func NewRand(seed int64) Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	v := l.r.Float64()
	l.mu.Unlock()
	return v
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	v := l.r.Intn(n)
	l.mu.Unlock()
	return v
}

// uniform draws from [lo, hi).
func uniform(r Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// between draws an integer from [lo, hi] inclusive.
func between(r Rand, lo, hi int) int {
	return lo + r.Intn(hi-lo+1)
}
