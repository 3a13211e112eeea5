package transport

import (
	"math/rand/v2"
	"sync"

	"github.com/1ureka/radiolink/internal/util"
)

// Lossy drops outbound frames at random, emulating a noisy radio channel in
// front of a carrier that is otherwise reliable.
type Lossy struct {
	Transport

	rate float64
	mu   sync.Mutex
	rng  *rand.Rand
}

// NewLossy wraps t so that each Send is silently discarded with probability
// rate. The seed makes loss patterns reproducible.
func NewLossy(t Transport, rate float64, seed uint64) *Lossy {
	return &Lossy{
		Transport: t,
		rate:      rate,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
	}
}

// Send forwards frame unless the dice say it was lost on air.
func (l *Lossy) Send(frame []byte) error {
	l.mu.Lock()
	drop := l.rng.Float64() < l.rate
	l.mu.Unlock()

	if drop {
		util.LogDebug("lossy: dropped %d-byte frame", len(frame))
		return nil
	}
	return l.Transport.Send(frame)
}
