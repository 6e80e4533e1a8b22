package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Delay computes the wait before retry attempt (attempt starts at 1).
// rnd supplies the jitter factor source in [0, 1), it is ignored when jitter is off.
func Delay(cfg Config, attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if ceiling := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && delay > ceiling {
		delay = ceiling
	}
	if cfg.Jitter && rnd != nil {
		delay *= 0.5 + rnd()*0.5
	}
	// whole milliseconds
	return time.Duration(math.Floor(delay/float64(time.Millisecond))) * time.Millisecond
}

// lockedRand rand.Rand is not safe for concurrent use
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}
