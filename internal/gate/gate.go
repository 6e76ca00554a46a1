// Package gate bounds the number of concurrent heavy conversion jobs.
package gate

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Config controls Gate behavior. Zero values fall back to defaults.
type Config struct {
	// MaxConcurrency caps simultaneous jobs. When 0 it is derived from the
	// CPU count, clamped to [1, 2]: tracing is memory-heavy enough that more
	// than two in-flight jobs risks destabilizing the host.
	MaxConcurrency int
	// QueueMax caps the number of callers allowed to wait for a slot.
	QueueMax int
	// JobEstimate is the per-wave duration used for retry hints.
	JobEstimate time.Duration
	// RetryMin and RetryMax clamp the retry hint.
	RetryMin time.Duration
	RetryMax time.Duration
}

const (
	defaultQueueMax    = 8
	defaultJobEstimate = 3 * time.Second
	defaultRetryMin    = time.Second
	defaultRetryMax    = 15 * time.Second
)

// DeriveConcurrency maps a CPU count to the allowed concurrency range.
func DeriveConcurrency(numCPU int) int {
	if numCPU <= 1 {
		return 1
	}
	return 2
}

// BusyError is the backpressure signal returned when both the running set
// and the wait queue are full. It is expected under peak load, not a fault.
type BusyError struct {
	RetryAfter time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("converter busy, retry in %s", e.RetryAfter)
}

// Slot is permission to run one job. Release is idempotent.
type Slot struct {
	g    *Gate
	once sync.Once
}

// Release returns the slot to the gate, promoting the head waiter if any.
// Calling it more than once has no additional effect.
func (s *Slot) Release() {
	s.once.Do(s.g.release)
}

// Stats is a point-in-time view of gate occupancy.
type Stats struct {
	Running        int `json:"running"`
	Queued         int `json:"queued"`
	MaxConcurrency int `json:"maxConcurrency"`
	QueueMax       int `json:"queueMax"`
}

// Gate admits up to MaxConcurrency jobs and holds up to QueueMax waiters in
// strict FIFO order. One instance serves the whole process.
type Gate struct {
	mu      sync.Mutex
	running int
	waiters []chan struct{}
	cfg     Config
}

// New constructs a Gate, filling unset config fields with defaults.
func New(cfg Config) *Gate {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DeriveConcurrency(runtime.NumCPU())
	}
	if cfg.QueueMax <= 0 {
		cfg.QueueMax = defaultQueueMax
	}
	if cfg.JobEstimate <= 0 {
		cfg.JobEstimate = defaultJobEstimate
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = defaultRetryMin
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = defaultRetryMax
	}
	return &Gate{cfg: cfg}
}

// Acquire grants a slot immediately when capacity allows, waits in FIFO
// order when the queue has room, and fails fast with a BusyError when the
// queue is full. The wait is bounded by queue capacity, not time; ctx
// cancellation abandons the wait.
func (g *Gate) Acquire(ctx context.Context) (*Slot, error) {
	g.mu.Lock()
	if g.running < g.cfg.MaxConcurrency {
		g.running++
		g.mu.Unlock()
		return &Slot{g: g}, nil
	}
	if len(g.waiters) >= g.cfg.QueueMax {
		retry := g.retryHintLocked()
		g.mu.Unlock()
		return nil, &BusyError{RetryAfter: retry}
	}
	ready := make(chan struct{})
	g.waiters = append(g.waiters, ready)
	g.mu.Unlock()

	select {
	case <-ready:
		// Promoted by a releasing job; running was transferred, not re-counted.
		return &Slot{g: g}, nil
	case <-ctx.Done():
		g.abandon(ready)
		return nil, fmt.Errorf("gate wait canceled: %w", ctx.Err())
	}
}

// release hands the freed capacity to the head waiter, or decrements the
// running count when nobody is waiting. The counter is clamped at zero so a
// bookkeeping fault can never desynchronize admission.
func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.waiters) > 0 {
		head := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(head)
		return
	}
	if g.running > 0 {
		g.running--
	}
}

// abandon removes a canceled waiter. If the waiter was promoted before the
// cancellation won the race, the transferred capacity is handed onward.
func (g *Gate) abandon(ready chan struct{}) {
	g.mu.Lock()
	for i, w := range g.waiters {
		if w == ready {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			g.mu.Unlock()
			return
		}
	}
	g.mu.Unlock()
	// Already promoted: release the slot we will never use.
	g.release()
}

// RetryHint estimates how long a rejected caller should back off.
func (g *Gate) RetryHint() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.retryHintLocked()
}

// retryHintLocked computes ceil((queued+1)/max) waves of the estimated job
// duration, clamped to [RetryMin, RetryMax].
func (g *Gate) retryHintLocked() time.Duration {
	waves := (len(g.waiters) + g.cfg.MaxConcurrency) / g.cfg.MaxConcurrency
	hint := time.Duration(waves) * g.cfg.JobEstimate
	if hint < g.cfg.RetryMin {
		hint = g.cfg.RetryMin
	}
	if hint > g.cfg.RetryMax {
		hint = g.cfg.RetryMax
	}
	return hint
}

// Stats reports current occupancy for diagnostics and client throttling.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Running:        g.running,
		Queued:         len(g.waiters),
		MaxConcurrency: g.cfg.MaxConcurrency,
		QueueMax:       g.cfg.QueueMax,
	}
}
