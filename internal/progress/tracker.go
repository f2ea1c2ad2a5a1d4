package progress

import (
	"sync"
	"time"
)

// Callback receives throttled progress updates on the caller's
// goroutine.
type Callback func(processed, total int64)

const DefaultInterval = 100 * time.Millisecond

// Tracker fans progress updates out to registered callbacks at most once
// per interval. Intermediate updates are dropped by the throttle; Flush
// delivers the current state unconditionally and must be called once
// after the driving loop so the terminal update (100%) is never lost.
type Tracker struct {
	mu        sync.Mutex
	callbacks []Callback
	interval  time.Duration
	lastFire  time.Time
	processed int64
	total     int64
}

func NewTracker(interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{interval: interval}
}

// Register adds a callback. Callbacks run synchronously inside Update
// and Flush, in registration order.
func (t *Tracker) Register(cb Callback) {
	if cb == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// Update records progress and fires callbacks if the throttle interval
// has elapsed since the last firing.
func (t *Tracker) Update(processed, total int64) {
	t.mu.Lock()
	t.processed = processed
	t.total = total
	now := time.Now()
	if now.Sub(t.lastFire) < t.interval {
		t.mu.Unlock()
		return
	}
	t.lastFire = now
	callbacks, p, tot := t.callbacks, t.processed, t.total
	t.mu.Unlock()
	for _, cb := range callbacks {
		cb(p, tot)
	}
}

// Flush fires callbacks with the latest state regardless of the
// throttle.
func (t *Tracker) Flush() {
	t.mu.Lock()
	t.lastFire = time.Now()
	callbacks, p, tot := t.callbacks, t.processed, t.total
	t.mu.Unlock()
	for _, cb := range callbacks {
		cb(p, tot)
	}
}

// Percent converts a progress pair to 0-100, with 0 for an unknown
// total.
func Percent(processed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(processed) / float64(total) * 100
}
