package netopt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// BandwidthLimiter bounds the byte rate of a stream with a token bucket.
// Capacity equals one second worth of the configured rate; tokens refill
// proportionally to elapsed time on each reservation. A zero or negative
// rate disables limiting with no per-chunk overhead.
//
// The limiter may be shared: either one per engine instance (default) or
// a single process-wide limiter handed to several engines.
type BandwidthLimiter struct {
	enabled atomic.Bool

	mu         sync.Mutex
	rate       float64 // bytes per second
	tokens     float64
	lastUpdate time.Time
}

func NewBandwidthLimiter(bytesPerSec float64) *BandwidthLimiter {
	l := &BandwidthLimiter{}
	l.SetRate(bytesPerSec)
	return l
}

// SetRate updates the limit in bytes per second. Rate <= 0 means
// unlimited.
func (l *BandwidthLimiter) SetRate(bytesPerSec float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bytesPerSec <= 0 {
		l.enabled.Store(false)
		l.rate = 0
		return
	}
	l.rate = bytesPerSec
	l.tokens = bytesPerSec
	l.lastUpdate = time.Now()
	l.enabled.Store(true)
}

// Rate returns the configured limit in bytes per second, 0 if unlimited.
func (l *BandwidthLimiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

// Reserve accounts for n bytes and returns how long the caller must wait
// before sending them. With enough tokens the delay is zero; otherwise
// the bucket is drained and the delay covers the deficit.
func (l *BandwidthLimiter) Reserve(n int64) time.Duration {
	if !l.enabled.Load() || n <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now
	l.tokens += elapsed * l.rate
	if l.tokens > l.rate {
		l.tokens = l.rate
	}
	need := float64(n)
	if need <= l.tokens {
		l.tokens -= need
		return 0
	}
	deficit := need - l.tokens
	l.tokens = 0
	return time.Duration(deficit / l.rate * float64(time.Second))
}

// Wait reserves n bytes and sleeps out the resulting delay, returning
// early with ctx.Err() on cancellation.
func (l *BandwidthLimiter) Wait(ctx context.Context, n int64) error {
	delay := l.Reserve(n)
	if delay == 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
