package netopt

import (
	"sync"
	"time"
)

const (
	MinTimeout = 5 * time.Second
	MaxTimeout = 300 * time.Second

	defaultBaseTimeout     = 30 * time.Second
	defaultTimeoutHistSize = 20
)

// TimeoutManager derives per-request timeouts from recent network
// quality and request outcomes:
//
//	timeout = base * (1 + latency/1000) * (2 - score/100) * (2 - successRate)
//
// clamped to [MinTimeout, MaxTimeout]. Outcomes live in a bounded ring;
// success rate is the fraction of successes in that window.
type TimeoutManager struct {
	mu      sync.Mutex
	base    time.Duration
	history []outcome // ring, oldest evicted first
	size    int
}

type outcome struct {
	success  bool
	duration time.Duration
}

func NewTimeoutManager(base time.Duration) *TimeoutManager {
	if base <= 0 {
		base = defaultBaseTimeout
	}
	return &TimeoutManager{
		base: base,
		size: defaultTimeoutHistSize,
	}
}

// RecordResult appends a request outcome to the history window.
func (t *TimeoutManager) RecordResult(success bool, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, outcome{success: success, duration: duration})
	if len(t.history) > t.size {
		t.history = t.history[len(t.history)-t.size:]
	}
}

// SuccessRate reports the fraction of successful outcomes in the window.
// An empty window counts as fully successful.
func (t *TimeoutManager) SuccessRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.successRateLocked()
}

func (t *TimeoutManager) successRateLocked() float64 {
	if len(t.history) == 0 {
		return 1.0
	}
	successes := 0
	for _, o := range t.history {
		if o.success {
			successes++
		}
	}
	return float64(successes) / float64(len(t.history))
}

// Timeout computes the adaptive timeout for the given quality snapshot.
func (t *TimeoutManager) Timeout(q Quality) time.Duration {
	t.mu.Lock()
	base := t.base
	successRate := t.successRateLocked()
	t.mu.Unlock()

	latencyFactor := 1 + q.LatencyMs/1000
	qualityFactor := 2 - q.Score/100
	successFactor := 2 - successRate

	timeout := time.Duration(float64(base) * latencyFactor * qualityFactor * successFactor)
	if timeout < MinTimeout {
		timeout = MinTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	return timeout
}
