package netopt

import (
	"context"
	"math"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shin315/fetchopt/internal/utils"
)

// Quality is a point-in-time assessment of the network, scored 0-100.
type Quality struct {
	LatencyMs     float64
	BandwidthMbps float64
	JitterMs      float64
	Score         float64
	LastUpdated   time.Time
}

const defaultQualityWindow = 8

// QualityMonitor keeps fixed-size rolling windows of latency and
// bandwidth observations and derives a composite quality score:
//
//	latency score   = max(0, 100 - latency/10)
//	bandwidth score = min(100, mbps * 10)
//	jitter score    = max(0, 100 - jitter/5)
//	quality         = mean of the three
//
// where jitter is the mean absolute deviation of windowed latencies.
type QualityMonitor struct {
	mu         sync.Mutex
	latencies  []float64 // ms, FIFO
	bandwidths []float64 // mbps, FIFO
	window     int

	probeLimit *rate.Limiter
}

func NewQualityMonitor(window int) *QualityMonitor {
	if window <= 0 {
		window = defaultQualityWindow
	}
	return &QualityMonitor{
		window: window,
		// Background probing stays gentle regardless of caller timing.
		probeLimit: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Ping probes host with a plain TCP dial and records the observed
// latency. On failure or timeout the full timeout is recorded as a
// penalty latency instead of returning an error; the caller always gets
// a latency figure.
func (m *QualityMonitor) Ping(ctx context.Context, host string, timeout time.Duration) float64 {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := m.probeLimit.Wait(ctx); err != nil {
		return float64(timeout.Milliseconds())
	}
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "443")
	}
	start := time.Now()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	latencyMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		latencyMs = float64(timeout.Milliseconds())
		logger := utils.GetLogger("quality")
		logger.Debug().Str("host", host).Err(err).Msg("Probe failed, recording penalty latency")
	} else {
		conn.Close()
	}
	m.RecordLatency(latencyMs)
	return latencyMs
}

// RecordLatency appends a latency observation in milliseconds.
func (m *QualityMonitor) RecordLatency(latencyMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = appendWindow(m.latencies, latencyMs, m.window)
}

// RecordBandwidth converts a transfer observation to Mbps and appends it.
// Non-positive durations are dropped.
func (m *QualityMonitor) RecordBandwidth(bytes int64, duration time.Duration) {
	if duration <= 0 || bytes <= 0 {
		return
	}
	mbps := float64(bytes) * 8 / duration.Seconds() / 1e6
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bandwidths = appendWindow(m.bandwidths, mbps, m.window)
}

// Assess computes the current quality from the windows. With no samples
// at all the score is a neutral 50.
func (m *QualityMonitor) Assess() Quality {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := Quality{LastUpdated: time.Now()}
	if len(m.latencies) == 0 && len(m.bandwidths) == 0 {
		q.Score = 50
		return q
	}
	q.LatencyMs = mean(m.latencies)
	q.BandwidthMbps = mean(m.bandwidths)
	q.JitterMs = meanAbsDeviation(m.latencies)

	latencyScore := math.Max(0, 100-q.LatencyMs/10)
	bandwidthScore := math.Min(100, q.BandwidthMbps*10)
	jitterScore := math.Max(0, 100-q.JitterMs/5)
	q.Score = (latencyScore + bandwidthScore + jitterScore) / 3
	return q
}

func appendWindow(window []float64, v float64, capacity int) []float64 {
	window = append(window, v)
	if len(window) > capacity {
		window = window[len(window)-capacity:]
	}
	return window
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanAbsDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		sum += math.Abs(v - m)
	}
	return sum / float64(len(values))
}
