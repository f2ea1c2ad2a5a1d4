package netopt

import (
	"math"
	"testing"
	"time"
)

func TestQualityScoreFormula(t *testing.T) {
	m := NewQualityMonitor(8)
	// Constant latency: jitter is zero.
	for range 4 {
		m.RecordLatency(200)
	}
	// 1 MB over 1s = 8 Mbps.
	for range 4 {
		m.RecordBandwidth(1_000_000, time.Second)
	}

	q := m.Assess()
	if q.LatencyMs != 200 {
		t.Fatalf("latency %v, want 200", q.LatencyMs)
	}
	if math.Abs(q.BandwidthMbps-8) > 0.01 {
		t.Fatalf("bandwidth %v, want 8", q.BandwidthMbps)
	}
	if q.JitterMs != 0 {
		t.Fatalf("jitter %v, want 0", q.JitterMs)
	}
	// latency score 80, bandwidth score 80, jitter score 100
	want := (80.0 + 80.0 + 100.0) / 3
	if math.Abs(q.Score-want) > 0.1 {
		t.Fatalf("score %v, want %v", q.Score, want)
	}
}

func TestQualityScoreClamps(t *testing.T) {
	m := NewQualityMonitor(4)
	m.RecordLatency(100000)                     // latency score floors at 0
	m.RecordBandwidth(125_000_000, time.Second) // 1000 Mbps, caps at 100

	q := m.Assess()
	if q.Score < 0 || q.Score > 100 {
		t.Fatalf("score %v out of [0,100]", q.Score)
	}
}

func TestQualityJitterIsMeanAbsDeviation(t *testing.T) {
	m := NewQualityMonitor(8)
	m.RecordLatency(100)
	m.RecordLatency(300)
	// mean 200, |100-200| and |300-200| average to 100
	q := m.Assess()
	if math.Abs(q.JitterMs-100) > 0.01 {
		t.Fatalf("jitter %v, want 100", q.JitterMs)
	}
}

func TestQualityWindowEviction(t *testing.T) {
	m := NewQualityMonitor(3)
	for _, lat := range []float64{1000, 1000, 10, 10, 10} {
		m.RecordLatency(lat)
	}
	q := m.Assess()
	// Only the last three samples remain.
	if q.LatencyMs != 10 {
		t.Fatalf("latency %v, want 10 after eviction", q.LatencyMs)
	}
}

func TestQualityNeutralWithoutSamples(t *testing.T) {
	m := NewQualityMonitor(0)
	if q := m.Assess(); q.Score != 50 {
		t.Fatalf("empty monitor score %v, want neutral 50", q.Score)
	}
}

func TestQualityBandwidthIgnoresBadSamples(t *testing.T) {
	m := NewQualityMonitor(4)
	m.RecordBandwidth(0, time.Second)
	m.RecordBandwidth(1000, 0)
	if q := m.Assess(); q.Score != 50 {
		t.Fatalf("malformed samples should be dropped, score %v", q.Score)
	}
}
