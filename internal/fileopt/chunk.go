package fileopt

import (
	"sync"
)

const (
	MinChunkSize     = 8 * 1024
	MaxChunkSize     = 16 * 1024 * 1024
	DefaultChunkSize = 1024 * 1024

	perfHistorySize = 64
)

// ChunkOptimizer maps file size and observed speed to a streaming chunk
// size. The breakpoint table picks a base size, the speed multiplier
// scales it, and the result is clamped to [MinChunkSize, MaxChunkSize].
// Malformed inputs always degrade to DefaultChunkSize, never an error.
type ChunkOptimizer struct {
	mu      sync.Mutex
	history []PerfSample // advisory ring, newest last
}

// PerfSample is one observed (chunk size, throughput) pair. The current
// sizing formula does not read these back; they are a tuning signal for
// callers polling History.
type PerfSample struct {
	ChunkSize int64
	SpeedMbps float64
}

func NewChunkOptimizer() *ChunkOptimizer {
	return &ChunkOptimizer{}
}

// OptimalChunkSize returns the chunk size for a file of fileSize bytes
// observed at speedMbps.
func (o *ChunkOptimizer) OptimalChunkSize(fileSize int64, speedMbps float64) int64 {
	if fileSize < 0 || speedMbps < 0 {
		return DefaultChunkSize
	}
	var base int64
	switch {
	case fileSize < 1<<20:
		base = 64 * 1024
	case fileSize < 10*(1<<20):
		base = 256 * 1024
	case fileSize < 100*(1<<20):
		base = 1 << 20
	default:
		base = 4 << 20
	}
	multiplier := 1.0
	switch {
	case speedMbps > 100:
		multiplier = 2.0
	case speedMbps > 50:
		multiplier = 1.5
	}
	size := int64(float64(base) * multiplier)
	if size < MinChunkSize {
		size = MinChunkSize
	}
	if size > MaxChunkSize {
		size = MaxChunkSize
	}
	return size
}

// UpdatePerformance records an observed throughput for a chunk size.
// History is bounded; the oldest samples fall off.
func (o *ChunkOptimizer) UpdatePerformance(chunkSize int64, speedMbps float64) {
	if chunkSize <= 0 || speedMbps < 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, PerfSample{ChunkSize: chunkSize, SpeedMbps: speedMbps})
	if len(o.history) > perfHistorySize {
		o.history = o.history[len(o.history)-perfHistorySize:]
	}
}

// History returns a copy of the recorded samples, oldest first.
func (o *ChunkOptimizer) History() []PerfSample {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PerfSample, len(o.history))
	copy(out, o.history)
	return out
}
