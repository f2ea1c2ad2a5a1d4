package progress

import (
	"testing"
	"time"
)

func TestTrackerThrottles(t *testing.T) {
	tracker := NewTracker(50 * time.Millisecond)
	calls := 0
	tracker.Register(func(processed, total int64) {
		calls++
	})

	for i := range 100 {
		tracker.Update(int64(i), 100)
	}
	if calls >= 100 {
		t.Fatalf("throttle passed all %d updates through", calls)
	}
}

func TestTrackerFlushDeliversFinalUpdate(t *testing.T) {
	tracker := NewTracker(time.Hour) // throttle suppresses everything after the first fire
	var lastProcessed, lastTotal int64
	tracker.Register(func(processed, total int64) {
		lastProcessed, lastTotal = processed, total
	})

	for i := int64(1); i <= 100; i++ {
		tracker.Update(i, 100)
	}
	tracker.Flush()

	if lastProcessed != 100 || lastTotal != 100 {
		t.Fatalf("final state (%d, %d), want (100, 100)", lastProcessed, lastTotal)
	}
	if Percent(lastProcessed, lastTotal) != 100 {
		t.Fatal("final flush did not reach 100%")
	}
}

func TestTrackerMultipleCallbacks(t *testing.T) {
	tracker := NewTracker(time.Millisecond)
	first, second := 0, 0
	tracker.Register(func(int64, int64) { first++ })
	tracker.Register(func(int64, int64) { second++ })

	tracker.Update(1, 2)
	tracker.Flush()
	if first != second {
		t.Fatalf("callbacks diverged: %d vs %d", first, second)
	}
	if first == 0 {
		t.Fatal("callbacks never fired")
	}
}

func TestTrackerNilCallbackIgnored(t *testing.T) {
	tracker := NewTracker(0)
	tracker.Register(nil)
	tracker.Update(1, 2) // must not panic
	tracker.Flush()
}

func TestPercent(t *testing.T) {
	tests := []struct {
		processed, total int64
		want             float64
	}{
		{0, 100, 0},
		{50, 100, 50},
		{100, 100, 100},
		{10, 0, 0},
		{10, -1, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.processed, tt.total); got != tt.want {
			t.Fatalf("Percent(%d, %d) = %v, want %v", tt.processed, tt.total, got, tt.want)
		}
	}
}
