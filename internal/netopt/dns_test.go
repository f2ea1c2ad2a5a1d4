package netopt

import (
	"context"
	"testing"
	"time"
)

func TestDNSCacheSetGet(t *testing.T) {
	cache := NewDNSCache(time.Minute)
	cache.Set("example.com", "93.184.216.34", 0)

	ip, ok := cache.Get("example.com")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if ip != "93.184.216.34" {
		t.Fatalf("got %q, want 93.184.216.34", ip)
	}
	if _, ok := cache.Get("missing.example"); ok {
		t.Fatal("expected miss for unknown host")
	}
}

func TestDNSCacheTTLExpiry(t *testing.T) {
	cache := NewDNSCache(time.Minute)
	cache.Set("example.com", "93.184.216.34", 30*time.Millisecond)

	if _, ok := cache.Get("example.com"); !ok {
		t.Fatal("expected hit before expiry")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := cache.Get("example.com"); ok {
		t.Fatal("expected miss after TTL")
	}
	if cache.Len() != 0 {
		t.Fatalf("lazy expiry should have removed the entry, len=%d", cache.Len())
	}
}

func TestDNSCacheClearExpired(t *testing.T) {
	cache := NewDNSCache(time.Minute)
	cache.Set("a.example", "10.0.0.1", 10*time.Millisecond)
	cache.Set("b.example", "10.0.0.2", time.Minute)

	time.Sleep(30 * time.Millisecond)
	if removed := cache.ClearExpired(); removed != 1 {
		t.Fatalf("removed %d entries, want 1", removed)
	}
	if _, ok := cache.Get("b.example"); !ok {
		t.Fatal("unexpired entry should survive the sweep")
	}
}

func TestDNSCacheResolveIPLiteral(t *testing.T) {
	cache := NewDNSCache(time.Minute)
	if got := cache.Resolve(context.Background(), "127.0.0.1"); got != "127.0.0.1" {
		t.Fatalf("IP literal should pass through, got %q", got)
	}
	if cache.Len() != 0 {
		t.Fatal("IP literals should not be cached")
	}
}
