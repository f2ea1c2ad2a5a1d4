package netopt

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/shin315/fetchopt/internal/utils"
)

// DNSCache is a TTL-based hostname to IP cache shared by all downloads of
// an engine instance. Expiry is lazy on Get; ClearExpired does a full
// sweep and can be driven by StartSweeper. Failed resolutions are never
// cached.
type DNSCache struct {
	mu         sync.Mutex
	entries    map[string]dnsEntry
	defaultTTL time.Duration
	resolver   *net.Resolver
}

type dnsEntry struct {
	ip     string
	expiry time.Time
}

const DefaultDNSTTL = 5 * time.Minute

func NewDNSCache(defaultTTL time.Duration) *DNSCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultDNSTTL
	}
	return &DNSCache{
		entries:    make(map[string]dnsEntry),
		defaultTTL: defaultTTL,
		resolver:   net.DefaultResolver,
	}
}

// Get returns the cached IP for hostname. A hit past its expiry counts as
// a miss and is removed.
func (c *DNSCache) Get(hostname string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[hostname]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiry) {
		delete(c.entries, hostname)
		return "", false
	}
	return entry.ip, true
}

// Set caches hostname -> ip. A non-positive ttl uses the cache default.
func (c *DNSCache) Set(hostname, ip string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hostname] = dnsEntry{ip: ip, expiry: time.Now().Add(ttl)}
}

// Resolve returns an IP for hostname, consulting the cache first. On a
// miss it resolves and caches the first address. On resolver failure the
// hostname itself is returned so the dialer can fall back to the system
// path; nothing is cached for the failure.
func (c *DNSCache) Resolve(ctx context.Context, hostname string) string {
	if ip, ok := c.Get(hostname); ok {
		return ip
	}
	if net.ParseIP(hostname) != nil {
		return hostname
	}
	addrs, err := c.resolver.LookupIPAddr(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		logger := utils.GetLogger("dnscache")
		logger.Debug().Str("host", hostname).Err(err).Msg("Resolution failed, falling back to hostname")
		return hostname
	}
	ip := addrs[0].IP.String()
	c.Set(hostname, ip, 0)
	return ip
}

// ClearExpired sweeps out all expired entries and reports how many were
// removed.
func (c *DNSCache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for host, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, host)
			removed++
		}
	}
	return removed
}

// Len reports the number of cached entries, expired or not.
func (c *DNSCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper runs ClearExpired on a ticker until ctx is cancelled.
func (c *DNSCache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.ClearExpired(); n > 0 {
					logger := utils.GetLogger("dnscache")
					logger.Debug().Int("removed", n).Msg("Swept expired DNS entries")
				}
			}
		}
	}()
}
