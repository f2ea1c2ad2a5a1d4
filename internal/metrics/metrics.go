package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NetworkSnapshot is a read-only copy of the cumulative network
// counters. Counters live for the process; they reset only on restart.
type NetworkSnapshot struct {
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	TimeoutCount        int64
	CancelledCount      int64
	BytesDownloaded     int64
	AvgResponseTime     time.Duration
	AvgDownloadSpeedBps float64
}

// FileIOSnapshot is a read-only copy of the cumulative file-IO counters.
type FileIOSnapshot struct {
	TotalDownloads      int64
	SuccessfulDownloads int64
	FailedDownloads     int64
	BytesWritten        int64
	ValidationFailures  int64
	TempFilesReclaimed  int64
}

// Collector aggregates engine counters. One collector per engine
// instance; nothing is package-global, so tests get isolated state.
type Collector struct {
	mu sync.Mutex

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	timeoutCount       int64
	cancelledCount     int64
	bytesDownloaded    int64
	avgResponseTime    time.Duration
	avgSpeedBps        float64

	totalDownloads      int64
	successfulDownloads int64
	failedDownloads     int64
	bytesWritten        int64
	validationFailures  int64
	tempFilesReclaimed  int64
}

func NewCollector() *Collector {
	return &Collector{}
}

// RecordRequest folds one request outcome into the counters. Response
// time aggregates as a running mean; speed as a byte-weighted running
// mean.
func (c *Collector) RecordRequest(success bool, responseTime time.Duration, bytes int64, speedBps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	if success {
		c.successfulRequests++
	} else {
		c.failedRequests++
	}
	n := float64(c.totalRequests)
	c.avgResponseTime = time.Duration((float64(c.avgResponseTime)*(n-1) + float64(responseTime)) / n)
	if bytes > 0 {
		prevBytes := float64(c.bytesDownloaded)
		c.bytesDownloaded += bytes
		totalBytes := float64(c.bytesDownloaded)
		c.avgSpeedBps = (c.avgSpeedBps*prevBytes + speedBps*float64(bytes)) / totalBytes
	}
}

// RecordTimeout counts a timed-out request, distinct from generic
// failures.
func (c *Collector) RecordTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutCount++
}

// RecordCancellation counts a caller-cancelled request, distinct from
// timeouts.
func (c *Collector) RecordCancellation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelledCount++
}

// RecordDownload folds one completed download attempt into the file-IO
// counters.
func (c *Collector) RecordDownload(success bool, bytesWritten int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDownloads++
	if success {
		c.successfulDownloads++
	} else {
		c.failedDownloads++
	}
	c.bytesWritten += bytesWritten
}

// RecordValidationFailure counts an integrity check that did not pass.
func (c *Collector) RecordValidationFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validationFailures++
}

// RecordReclaimed counts bytes freed by the temp reaper.
func (c *Collector) RecordReclaimed(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tempFilesReclaimed += bytes
}

// Network returns a copy of the network counters.
func (c *Collector) Network() NetworkSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return NetworkSnapshot{
		TotalRequests:       c.totalRequests,
		SuccessfulRequests:  c.successfulRequests,
		FailedRequests:      c.failedRequests,
		TimeoutCount:        c.timeoutCount,
		CancelledCount:      c.cancelledCount,
		BytesDownloaded:     c.bytesDownloaded,
		AvgResponseTime:     c.avgResponseTime,
		AvgDownloadSpeedBps: c.avgSpeedBps,
	}
}

// FileIO returns a copy of the file-IO counters.
func (c *Collector) FileIO() FileIOSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FileIOSnapshot{
		TotalDownloads:      c.totalDownloads,
		SuccessfulDownloads: c.successfulDownloads,
		FailedDownloads:     c.failedDownloads,
		BytesWritten:        c.bytesWritten,
		ValidationFailures:  c.validationFailures,
		TempFilesReclaimed:  c.tempFilesReclaimed,
	}
}

// Register exposes the collector on a prometheus registry. Gauges and
// counters read through to the snapshot, so scrapes never race the hot
// path.
func (c *Collector) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fetchopt", Name: "requests_total",
			Help: "Total HTTP requests issued by the engine.",
		}, func() float64 { return float64(c.Network().TotalRequests) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fetchopt", Name: "request_failures_total",
			Help: "HTTP requests that ended in error.",
		}, func() float64 { return float64(c.Network().FailedRequests) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fetchopt", Name: "request_timeouts_total",
			Help: "HTTP requests that hit the adaptive timeout.",
		}, func() float64 { return float64(c.Network().TimeoutCount) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fetchopt", Name: "downloaded_bytes_total",
			Help: "Bytes received over the network.",
		}, func() float64 { return float64(c.Network().BytesDownloaded) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fetchopt", Name: "downloads_total",
			Help: "Download operations attempted.",
		}, func() float64 { return float64(c.FileIO().TotalDownloads) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fetchopt", Name: "download_failures_total",
			Help: "Download operations that failed.",
		}, func() float64 { return float64(c.FileIO().FailedDownloads) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fetchopt", Name: "avg_download_speed_bytes_per_second",
			Help: "Byte-weighted running mean download speed.",
		}, func() float64 { return c.Network().AvgDownloadSpeedBps }),
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}
