package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shin315/fetchopt/internal/fileopt"
	"github.com/shin315/fetchopt/internal/metrics"
	"github.com/shin315/fetchopt/internal/netopt"
	"github.com/shin315/fetchopt/internal/progress"
	"github.com/shin315/fetchopt/internal/utils"
)

// State is the lifecycle stage of a single download.
type State string

const (
	StatePending    State = "pending"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateValidating State = "validating"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Config assembles an engine instance. Zero values take the documented
// defaults.
type Config struct {
	// MaxConcurrent bounds in-flight downloads. Default 5.
	MaxConcurrent int

	// BandwidthLimitMbps caps the stream rate of this engine. 0 means
	// unlimited. Ignored when SharedLimiter is set.
	BandwidthLimitMbps float64

	// SharedLimiter lets several engines share one process-wide limiter.
	SharedLimiter *netopt.BandwidthLimiter

	// BaseTimeout seeds the adaptive timeout formula. Default 30s.
	BaseTimeout time.Duration

	// ProgressInterval throttles progress callbacks. Default 100ms.
	ProgressInterval time.Duration

	// ReservedDiskBytes stays free on the destination volume. Default
	// 100MB.
	ReservedDiskBytes uint64

	// MaxRetries bounds full restarts of a download on retryable
	// errors. Default 3.
	MaxRetries int

	// RemoveCorrupt deletes output that fails integrity validation.
	// Default keeps it for the caller to inspect.
	RemoveCorrupt bool

	// DNSTTL is the default DNS cache entry lifetime. Default 5m.
	DNSTTL time.Duration

	// TempMaxAge is the age past which the background reaper deletes
	// temp files. Default 24h.
	TempMaxAge time.Duration

	HTTP ClientConfig
}

// Request describes one download.
type Request struct {
	URL        string
	OutputPath string

	// ChunkSize overrides the optimizer's choice when positive.
	ChunkSize int64

	// ExpectedHash enables post-download integrity validation.
	ExpectedHash  string
	HashAlgorithm string

	// ExpectedSize enables exact size validation when positive.
	ExpectedSize int64

	// Progress receives throttled (downloaded, total) callbacks.
	Progress progress.Callback
}

// Report summarizes a finished download.
type Report struct {
	ID               uuid.UUID
	URL              string
	OutputPath       string
	BytesDownloaded  int64
	Elapsed          time.Duration
	AverageSpeedMbps float64
	Validated        bool
	State            State
}

// Engine composes the network and file optimizers into a download
// pipeline. All shared structures (DNS cache, quality monitor, timeout
// manager, metrics) are owned by the engine and injected into the
// components that need them; two engines never share state unless given
// the same limiter explicitly.
type Engine struct {
	cfg       Config
	client    *Client
	dns       *netopt.DNSCache
	quality   *netopt.QualityMonitor
	timeouts  *netopt.TimeoutManager
	limiter   *netopt.BandwidthLimiter
	optimizer *fileopt.ChunkOptimizer
	disk      *fileopt.DiskManager
	writer    *fileopt.Writer
	collector *metrics.Collector
	sem       *semaphore.Weighted
	logger    zerolog.Logger

	cancelBackground context.CancelFunc
}

func New(cfg Config) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TempMaxAge <= 0 {
		cfg.TempMaxAge = 24 * time.Hour
	}
	limiter := cfg.SharedLimiter
	if limiter == nil {
		limiter = netopt.NewBandwidthLimiter(cfg.BandwidthLimitMbps * 1e6 / 8)
	}
	dns := netopt.NewDNSCache(cfg.DNSTTL)
	optimizer := fileopt.NewChunkOptimizer()
	disk := fileopt.NewDiskManager(cfg.ReservedDiskBytes)
	e := &Engine{
		cfg:       cfg,
		client:    NewClient(cfg.HTTP, dns),
		dns:       dns,
		quality:   netopt.NewQualityMonitor(0),
		timeouts:  netopt.NewTimeoutManager(cfg.BaseTimeout),
		limiter:   limiter,
		optimizer: optimizer,
		disk:      disk,
		writer:    fileopt.NewWriter(disk, optimizer),
		collector: metrics.NewCollector(),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:    utils.GetLogger("engine"),
	}
	return e
}

// StartBackground launches the DNS sweep and temp reaper loops for dir.
// Stop with Close.
func (e *Engine) StartBackground(dir string) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelBackground = cancel
	e.dns.StartSweeper(ctx, time.Minute)
	e.disk.StartReaper(ctx, dir, e.cfg.TempMaxAge, 10*time.Minute)
}

// Close stops background loops and drains the connection pool.
func (e *Engine) Close() {
	if e.cancelBackground != nil {
		e.cancelBackground()
	}
	e.client.CloseIdleConnections()
}

// Metrics exposes the engine's cumulative counters for polling.
func (e *Engine) Metrics() *metrics.Collector { return e.collector }

// Quality exposes the current network quality assessment.
func (e *Engine) Quality() netopt.Quality { return e.quality.Assess() }

// CleanupTemps reaps aged temp files under dir immediately.
func (e *Engine) CleanupTemps(dir string, maxAge time.Duration) (int64, error) {
	reclaimed, err := e.disk.CleanupTempFiles(dir, maxAge)
	if reclaimed > 0 {
		e.collector.RecordReclaimed(reclaimed)
	}
	return reclaimed, err
}

// Download runs one request through the full lifecycle:
// pending -> connecting -> streaming -> validating -> completed|failed.
// Retryable failures restart the stream up to MaxRetries times with
// jittered backoff. Any failure before completion leaves no partial file
// at the destination.
func (e *Engine) Download(ctx context.Context, req Request) (*Report, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	defer e.sem.Release(1)

	report := &Report{
		ID:    uuid.New(),
		URL:   req.URL,
		State: StatePending,
	}
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.logger.Warn().Str("url", req.URL).Int("attempt", attempt+1).Err(lastErr).Msg("Retrying download")
			if err := sleepBackoff(ctx, attempt); err != nil {
				return e.fail(report, start, err)
			}
		}
		err := e.attempt(ctx, req, report)
		if err == nil {
			report.State = StateCompleted
			report.Elapsed = time.Since(start)
			if report.Elapsed > 0 {
				report.AverageSpeedMbps = float64(report.BytesDownloaded) * 8 / report.Elapsed.Seconds() / 1e6
			}
			e.collector.RecordDownload(true, report.BytesDownloaded)
			e.logger.Info().Str("url", req.URL).Str("output", report.OutputPath).
				Str("size", utils.FormatBytes(uint64(report.BytesDownloaded))).
				Dur("elapsed", report.Elapsed).Msg("Download complete")
			return report, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return e.fail(report, start, lastErr)
}

// DownloadAll runs a batch of requests concurrently, bounded by the
// engine's semaphore. Reports hold positions matching reqs; a nil entry
// means that download failed. The first error is returned after all
// downloads finish.
func (e *Engine) DownloadAll(ctx context.Context, reqs []Request) ([]*Report, error) {
	reports := make([]*Report, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			report, err := e.Download(ctx, req)
			reports[i] = report
			return err
		})
	}
	err := g.Wait()
	return reports, err
}

func (e *Engine) fail(report *Report, start time.Time, err error) (*Report, error) {
	report.State = StateFailed
	report.Elapsed = time.Since(start)
	e.collector.RecordDownload(false, report.BytesDownloaded)
	e.logger.Error().Str("url", report.URL).Err(err).Msg("Download failed")
	return report, err
}

// attempt is one full pass: connect, stream, validate.
func (e *Engine) attempt(ctx context.Context, req Request, report *Report) error {
	report.State = StateConnecting
	report.BytesDownloaded = 0

	parsedURL, err := url.Parse(req.URL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return fmt.Errorf("invalid URL %q", req.URL)
	}

	// A cheap probe keeps the quality window warm before the timeout is
	// computed.
	e.quality.Ping(ctx, parsedURL.Host, 5*time.Second)
	q := e.quality.Assess()
	timeout := e.timeouts.Timeout(q)
	e.logger.Debug().Str("url", req.URL).Float64("quality", q.Score).
		Dur("timeout", timeout).Msg("Adaptive timeout computed")

	headCtx, headCancel := context.WithTimeout(ctx, timeout)
	info, err := e.client.Head(headCtx, req.URL)
	headCancel()
	if err != nil {
		e.recordFailure(ctx, err, time.Duration(0))
		return err
	}

	dest := req.OutputPath
	if dest == "" {
		dest = info.Filename
		if dest == "" {
			dest = "download"
		}
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		dest = utils.RenewOutputPath(dest)
	}
	report.OutputPath = dest

	total := info.Size
	if req.ExpectedSize > 0 {
		total = req.ExpectedSize
	}

	report.State = StateStreaming
	written, err := e.stream(ctx, req, dest, total, timeout)
	report.BytesDownloaded = written
	if err != nil {
		return err
	}

	report.State = StateValidating
	validated, err := e.validate(req, dest, written)
	if err != nil {
		return err
	}
	report.Validated = validated
	return nil
}

// stream performs the GET and drives chunks through the bandwidth
// limiter into an atomic writer. On any error the deferred Close removes
// the temp file and the destination stays untouched.
func (e *Engine) stream(ctx context.Context, req Request, dest string, total int64, timeout time.Duration) (int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.Get(reqCtx, req.URL)
	if err != nil {
		e.recordFailure(ctx, err, time.Since(start))
		return 0, err
	}
	defer resp.Body.Close()
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	af, err := e.writer.AtomicWrite(dest, total)
	if err != nil {
		if errors.Is(err, fileopt.ErrInsufficientSpace) {
			return 0, err
		}
		return 0, &PartialWriteError{Path: dest, Err: err}
	}
	defer af.Close()

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = e.optimizer.OptimalChunkSize(total, e.quality.Assess().BandwidthMbps)
	}
	tracker := progress.NewTracker(e.cfg.ProgressInterval)
	tracker.Register(req.Progress)

	buffer := make([]byte, chunkSize)
	var written int64
	chunkStart := time.Now()
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if err := e.limiter.Wait(ctx, int64(n)); err != nil {
				e.collector.RecordCancellation()
				return written, fmt.Errorf("%w: %v", ErrCancelled, err)
			}
			if _, writeErr := af.Write(buffer[:n]); writeErr != nil {
				e.recordFailure(ctx, writeErr, time.Since(start))
				return written, &PartialWriteError{Path: dest, Err: writeErr}
			}
			written += int64(n)
			e.quality.RecordBandwidth(int64(n), time.Since(chunkStart))
			chunkStart = time.Now()
			tracker.Update(written, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			classified := classifyRequestError("stream", readErr)
			e.recordFailure(ctx, classified, time.Since(start))
			return written, classified
		}
	}
	// The throttle may have swallowed the last update; flush delivers
	// the 100% callback unconditionally.
	tracker.Flush()

	if err := af.Commit(); err != nil {
		return written, &PartialWriteError{Path: dest, Err: err}
	}

	elapsed := time.Since(start)
	var speedBps float64
	if elapsed > 0 {
		speedBps = float64(written) / elapsed.Seconds()
		e.optimizer.UpdatePerformance(chunkSize, speedBps*8/1e6)
	}
	e.collector.RecordRequest(true, elapsed, written, speedBps)
	e.timeouts.RecordResult(true, elapsed)
	return written, nil
}

// validate runs the post-download integrity checks. Output is retained
// on mismatch unless RemoveCorrupt is set.
func (e *Engine) validate(req Request, dest string, written int64) (bool, error) {
	validated := false
	if req.ExpectedSize > 0 {
		ok, err := fileopt.ValidateSize(dest, req.ExpectedSize)
		if err != nil {
			return false, fmt.Errorf("size validation: %w", err)
		}
		if !ok {
			e.collector.RecordValidationFailure()
			if e.cfg.RemoveCorrupt {
				os.Remove(dest)
			}
			return false, &IntegrityError{
				Path:     dest,
				Kind:     "size",
				Expected: fmt.Sprint(req.ExpectedSize),
				Actual:   fmt.Sprint(written),
			}
		}
		validated = true
	}
	if req.ExpectedHash != "" {
		ok, err := fileopt.ValidateHash(dest, req.ExpectedHash, req.HashAlgorithm)
		if err != nil {
			return false, fmt.Errorf("hash validation: %w", err)
		}
		if !ok {
			e.collector.RecordValidationFailure()
			if e.cfg.RemoveCorrupt {
				os.Remove(dest)
			}
			return false, &IntegrityError{
				Path:     dest,
				Kind:     "hash",
				Expected: req.ExpectedHash,
				Actual:   "mismatch",
			}
		}
		validated = true
	}
	return validated, nil
}

// recordFailure folds an attempt failure into metrics and the timeout
// history. Cancellations and timeouts are counted separately.
func (e *Engine) recordFailure(ctx context.Context, err error, elapsed time.Duration) {
	var to *TimeoutError
	switch {
	case errors.As(err, &to):
		e.collector.RecordTimeout()
		e.collector.RecordRequest(false, elapsed, 0, 0)
		e.timeouts.RecordResult(false, elapsed)
	case errors.Is(err, ErrCancelled) || ctx.Err() != nil:
		e.collector.RecordCancellation()
	default:
		e.collector.RecordRequest(false, elapsed, 0, 0)
		e.timeouts.RecordResult(false, elapsed)
	}
}

func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := time.Duration(attempt) * 500 * time.Millisecond
	// 0.5x to 1.5x jitter keeps herds of retries from aligning.
	jittered := time.Duration(float64(backoff) * (0.5 + rand.Float64()))
	timer := time.NewTimer(jittered)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
