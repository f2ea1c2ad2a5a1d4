package fileopt

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shin315/fetchopt/internal/utils"
)

// DiskSpaceInfo is a point-in-time snapshot of a filesystem; never
// cached.
type DiskSpaceInfo struct {
	Total           uint64
	Used            uint64
	Free            uint64
	UsagePercentage float64
}

// DiskManager answers pre-flight free-space questions and reaps aged
// temp files.
type DiskManager struct {
	// ReservedBytes is kept free on top of any requested amount.
	ReservedBytes uint64
}

const defaultReservedBytes = 100 * 1024 * 1024

func NewDiskManager(reservedBytes uint64) *DiskManager {
	if reservedBytes == 0 {
		reservedBytes = defaultReservedBytes
	}
	return &DiskManager{ReservedBytes: reservedBytes}
}

// Info returns a filesystem snapshot for the volume holding path.
func (d *DiskManager) Info(path string) (DiskSpaceInfo, error) {
	return statFS(path)
}

// HasSufficientSpace reports whether the volume holding path can take
// required bytes while keeping the reserved floor free.
func (d *DiskManager) HasSufficientSpace(path string, required int64) (bool, error) {
	info, err := statFS(path)
	if err != nil {
		return false, err
	}
	available := int64(info.Free) - int64(d.ReservedBytes)
	return available >= required, nil
}

// CleanupTempFiles recursively deletes temp files under dir older than
// maxAge, returning the bytes reclaimed. Individual deletion failures
// are logged and skipped; the scan never aborts on them.
func (d *DiskManager) CleanupTempFiles(dir string, maxAge time.Duration) (int64, error) {
	logger := utils.GetLogger("diskmanager")
	cutoff := time.Now().Add(-maxAge)
	var reclaimed int64
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug().Str("path", path).Err(err).Msg("Skipping unreadable entry")
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if !isTempName(entry.Name()) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			logger.Warn().Str("path", path).Err(err).Msg("Failed to remove temp file")
			return nil
		}
		reclaimed += info.Size()
		return nil
	})
	if err != nil {
		return reclaimed, err
	}
	if reclaimed > 0 {
		logger.Info().Str("dir", dir).Str("reclaimed", utils.FormatBytes(uint64(reclaimed))).Msg("Temp cleanup complete")
	}
	return reclaimed, nil
}

// StartReaper runs CleanupTempFiles on a ticker until ctx is cancelled.
func (d *DiskManager) StartReaper(ctx context.Context, dir string, maxAge, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.CleanupTempFiles(dir, maxAge)
			}
		}
	}()
}

func isTempName(name string) bool {
	return len(name) > len(utils.TempPrefix) && name[:len(utils.TempPrefix)] == utils.TempPrefix
}
