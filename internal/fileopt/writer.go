package fileopt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/shin315/fetchopt/internal/utils"
)

// ErrInsufficientSpace is returned before any byte is written when the
// destination volume cannot hold the expected size.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// Writer streams chunks to disk through temp-file-then-rename so a
// partial file is never visible at the destination path.
type Writer struct {
	disk      *DiskManager
	optimizer *ChunkOptimizer
}

func NewWriter(disk *DiskManager, optimizer *ChunkOptimizer) *Writer {
	if disk == nil {
		disk = NewDiskManager(0)
	}
	if optimizer == nil {
		optimizer = NewChunkOptimizer()
	}
	return &Writer{disk: disk, optimizer: optimizer}
}

// AtomicFile is an in-flight atomic write. Exactly one of Commit or
// Abort finalizes it; Close aborts if neither has run, so a deferred
// Close guarantees no partial output survives an error path.
type AtomicFile struct {
	file     *os.File
	tempPath string
	dest     string
	done     bool
}

// AtomicWrite opens an atomic write targeting dest. The temp file is
// created in the destination directory so the finalizing rename stays on
// one filesystem. With expectedSize > 0 the free-space precheck runs
// first and fails with ErrInsufficientSpace before touching disk.
func (w *Writer) AtomicWrite(dest string, expectedSize int64) (*AtomicFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}
	if expectedSize > 0 {
		ok, err := w.disk.HasSufficientSpace(dir, expectedSize)
		if err != nil {
			logger := utils.GetLogger("filewriter")
			logger.Warn().Str("dir", dir).Err(err).Msg("Free-space check failed, proceeding without it")
		} else if !ok {
			return nil, fmt.Errorf("%w: need %s in %s", ErrInsufficientSpace, utils.FormatBytes(uint64(expectedSize)), dir)
		}
	}
	tempPath := filepath.Join(dir, fmt.Sprintf("%s%s_%s", utils.TempPrefix, filepath.Base(dest), uuid.NewString()[:8]))
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating temp file: %w", err)
	}
	return &AtomicFile{file: file, tempPath: tempPath, dest: dest}, nil
}

func (f *AtomicFile) Write(p []byte) (int, error) {
	return f.file.Write(p)
}

// TempPath exposes the in-flight temp file location.
func (f *AtomicFile) TempPath() string {
	return f.tempPath
}

// Commit syncs the temp file and renames it into place.
func (f *AtomicFile) Commit() error {
	if f.done {
		return nil
	}
	f.done = true
	if err := f.file.Sync(); err != nil {
		f.file.Close()
		os.Remove(f.tempPath)
		return fmt.Errorf("error syncing temp file: %w", err)
	}
	if err := f.file.Close(); err != nil {
		os.Remove(f.tempPath)
		return fmt.Errorf("error closing temp file: %w", err)
	}
	if err := os.Rename(f.tempPath, f.dest); err != nil {
		os.Remove(f.tempPath)
		return fmt.Errorf("error renaming (finalizing) output file: %w", err)
	}
	return nil
}

// Abort discards the write and removes the temp file. The destination
// is untouched.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.file.Close()
	os.Remove(f.tempPath)
}

// Close aborts unless the file was already committed or aborted.
func (f *AtomicFile) Close() error {
	f.Abort()
	return nil
}

// WriteChunked copies r into dest atomically, reading in optimizer-sized
// chunks and reporting progress per chunk. Observed throughput feeds the
// chunk optimizer. Internal errors are logged and reported as false;
// this call never panics into the caller.
func (w *Writer) WriteChunked(dest string, r io.Reader, totalSize int64, progress func(written, total int64)) bool {
	logger := utils.GetLogger("filewriter")
	af, err := w.AtomicWrite(dest, totalSize)
	if err != nil {
		logger.Error().Str("dest", dest).Err(err).Msg("Failed to open atomic write")
		return false
	}
	defer af.Close()

	chunkSize := w.optimizer.OptimalChunkSize(totalSize, 0)
	buffer := make([]byte, chunkSize)
	var written int64
	start := time.Now()
	for {
		n, readErr := r.Read(buffer)
		if n > 0 {
			if _, writeErr := af.Write(buffer[:n]); writeErr != nil {
				logger.Error().Str("dest", dest).Err(writeErr).Msg("Chunk write failed")
				return false
			}
			written += int64(n)
			if progress != nil {
				progress(written, totalSize)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			logger.Error().Str("dest", dest).Err(readErr).Msg("Stream read failed")
			return false
		}
	}
	if elapsed := time.Since(start); elapsed > 0 && written > 0 {
		mbps := float64(written) * 8 / elapsed.Seconds() / 1e6
		w.optimizer.UpdatePerformance(chunkSize, mbps)
	}
	if err := af.Commit(); err != nil {
		logger.Error().Str("dest", dest).Err(err).Msg("Failed to finalize output file")
		return false
	}
	return true
}
