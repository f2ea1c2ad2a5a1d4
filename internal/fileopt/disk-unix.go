//go:build !windows

package fileopt

import (
	"golang.org/x/sys/unix"
)

func statFS(path string) (DiskSpaceInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return DiskSpaceInfo{}, err
	}
	bsize := uint64(stat.Bsize)
	total := stat.Blocks * bsize
	free := stat.Bavail * bsize
	used := total - stat.Bfree*bsize
	info := DiskSpaceInfo{
		Total: total,
		Used:  used,
		Free:  free,
	}
	if total > 0 {
		info.UsagePercentage = float64(used) / float64(total) * 100
	}
	return info, nil
}
