//go:build windows

package fileopt

import (
	"golang.org/x/sys/windows"
)

func statFS(path string) (DiskSpaceInfo, error) {
	var free, total, totalFree uint64
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return DiskSpaceInfo{}, err
	}
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return DiskSpaceInfo{}, err
	}
	used := total - totalFree
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
