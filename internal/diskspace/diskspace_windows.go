//go:build windows

package diskspace

import "golang.org/x/sys/windows"

// availableBytes reports the space available to the calling user, which
// honours per-user quotas.
func availableBytes(dir string) (int64, bool) {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, false
	}
	var freeToCaller, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeToCaller, &total, &totalFree); err != nil {
		return 0, false
	}
	return int64(freeToCaller), true
}
