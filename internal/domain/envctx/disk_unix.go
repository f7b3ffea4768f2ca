//go:build linux || darwin

package envctx

import "golang.org/x/sys/unix"

// diskUsagePercent reports the used-space percentage of the filesystem
// containing path, via statfs (spec §4.16 system.disk_usage_percent).
func diskUsagePercent(path string) (float64, bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, false
	}
	total := float64(stat.Blocks) * float64(stat.Bsize)
	free := float64(stat.Bfree) * float64(stat.Bsize)
	if total == 0 {
		return 0, false
	}
	used := total - free
	return used / total * 100.0, true
}
