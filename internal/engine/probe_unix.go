//go:build unix

package engine

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// defaultStatsProbe reads free disk space for the filesystem holding path
// via statfs. Free memory comes from the per-OS probe; platforms without one
// report unbounded so the memory minimum only gates where it can be measured.
func defaultStatsProbe(path string) (ResourceStats, error) {
	probePath := path
	for {
		var fs unix.Statfs_t
		err := unix.Statfs(probePath, &fs)
		if err == nil {
			return ResourceStats{
				FreeDiskBytes:   fs.Bavail * uint64(fs.Bsize),
				FreeMemoryBytes: freeMemoryBytes(),
			}, nil
		}
		// The sandbox root may not exist yet; fall back to the nearest
		// existing ancestor on the same filesystem.
		parent := filepath.Dir(probePath)
		if parent == probePath {
			return ResourceStats{}, fmt.Errorf("statfs %s: %w", path, err)
		}
		probePath = parent
	}
}
