package engine

import "fmt"

// ResourceStats is a point-in-time snapshot of free capacity.
type ResourceStats struct {
	FreeDiskBytes   uint64
	FreeMemoryBytes uint64
}

// StatsProbe samples free disk space for the filesystem holding path and
// free system memory. Injectable so tests can substitute a fake.
type StatsProbe func(path string) (ResourceStats, error)

// checkResources gates replica work on configured minimums. It never
// partially proceeds: a failure here happens before any temp file is created.
func checkResources(probe StatsProbe, path string, minDisk, minMem uint64) error {
	if minDisk == 0 && minMem == 0 {
		return nil
	}
	st, err := probe(path)
	if err != nil {
		return fmt.Errorf("%w: probe failed: %v", ErrResourceExhausted, err)
	}
	if minDisk > 0 && st.FreeDiskBytes < minDisk {
		return fmt.Errorf("%w: free disk %s below minimum %s",
			ErrResourceExhausted, formatBytes(st.FreeDiskBytes), formatBytes(minDisk))
	}
	if minMem > 0 && st.FreeMemoryBytes < minMem {
		return fmt.Errorf("%w: free memory %s below minimum %s",
			ErrResourceExhausted, formatBytes(st.FreeMemoryBytes), formatBytes(minMem))
	}
	return nil
}

func formatBytes(b uint64) string {
	const (
		_          = iota
		kb float64 = 1 << (10 * iota)
		mb
		gb
	)

	fb := float64(b)
	switch {
	case fb >= gb:
		return fmt.Sprintf("%.2fGiB", fb/gb)
	case fb >= mb:
		return fmt.Sprintf("%.2fMiB", fb/mb)
	case fb >= kb:
		return fmt.Sprintf("%.2fKiB", fb/kb)
	default:
		return fmt.Sprintf("%dB", b)
	}
}
