//go:build !unix

package engine

// defaultStatsProbe reports unbounded capacity on platforms without a
// statfs probe; configured minimums do not gate there.
func defaultStatsProbe(path string) (ResourceStats, error) {
	return ResourceStats{
		FreeDiskBytes:   ^uint64(0),
		FreeMemoryBytes: ^uint64(0),
	}, nil
}
