package extras

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/bitrot-labs/wormsim/internal/engine"
)

// CleanupArtifacts removes every collaborator artifact: payload notes,
// markers, host-side replica copies, and the transmission log. The mock
// host directory skeleton is recreated empty so the sandbox stays
// initialized. Best-effort: failures are collected and reported, remaining
// artifacts are still attempted.
func CleanupArtifacts(sb engine.Sandbox, man engine.Manifest, log zerolog.Logger) (int, error) {
	removed := 0
	var failures []error

	rootFiles := []string{
		filepath.Join(man.ReplicaDir, payloadNoteName),
		filepath.Join(man.ReplicaDir, stealthMarkerName),
		persistMarkerName,
		filepath.Base(sb.TransmitPath()),
	}
	for _, rel := range rootFiles {
		p, err := sb.Resolve(rel)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		err = os.Remove(p.Abs())
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			failures = append(failures, fmt.Errorf("remove %s: %w", rel, err))
		}
	}

	n, err := removeHostTree(sb, man)
	removed += n
	if err != nil {
		failures = append(failures, err)
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("collaborator artifacts removed")
	}
	if len(failures) > 0 {
		return removed, errors.Join(failures...)
	}
	return removed, nil
}

func removeHostTree(sb engine.Sandbox, man engine.Manifest) (int, error) {
	hostsRoot, err := sb.Resolve(man.HostsRoot)
	if err != nil {
		return 0, err
	}
	removed, err := countFiles(hostsRoot.Abs())
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(hostsRoot.Abs()); err != nil {
		return 0, fmt.Errorf("remove hosts tree: %w", err)
	}
	for i := 1; i <= man.HostCount; i++ {
		dir, rerr := sb.Resolve(filepath.Join(man.HostsRoot, fmt.Sprintf("host_%d", i), man.ReplicaDir))
		if rerr != nil {
			return removed, rerr
		}
		if merr := os.MkdirAll(dir.Abs(), 0o700); merr != nil {
			return removed, fmt.Errorf("recreate host directory: %w", merr)
		}
	}
	return removed, nil
}

func countFiles(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
