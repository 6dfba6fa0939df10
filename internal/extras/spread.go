package extras

import (
	"fmt"
	"path/filepath"

	"github.com/bitrot-labs/wormsim/internal/engine"
)

// SpreadHook copies the committed replica's content into every mock host
// directory inside the sandbox. No network is involved; "spread" is a
// directory layout. A host path failing the containment check is skipped
// with a warning, never written.
func SpreadHook(h engine.HookContext) error {
	name := filepath.Base(h.Target.Abs())
	for i := 1; i <= h.Manifest.HostCount; i++ {
		hostRel := filepath.Join(h.Manifest.HostsRoot, fmt.Sprintf("host_%d", i), h.Manifest.ReplicaDir, name)
		dst, err := h.Sandbox.Resolve(hostRel)
		if err != nil {
			h.Log.Warn().Str("host_path", hostRel).Err(err).Msg("host path escaped sandbox, skipping")
			continue
		}
		if err := engine.WriteArtifact(dst, h.Content); err != nil {
			return fmt.Errorf("spread to host_%d: %w", i, err)
		}
		h.Log.Info().Str("path", dst.Rel()).Msg("simulated spread")
	}
	return nil
}
