package extras

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bitrot-labs/wormsim/internal/engine"
)

const (
	stealthMarkerName = ".wormsim-alias"
	persistMarkerName = "persistence.marker"
)

// StealthHook writes a mock "stealth alias" marker recording which replica
// it would alias. Nothing is actually hidden; the marker exists so training
// material has an artifact to point at.
func StealthHook(h engine.HookContext) error {
	marker, err := h.Sandbox.Resolve(filepath.Join(h.Manifest.ReplicaDir, stealthMarkerName))
	if err != nil {
		return err
	}
	content := fmt.Sprintf("alias for %s (mock stealth, nothing is hidden)\n", filepath.Base(h.Target.Abs()))
	return engine.WriteArtifact(marker, []byte(content))
}

// MockPersistHook writes a marker describing what a real persistence
// mechanism would have done. No autostart or registry mechanism is touched.
func MockPersistHook(h engine.HookContext) error {
	marker, err := h.Sandbox.Resolve(persistMarkerName)
	if err != nil {
		return err
	}
	content := fmt.Sprintf(
		"mock persistence record: a real agent would register %s for autostart here; this tool never does\nrecorded_at: %s\n",
		filepath.Base(h.Target.Abs()), time.Now().UTC().Format(time.RFC3339))
	return engine.WriteArtifact(marker, []byte(content))
}
