package extras

import (
	"path/filepath"

	"github.com/bitrot-labs/wormsim/internal/engine"
)

const payloadNoteName = "friendly_note.txt"

const payloadNote = "Hello from the harmless demo payload. Stay safe.\n"

// PayloadHook writes the friendly note beside the replica set. Overwriting
// an existing note is fine; the content never varies.
func PayloadHook(h engine.HookContext) error {
	note, err := h.Sandbox.Resolve(filepath.Join(h.Manifest.ReplicaDir, payloadNoteName))
	if err != nil {
		return err
	}
	if err := engine.WriteArtifact(note, []byte(payloadNote)); err != nil {
		return err
	}
	h.Log.Info().Str("path", note.Rel()).Msg("payload note written")
	return nil
}
