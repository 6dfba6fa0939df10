package extras

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bitrot-labs/wormsim/internal/engine"
)

// Transmission is one simulated send, appended as JSONL to the in-sandbox
// transmission log. No socket is ever opened; the record is the whole event.
type Transmission struct {
	TS        time.Time `json:"ts"`
	Replica   string    `json:"replica"`
	Host      string    `json:"host"`
	Bytes     int       `json:"bytes"`
	Checksum  string    `json:"checksum"`
	Simulated bool      `json:"simulated"`
}

// SimulateNetHook appends one transmission record per mock host for the
// committed replica.
func SimulateNetHook(h engine.HookContext) error {
	logPath, err := h.Sandbox.Resolve(filepath.Base(h.Sandbox.TransmitPath()))
	if err != nil {
		return err
	}
	name := filepath.Base(h.Target.Abs())
	hosts := h.Manifest.HostCount
	if hosts == 0 {
		hosts = 1
	}
	for i := 1; i <= hosts; i++ {
		rec := Transmission{
			TS:        time.Now().UTC(),
			Replica:   name,
			Host:      fmt.Sprintf("host_%d", i),
			Bytes:     len(h.Content),
			Checksum:  h.Checksum,
			Simulated: true,
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode transmission record: %w", err)
		}
		if err := engine.AppendRecord(logPath, line); err != nil {
			return err
		}
	}
	h.Log.Info().Str("replica", name).Int("hosts", hosts).Msg("simulated transmission logged")
	return nil
}
