// Package extras holds the thin collaborator wrappers around the
// replication core: the payload note, simulated spread into mock hosts,
// stealth and mock-persistence markers, and the simulated-network
// transmission log. Everything here is decoration written through the
// engine's guarded write helpers; none of it participates in the journaled
// two-phase commit.
package extras

import (
	"github.com/bitrot-labs/wormsim/internal/engine"
)

// HooksFor assembles the per-replica hooks selected by cfg toggles.
func HooksFor(cfg engine.Config) []engine.ReplicaHook {
	var hooks []engine.ReplicaHook
	if cfg.SimulateSpread {
		hooks = append(hooks, SpreadHook)
	}
	if cfg.Payload {
		hooks = append(hooks, PayloadHook)
	}
	if cfg.Stealth {
		hooks = append(hooks, StealthHook)
	}
	if cfg.MockPersist {
		hooks = append(hooks, MockPersistHook)
	}
	if cfg.SimulateNet {
		hooks = append(hooks, SimulateNetHook)
	}
	return hooks
}

// CleanupHooks returns the artifact removal hooks. Cleanup always sweeps
// every collaborator artifact regardless of which toggles produced them, so
// a sandbox cleaned with different flags than it ran with still comes out
// empty.
func CleanupHooks() []engine.CleanupHook {
	return []engine.CleanupHook{CleanupArtifacts}
}
