// Package wormsim provides a sandboxed, journaled self-replication demo for
// security training. Every run is crash-consistent, confined to a sandbox
// root, and fully reversible.
//
// Example usage:
//
//	cfg := wormsim.DefaultConfig()
//	cfg.SandboxRoot = "sandbox_w"
//	w, err := wormsim.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Init(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	// remove sandbox_w/STOP, then:
//	if err := w.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package wormsim

import (
	"github.com/rs/zerolog"

	"github.com/bitrot-labs/wormsim/internal/engine"
	"github.com/bitrot-labs/wormsim/internal/extras"
)

// Config holds the configuration for the replication engine.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = engine.Config

// Engine is the journaled replication and recovery engine for one sandbox.
type Engine = engine.Engine

// StatusReport is the derived, read-only view of a sandbox.
type StatusReport = engine.StatusReport

// CleanupReport summarizes one cleanup pass.
type CleanupReport = engine.CleanupReport

// RunState is the consistency state derived from journal contents.
type RunState = engine.RunState

// Option configures optional engine behavior.
type Option = engine.Option

// Error taxonomy, re-exported for errors.Is at call sites.
var (
	ErrAlreadyRunning           = engine.ErrAlreadyRunning
	ErrResourceExhausted        = engine.ErrResourceExhausted
	ErrUnsafePath               = engine.ErrUnsafePath
	ErrReplicationLimitExceeded = engine.ErrReplicationLimitExceeded
	ErrJournalWrite             = engine.ErrJournalWrite
	ErrJournalCorrupt           = engine.ErrJournalCorrupt
	ErrHalted                   = engine.ErrHalted
	ErrRecoveryFailed           = engine.ErrRecoveryFailed
)

// WithLogger sets the logger events are emitted to.
func WithLogger(log zerolog.Logger) Option { return engine.WithLogger(log) }

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return engine.DefaultConfig()
}

// New builds an Engine with the collaborator hooks selected by the config's
// feature toggles already wired in.
func New(cfg Config, opts ...Option) (*Engine, error) {
	wired := []Option{
		engine.WithReplicaHooks(extras.HooksFor(cfg)...),
		engine.WithCleanupHooks(extras.CleanupHooks()...),
	}
	return engine.New(cfg, append(wired, opts...)...)
}

// Logger returns the package-level zerolog logger used by the engine.
func Logger() zerolog.Logger {
	return engine.Logger()
}
