package engine

import "errors"

// Error taxonomy for the replication engine. Callers classify failures with
// errors.Is; everything returned by the engine wraps exactly one of these.
var (
	// ErrAlreadyRunning means another live process holds the sandbox lock.
	ErrAlreadyRunning = errors.New("already running")

	// ErrResourceExhausted means free disk or memory is below the configured minimum.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrUnsafePath means a candidate path does not resolve inside the sandbox root.
	ErrUnsafePath = errors.New("unsafe path")

	// ErrReplicationLimitExceeded means the replica count or mutation depth
	// would exceed its configured bound.
	ErrReplicationLimitExceeded = errors.New("replication limit exceeded")

	// ErrJournalWrite means a journal append could not be durably persisted.
	// Fatal for the current run; the journal is preserved for recovery.
	ErrJournalWrite = errors.New("journal write failed")

	// ErrJournalCorrupt means the journal had an unreadable tail. The tail is
	// quarantined and replay proceeds on the last-known-good prefix.
	ErrJournalCorrupt = errors.New("journal corrupt")

	// ErrHalted means the STOP sentinel is present and the run stopped
	// without starting new work.
	ErrHalted = errors.New("halted by stop sentinel")

	// ErrRecoveryFailed means cleanup could not remove one or more artifacts.
	// Cleanup is best-effort and re-runnable; remaining entries are still processed.
	ErrRecoveryFailed = errors.New("recovery failed")
)
