// Package engine implements the journaled atomic replication and recovery
// core: a two-phase-commit replicator confined to a sandbox root, guarded by
// an exclusive lock, a preflight resource check, a kill-switch sentinel, and
// a journal-driven recovery orchestrator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Engine owns one sandbox root. All state for a run is carried in an
// explicit RunContext; the Engine itself holds only configuration and
// injected collaborators.
type Engine struct {
	cfg   Config
	log   zerolog.Logger
	probe StatsProbe
	alive LivenessFunc
	watch bool

	replicaHooks []ReplicaHook
	cleanupHooks []CleanupHook
}

// Option configures optional behavior of an Engine.
type Option func(*Engine)

// WithLogger sets the logger events are emitted to.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithStatsProbe substitutes the resource stats probe, e.g. a fake in tests.
func WithStatsProbe(probe StatsProbe) Option {
	return func(e *Engine) { e.probe = probe }
}

// WithLiveness substitutes the lock-holder liveness predicate.
func WithLiveness(alive LivenessFunc) Option {
	return func(e *Engine) { e.alive = alive }
}

// WithStopWatch toggles the fsnotify sentinel watcher. The stat-based check
// before each replica runs either way.
func WithStopWatch(enabled bool) Option {
	return func(e *Engine) { e.watch = enabled }
}

// WithReplicaHooks registers collaborators invoked after each committed
// replica (payload note, simulated spread, markers, simulated transmission).
func WithReplicaHooks(hooks ...ReplicaHook) Option {
	return func(e *Engine) { e.replicaHooks = append(e.replicaHooks, hooks...) }
}

// WithCleanupHooks registers collaborators invoked during cleanup to remove
// their artifacts.
func WithCleanupHooks(hooks ...CleanupHook) Option {
	return func(e *Engine) { e.cleanupHooks = append(e.cleanupHooks, hooks...) }
}

// HookContext is the narrow surface collaborators see: the sandbox boundary,
// the manifest, and the replica just committed.
type HookContext struct {
	Sandbox    Sandbox
	Manifest   Manifest
	Target     SafePath
	Content    []byte
	Checksum   string
	Generation int
	Log        zerolog.Logger
}

// ReplicaHook runs after a replica commit. Failures are logged, never fatal:
// collaborator artifacts are decoration around the journaled core.
type ReplicaHook func(HookContext) error

// CleanupHook removes collaborator artifacts during cleanup and reports how
// many files it removed.
type CleanupHook func(sb Sandbox, man Manifest, log zerolog.Logger) (int, error)

// RunContext carries the state of one locked operation. It is threaded
// through calls explicitly; there is no process-wide current run.
type RunContext struct {
	Sandbox  Sandbox
	Manifest Manifest
	Lock     *LockHandle
	Journal  *Journal
	Log      zerolog.Logger
	Events   *eventLog
}

// New validates cfg and builds an Engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		log:   logger,
		probe: defaultStatsProbe,
		alive: defaultLiveness,
		watch: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) sandbox() (Sandbox, error) {
	return NewSandbox(e.cfg.SandboxRoot)
}

// Init prepares the sandbox: directories, schema-validated manifest, mock
// host tree, and the STOP sentinel so a fresh sandbox is inert.
func (e *Engine) Init(ctx context.Context) error {
	sb, err := e.sandbox()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(sb.Root(), 0o700); err != nil {
		return fmt.Errorf("create sandbox root: %w", err)
	}

	man := defaultManifest(e.cfg)
	if err := writeManifest(sb, man); err != nil {
		return err
	}
	if err := ensureLayout(sb, man); err != nil {
		return err
	}
	if err := ensureStop(sb, man.Limit); err != nil {
		return err
	}

	e.log.Info().Str("sandbox", sb.Root()).Msg("sandbox ready, STOP present")
	return nil
}

func ensureLayout(sb Sandbox, man Manifest) error {
	dirs := []string{man.ReplicaDir, tmpDirName}
	for i := 1; i <= man.HostCount; i++ {
		dirs = append(dirs, filepath.Join(man.HostsRoot, fmt.Sprintf("host_%d", i), man.ReplicaDir))
	}
	for _, d := range dirs {
		p, err := sb.Resolve(d)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(p.Abs(), 0o700); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

func ensureStop(sb Sandbox, limit int) error {
	if stopPresent(sb) {
		return nil
	}
	msg := fmt.Sprintf("This STOP file prevents replication. Remove it to allow up to %d harmless copies.\n", limit)
	return writeFileAtomic(sb.StopPath(), []byte(msg), 0o600)
}

// Run performs one replication pass: kill-switch, lock, recovery replay,
// resource guard, then up to the remaining replica budget of journaled
// two-phase commits. Single-threaded and sequential; the journal's append
// order is the consistency guarantee.
func (e *Engine) Run(ctx context.Context) error {
	sb, err := e.sandbox()
	if err != nil {
		return err
	}
	man, err := loadManifest(sb)
	if err != nil {
		return fmt.Errorf("sandbox not initialized (run init first): %w", err)
	}

	if err := checkStop(sb); err != nil {
		e.log.Info().Str("sandbox", sb.Root()).Msg("STOP present, replication blocked")
		return err
	}

	lock, err := acquireLock(sb.LockPath(), e.alive, e.log)
	if err != nil {
		return err
	}
	released := false
	defer func() {
		if !released {
			if rerr := lock.Release(); rerr != nil {
				e.log.Error().Err(rerr).Msg("lock release failed")
			}
		}
	}()

	rc := &RunContext{
		Sandbox:  sb,
		Manifest: man,
		Lock:     lock,
		Log:      e.log.With().Str("run_id", lock.HolderID()).Logger(),
		Events:   openEventLog(sb),
	}
	defer rc.Events.Close()

	if err := e.runLocked(ctx, rc); err != nil {
		return err
	}

	released = true
	return lock.Release()
}

func (e *Engine) runLocked(ctx context.Context, rc *RunContext) error {
	sb, man := rc.Sandbox, rc.Manifest

	entries, err := loadJournal(sb.JournalPath(), rc.Log)
	if err != nil {
		return err
	}
	journal, err := OpenJournal(sb.JournalPath(), maxSeq(entries))
	if err != nil {
		return err
	}
	rc.Journal = journal
	defer journal.Close()

	// Recover an interrupted previous run before starting new work.
	if err := replay(sb, journal, entries, rc.Log); err != nil {
		return err
	}
	sweepTmp(sb, rc.Log)

	if err := checkResources(e.probe, sb.Root(), e.cfg.MinFreeDiskBytes, e.cfg.MinFreeMemoryBytes); err != nil {
		return err
	}

	depth := 1
	if e.cfg.Polymorph {
		depth = e.cfg.MutationDepth
	}
	if depth > e.cfg.MaxDepth {
		return fmt.Errorf("%w: mutation depth %d exceeds max depth %d",
			ErrReplicationLimitExceeded, depth, e.cfg.MaxDepth)
	}

	limit := man.Limit
	if e.cfg.MaxReplicas < limit {
		limit = e.cfg.MaxReplicas
	}
	seed, ext, err := loadSeed(e.cfg)
	if err != nil {
		return err
	}
	existing, err := countReplicas(sb, man, ext)
	if err != nil {
		return err
	}
	if existing >= limit {
		return fmt.Errorf("%w: %d replicas exist, limit %d",
			ErrReplicationLimitExceeded, existing, limit)
	}

	var watcher *stopWatcher
	if e.watch {
		watcher, err = watchStop(sb, rc.Log)
		if err != nil {
			rc.Log.Warn().Err(err).Msg("stop watcher unavailable, using stat checks only")
		} else {
			defer watcher.Close()
		}
	}

	rep := &replicator{sb: sb, journal: journal, log: rc.Log}
	for gen := existing; gen < limit; gen++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if watcher != nil && watcher.Halted() {
			return e.halt(rc)
		}
		if err := checkStop(sb); err != nil {
			return e.halt(rc)
		}
		if e.cfg.RecheckResources {
			if err := checkResources(e.probe, sb.Root(), e.cfg.MinFreeDiskBytes, e.cfg.MinFreeMemoryBytes); err != nil {
				return err
			}
		}

		content := MutateChain(seed, gen, depth)
		target, err := sb.Resolve(filepath.Join(man.ReplicaDir, replicaName(gen+1, ext)))
		if err != nil {
			return err
		}

		p, err := rep.replicate(target, content)
		if err != nil {
			return err
		}
		rc.Events.Log().Info().
			Int64("seq", p.seq).
			Str("target", p.target.Rel()).
			Str("checksum", p.checksum).
			Msg("replicated")

		hookCtx := HookContext{
			Sandbox:    sb,
			Manifest:   man,
			Target:     target,
			Content:    content,
			Checksum:   p.checksum,
			Generation: gen,
			Log:        rc.Log,
		}
		for _, hook := range e.replicaHooks {
			if herr := hook(hookCtx); herr != nil {
				rc.Log.Warn().Err(herr).Str("target", target.Rel()).Msg("collaborator hook failed")
			}
		}
	}
	return nil
}

// halt stops the run at a replica boundary. Committed replicas from this run
// stay; only in-flight Prepares would be subject to recovery, and none is in
// flight at a boundary.
func (e *Engine) halt(rc *RunContext) error {
	rc.Log.Info().Msg("STOP sentinel appeared, halting run")
	rc.Events.Log().Info().Msg("halted")
	return fmt.Errorf("%w: sentinel appeared during run", ErrHalted)
}

// ReplicaStatus describes one materialized replica.
type ReplicaStatus struct {
	Name     string
	Checksum string
}

// HostStatus summarizes one mock host directory.
type HostStatus struct {
	Name     string
	Replicas int
}

// StatusReport is the derived, read-only view of a sandbox.
type StatusReport struct {
	SandboxRoot    string
	Initialized    bool
	StopPresent    bool
	State          RunState
	Limit          int
	Replicas       []ReplicaStatus
	Hosts          []HostStatus
	JournalEntries int
	JournalCorrupt bool
}

// Status derives the sandbox state without taking the lock or mutating
// anything; a corrupt journal tail is reported, not quarantined, here.
func (e *Engine) Status(ctx context.Context) (StatusReport, error) {
	sb, err := e.sandbox()
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{SandboxRoot: sb.Root()}
	if !sb.Exists() {
		return report, nil
	}
	man, err := loadManifest(sb)
	if err != nil {
		return report, nil
	}
	report.Initialized = true
	report.StopPresent = stopPresent(sb)
	report.Limit = man.Limit

	entries, _, jerr := readJournal(sb.JournalPath())
	report.JournalEntries = len(entries)
	report.JournalCorrupt = errors.Is(jerr, ErrJournalCorrupt)
	report.State, _ = deriveState(entries)

	report.Replicas, _ = listReplicas(sb, man)
	report.Hosts = listHosts(sb, man)
	return report, nil
}

// CleanupReport summarizes one cleanup pass.
type CleanupReport struct {
	RemovedReplicas int
	RemovedExtras   int
	JournalRemoved  bool
}

// Cleanup replays the journal to a consistent state, removes every
// committed replica and collaborator artifact, restores the STOP sentinel,
// and deletes the journal last. Best-effort and idempotent: re-run until it
// reports zero removals.
func (e *Engine) Cleanup(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport
	sb, err := e.sandbox()
	if err != nil {
		return report, err
	}
	if !sb.Exists() {
		return report, nil
	}
	man, err := loadManifest(sb)
	if err != nil {
		return report, fmt.Errorf("read sandbox manifest: %w", err)
	}

	lock, err := acquireLock(sb.LockPath(), e.alive, e.log)
	if err != nil {
		return report, err
	}
	released := false
	defer func() {
		if !released {
			if rerr := lock.Release(); rerr != nil {
				e.log.Error().Err(rerr).Msg("lock release failed")
			}
		}
	}()

	rc := &RunContext{
		Sandbox:  sb,
		Manifest: man,
		Lock:     lock,
		Log:      e.log.With().Str("run_id", lock.HolderID()).Logger(),
		Events:   openEventLog(sb),
	}
	defer rc.Events.Close()

	var failures []error

	entries, err := loadJournal(sb.JournalPath(), rc.Log)
	if err != nil {
		return report, err
	}
	journal, err := OpenJournal(sb.JournalPath(), maxSeq(entries))
	if err != nil {
		return report, err
	}
	if err := replay(sb, journal, entries, rc.Log); err != nil {
		_ = journal.Close()
		return report, err
	}
	if err := journal.Close(); err != nil {
		failures = append(failures, err)
	}

	// Replay may have appended entries (restored Commits, Rollbacks); removal
	// works from the journal as it now stands.
	if reread, _, rerr := readJournal(sb.JournalPath()); rerr == nil {
		entries = reread
	} else {
		failures = append(failures, rerr)
	}

	removed, err := removeCommitted(sb, entries, rc.Log)
	report.RemovedReplicas = removed
	if err != nil {
		failures = append(failures, err)
	}
	report.RemovedExtras += sweepTmp(sb, rc.Log)

	n, err := removeQuarantined(sb.JournalPath(), rc.Log)
	report.RemovedExtras += n
	if err != nil {
		failures = append(failures, err)
	}

	for _, hook := range e.cleanupHooks {
		n, herr := hook(sb, man, rc.Log)
		report.RemovedExtras += n
		if herr != nil {
			failures = append(failures, herr)
		}
	}

	if err := ensureStop(sb, man.Limit); err != nil {
		failures = append(failures, fmt.Errorf("restore STOP sentinel: %w", err))
	}

	if len(failures) == 0 {
		// Journal goes last, after every other removal succeeded.
		final, _, jerr := readJournal(sb.JournalPath())
		if jerr != nil {
			failures = append(failures, jerr)
		} else if err := removeJournal(sb.JournalPath(), final); err != nil {
			failures = append(failures, err)
		} else {
			report.JournalRemoved = true
		}
	}

	rc.Events.Log().Info().
		Int("removed_replicas", report.RemovedReplicas).
		Int("removed_extras", report.RemovedExtras).
		Msg("cleanup")

	if len(failures) > 0 {
		return report, fmt.Errorf("%w: %v", ErrRecoveryFailed, errors.Join(failures...))
	}

	released = true
	return report, lock.Release()
}

func countReplicas(sb Sandbox, man Manifest, ext string) (int, error) {
	replicas, err := listReplicasExt(sb, man, ext)
	if err != nil {
		return 0, err
	}
	return len(replicas), nil
}

func listReplicas(sb Sandbox, man Manifest) ([]ReplicaStatus, error) {
	return listReplicasExt(sb, man, "")
}

func listReplicasExt(sb Sandbox, man Manifest, ext string) ([]ReplicaStatus, error) {
	dir, err := sb.Resolve(man.ReplicaDir)
	if err != nil {
		return nil, err
	}
	ents, err := os.ReadDir(dir.Abs())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list replicas: %w", err)
	}
	var out []ReplicaStatus
	for _, ent := range ents {
		name := ent.Name()
		if ent.IsDir() || !strings.HasPrefix(name, "replica-") {
			continue
		}
		if ext != "" && filepath.Ext(name) != ext {
			continue
		}
		b, rerr := os.ReadFile(filepath.Join(dir.Abs(), name))
		if rerr != nil {
			continue
		}
		out = append(out, ReplicaStatus{Name: name, Checksum: ContentChecksum(b)})
	}
	return out, nil
}

func listHosts(sb Sandbox, man Manifest) []HostStatus {
	var out []HostStatus
	for i := 1; i <= man.HostCount; i++ {
		name := fmt.Sprintf("host_%d", i)
		count := 0
		dir, err := sb.Resolve(filepath.Join(man.HostsRoot, name, man.ReplicaDir))
		if err == nil {
			if ents, rerr := os.ReadDir(dir.Abs()); rerr == nil {
				for _, ent := range ents {
					if !ent.IsDir() && strings.HasPrefix(ent.Name(), "replica-") {
						count++
					}
				}
			}
		}
		out = append(out, HostStatus{Name: name, Replicas: count})
	}
	return out
}
