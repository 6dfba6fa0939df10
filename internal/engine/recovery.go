package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// RunState is derived from journal contents, never stored.
type RunState int

const (
	// StateClean: no entries, or every Prepare has a matching Commit or Rollback.
	StateClean RunState = iota
	// StateInterrupted: at least one Prepare has no matching Commit or Rollback.
	StateInterrupted
)

func (s RunState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// deriveState scans the journal and returns the run state together with the
// unmatched Prepare entries, oldest first.
func deriveState(entries []Entry) (RunState, []Entry) {
	closed := make(map[int64]bool)
	for _, e := range entries {
		if e.Op == OpCommit || e.Op == OpRollback {
			closed[e.Seq] = true
		}
	}
	var open []Entry
	for _, e := range entries {
		if e.Op == OpPrepare && !closed[e.Seq] {
			open = append(open, e)
		}
	}
	if len(open) > 0 {
		return StateInterrupted, open
	}
	return StateClean, nil
}

// committedEntries returns the Commit entries in journal order, one per
// sequence id.
func committedEntries(entries []Entry) []Entry {
	seen := make(map[int64]bool)
	var commits []Entry
	for _, e := range entries {
		if e.Op == OpCommit && !seen[e.Seq] {
			seen[e.Seq] = true
			commits = append(commits, e)
		}
	}
	return commits
}

// replay drives an Interrupted journal back to Clean. For each unmatched
// Prepare: if the temp file is gone and the target holds the recorded
// checksum, the rename already happened and only the Commit line was lost
// (a quarantined tail), so a Commit entry is re-journaled. Otherwise the
// temp file is deleted if present and a Rollback entry is appended; target
// paths are never touched on rollback. Idempotent: replaying a Clean
// journal is a no-op.
func replay(sb Sandbox, journal *Journal, entries []Entry, log zerolog.Logger) error {
	state, open := deriveState(entries)
	if state == StateClean {
		return nil
	}

	for _, p := range open {
		temp, err := sb.Resolve(p.Temp)
		if err != nil {
			// A journal naming a path outside the sandbox is never acted on.
			log.Error().Int64("seq", p.Seq).Str("temp", p.Temp).Err(err).
				Msg("replay: refusing out-of-sandbox temp path")
		} else if !pathPresent(temp.Abs()) && targetCommitted(sb, p) {
			commit := Entry{
				Seq:      p.Seq,
				Op:       OpCommit,
				Target:   p.Target,
				Temp:     p.Temp,
				Checksum: p.Checksum,
			}
			if err := journal.Append(commit); err != nil {
				return err
			}
			log.Info().Int64("seq", p.Seq).Str("target", p.Target).
				Msg("commit entry restored for renamed target")
			continue
		} else if err := os.Remove(temp.Abs()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: remove temp %s: %v", ErrRecoveryFailed, p.Temp, err)
		}

		rollback := Entry{
			Seq:      p.Seq,
			Op:       OpRollback,
			Target:   p.Target,
			Temp:     p.Temp,
			Checksum: p.Checksum,
		}
		if err := journal.Append(rollback); err != nil {
			return err
		}
		log.Info().Int64("seq", p.Seq).Str("target", p.Target).Msg("rollback")
	}
	return nil
}

func pathPresent(abs string) bool {
	_, err := os.Stat(abs)
	return err == nil
}

// targetCommitted reports whether the target of an unmatched Prepare already
// holds exactly the prepared content.
func targetCommitted(sb Sandbox, p Entry) bool {
	if p.Checksum == "" {
		return false
	}
	target, err := sb.Resolve(p.Target)
	if err != nil {
		return false
	}
	b, err := os.ReadFile(target.Abs())
	if err != nil {
		return false
	}
	return ContentChecksum(b) == p.Checksum
}

// sweepTmp removes stray files under the sandbox tmp directory. Covers the
// window where a crash hit after a temp write but before its Prepare entry,
// which no journal record describes.
func sweepTmp(sb Sandbox, log zerolog.Logger) int {
	ents, err := os.ReadDir(sb.TmpDir())
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		p, rerr := sb.Resolve(filepath.Join(tmpDirName, e.Name()))
		if rerr != nil {
			continue
		}
		if err := os.Remove(p.Abs()); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("swept stray temp files")
	}
	return removed
}

// removeCommitted deletes every committed target. Best-effort: failures are
// collected, not fatal, and the remaining entries are still processed so
// cleanup stays re-runnable. Already-absent targets are fine (idempotence).
// Returns the number of files actually removed.
func removeCommitted(sb Sandbox, entries []Entry, log zerolog.Logger) (int, error) {
	removed := 0
	var failures []error
	for _, c := range committedEntries(entries) {
		target, err := sb.Resolve(c.Target)
		if err != nil {
			// Defense in depth alongside the path guard at write time.
			log.Error().Int64("seq", c.Seq).Str("target", c.Target).Err(err).
				Msg("cleanup: refusing out-of-sandbox target path")
			failures = append(failures, err)
			continue
		}
		err = os.Remove(target.Abs())
		switch {
		case err == nil:
			removed++
			log.Info().Int64("seq", c.Seq).Str("target", c.Target).Msg("removed replica")
		case errors.Is(err, fs.ErrNotExist):
			// Already gone; a prior cleanup pass got it.
		default:
			failures = append(failures, fmt.Errorf("remove %s: %w", c.Target, err))
		}
	}
	if len(failures) > 0 {
		return removed, fmt.Errorf("%w: %v", ErrRecoveryFailed, errors.Join(failures...))
	}
	return removed, nil
}

// removeQuarantined deletes quarantined journal tails left behind by
// corruption recovery. Their surviving prefix was already replayed, so the
// quarantine files are archives, not state; cleanup removes them so the
// sandbox can return to empty.
func removeQuarantined(journalPath string, log zerolog.Logger) (int, error) {
	matches, err := filepath.Glob(journalPath + ".corrupt-*")
	if err != nil {
		return 0, fmt.Errorf("list quarantined journals: %w", err)
	}
	removed := 0
	var failures []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failures = append(failures, fmt.Errorf("remove %s: %w", filepath.Base(m), err))
			continue
		}
		removed++
		log.Info().Str("quarantine", filepath.Base(m)).Msg("removed quarantined journal tail")
	}
	if len(failures) > 0 {
		return removed, errors.Join(failures...)
	}
	return removed, nil
}

// removeJournal deletes the journal file, permitted only when the entries
// derive to Clean. It is the last removal of a cleanup pass.
func removeJournal(path string, entries []Entry) error {
	if state, _ := deriveState(entries); state != StateClean {
		return fmt.Errorf("refusing to remove journal in %s state", StateInterrupted)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove journal: %w", err)
	}
	return nil
}
