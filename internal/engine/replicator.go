package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// replicator executes replica creation as a journaled two-phase commit.
// A replica exists durably only once its Commit entry is appended; every
// other state is recoverable by replay.
type replicator struct {
	sb      Sandbox
	journal *Journal
	log     zerolog.Logger
}

// preparedReplica is an in-flight transaction: temp written, Prepare
// journaled, rename pending.
type preparedReplica struct {
	seq      int64
	target   SafePath
	temp     SafePath
	checksum string
}

// prepare writes content to a unique sandbox-local temp path with fsync and
// journals the Prepare entry. The journal append completes before the
// transaction is considered open.
func (r *replicator) prepare(target SafePath, content []byte) (*preparedReplica, error) {
	seq := r.journal.NextSeq()

	tempName := fmt.Sprintf("%s.tmp-%d", filepath.Base(target.Abs()), seq)
	temp, err := r.sb.Resolve(filepath.Join(tmpDirName, tempName))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.sb.TmpDir(), 0o700); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	if err := writeFileSync(temp.Abs(), content, 0o600); err != nil {
		return nil, fmt.Errorf("write temp replica: %w", err)
	}

	checksum := ContentChecksum(content)
	entry := Entry{
		Seq:      seq,
		Op:       OpPrepare,
		Target:   target.Rel(),
		Temp:     temp.Rel(),
		Checksum: checksum,
	}
	if err := r.journal.Append(entry); err != nil {
		// The temp file is swept by recovery; the transaction never opened.
		_ = os.Remove(temp.Abs())
		return nil, err
	}

	r.log.Info().
		Int64("seq", seq).
		Str("target", target.Rel()).
		Str("checksum", checksum).
		Msg("prepare")

	return &preparedReplica{seq: seq, target: target, temp: temp, checksum: checksum}, nil
}

// commit atomically renames the temp file onto the target and journals the
// Commit entry. The rename is a single filesystem-level atomic operation,
// never copy-then-delete.
func (r *replicator) commit(p *preparedReplica) error {
	if err := os.MkdirAll(filepath.Dir(p.target.Abs()), 0o700); err != nil {
		return fmt.Errorf("create replica directory: %w", err)
	}
	if err := os.Rename(p.temp.Abs(), p.target.Abs()); err != nil {
		return fmt.Errorf("commit rename: %w", err)
	}
	syncDir(filepath.Dir(p.target.Abs()))

	entry := Entry{
		Seq:      p.seq,
		Op:       OpCommit,
		Target:   p.target.Rel(),
		Temp:     p.temp.Rel(),
		Checksum: p.checksum,
	}
	if err := r.journal.Append(entry); err != nil {
		return err
	}

	r.log.Info().
		Int64("seq", p.seq).
		Str("target", p.target.Rel()).
		Str("checksum", p.checksum).
		Msg("commit")
	return nil
}

// replicate runs both phases for one replica.
func (r *replicator) replicate(target SafePath, content []byte) (*preparedReplica, error) {
	p, err := r.prepare(target, content)
	if err != nil {
		return nil, err
	}
	if err := r.commit(p); err != nil {
		return nil, err
	}
	return p, nil
}
