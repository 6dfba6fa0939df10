package engine

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/rs/zerolog"
)

// EntryOp is the journaled operation kind.
type EntryOp string

const (
	OpPrepare  EntryOp = "prepare"
	OpCommit   EntryOp = "commit"
	OpRollback EntryOp = "rollback"
)

// Entry is one immutable journal record. Target and Temp are stored relative
// to the sandbox root so a relocated sandbox still replays. Digest seals the
// entry: sha256 over the RFC 8785 canonical form with Digest itself empty.
type Entry struct {
	Seq      int64     `json:"seq"`
	Op       EntryOp   `json:"op"`
	Target   string    `json:"target"`
	Temp     string    `json:"temp,omitempty"`
	Checksum string    `json:"checksum,omitempty"`
	TS       time.Time `json:"ts"`
	Digest   string    `json:"entry_digest,omitempty"`
}

func sealEntry(e Entry) ([]byte, error) {
	e.Digest = ""
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	digest, err := digestJCS(raw)
	if err != nil {
		return nil, fmt.Errorf("digest entry: %w", err)
	}
	e.Digest = digest
	return json.Marshal(e)
}

func decodeEntry(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	want := e.Digest
	if want == "" {
		return Entry{}, errors.New("entry missing digest")
	}
	e.Digest = ""
	raw, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("re-encode entry: %w", err)
	}
	got, err := digestJCS(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("digest entry: %w", err)
	}
	if got != want {
		return Entry{}, fmt.Errorf("entry digest mismatch: have %s want %s", got, want)
	}
	e.Digest = want
	return e, nil
}

// digestJCS canonicalizes JSON (RFC 8785) and returns a sha256 hex digest.
func digestJCS(input []byte) (string, error) {
	canonical, err := jcs.Transform(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Journal is the append-only, fsync-backed transaction log for one sandbox.
// It is the source of truth for recovery: an append returns only after the
// line is flushed to stable storage.
type Journal struct {
	path string
	f    *os.File
	next int64
}

// OpenJournal opens (creating if absent) the journal for appending. The
// caller is expected to have read and replayed existing entries first; pass
// their max sequence so new transactions continue the monotonic order.
func OpenJournal(path string, lastSeq int64) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrJournalWrite, err)
	}
	syncDir(filepath.Dir(path))
	return &Journal{path: path, f: f, next: lastSeq + 1}, nil
}

// NextSeq allocates the sequence id for a new transaction. Prepare and
// Commit of the same replica share it.
func (j *Journal) NextSeq() int64 {
	seq := j.next
	j.next++
	return seq
}

// Append durably writes one entry. The entry is sealed with its canonical
// digest, written as one JSONL line, and fsynced before return.
func (j *Journal) Append(e Entry) error {
	if e.TS.IsZero() {
		e.TS = time.Now().UTC()
	}
	line, err := sealEntry(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJournalWrite, err)
	}
	payload := make([]byte, 0, len(line)+1)
	payload = append(payload, line...)
	payload = append(payload, '\n')
	if _, err := j.f.Write(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrJournalWrite, err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrJournalWrite, err)
	}
	return nil
}

func (j *Journal) Close() error {
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// readJournal reads and verifies all entries. Pure read, no side effects.
// If a line fails to parse or verify, the valid prefix is returned together
// with the 1-based line number of the first bad line and an ErrJournalCorrupt
// error; the caller decides whether to quarantine.
func readJournal(path string) (entries []Entry, badLine int, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read journal: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(b))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		e, decErr := decodeEntry(raw)
		if decErr != nil {
			return entries, line, fmt.Errorf("%w: line %d: %v", ErrJournalCorrupt, line, decErr)
		}
		entries = append(entries, e)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return entries, line + 1, fmt.Errorf("%w: %v", ErrJournalCorrupt, scanErr)
	}
	return entries, 0, nil
}

// quarantineJournal moves the corrupt journal aside and rewrites the
// last-known-good prefix in place, atomically. Returns the quarantine path.
// Corrupt tails are never silently dropped; the full original survives in
// the quarantine file.
func quarantineJournal(path string, good []Entry) (string, error) {
	quarantine := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, quarantine); err != nil {
		return "", fmt.Errorf("quarantine journal: %w", err)
	}

	var buf bytes.Buffer
	for _, e := range good {
		line, err := sealEntry(e)
		if err != nil {
			return quarantine, fmt.Errorf("re-seal entry %d: %w", e.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := writeFileAtomic(path, buf.Bytes(), 0o600); err != nil {
		return quarantine, fmt.Errorf("rewrite journal prefix: %w", err)
	}
	return quarantine, nil
}

// loadJournal reads the journal and, when a corrupt tail is found,
// quarantines it and continues with the good prefix. Only locked code paths
// call this; read-only status reporting uses readJournal.
func loadJournal(path string, log zerolog.Logger) ([]Entry, error) {
	entries, _, err := readJournal(path)
	if err == nil {
		return entries, nil
	}
	if !errors.Is(err, ErrJournalCorrupt) {
		return entries, err
	}
	quarantine, qErr := quarantineJournal(path, entries)
	if qErr != nil {
		return entries, fmt.Errorf("%w: quarantine failed: %v", ErrJournalCorrupt, qErr)
	}
	log.Warn().Str("quarantine", quarantine).Err(err).Msg("journal tail quarantined")
	return entries, nil
}

func maxSeq(entries []Entry) int64 {
	var max int64
	for _, e := range entries {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max
}
