package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func appendEntries(t *testing.T, path string, entries ...Entry) {
	t.Helper()
	j, err := OpenJournal(path, 0)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()
	for _, e := range entries {
		if err := j.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestJournal_AppendReadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	appendEntries(t, path,
		Entry{Seq: 1, Op: OpPrepare, Target: "replicas/replica-001.txt", Temp: "tmp/replica-001.txt.tmp-1", Checksum: "abc"},
		Entry{Seq: 1, Op: OpCommit, Target: "replicas/replica-001.txt", Temp: "tmp/replica-001.txt.tmp-1", Checksum: "abc"},
	)

	entries, badLine, err := readJournal(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if badLine != 0 {
		t.Fatalf("unexpected bad line %d", badLine)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Op != OpPrepare || entries[1].Op != OpCommit {
		t.Fatalf("unexpected ops %s %s", entries[0].Op, entries[1].Op)
	}
	if entries[0].Seq != entries[1].Seq {
		t.Fatal("prepare and commit must share a sequence id")
	}
	if entries[0].Digest == "" {
		t.Fatal("expected sealed entry digest")
	}
	if entries[0].TS.IsZero() {
		t.Fatal("expected append to stamp the entry")
	}
}

func TestJournal_MissingFileIsEmpty(t *testing.T) {
	entries, badLine, err := readJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	if err != nil || badLine != 0 || len(entries) != 0 {
		t.Fatalf("expected empty read, got %d entries, bad=%d, err=%v", len(entries), badLine, err)
	}
}

func TestJournal_DetectsTamperedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	appendEntries(t, path, Entry{Seq: 1, Op: OpPrepare, Target: "replicas/a.txt", Temp: "tmp/a", Checksum: "abc"})

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(b), "replicas/a.txt", "replicas/b.txt", 1)
	mustWriteFile(t, path, []byte(tampered))

	_, badLine, err := readJournal(path)
	if !isErr(err, ErrJournalCorrupt) {
		t.Fatalf("expected ErrJournalCorrupt for tampered entry, got %v", err)
	}
	if badLine != 1 {
		t.Fatalf("expected bad line 1, got %d", badLine)
	}
}

func TestJournal_QuarantinesCorruptTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	appendEntries(t, path,
		Entry{Seq: 1, Op: OpPrepare, Target: "replicas/a.txt", Temp: "tmp/a", Checksum: "abc"},
		Entry{Seq: 1, Op: OpCommit, Target: "replicas/a.txt", Temp: "tmp/a", Checksum: "abc"},
	)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{torn write\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	entries, err := loadJournal(path, testLog())
	if err != nil {
		t.Fatalf("load with corrupt tail: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected good prefix of 2 entries, got %d", len(entries))
	}

	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 1 {
		t.Fatalf("expected one quarantine file, got %v", matches)
	}
	q, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(q), "torn write") {
		t.Fatal("quarantine file must preserve the corrupt tail")
	}

	// The rewritten journal is the clean prefix.
	reread, badLine, err := readJournal(path)
	if err != nil || badLine != 0 {
		t.Fatalf("reread after quarantine: bad=%d err=%v", badLine, err)
	}
	if len(reread) != 2 {
		t.Fatalf("expected 2 entries after quarantine, got %d", len(reread))
	}
}

func TestJournal_NextSeqContinuesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	appendEntries(t, path,
		Entry{Seq: 1, Op: OpPrepare, Target: "replicas/a.txt", Temp: "tmp/a", Checksum: "x"},
		Entry{Seq: 1, Op: OpCommit, Target: "replicas/a.txt", Temp: "tmp/a", Checksum: "x"},
	)

	entries, _, err := readJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	j, err := OpenJournal(path, maxSeq(entries))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	if seq := j.NextSeq(); seq != 2 {
		t.Fatalf("expected next seq 2, got %d", seq)
	}
}

func TestRemoveJournal_RefusesInterrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	appendEntries(t, path, Entry{Seq: 1, Op: OpPrepare, Target: "replicas/a.txt", Temp: "tmp/a", Checksum: "x"})

	entries, _, err := readJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := removeJournal(path, entries); err == nil {
		t.Fatal("expected removal to be refused while interrupted")
	}
	if !pathExists(path) {
		t.Fatal("journal must survive a refused removal")
	}

	appendEntries(t, path, Entry{Seq: 1, Op: OpRollback, Target: "replicas/a.txt", Temp: "tmp/a", Checksum: "x"})
	entries, _, err = readJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := removeJournal(path, entries); err != nil {
		t.Fatalf("remove clean journal: %v", err)
	}
	if pathExists(path) {
		t.Fatal("expected journal removed")
	}
}
