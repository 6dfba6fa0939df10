package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func alwaysAlive(int) bool { return true }
func neverAlive(int) bool  { return false }

func TestLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wormsim.lock")

	h, err := acquireLock(path, alwaysAlive, testLog())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := acquireLock(path, alwaysAlive, testLog()); !isErr(err, ErrAlreadyRunning) {
		t.Fatalf("second acquire: expected ErrAlreadyRunning, got %v", err)
	}

	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if pathExists(path) {
		t.Fatal("expected lock file removed after release")
	}
}

func TestLock_ReclaimsDeadHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wormsim.lock")

	stale := LockInfo{HolderID: "stale", PID: 999999, AcquiredAt: time.Now().Add(-time.Hour)}
	b, _ := json.Marshal(stale)
	mustWriteFile(t, path, b)

	h, err := acquireLock(path, neverAlive, testLog())
	if err != nil {
		t.Fatalf("expected reclamation to succeed, got %v", err)
	}
	if h.HolderID() == "stale" {
		t.Fatal("expected a fresh holder id after reclamation")
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestLock_ReclaimsGarbageLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wormsim.lock")
	mustWriteFile(t, path, []byte("not json"))

	h, err := acquireLock(path, neverAlive, testLog())
	if err != nil {
		t.Fatalf("expected garbage lock to be reclaimed, got %v", err)
	}
	_ = h.Release()
}

func TestLock_ReleaseRefusesForeignHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wormsim.lock")

	h, err := acquireLock(path, alwaysAlive, testLog())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Simulate reclamation by a different run: the file now names another holder.
	other := LockInfo{HolderID: "other-run", PID: os.Getpid(), AcquiredAt: time.Now()}
	b, _ := json.Marshal(other)
	mustWriteFile(t, path, b)

	if err := h.Release(); err == nil {
		t.Fatal("expected release to refuse a lock held by another run")
	}
	if !pathExists(path) {
		t.Fatal("expected foreign lock file to remain")
	}
}

func TestLock_ReleaseIdempotentWhenGone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wormsim.lock")

	h, err := acquireLock(path, alwaysAlive, testLog())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release after external removal: %v", err)
	}
}
