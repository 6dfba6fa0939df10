package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LockInfo is the persisted identity of the lock holder.
type LockInfo struct {
	HolderID   string    `json:"holder_id"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockHandle is an acquired sandbox lock. Release it with Release; only the
// acquiring handle can release it.
type LockHandle struct {
	path string
	info LockInfo
}

// HolderID returns the unique id of this lock acquisition.
func (h *LockHandle) HolderID() string { return h.info.HolderID }

// LivenessFunc reports whether the process with the given pid is still
// alive. Injectable so tests can substitute a fake.
type LivenessFunc func(pid int) bool

// acquireLock atomically creates the lock file, failing with
// ErrAlreadyRunning if a live holder already owns it. A lock whose holder is
// provably dead is reclaimed. Non-blocking: no waiting, no retries beyond
// the single reclamation attempt.
func acquireLock(path string, alive LivenessFunc, log zerolog.Logger) (*LockHandle, error) {
	info := LockInfo{
		HolderID:   uuid.NewString(),
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode lock info: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			if _, werr := f.Write(payload); werr != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", werr)
			}
			if serr := f.Sync(); serr != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return nil, fmt.Errorf("sync lock file: %w", serr)
			}
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("close lock file: %w", cerr)
			}
			return &LockHandle{path: path, info: info}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		prev, readErr := readLockInfo(path)
		if readErr == nil && alive(prev.PID) {
			return nil, fmt.Errorf("%w: sandbox locked by pid %d since %s",
				ErrAlreadyRunning, prev.PID, prev.AcquiredAt.Format(time.RFC3339))
		}
		// Holder is dead, or the lock file is unreadable garbage: reclaim it.
		log.Warn().Str("lock", path).Int("stale_pid", prev.PID).Msg("reclaiming stale lock")
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("reclaim stale lock: %w", rmErr)
		}
	}
	return nil, fmt.Errorf("%w: lock contention during reclamation", ErrAlreadyRunning)
}

func readLockInfo(path string) (LockInfo, error) {
	var info LockInfo
	b, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(b, &info); err != nil {
		return info, err
	}
	return info, nil
}

// Release removes the lock file, but only if it still names this holder.
// A lock reclaimed and re-acquired by another run is left untouched.
func (h *LockHandle) Release() error {
	cur, err := readLockInfo(h.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read lock before release: %w", err)
	}
	if cur.HolderID != h.info.HolderID {
		return fmt.Errorf("lock at %s now held by another run; not releasing", h.path)
	}
	if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
