package engine

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeFileAtomic writes content to a temp file in the destination directory,
// fsyncs it, and renames it over path. The parent directory is synced so the
// rename itself is durable.
func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false

	syncDir(parent)
	return nil
}

// writeFileSync writes content to path with fsync, without the atomic rename.
// Used for Prepare temp files, where the path itself is the temp location.
func writeFileSync(path string, content []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

func syncDir(dir string) {
	if handle, err := os.Open(dir); err == nil {
		_ = handle.Sync()
		_ = handle.Close()
	}
}

// WriteArtifact atomically writes a collaborator artifact at a path that has
// already passed the sandbox containment check.
func WriteArtifact(p SafePath, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(p.Abs()), 0o700); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	return writeFileAtomic(p.Abs(), content, 0o600)
}

// AppendRecord appends one line to a record file at a guarded path and
// fsyncs it before returning.
func AppendRecord(p SafePath, line []byte) error {
	f, err := os.OpenFile(p.Abs(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open record file: %w", err)
	}
	payload := make([]byte, 0, len(line)+1)
	payload = append(payload, line...)
	payload = append(payload, '\n')
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync record file: %w", err)
	}
	return f.Close()
}
