package engine

import (
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func isErr(err, target error) bool {
	return errors.Is(err, target)
}

func testLog() zerolog.Logger {
	return zerolog.Nop()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mustWriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
