package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
)

func TestEventLog_WritesStructuredEvents(t *testing.T) {
	sb := newTestSandbox(t)

	ev := openEventLog(sb)
	ev.Log().Info().Str("target", "replicas/replica-001.txt").Msg("replicated")
	ev.Log().Info().Msg("halted")
	ev.Close()

	f, err := os.Open(sb.LogPath())
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	defer f.Close()

	var msgs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("event line not JSON: %v", err)
		}
		msg, _ := rec["message"].(string)
		msgs = append(msgs, msg)
	}
	if len(msgs) != 2 || msgs[0] != "replicated" || msgs[1] != "halted" {
		t.Fatalf("unexpected events %v", msgs)
	}
}

func TestEventLog_NopWhenSandboxUnwritable(t *testing.T) {
	sb, err := NewSandbox(t.TempDir() + "/missing")
	if err != nil {
		t.Fatal(err)
	}
	ev := openEventLog(sb)
	defer ev.Close()
	// Must not panic or create the sandbox as a side effect.
	ev.Log().Info().Msg("dropped")
	if pathExists(sb.LogPath()) {
		t.Fatal("nop event log must not create files")
	}
}
