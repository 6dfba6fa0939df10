package extras

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bitrot-labs/wormsim/internal/engine"
)

func newHookContext(t *testing.T) engine.HookContext {
	t.Helper()
	root := filepath.Join(t.TempDir(), "sandbox_w")
	if err := os.MkdirAll(filepath.Join(root, "replicas"), 0o700); err != nil {
		t.Fatal(err)
	}
	sb, err := engine.NewSandbox(root)
	if err != nil {
		t.Fatal(err)
	}

	content := []byte("replica body\n")
	target, err := sb.Resolve("replicas/replica-001.txt")
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.WriteArtifact(target, content); err != nil {
		t.Fatal(err)
	}

	return engine.HookContext{
		Sandbox: sb,
		Manifest: engine.Manifest{
			ReplicaDir: "replicas",
			HostsRoot:  "hosts",
			HostCount:  2,
			Limit:      3,
		},
		Target:     target,
		Content:    content,
		Checksum:   engine.ContentChecksum(content),
		Generation: 0,
		Log:        zerolog.Nop(),
	}
}

func TestHooksFor_FollowsToggles(t *testing.T) {
	if got := HooksFor(engine.Config{}); len(got) != 0 {
		t.Fatalf("no toggles must mean no hooks, got %d", len(got))
	}
	cfg := engine.Config{
		SimulateSpread: true,
		Payload:        true,
		Stealth:        true,
		MockPersist:    true,
		SimulateNet:    true,
	}
	if got := HooksFor(cfg); len(got) != 5 {
		t.Fatalf("expected 5 hooks, got %d", len(got))
	}
}

func TestPayloadHook_WritesNote(t *testing.T) {
	h := newHookContext(t)
	if err := PayloadHook(h); err != nil {
		t.Fatalf("payload hook: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(h.Sandbox.Root(), "replicas", payloadNoteName))
	if err != nil {
		t.Fatalf("read note: %v", err)
	}
	if string(b) != payloadNote {
		t.Fatal("note content mismatch")
	}

	// Idempotent overwrite.
	if err := PayloadHook(h); err != nil {
		t.Fatalf("second payload hook: %v", err)
	}
}

func TestSpreadHook_CopiesIntoEveryHost(t *testing.T) {
	h := newHookContext(t)
	if err := SpreadHook(h); err != nil {
		t.Fatalf("spread hook: %v", err)
	}
	for _, host := range []string{"host_1", "host_2"} {
		hostCopy := filepath.Join(h.Sandbox.Root(), "hosts", host, "replicas", "replica-001.txt")
		b, err := os.ReadFile(hostCopy)
		if err != nil {
			t.Fatalf("read host copy %s: %v", host, err)
		}
		if string(b) != string(h.Content) {
			t.Fatalf("host copy %s content mismatch", host)
		}
	}
}

func TestSimulateNetHook_AppendsPerHostRecords(t *testing.T) {
	h := newHookContext(t)
	if err := SimulateNetHook(h); err != nil {
		t.Fatalf("simnet hook: %v", err)
	}

	f, err := os.Open(h.Sandbox.TransmitPath())
	if err != nil {
		t.Fatalf("open transmission log: %v", err)
	}
	defer f.Close()

	var recs []Transmission
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec Transmission
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		recs = append(recs, rec)
	}
	if len(recs) != 2 {
		t.Fatalf("expected one record per host, got %d", len(recs))
	}
	for _, rec := range recs {
		if !rec.Simulated {
			t.Fatal("every record must be marked simulated")
		}
		if rec.Replica != "replica-001.txt" || rec.Checksum != h.Checksum {
			t.Fatalf("unexpected record %+v", rec)
		}
		if rec.Bytes != len(h.Content) {
			t.Fatalf("unexpected byte count %d", rec.Bytes)
		}
	}
}

func TestStealthAndPersistMarkers(t *testing.T) {
	h := newHookContext(t)
	if err := StealthHook(h); err != nil {
		t.Fatalf("stealth hook: %v", err)
	}
	if err := MockPersistHook(h); err != nil {
		t.Fatalf("persist hook: %v", err)
	}

	alias := filepath.Join(h.Sandbox.Root(), "replicas", stealthMarkerName)
	if _, err := os.Stat(alias); err != nil {
		t.Fatalf("stealth marker missing: %v", err)
	}
	marker, err := os.ReadFile(filepath.Join(h.Sandbox.Root(), persistMarkerName))
	if err != nil {
		t.Fatalf("persistence marker missing: %v", err)
	}
	if len(marker) == 0 {
		t.Fatal("persistence marker must describe what it mocks")
	}
}

func TestCleanupArtifacts_RemovesEverything(t *testing.T) {
	h := newHookContext(t)
	for _, hook := range []engine.ReplicaHook{SpreadHook, PayloadHook, StealthHook, MockPersistHook, SimulateNetHook} {
		if err := hook(h); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := CleanupArtifacts(h.Sandbox, h.Manifest, zerolog.Nop())
	if err != nil {
		t.Fatalf("cleanup artifacts: %v", err)
	}
	// Note, alias, persistence marker, transmission log, and one host copy
	// per mock host.
	if removed != 6 {
		t.Fatalf("expected 6 artifacts removed, got %d", removed)
	}

	for _, rel := range []string{
		filepath.Join("replicas", payloadNoteName),
		filepath.Join("replicas", stealthMarkerName),
		persistMarkerName,
		"transmissions.jsonl",
		filepath.Join("hosts", "host_1", "replicas", "replica-001.txt"),
	} {
		if _, err := os.Stat(filepath.Join(h.Sandbox.Root(), rel)); err == nil {
			t.Fatalf("artifact %s still present", rel)
		}
	}

	// The host skeleton survives so the sandbox stays initialized.
	for _, host := range []string{"host_1", "host_2"} {
		dir := filepath.Join(h.Sandbox.Root(), "hosts", host, "replicas")
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("host skeleton %s missing", host)
		}
	}

	again, err := CleanupArtifacts(h.Sandbox, h.Manifest, zerolog.Nop())
	if err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	if again != 0 {
		t.Fatalf("second cleanup must find nothing, got %d", again)
	}
}
