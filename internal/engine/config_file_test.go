package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileConfig_AppliesWithPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	mustWriteFile(t, path, []byte(`
sandbox_root = "from-file"
max_replicas = 9
polymorph = true
simulate_net = false
`))

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg := DefaultConfig()
	cfg.SandboxRoot = "from-flag"
	changed := map[string]bool{"sandbox": true}

	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.SandboxRoot != "from-flag" {
		t.Fatalf("explicit flag must win over file, got %q", cfg.SandboxRoot)
	}
	if cfg.MaxReplicas != 9 {
		t.Fatalf("file must apply to untouched fields, got %d", cfg.MaxReplicas)
	}
	if !cfg.Polymorph {
		t.Fatal("file bool true must apply")
	}
	if cfg.SimulateNet {
		t.Fatal("file bool false must apply")
	}
}

func TestLoadFileConfig_AbsentBoolLeavesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	mustWriteFile(t, path, []byte(`max_replicas = 4`))

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if fc.Polymorph != nil {
		t.Fatal("absent bool key must decode to nil")
	}

	cfg := DefaultConfig()
	cfg.Polymorph = true
	if err := ApplyFileConfig(&cfg, fc, nil); err != nil {
		t.Fatal(err)
	}
	if !cfg.Polymorph {
		t.Fatal("absent key must not overwrite the existing value")
	}
}

func TestLoadFileConfig_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	mustWriteFile(t, path, []byte(`max_replicas = [`))
	if _, err := LoadFileConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if FileExists(path) {
		t.Fatal("missing file reported present")
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Fatal("present file reported missing")
	}
}
