package engine

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
)

//go:embed manifest.schema.json
var manifestSchemaJSON []byte

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *jsonschema.Schema
	manifestSchemaErr  error
)

// Manifest describes the sandbox: what it is for, the safety posture, and
// the layout the core trusts (the replica subdirectory is manifest-declared).
type Manifest struct {
	Purpose    string `json:"purpose"`
	Safety     Safety `json:"safety"`
	ReplicaDir string `json:"replica_dir"`
	HostsRoot  string `json:"hosts_root"`
	HostCount  int    `json:"host_count"`
	Limit      int    `json:"limit"`
	Created    string `json:"created"`
}

// Safety booleans are all required false by the schema; a manifest claiming
// otherwise is rejected outright.
type Safety struct {
	Network             bool `json:"network"`
	Persistence         bool `json:"persistence"`
	PrivilegeEscalation bool `json:"privilege_escalation"`
}

func defaultManifest(cfg Config) Manifest {
	return Manifest{
		Purpose:    "Training-only harmless self-replication demo",
		ReplicaDir: cfg.ReplicaDir,
		HostsRoot:  cfg.HostsRoot,
		HostCount:  cfg.HostCount,
		Limit:      cfg.MaxReplicas,
		Created:    time.Now().UTC().Format(time.RFC3339),
	}
}

func compiledManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		manifestSchema, manifestSchemaErr = compiler.Compile(manifestSchemaJSON)
	})
	if manifestSchemaErr != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", manifestSchemaErr)
	}
	return manifestSchema, nil
}

func writeManifest(sb Sandbox, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := validateManifestBytes(b); err != nil {
		return err
	}
	return writeFileAtomic(sb.ManifestPath(), b, 0o600)
}

// loadManifest reads and schema-validates the sandbox manifest. Every run
// and cleanup goes through here, so a tampered manifest is caught before
// any layout decision is made from it.
func loadManifest(sb Sandbox) (Manifest, error) {
	b, err := os.ReadFile(sb.ManifestPath())
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	if err := validateManifestBytes(b); err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

func validateManifestBytes(b []byte) error {
	schema, err := compiledManifestSchema()
	if err != nil {
		return err
	}
	var instance interface{}
	if err := json.Unmarshal(b, &instance); err != nil {
		return fmt.Errorf("decode manifest for validation: %w", err)
	}
	result := schema.Validate(instance)
	if !result.IsValid() {
		return fmt.Errorf("manifest schema validation failed: %v", result.Errors)
	}
	return nil
}
