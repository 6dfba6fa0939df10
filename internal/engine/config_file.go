package engine

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML-friendly field types. Booleans are
// pointers so an absent key is distinguishable from an explicit false.
type FileConfig struct {
	SandboxRoot        string `toml:"sandbox_root"`
	SeedPath           string `toml:"seed_path"`
	ReplicaDir         string `toml:"replica_dir"`
	HostsRoot          string `toml:"hosts_root"`
	HostCount          int    `toml:"host_count"`
	MaxReplicas        int    `toml:"max_replicas"`
	MaxDepth           int    `toml:"max_depth"`
	MutationDepth      int    `toml:"mutation_depth"`
	MinFreeDiskBytes   int64  `toml:"min_free_disk_bytes"`
	MinFreeMemoryBytes int64  `toml:"min_free_memory_bytes"`
	RecheckResources   *bool  `toml:"recheck_resources"`
	Polymorph          *bool  `toml:"polymorph"`
	Payload            *bool  `toml:"payload"`
	SimulateSpread     *bool  `toml:"simulate_spread"`
	Stealth            *bool  `toml:"stealth"`
	MockPersist        *bool  `toml:"mock_persist"`
	SimulateNet        *bool  `toml:"simulate_net"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.wormsim/config.toml if the user home
// directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".wormsim", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("sandbox", fc.SandboxRoot, &cfg.SandboxRoot)
	s.setString("seed", fc.SeedPath, &cfg.SeedPath)
	s.setString("replica-dir", fc.ReplicaDir, &cfg.ReplicaDir)
	s.setString("hosts-root", fc.HostsRoot, &cfg.HostsRoot)

	s.setInt("host-count", fc.HostCount, &cfg.HostCount)
	s.setInt("max-replicas", fc.MaxReplicas, &cfg.MaxReplicas)
	s.setInt("max-depth", fc.MaxDepth, &cfg.MaxDepth)
	s.setInt("mutation-depth", fc.MutationDepth, &cfg.MutationDepth)

	s.setUint64("min-free-disk", fc.MinFreeDiskBytes, &cfg.MinFreeDiskBytes)
	s.setUint64("min-free-memory", fc.MinFreeMemoryBytes, &cfg.MinFreeMemoryBytes)

	s.setBool("recheck-resources", fc.RecheckResources, &cfg.RecheckResources)
	s.setBool("polymorph", fc.Polymorph, &cfg.Polymorph)
	s.setBool("payload", fc.Payload, &cfg.Payload)
	s.setBool("simulate-spread", fc.SimulateSpread, &cfg.SimulateSpread)
	s.setBool("stealth", fc.Stealth, &cfg.Stealth)
	s.setBool("mock-persist", fc.MockPersist, &cfg.MockPersist)
	s.setBool("simulate-net", fc.SimulateNet, &cfg.SimulateNet)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
