package engine

import "os"

// ApplyEnvConfig applies configuration from environment variables (WORMSIM_*).
// It respects flags that have been explicitly set (changed map).
// Returns an error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("sandbox", os.Getenv("WORMSIM_SANDBOX_ROOT"), &cfg.SandboxRoot)
	s.setString("seed", os.Getenv("WORMSIM_SEED_PATH"), &cfg.SeedPath)
	s.setString("replica-dir", os.Getenv("WORMSIM_REPLICA_DIR"), &cfg.ReplicaDir)
	s.setString("hosts-root", os.Getenv("WORMSIM_HOSTS_ROOT"), &cfg.HostsRoot)

	if err := s.setIntFromString("host-count", os.Getenv("WORMSIM_HOST_COUNT"), &cfg.HostCount); err != nil {
		return err
	}
	if err := s.setIntFromString("max-replicas", os.Getenv("WORMSIM_MAX_REPLICAS"), &cfg.MaxReplicas); err != nil {
		return err
	}
	if err := s.setIntFromString("max-depth", os.Getenv("WORMSIM_MAX_DEPTH"), &cfg.MaxDepth); err != nil {
		return err
	}
	if err := s.setIntFromString("mutation-depth", os.Getenv("WORMSIM_MUTATION_DEPTH"), &cfg.MutationDepth); err != nil {
		return err
	}

	if err := s.setUint64FromString("min-free-disk", os.Getenv("WORMSIM_MIN_FREE_DISK_BYTES"), &cfg.MinFreeDiskBytes); err != nil {
		return err
	}
	if err := s.setUint64FromString("min-free-memory", os.Getenv("WORMSIM_MIN_FREE_MEMORY_BYTES"), &cfg.MinFreeMemoryBytes); err != nil {
		return err
	}

	s.setBoolFromString("recheck-resources", os.Getenv("WORMSIM_RECHECK_RESOURCES"), &cfg.RecheckResources)
	s.setBoolFromString("polymorph", os.Getenv("WORMSIM_POLYMORPH"), &cfg.Polymorph)
	s.setBoolFromString("payload", os.Getenv("WORMSIM_PAYLOAD"), &cfg.Payload)
	s.setBoolFromString("simulate-spread", os.Getenv("WORMSIM_SIMULATE_SPREAD"), &cfg.SimulateSpread)
	s.setBoolFromString("stealth", os.Getenv("WORMSIM_STEALTH"), &cfg.Stealth)
	s.setBoolFromString("mock-persist", os.Getenv("WORMSIM_MOCK_PERSIST"), &cfg.MockPersist)
	s.setBoolFromString("simulate-net", os.Getenv("WORMSIM_SIMULATE_NET"), &cfg.SimulateNet)

	return nil
}
