package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// reservedNames are Windows device names that must not be used as sandbox
// path components.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true, "COM1": true, "LPT1": true,
}

// layoutNames are the fixed sandbox entries; a replica or hosts directory
// named after one would collide with the layout.
var layoutNames = map[string]bool{
	lockFileName: true, journalFileName: true, stopFileName: true,
	manifestFileName: true, tmpDirName: true, logFileName: true,
	transmissionsLog: true,
}

const maxHostCount = 10

type Config struct {
	// SandboxRoot is the directory boundary for every operation.
	SandboxRoot string

	// SeedPath points at the seed artifact to replicate. Empty selects the
	// embedded training seed; the tool never copies its own binary.
	SeedPath string

	// ReplicaDir and HostsRoot are single path components under the root.
	ReplicaDir string
	HostsRoot  string
	HostCount  int

	// MaxReplicas bounds replication breadth, MaxDepth bounds chained
	// mutation generations, MutationDepth is the depth actually applied.
	MaxReplicas   int
	MaxDepth      int
	MutationDepth int

	MinFreeDiskBytes   uint64
	MinFreeMemoryBytes uint64
	// RecheckResources re-runs the resource guard before every replica
	// instead of once per run.
	RecheckResources bool

	// Feature toggles.
	Polymorph      bool
	Payload        bool
	SimulateSpread bool
	Stealth        bool
	MockPersist    bool
	SimulateNet    bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		SandboxRoot:        "sandbox_w",
		ReplicaDir:         "replicas",
		HostsRoot:          "hosts",
		HostCount:          3,
		MaxReplicas:        3,
		MaxDepth:           3,
		MutationDepth:      1,
		MinFreeDiskBytes:   64 << 20,
		MinFreeMemoryBytes: 32 << 20,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.SandboxRoot == "" {
		return fmt.Errorf("sandbox root is required")
	}
	if c.ReplicaDir == "" {
		c.ReplicaDir = "replicas"
	}
	if c.HostsRoot == "" {
		c.HostsRoot = "hosts"
	}
	for name, v := range map[string]string{"replica-dir": c.ReplicaDir, "hosts-root": c.HostsRoot} {
		if err := validateComponent(name, v); err != nil {
			return err
		}
	}
	if c.HostCount < 0 || c.HostCount > maxHostCount {
		return fmt.Errorf("host count must be 0..%d", maxHostCount)
	}
	if c.MaxReplicas < 0 {
		return fmt.Errorf("max replicas must be non-negative")
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max depth must be positive")
	}
	if c.MutationDepth < 1 {
		c.MutationDepth = 1
	}
	return nil
}

// validateComponent rejects path components that could change the sandbox
// layout: separators, traversal, reserved device names.
func validateComponent(name, v string) error {
	if v == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	if strings.ContainsAny(v, `/\`) {
		return fmt.Errorf("%s must not contain path separators", name)
	}
	if v == "." || v == ".." {
		return fmt.Errorf("%s must not be a dot component", name)
	}
	if reservedNames[strings.ToUpper(v)] {
		return fmt.Errorf("%s must not be a reserved device name", name)
	}
	if layoutNames[v] {
		return fmt.Errorf("%s must not collide with a sandbox layout name", name)
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setUint64(flag string, value int64, dst *uint64) {
	if value < 0 || s.changed[flag] {
		return
	}
	*dst = uint64(value)
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

func (s *configSetter) setUint64FromString(flag, value string, dst *uint64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	u, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = u
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
