package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bitrot-labs/wormsim"
	"github.com/bitrot-labs/wormsim/internal/engine"
)

const helpDescription = `
Sandboxed worm-behavior demo for security training.

Highlights:
  - Every replica is created by a journaled two-phase commit; interrupted
    runs are replayed or rolled back on the next invocation.
  - All operations are confined to the sandbox root; traversal and symlink
    escapes are rejected.
  - A STOP sentinel file inside the sandbox halts replication; init creates
    it, cleanup restores it, so the sandbox is inert unless you opt in.
  - No network, no persistence, no privilege escalation. Spread, stealth,
    and transmission are simulated as files inside the sandbox.
`

var exampleUsage = strings.TrimSpace(`
  wormsim init --sandbox sandbox_w
  rm sandbox_w/STOP
  wormsim run --sandbox sandbox_w --polymorph --simulate-spread --payload
  wormsim status --sandbox sandbox_w
  wormsim cleanup --sandbox sandbox_w
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := engine.DefaultConfig()
	var cfgPath string
	var logLevel string

	log := wormsim.Logger()

	root := &cobra.Command{
		Use:     "wormsim",
		Short:   "Sandboxed worm-behavior demo for security training",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.wormsim/config.toml)")
	pf.StringVar(&cfg.SandboxRoot, "sandbox", cfg.SandboxRoot, "sandbox root directory")
	pf.StringVar(&cfg.SeedPath, "seed", cfg.SeedPath, "seed artifact to replicate (default: embedded training seed)")
	pf.StringVar(&cfg.ReplicaDir, "replica-dir", cfg.ReplicaDir, "replica subdirectory name")
	pf.StringVar(&cfg.HostsRoot, "hosts-root", cfg.HostsRoot, "mock hosts subdirectory name")
	pf.IntVar(&cfg.HostCount, "host-count", cfg.HostCount, "number of mock hosts for simulated spread")
	pf.IntVar(&cfg.MaxReplicas, "max-replicas", cfg.MaxReplicas, "maximum number of replicas (breadth)")
	pf.IntVar(&cfg.MaxDepth, "max-depth", cfg.MaxDepth, "maximum chained mutation generations")
	pf.IntVar(&cfg.MutationDepth, "mutation-depth", cfg.MutationDepth, "chained mutation generations to apply")
	pf.Uint64Var(&cfg.MinFreeDiskBytes, "min-free-disk", cfg.MinFreeDiskBytes, "minimum free disk bytes before replicating")
	pf.Uint64Var(&cfg.MinFreeMemoryBytes, "min-free-memory", cfg.MinFreeMemoryBytes, "minimum free memory bytes before replicating")
	pf.BoolVar(&cfg.RecheckResources, "recheck-resources", cfg.RecheckResources, "re-run the resource guard before every replica")
	pf.BoolVar(&cfg.Polymorph, "polymorph", cfg.Polymorph, "apply chained checksum-diversifying mutation")
	pf.BoolVar(&cfg.Payload, "payload", cfg.Payload, "write a harmless note alongside replicas")
	pf.BoolVar(&cfg.SimulateSpread, "simulate-spread", cfg.SimulateSpread, "copy replicas into mock hosts inside the sandbox")
	pf.BoolVar(&cfg.Stealth, "stealth", cfg.Stealth, "write a mock stealth alias marker")
	pf.BoolVar(&cfg.MockPersist, "mock-persist", cfg.MockPersist, "write a mock persistence marker")
	pf.BoolVar(&cfg.SimulateNet, "simulate-net", cfg.SimulateNet, "append simulated transmission records")
	pf.StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	// Resolve config file and environment after flags are parsed, honoring
	// explicit-flag precedence.
	resolve := func() (*wormsim.Engine, error) {
		if lvl, err := zerolog.ParseLevel(logLevel); err == nil {
			log = log.Level(lvl)
		}

		cfgFile := cfgPath
		if cfgFile == "" {
			cfgFile = engine.DefaultConfigPath()
		}

		changed := map[string]bool{}
		pf.Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		if cfgFile != "" && engine.FileExists(cfgFile) {
			fc, err := engine.LoadFileConfig(cfgFile)
			if err != nil {
				return nil, fmt.Errorf("load config: %w", err)
			}
			if err := engine.ApplyFileConfig(&cfg, fc, changed); err != nil {
				return nil, err
			}
		}
		if err := engine.ApplyEnvConfig(&cfg, changed); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		log.Debug().Interface("config", cfg).Msg("configuration")
		return wormsim.New(cfg, wormsim.WithLogger(log))
	}

	root.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Prepare the sandbox, manifest, and STOP kill-switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := resolve()
			if err != nil {
				return err
			}
			return w.Init(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Perform one replication pass (blocked while STOP is present)",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := resolve()
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show sandbox, journal, and replica status",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := resolve()
			if err != nil {
				return err
			}
			report, err := w.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd, report)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Remove replicas and artifacts, restore STOP",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := resolve()
			if err != nil {
				return err
			}
			report, err := w.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("cleanup done: %d replicas and %d artifacts removed, STOP restored\n",
				report.RemovedReplicas, report.RemovedExtras)
			return nil
		},
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("wormsim")
		os.Exit(exitCode(err))
	}
}

// exitCode maps the engine's error taxonomy to stable exit codes so scripts
// can branch on the failure class without parsing log output.
func exitCode(err error) int {
	switch {
	case errors.Is(err, wormsim.ErrHalted):
		return 2
	case errors.Is(err, wormsim.ErrAlreadyRunning):
		return 3
	case errors.Is(err, wormsim.ErrResourceExhausted):
		return 4
	case errors.Is(err, wormsim.ErrUnsafePath):
		return 5
	case errors.Is(err, wormsim.ErrReplicationLimitExceeded):
		return 6
	case errors.Is(err, wormsim.ErrJournalWrite), errors.Is(err, wormsim.ErrJournalCorrupt):
		return 7
	case errors.Is(err, wormsim.ErrRecoveryFailed):
		return 8
	default:
		return 1
	}
}

func printStatus(cmd *cobra.Command, report wormsim.StatusReport) {
	cmd.Println("=== STATUS ===")
	cmd.Printf("sandbox: %s\n", report.SandboxRoot)
	if !report.Initialized {
		cmd.Println("sandbox not initialized (run init first)")
		return
	}
	cmd.Printf("STOP present: %v\n", report.StopPresent)
	cmd.Printf("state: %s\n", report.State)
	cmd.Printf("limit: %d\n", report.Limit)
	cmd.Printf("journal entries: %d\n", report.JournalEntries)
	if report.JournalCorrupt {
		cmd.Println("journal: corrupt tail detected (will be quarantined on next run or cleanup)")
	}
	cmd.Printf("replicas: %d\n", len(report.Replicas))
	for _, r := range report.Replicas {
		cmd.Printf(" - %s  sha256=%s\n", r.Name, r.Checksum)
	}
	if len(report.Hosts) > 0 {
		cmd.Println("hosts:")
		for _, h := range report.Hosts {
			cmd.Printf(" - %s: %d replicas\n", h.Name, h.Replicas)
		}
	}
}
