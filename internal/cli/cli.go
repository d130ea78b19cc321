// ============================================================================
// Beaver-Queue CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides user-friendly command line interface based on Cobra framework
//
// Command Structure:
//   beaverqueue                    # Root command
//   ├── run                        # Start a master
//   │   └── --config, -c          # Specify config file
//   ├── submit                     # Submit a job set
//   │   ├── --file, -f            # Specify job JSON file
//   │   ├── --master              # Remote master admin address
//   │   └── --local               # Run a one-shot in-process master instead
//   ├── status                     # View a running master's queue depth
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// run starts the worker-facing TCP listener, the admin control endpoint
// (internal/adminapi), and the Prometheus metrics server, then blocks until
// SIGINT/SIGTERM before draining and shutting everything down.
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/adminapi"
	"github.com/ChuLiYu/beaver-queue/internal/config"
	"github.com/ChuLiYu/beaver-queue/internal/master"
	"github.com/ChuLiYu/beaver-queue/internal/metrics"
	"github.com/ChuLiYu/beaver-queue/pkg/jobs"
	"github.com/spf13/cobra"
)

var configFile string

// BuildCLI assembles the root beaverqueue command and its three
// subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "beaverqueue",
		Short: "Beaver-Queue: a fault-tolerant cooperative distributed-compute framework",
		Long: `Beaver-Queue dispatches jobs from lazily-iterated job sets to
transient TCP-connected workers, with at-least-once delivery,
cooperative cancellation, and an async result stream.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (built-in defaults if omitted)")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildSubmitCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the master: worker listener, admin endpoint, and metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaster()
		},
	}
	return cmd
}

func runMaster() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var opts []master.Option
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		opts = append(opts, master.WithMetrics(collector))
		go func() {
			slog.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := collector.StartServer(cfg.Metrics.Port); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	m, err := master.StartMaster(context.Background(), cfg.Master.Host, cfg.Master.Port, opts...)
	if err != nil {
		return fmt.Errorf("failed to start master: %w", err)
	}

	var admin *adminapi.Server
	if cfg.Admin.Enabled {
		admin, err = adminapi.Serve(m, cfg.Admin.Host, cfg.Admin.Port, nil)
		if err != nil {
			return fmt.Errorf("failed to start admin endpoint: %w", err)
		}
		slog.Info("admin endpoint listening", "addr", admin.Addr())
	}

	slog.Info("beaverqueue running", "worker_addr", m.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutdown signal received, stopping gracefully")
	if admin != nil {
		_ = admin.Close()
	}
	m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.AwaitClosed(ctx); err != nil {
		return fmt.Errorf("shutdown did not finish cleanly: %w", err)
	}
	slog.Info("beaverqueue stopped")
	return nil
}

func buildSubmitCommand() *cobra.Command {
	var jobFile string
	var remoteAddr string
	var local bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a JSON array of job payloads as one job set",
		Long:  "Read job call payloads from a JSON file and submit them as a single job set. Use --master to submit to a remote master, or --local to run a one-shot in-process master.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobFile == "" {
				return fmt.Errorf("job file is required (use --file or -f)")
			}
			payloads, err := readPayloads(jobFile)
			if err != nil {
				return err
			}
			if local {
				return submitLocal(payloads)
			}
			if remoteAddr == "" {
				return fmt.Errorf("--master is required unless --local is set")
			}
			return submitRemote(payloads, remoteAddr)
		},
	}

	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "JSON file containing an array of job call payloads")
	cmd.Flags().StringVar(&remoteAddr, "master", "", "admin address of a running master (host:port)")
	cmd.Flags().BoolVar(&local, "local", false, "start an in-process master instead of connecting to one")
	cmd.MarkFlagRequired("file")

	return cmd
}

func readPayloads(jobFile string) ([]*jobs.Payload, error) {
	data, err := os.ReadFile(jobFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	payloads, err := jobs.FromJSONArray(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	return payloads, nil
}

func submitRemote(payloads []*jobs.Payload, remoteAddr string) error {
	calls := make([]json.RawMessage, len(payloads))
	for i, p := range payloads {
		calls[i] = p.Call_
	}

	client := adminapi.NewClient(remoteAddr)
	resp, err := client.Submit(calls)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	fmt.Printf("Submitted %d jobs to %s\n", resp.Queued, remoteAddr)
	return nil
}

func submitLocal(payloads []*jobs.Payload) error {
	m, err := master.StartMaster(context.Background(), "127.0.0.1", 0)
	if err != nil {
		return fmt.Errorf("failed to start local master: %w", err)
	}
	defer m.Close()

	h, err := m.Submit(jobs.ToJobIterator(payloads))
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	fmt.Printf("Local master listening on %s, awaiting a worker to drain %d jobs\n", m.Addr(), len(payloads))

	ctx := context.Background()
	it := h.Results()
	count := 0
	for {
		v, ok := it.Next(ctx)
		if !ok {
			break
		}
		fmt.Printf("result: %v\n", v)
		count++
	}
	fmt.Printf("Completed %d/%d jobs\n", count, len(payloads))
	return nil
}

func buildStatusCommand() *cobra.Command {
	var remoteAddr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and worker count for a running master",
		Long:  "Display job queue statistics for a running master's admin endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(remoteAddr)
		},
	}
	cmd.Flags().StringVar(&remoteAddr, "master", "", "admin address of a running master (host:port)")
	cmd.MarkFlagRequired("master")
	return cmd
}

func showStatus(remoteAddr string) error {
	client := adminapi.NewClient(remoteAddr)
	resp, err := client.Status()
	if err != nil {
		return fmt.Errorf("failed to reach master: %w", err)
	}

	fmt.Println("\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║              Beaver-Queue System Status                    ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("📋 Connection:")
	fmt.Printf("  └─ Master:          %s\n", remoteAddr)
	fmt.Println()

	fmt.Println("📊 Job Queue Statistics:")
	fmt.Printf("  ├─ Active Job Sets: %d\n", resp.Stats.ActiveJobSets)
	fmt.Printf("  ├─ ⏳ Pending Jobs:  %d\n", resp.Stats.PendingJobs)
	fmt.Printf("  └─ 🔄 Workers:       %d\n", resp.Stats.WorkersConnected)
	fmt.Println()

	fmt.Println("═══════════════════════════════════════════════════════════")
	return nil
}
