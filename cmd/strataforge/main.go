package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lioth/strataforge/internal/api"
	"github.com/lioth/strataforge/internal/checkpoint"
	"github.com/lioth/strataforge/internal/config"
	"github.com/lioth/strataforge/internal/export"
	"github.com/lioth/strataforge/internal/metrics"
	"github.com/lioth/strataforge/internal/orchestrator"
	"github.com/lioth/strataforge/internal/plan"
	"github.com/lioth/strataforge/internal/prompt"
	"github.com/lioth/strataforge/internal/session"
	"github.com/lioth/strataforge/internal/stats"
	"github.com/lioth/strataforge/pkg/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	resumeFrom string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "strataforge",
		Short: "Strataforge - Stratified Synthetic Dataset Generator",
		Long: `Strataforge generates stratified synthetic text datasets by driving an
LLM generation endpoint. Fractional category and format weights are
reconciled into an exact per-stratum plan, generation runs under bounded
concurrency with crash-safe checkpointing, and completed runs export
deterministically.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dataset generation pipeline",
		Long: `Run the complete dataset generation pipeline:
1. Reconcile configured weights into an exact per-stratum plan
2. Generate examples under bounded concurrency with retries
3. Checkpoint durable progress into the run directory
4. Export the dataset and write the run report`,
		RunE: runGeneration,
	}
	runCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	runCmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	runCmd.Flags().StringVar(&resumeFrom, "resume", "", "Resume an interrupted run directory (e.g. run_2025-06-01T10-00-00)")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the generation plan without generating",
		Long:  "Reconcile the configured weights into exact per-stratum counts and print the distribution table",
		RunE:  printPlan,
	}
	planCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect run checkpoints",
		Long:  "Inspect the checkpoint logs of finished or interrupted runs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all run directories and their progress",
		RunE:  listRuns,
	}
	listCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")

	inspectCmd := &cobra.Command{
		Use:   "inspect <run-dir>",
		Short: "Display detailed information about one run's checkpoint log",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectRun,
	}
	inspectCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")

	exportCmd := &cobra.Command{
		Use:   "export <run-dir>",
		Short: "Export the dataset from an existing run directory",
		Long:  "Merge, dedupe, and encode the durable results of an existing run without generating anything",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")

	checkpointCmd.AddCommand(listCmd)
	checkpointCmd.AddCommand(inspectCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGeneration(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	resumeMode := resumeFrom != ""

	mgr, err := session.NewManager(cfg.Run.OutputDir, resumeFrom, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	logger, logFile, err := session.SetupLogger(mgr, logLevel)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		if logFile != nil {
			_ = logFile.Sync()
			_ = logFile.Close()
		}
	}()

	logger.Info("Strataforge starting",
		"version", Version,
		"config", configPath,
		"run_dir", mgr.GetRunDir(),
		"resume_mode", resumeMode)

	// Backup config for new runs; a resumed run keeps the original backup
	if !resumeMode {
		if err := mgr.BackupConfig(configPath); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	p, err := plan.Build(cfg.Run.Target, cfg.Weights.Categories, cfg.Weights.Formats)
	if err != nil {
		return fmt.Errorf("failed to build plan: %w", err)
	}
	fmt.Print(p.String())

	client := api.NewClient(cfg.Endpoint, secrets, logger)

	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("endpoint health check failed: %w", err)
	}
	logger.Info("Endpoint healthy", "base_url", cfg.Endpoint.BaseURL, "model", client.Model())

	collector := metrics.NewCollector(logger)

	var store *checkpoint.Store
	var durable map[models.ResumeKey]bool
	if resumeMode {
		snap, err := checkpoint.Load(mgr.GetRunDir(), logger)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if err := checkpoint.ValidateResume(snap, cfg); err != nil {
			return fmt.Errorf("checkpoint validation failed: %w", err)
		}
		store, err = checkpoint.NewStoreFromSnapshot(mgr.GetRunDir(), cfg, snap, collector, logger)
		if err != nil {
			return fmt.Errorf("failed to reopen checkpoint store: %w", err)
		}
		durable = snap.Durable
		logger.Info("Resuming from checkpoint",
			"records", snap.Records,
			"durable", len(snap.Durable),
			"progress", fmt.Sprintf("%.1f%%", snap.Progress()))
	} else {
		store, err = checkpoint.NewStore(mgr.GetRunDir(), cfg, collector, logger)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
	}

	library, err := prompt.NewLibrary(cfg)
	if err != nil {
		return fmt.Errorf("failed to load prompt templates: %w", err)
	}
	sampler := prompt.NewSampler(cfg)

	aggregator := stats.New(collector)
	eng := orchestrator.New(cfg, client, library, sampler, store, aggregator, collector, logger)

	// The optional metrics endpoint lives exactly as long as the run
	g := new(errgroup.Group)
	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		g.Go(func() error {
			logger.Info("Metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-serveCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	start := time.Now()
	runErr := eng.Run(ctx, p, durable)
	duration := time.Since(start)

	stopServing()
	if err := g.Wait(); err != nil {
		// A dead metrics endpoint never fails a dataset run
		logger.Warn("Metrics server error", "error", err)
	}

	aggregator.Close()
	summary := aggregator.Snapshot()
	state := store.State()

	report := &models.RunReport{
		RunID:                  state.RunID,
		Status:                 models.RunCompleted,
		RequestedCount:         state.Target,
		CompletedCount:         state.CompletedCount,
		PermanentlyFailedCount: state.PermanentlyFailedCount,
		DurationSeconds:        duration.Seconds(),
		PerCategory:            state.PerCategory,
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		report.Status = models.RunCancelled
		report.Error = runErr.Error()
	default:
		report.Status = models.RunAborted
		report.Error = runErr.Error()
	}
	if werr := mgr.WriteReport(report); werr != nil {
		logger.Error("Failed to write run report", "error", werr)
	}

	logger.Info("Generation finished",
		"status", report.Status,
		"completed", state.CompletedCount,
		"failed", state.PermanentlyFailedCount,
		"success_rate", fmt.Sprintf("%.1f%%", summary.SuccessRate),
		"avg_latency", summary.AverageLatency,
		"duration", duration)
	logger.Debug("Distribution detail",
		"per_format", summary.PerFormat,
		"per_complexity", summary.PerComplexity,
		"per_domain", summary.PerDomain)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			runName := filepath.Base(mgr.GetRunDir())
			logger.Warn("Generation interrupted, durable progress is resumable",
				"run_dir", runName,
				"resume_command", fmt.Sprintf("strataforge run --resume %s", runName))
			return fmt.Errorf("generation interrupted (resume with --resume %s)", runName)
		}
		return fmt.Errorf("generation failed: %w", runErr)
	}

	exporter := export.New(mgr.GetRunDir(), cfg.Export.Encodings, logger)
	exportReport, err := exporter.Export()
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	logger.Info("Export complete",
		"exported", exportReport.Exported,
		"duplicates", exportReport.Duplicates,
		"quarantined", exportReport.Quarantined,
		"files", strings.Join(exportReport.Files, ", "))

	logger.Info("All done")
	return nil
}

// printPlan renders the distribution table a run would use, without
// generating anything.
func printPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}
	p, err := plan.Build(cfg.Run.Target, cfg.Weights.Categories, cfg.Weights.Formats)
	if err != nil {
		return fmt.Errorf("failed to build plan: %w", err)
	}
	fmt.Print(p.String())
	return nil
}

// listRuns lists all run directories in the output folder with their
// checkpoint progress.
func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(cfg.Run.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No output directory found. Run a generation first.")
			return nil
		}
		return fmt.Errorf("failed to read output directory: %w", err)
	}

	type runInfo struct {
		name     string
		records  int
		durable  int
		target   int
		progress float64
	}
	var runs []runInfo

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "run_") {
			continue
		}
		info := runInfo{name: entry.Name()}
		runDir := filepath.Join(cfg.Run.OutputDir, entry.Name())
		if _, err := os.Stat(filepath.Join(runDir, checkpoint.Filename)); err == nil {
			if snap, err := checkpoint.Load(runDir, slog.Default()); err == nil {
				info.records = snap.Records
				info.durable = len(snap.Durable)
				info.target = snap.State.Target
				info.progress = snap.Progress()
			}
		}
		runs = append(runs, info)
	}

	if len(runs) == 0 {
		fmt.Println("No run directories found.")
		return nil
	}

	fmt.Println("Available runs:")
	fmt.Println()
	fmt.Printf("%-32s %8s %8s %8s %10s\n", "RUN", "RECORDS", "DURABLE", "TARGET", "PROGRESS")
	fmt.Println(strings.Repeat("-", 72))
	for _, r := range runs {
		fmt.Printf("%-32s %8d %8d %8d %9.1f%%\n", r.name, r.records, r.durable, r.target, r.progress)
	}
	return nil
}

// inspectRun displays detailed information about one run's checkpoint log.
func inspectRun(cmd *cobra.Command, args []string) error {
	runName := args[0]

	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}

	// SECURITY: Validate the run name to prevent path traversal (CWE-22)
	if err := session.ValidateRunName(cfg.Run.OutputDir, runName); err != nil {
		return fmt.Errorf("invalid run directory: %w", err)
	}
	runDir := filepath.Join(cfg.Run.OutputDir, runName)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return fmt.Errorf("run directory not found: %s", runName)
	}

	snap, err := checkpoint.Load(runDir, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	fmt.Printf("Checkpoint information for: %s\n", runName)
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("Run ID:            %s\n", snap.State.RunID)
	fmt.Printf("Started At:        %s\n", snap.State.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Plan Hash:         %s\n", snap.State.ConfigHash)
	fmt.Printf("Records:           %d (max sequence %d)\n", snap.Records, snap.MaxSequence)
	if snap.Skipped > 0 {
		fmt.Printf("Skipped Lines:     %d (malformed, never durable)\n", snap.Skipped)
	}
	fmt.Println()

	fmt.Printf("Durable results:   %d / %d (%.1f%%)\n", len(snap.Durable), snap.State.Target, snap.Progress())
	fmt.Println()

	if len(snap.State.PerCategory) > 0 {
		fmt.Println("Per category:")
		categories := make([]string, 0, len(snap.State.PerCategory))
		for name := range snap.State.PerCategory {
			categories = append(categories, name)
		}
		sort.Strings(categories)
		for _, name := range categories {
			fmt.Printf("  %-28s %6d\n", name, snap.State.PerCategory[name])
		}
		fmt.Println()
	}

	if len(snap.Durable) >= snap.State.Target {
		fmt.Println("This run is complete.")
	} else {
		fmt.Println("To resume this run:")
		fmt.Printf("  strataforge run --resume %s\n", runName)
	}
	return nil
}

// exportRun runs the exporter over an existing run directory.
func exportRun(cmd *cobra.Command, args []string) error {
	runName := args[0]

	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}

	// SECURITY: Validate the run name to prevent path traversal (CWE-22)
	if err := session.ValidateRunName(cfg.Run.OutputDir, runName); err != nil {
		return fmt.Errorf("invalid run directory: %w", err)
	}
	runDir := filepath.Join(cfg.Run.OutputDir, runName)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return fmt.Errorf("run directory not found: %s", runName)
	}

	exporter := export.New(runDir, cfg.Export.Encodings, slog.Default())
	report, err := exporter.Export()
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Printf("Exported:    %d\n", report.Exported)
	fmt.Printf("Duplicates:  %d\n", report.Duplicates)
	fmt.Printf("Quarantined: %d\n", report.Quarantined)
	fmt.Println("Files:")
	for _, f := range report.Files {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

// loadOrDefault loads the config file, or falls back to the compiled-in
// defaults when no file exists. Inspection commands work without a config.
func loadOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, _, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// loadEnvFile loads KEY=VALUE pairs from a file into the environment.
// Local endpoints without auth have no secrets, so a missing file is fine.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}
