package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lioth/strataforge/pkg/models"
)

const (
	// LogFilename is the structured log inside a run directory.
	LogFilename = "run.log"
	// ConfigBackupFilename preserves the config a run started with.
	ConfigBackupFilename = "config.toml.bak"
	// ReportFilename is the final run report, written on every exit path.
	ReportFilename = "report.json"
)

// Manager owns one run directory and its bookkeeping files.
type Manager struct {
	runDir string
	logger *slog.Logger
}

// NewManager creates a fresh timestamped run directory under outputDir, or
// reopens an existing one when resumeFrom names it.
func NewManager(outputDir, resumeFrom string, logger *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var runDir string
	if resumeFrom != "" {
		if err := ValidateRunName(outputDir, resumeFrom); err != nil {
			return nil, err
		}
		runDir = filepath.Join(outputDir, resumeFrom)
		if _, err := os.Stat(runDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("run directory not found: %s", runDir)
		}
		logger.Info("Resuming existing run", "path", runDir)
	} else {
		timestamp := time.Now().Format("2006-01-02T15-04-05")
		runDir = filepath.Join(outputDir, "run_"+timestamp)
		if err := os.MkdirAll(runDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
		logger.Info("Created run directory", "path", runDir)
	}

	return &Manager{
		runDir: runDir,
		logger: logger,
	}, nil
}

// GetRunDir returns the run directory path.
func (m *Manager) GetRunDir() string {
	return m.runDir
}

// GetLogPath returns the full path to the run log file.
func (m *Manager) GetLogPath() string {
	return filepath.Join(m.runDir, LogFilename)
}

// GetConfigBackupPath returns the full path to the config backup.
func (m *Manager) GetConfigBackupPath() string {
	return filepath.Join(m.runDir, ConfigBackupFilename)
}

// GetReportPath returns the full path to the run report.
func (m *Manager) GetReportPath() string {
	return filepath.Join(m.runDir, ReportFilename)
}

// BackupConfig copies the config file into the run directory.
func (m *Manager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	backupPath := m.GetConfigBackupPath()
	if err := os.WriteFile(backupPath, source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	m.logger.Info("Backed up config file", "path", backupPath)
	return nil
}

// WriteReport writes the run report. Every run ends with one, whatever its
// disposition, so a dataset is never left silently partial.
func (m *Manager) WriteReport(report *models.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(m.GetReportPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	m.logger.Info("Wrote run report",
		"path", m.GetReportPath(),
		"status", report.Status,
		"completed", report.CompletedCount,
		"failed", report.PermanentlyFailedCount)
	return nil
}
