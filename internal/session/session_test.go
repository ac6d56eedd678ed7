package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lioth/strataforge/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewManagerCreatesRunDir(t *testing.T) {
	outputDir := t.TempDir()

	mgr, err := NewManager(outputDir, "", testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	info, err := os.Stat(mgr.GetRunDir())
	if err != nil {
		t.Fatalf("run directory was not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %s to be a directory", mgr.GetRunDir())
	}

	// The generated name must survive its own resume validation
	name := filepath.Base(mgr.GetRunDir())
	if err := ValidateRunName(outputDir, name); err != nil {
		t.Errorf("generated run name %q failed validation: %v", name, err)
	}
}

func TestNewManagerResume(t *testing.T) {
	outputDir := t.TempDir()
	existing := "run_2025-06-01T10-00-00"
	if err := os.MkdirAll(filepath.Join(outputDir, existing), 0755); err != nil {
		t.Fatalf("failed to create existing run dir: %v", err)
	}

	mgr, err := NewManager(outputDir, existing, testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	want := filepath.Join(outputDir, existing)
	if got := mgr.GetRunDir(); got != want {
		t.Errorf("expected run dir %q, got %q", want, got)
	}
}

func TestNewManagerResumeMissingDir(t *testing.T) {
	outputDir := t.TempDir()

	_, err := NewManager(outputDir, "run_2025-06-01T10-00-00", testLogger())
	if err == nil {
		t.Fatal("expected error for missing run directory, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestNewManagerResumeRejectsBadName(t *testing.T) {
	outputDir := t.TempDir()

	_, err := NewManager(outputDir, "../somewhere-else", testLogger())
	if err == nil {
		t.Fatal("expected error for traversal name, got nil")
	}
}

func TestBackupConfig(t *testing.T) {
	outputDir := t.TempDir()
	mgr, err := NewManager(outputDir, "", testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := []byte("[run]\ntarget_count = 10\n")
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if err := mgr.BackupConfig(configPath); err != nil {
		t.Fatalf("BackupConfig returned error: %v", err)
	}

	backup, err := os.ReadFile(mgr.GetConfigBackupPath())
	if err != nil {
		t.Fatalf("failed to read backup: %v", err)
	}
	if string(backup) != string(content) {
		t.Errorf("backup content mismatch: got %q", backup)
	}
}

func TestWriteReport(t *testing.T) {
	outputDir := t.TempDir()
	mgr, err := NewManager(outputDir, "", testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	report := &models.RunReport{
		RunID:                  "ba3c9f2e",
		Status:                 models.RunCompleted,
		RequestedCount:         10,
		CompletedCount:         9,
		PermanentlyFailedCount: 1,
		DurationSeconds:        12.5,
		PerCategory:            map[string]int{"reconsidering": 5, "letting_go": 4},
	}
	if err := mgr.WriteReport(report); err != nil {
		t.Fatalf("WriteReport returned error: %v", err)
	}

	data, err := os.ReadFile(mgr.GetReportPath())
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}

	var decoded models.RunReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.Status != models.RunCompleted {
		t.Errorf("expected status %q, got %q", models.RunCompleted, decoded.Status)
	}
	if decoded.CompletedCount != 9 {
		t.Errorf("expected completed count 9, got %d", decoded.CompletedCount)
	}
	if decoded.PermanentlyFailedCount != 1 {
		t.Errorf("expected failed count 1, got %d", decoded.PermanentlyFailedCount)
	}
	if decoded.PerCategory["reconsidering"] != 5 {
		t.Errorf("expected 5 for reconsidering, got %d", decoded.PerCategory["reconsidering"])
	}
}

func TestSetupLoggerWritesJSONToFile(t *testing.T) {
	outputDir := t.TempDir()
	mgr, err := NewManager(outputDir, "", testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	logger, logFile, err := SetupLogger(mgr, slog.LevelDebug)
	if err != nil {
		t.Fatalf("SetupLogger returned error: %v", err)
	}
	defer logFile.Close()

	logger.Info("checkpoint reached", "count", 3)

	data, err := os.ReadFile(mgr.GetLogPath())
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"checkpoint reached"`) {
		t.Errorf("log file missing JSON record, got %q", data)
	}
	if !strings.Contains(string(data), `"count":3`) {
		t.Errorf("log file missing attribute, got %q", data)
	}
}
