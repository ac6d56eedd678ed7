package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lioth/strataforge/internal/metrics"
	"github.com/lioth/strataforge/pkg/models"
)

// writeRecords hand-writes a checkpoint log, one record per line.
func writeRecords(t *testing.T, dir string, records ...models.CheckpointRecord) {
	t.Helper()
	var sb strings.Builder
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("Failed to marshal record: %v", err)
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(dir, Filename), []byte(sb.String()), 0644); err != nil {
		t.Fatalf("Failed to write checkpoint log: %v", err)
	}
}

func testRecord(seq int64, state models.RunState, results ...models.GenerationResult) models.CheckpointRecord {
	return models.CheckpointRecord{
		Sequence:  seq,
		Results:   results,
		RunState:  state,
		WrittenAt: time.Now().UTC(),
	}
}

func TestLoadRebuildsResumeView(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()
	cfg := testStoreConfig(10, 2, 4)

	store, err := NewStore(tempDir, cfg, metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Append(testResult("reconsidering", "single", i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	time.Sleep(100 * time.Millisecond)
	if err := store.Append(testResult("letting_go", "chain", 0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	store.MarkFailed(models.ResumeKey{Category: "letting_go", Format: "chain", Index: 1})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	snap, err := Load(tempDir, logger)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(snap.Durable) != 3 {
		t.Errorf("Expected 3 durable keys, got %d", len(snap.Durable))
	}
	if !snap.Durable[models.ResumeKey{Category: "letting_go", Format: "chain", Index: 0}] {
		t.Error("Expected letting_go/chain/0 in the durable set")
	}
	if snap.State.CompletedCount != 3 {
		t.Errorf("Expected completed count recomputed to 3, got %d", snap.State.CompletedCount)
	}
	if snap.State.PermanentlyFailedCount != 0 {
		t.Errorf("Expected failure count reset to 0, got %d", snap.State.PermanentlyFailedCount)
	}
	if snap.State.PerCategory["reconsidering"] != 2 || snap.State.PerCategory["letting_go"] != 1 {
		t.Errorf("Unexpected per-category counts: %v", snap.State.PerCategory)
	}
	if snap.State.Target != 10 {
		t.Errorf("Expected target 10, got %d", snap.State.Target)
	}
}

func TestLoadDeduplicatesKeys(t *testing.T) {
	tempDir := t.TempDir()
	state := models.RunState{RunID: "run-1", Target: 10, PerCategory: map[string]int{}}

	// Generation is at-least-once, so a key can recur across records after
	// a crash boundary; the durable set must count it once
	writeRecords(t, tempDir,
		testRecord(1, state,
			testResult("reconsidering", "single", 0),
			testResult("reconsidering", "single", 1)),
		testRecord(2, state,
			testResult("reconsidering", "single", 1),
			testResult("overthinking", "single", 0)),
	)

	snap, err := Load(tempDir, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap.Durable) != 3 {
		t.Errorf("Expected 3 distinct durable keys, got %d", len(snap.Durable))
	}
	if snap.State.CompletedCount != 3 {
		t.Errorf("Expected completed count 3, got %d", snap.State.CompletedCount)
	}
	if snap.State.PerCategory["reconsidering"] != 2 {
		t.Errorf("Expected 2 reconsidering completions, got %d", snap.State.PerCategory["reconsidering"])
	}
	if snap.MaxSequence != 2 {
		t.Errorf("Expected max sequence 2, got %d", snap.MaxSequence)
	}
}

func TestLoadSkipsTornLine(t *testing.T) {
	tempDir := t.TempDir()
	state := models.RunState{RunID: "run-1", Target: 10, PerCategory: map[string]int{}}

	rec := testRecord(1, state, testResult("reconsidering", "single", 0))
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Failed to marshal record: %v", err)
	}

	// A crash mid-append leaves a torn trailing line
	content := string(data) + "\n" + `{"sequence":2,"results":[{"key":`
	if err := os.WriteFile(filepath.Join(tempDir, Filename), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write checkpoint log: %v", err)
	}

	snap, err := Load(tempDir, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Records != 1 {
		t.Errorf("Expected 1 usable record, got %d", snap.Records)
	}
	if snap.Skipped != 1 {
		t.Errorf("Expected 1 skipped line, got %d", snap.Skipped)
	}
	if len(snap.Durable) != 1 {
		t.Errorf("Expected 1 durable key, got %d", len(snap.Durable))
	}
}

func TestLoadMissingLog(t *testing.T) {
	if _, err := Load(t.TempDir(), testLogger()); err == nil {
		t.Error("Load should fail when the checkpoint log is missing")
	}
}

func TestLoadEmptyLog(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, Filename), nil, 0644); err != nil {
		t.Fatalf("Failed to create empty log: %v", err)
	}
	if _, err := Load(tempDir, testLogger()); err == nil {
		t.Error("Load should fail on a log with no usable records")
	}
}

func TestValidateResume(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()
	cfg := testStoreConfig(10, 1, 2)

	store, err := NewStore(tempDir, cfg, metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := store.Append(testResult("reconsidering", "single", 0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	snap, err := Load(tempDir, logger)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Same plan resumes cleanly
	if err := ValidateResume(snap, cfg); err != nil {
		t.Errorf("ValidateResume failed: %v", err)
	}

	// A different target means a different plan
	changed := testStoreConfig(25, 1, 2)
	if err := ValidateResume(snap, changed); err == nil {
		t.Error("ValidateResume should fail when the target changed")
	}

	// Different format weights do too
	reweighted := testStoreConfig(10, 1, 2)
	reweighted.Weights.Formats = map[string]float64{"single": 1.0}
	if err := ValidateResume(snap, reweighted); err == nil {
		t.Error("ValidateResume should fail when the weights changed")
	}
}

func TestValidateResumeCompleteRun(t *testing.T) {
	cfg := testStoreConfig(1, 1, 2)
	snap := &Snapshot{
		State: models.RunState{
			ConfigHash: cfg.PlanHash(),
			Target:     1,
		},
		Durable: map[models.ResumeKey]bool{
			{Category: "reconsidering", Format: "single", Index: 0}: true,
		},
	}

	if err := ValidateResume(snap, cfg); err == nil {
		t.Error("ValidateResume should refuse a run that is already complete")
	}
}

func TestSnapshotProgress(t *testing.T) {
	tests := []struct {
		name        string
		target      int
		durable     int
		expectedPct float64
	}{
		{"0%", 100, 0, 0.0},
		{"50%", 100, 50, 50.0},
		{"100%", 100, 100, 100.0},
		{"Empty", 0, 0, 0.0},
		{"Partial", 77, 23, 29.87}, // 23/77 * 100
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{
				State:   models.RunState{Target: tt.target},
				Durable: make(map[models.ResumeKey]bool),
			}
			for i := 0; i < tt.durable; i++ {
				snap.Durable[models.ResumeKey{Category: "c", Format: "single", Index: i}] = true
			}

			pct := snap.Progress()
			if pct < tt.expectedPct-0.1 || pct > tt.expectedPct+0.1 {
				t.Errorf("Expected ~%.2f%%, got %.2f%%", tt.expectedPct, pct)
			}
		})
	}
}
