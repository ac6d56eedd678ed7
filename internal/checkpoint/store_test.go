package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lioth/strataforge/internal/config"
	"github.com/lioth/strataforge/internal/metrics"
	"github.com/lioth/strataforge/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStoreConfig(target, flushCount, capacity int) *config.Config {
	cfg := config.Default()
	cfg.Run.Target = target
	cfg.Checkpoint.FlushCount = flushCount
	cfg.Checkpoint.BufferCapacity = capacity
	cfg.Checkpoint.FlushIntervalSeconds = 3600 // keep the ticker out of the way
	return cfg
}

func testResult(category, format string, index int) models.GenerationResult {
	return models.GenerationResult{
		Key:  models.ResumeKey{Category: category, Format: format, Index: index},
		Text: fmt.Sprintf("generated example %s/%s/%d with enough text to look plausible", category, format, index),
		Metadata: models.ResultMetadata{
			Model: "test-model",
		},
		GeneratedAt: time.Now().UTC(),
	}
}

func TestNewStore(t *testing.T) {
	tempDir := t.TempDir()
	cfg := testStoreConfig(50, 10, 20)
	logger := testLogger()

	store, err := NewStore(tempDir, cfg, metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	state := store.State()
	if state.RunID == "" {
		t.Error("Expected a run ID")
	}
	if state.Target != 50 {
		t.Errorf("Expected target 50, got %d", state.Target)
	}
	if state.ConfigHash != cfg.PlanHash() {
		t.Error("Expected config hash to match the plan hash")
	}

	// State() hands out copies, not the live counters
	state.PerCategory["tampered"] = 99
	if store.State().PerCategory["tampered"] != 0 {
		t.Error("State() leaked the live per-category map")
	}

	if _, err := os.Stat(filepath.Join(tempDir, Filename)); err != nil {
		t.Errorf("Expected checkpoint log to exist: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}

func TestFlushOnCountThreshold(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()

	store, err := NewStore(tempDir, testStoreConfig(10, 2, 4), metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.Append(testResult("reconsidering", "single", i)); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}

	// Wait for the async writer to pick up the count trigger
	time.Sleep(100 * time.Millisecond)

	data, err := os.ReadFile(filepath.Join(tempDir, Filename))
	if err != nil {
		t.Fatalf("Failed to read checkpoint log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Expected a flushed record after hitting the count threshold")
	}

	// A third result stays buffered until close
	if err := store.Append(testResult("reconsidering", "single", 2)); err != nil {
		t.Fatalf("Append(2) failed: %v", err)
	}
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
	if snap.Records != 2 {
		t.Errorf("Expected 2 records, got %d", snap.Records)
	}
	if snap.MaxSequence != 2 {
		t.Errorf("Expected max sequence 2, got %d", snap.MaxSequence)
	}
}

func TestFlushOnInterval(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()

	cfg := testStoreConfig(10, 100, 200)
	cfg.Checkpoint.FlushIntervalSeconds = 1

	store, err := NewStore(tempDir, cfg, metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	}()

	if err := store.Append(testResult("overthinking", "single", 0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Well under the count threshold, so only the ticker can flush this
	time.Sleep(1300 * time.Millisecond)

	data, err := os.ReadFile(filepath.Join(tempDir, Filename))
	if err != nil {
		t.Fatalf("Failed to read checkpoint log: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected the interval ticker to flush the buffered result")
	}
}

func TestDurableOnlyAfterFlush(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()

	store, err := NewStore(tempDir, testStoreConfig(10, 100, 200), metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Append(testResult("letting_go", "single", 0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	data, err := os.ReadFile(filepath.Join(tempDir, Filename))
	if err != nil {
		t.Fatalf("Failed to read checkpoint log: %v", err)
	}
	if len(data) != 0 {
		t.Error("Buffered result hit disk before any flush trigger")
	}

	// Close performs the final flush
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	snap, err := Load(tempDir, logger)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap.Durable) != 1 {
		t.Errorf("Expected 1 durable key after close, got %d", len(snap.Durable))
	}
}

func TestMarkFailed(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()

	store, err := NewStore(tempDir, testStoreConfig(10, 100, 200), metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Append(testResult("self_compassion", "single", 0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	store.MarkFailed(models.ResumeKey{Category: "self_compassion", Format: "single", Index: 1})
	store.MarkFailed(models.ResumeKey{Category: "self_compassion", Format: "chain", Index: 0})

	state := store.State()
	if state.CompletedCount != 1 {
		t.Errorf("Expected 1 completion, got %d", state.CompletedCount)
	}
	if state.PermanentlyFailedCount != 2 {
		t.Errorf("Expected 2 permanent failures, got %d", state.PermanentlyFailedCount)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// The flushed record carries the failure counts
	var last models.CheckpointRecord
	err = Replay(tempDir, func(rec models.CheckpointRecord) { last = rec }, nil)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if last.RunState.PermanentlyFailedCount != 2 {
		t.Errorf("Expected flushed failure count 2, got %d", last.RunState.PermanentlyFailedCount)
	}
}

func TestSequencesAreMonotonic(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()

	store, err := NewStore(tempDir, testStoreConfig(10, 1, 2), metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := store.Append(testResult("noticing_patterns", "single", i)); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Nearby appends may coalesce into one record, but sequences must
	// strictly increase and every result must land exactly once
	var sequences []int64
	keys := make(map[models.ResumeKey]int)
	err = Replay(tempDir, func(rec models.CheckpointRecord) {
		sequences = append(sequences, rec.Sequence)
		for _, res := range rec.Results {
			keys[res.Key]++
		}
	}, nil)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] <= sequences[i-1] {
			t.Errorf("Sequence %d follows %d", sequences[i], sequences[i-1])
		}
	}
	if len(keys) != 5 {
		t.Errorf("Expected 5 distinct keys, got %d", len(keys))
	}
	for key, n := range keys {
		if n != 1 {
			t.Errorf("Key %s appears %d times", key, n)
		}
	}
}

func TestAppendBlocksAtCapacity(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()

	// Count threshold above capacity, so nothing drains the buffer on its own
	store, err := NewStore(tempDir, testStoreConfig(10, 100, 2), metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.Append(testResult("boundary_setting", "single", i)); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- store.Append(testResult("boundary_setting", "single", 2))
	}()

	select {
	case err := <-done:
		t.Fatalf("Append returned %v while the buffer was full", err)
	case <-time.After(100 * time.Millisecond):
		// blocked, as it should be
	}

	// A flush drains the buffer and unblocks the appender
	store.flush()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Append failed after flush: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Append stayed blocked after the buffer drained")
	}

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
}

func TestWriteFailureIsSticky(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()

	store, err := NewStore(tempDir, testStoreConfig(10, 1, 2), metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	// Pull the file out from under the writer
	if err := store.file.Close(); err != nil {
		t.Fatalf("Failed to close underlying file: %v", err)
	}

	if err := store.Append(testResult("acceptance", "single", 0)); err != nil {
		t.Fatalf("First append should buffer cleanly: %v", err)
	}

	// Wait for the failed flush to land
	time.Sleep(100 * time.Millisecond)

	err = store.Append(testResult("acceptance", "single", 1))
	if err == nil {
		t.Fatal("Append succeeded after a durable-write failure")
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Errorf("Expected *IOError, got %T: %v", err, err)
	}

	if err := store.Close(); err == nil {
		t.Error("Close() should surface the write failure")
	}
}

func TestResumeContinuesSequence(t *testing.T) {
	tempDir := t.TempDir()
	logger := testLogger()
	cfg := testStoreConfig(10, 1, 2)

	store, err := NewStore(tempDir, cfg, metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := store.Append(testResult("reframing", "single", 0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	originalID := store.State().RunID

	snap, err := Load(tempDir, logger)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	resumed, err := NewStoreFromSnapshot(tempDir, cfg, snap, metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("NewStoreFromSnapshot failed: %v", err)
	}
	if resumed.State().RunID != originalID {
		t.Error("Resume should keep the original run ID")
	}
	if err := resumed.Append(testResult("reframing", "single", 1)); err != nil {
		t.Fatalf("Append after resume failed: %v", err)
	}
	if err := resumed.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	final, err := Load(tempDir, logger)
	if err != nil {
		t.Fatalf("Load after resume failed: %v", err)
	}
	if final.MaxSequence <= snap.MaxSequence {
		t.Errorf("Expected sequence to continue past %d, got %d", snap.MaxSequence, final.MaxSequence)
	}
	if len(final.Durable) != 2 {
		t.Errorf("Expected 2 durable keys, got %d", len(final.Durable))
	}
}
