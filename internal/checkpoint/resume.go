package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lioth/strataforge/internal/config"
	"github.com/lioth/strataforge/pkg/models"
)

// maxRecordBytes bounds a single checkpoint line during replay.
const maxRecordBytes = 64 * 1024 * 1024

// Snapshot is the replayed view of a run's checkpoint log.
type Snapshot struct {
	MaxSequence int64
	State       models.RunState
	Durable     map[models.ResumeKey]bool
	Records     int
	Skipped     int // malformed lines ignored during replay
}

// Replay reads the checkpoint log in dir line by line, invoking record for
// each well-formed record and bad for each line that does not decode. The raw
// bytes passed to bad are only valid during the call.
func Replay(dir string, record func(models.CheckpointRecord), bad func(line int, raw []byte, err error)) error {
	path := filepath.Join(dir, Filename)
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var rec models.CheckpointRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			if bad != nil {
				bad(line, raw, err)
			}
			continue
		}
		record(rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read checkpoint log: %w", err)
	}
	return nil
}

// Load rebuilds the resume view of dir: the run state as of the highest
// sequence number and the union of durable keys across all records. Completed
// counts are recomputed from the durable set and permanent-failure counts
// reset, so slots given up on get re-materialized and retried.
func Load(dir string, logger *slog.Logger) (*Snapshot, error) {
	snap := &Snapshot{Durable: make(map[models.ResumeKey]bool)}
	perCategory := make(map[string]int)

	err := Replay(dir,
		func(rec models.CheckpointRecord) {
			snap.Records++
			if rec.Sequence > snap.MaxSequence {
				snap.MaxSequence = rec.Sequence
				snap.State = rec.RunState.Clone()
			}
			for _, res := range rec.Results {
				if !snap.Durable[res.Key] {
					snap.Durable[res.Key] = true
					perCategory[res.Key.Category]++
				}
			}
		},
		func(line int, _ []byte, err error) {
			// A torn trailing line after a crash is expected; anything
			// it contained was never durable
			snap.Skipped++
			logger.Warn("Skipping malformed checkpoint line", "line", line, "error", err)
		})
	if err != nil {
		return nil, err
	}
	if snap.Records == 0 {
		return nil, fmt.Errorf("checkpoint log in %s has no usable records", dir)
	}

	snap.State.CompletedCount = len(snap.Durable)
	snap.State.PermanentlyFailedCount = 0
	snap.State.PerCategory = perCategory

	logger.Info("Checkpoint log loaded",
		"run_id", snap.State.RunID,
		"records", snap.Records,
		"durable", len(snap.Durable),
		"max_sequence", snap.MaxSequence)

	return snap, nil
}

// ValidateResume verifies a snapshot can continue under the current config.
func ValidateResume(snap *Snapshot, cfg *config.Config) error {
	expected := cfg.PlanHash()
	if snap.State.ConfigHash != expected {
		return fmt.Errorf("checkpoint belongs to a different plan: target or weights changed (hash %s vs %s)", snap.State.ConfigHash, expected)
	}
	if len(snap.Durable) >= snap.State.Target {
		return fmt.Errorf("run is already complete, nothing to resume")
	}
	return nil
}

// Progress returns the durable completion percentage.
func (s *Snapshot) Progress() float64 {
	if s.State.Target == 0 {
		return 0.0
	}
	return float64(len(s.Durable)) / float64(s.State.Target) * 100.0
}
