package models

import "time"

// RunState is the aggregate progress snapshot embedded in every checkpoint
// record. The checkpoint store is its single writer during a run; everything
// else reads copies.
type RunState struct {
	// Run identification
	RunID      string    `json:"run_id"`      // UUID for this run, stable across resumes
	StartedAt  time.Time `json:"started_at"`  // When the run first started
	ConfigHash string    `json:"config_hash"` // SHA256 of plan-relevant config for mismatch detection

	// Progress counters
	Target                 int            `json:"target"`                   // Requested dataset size
	CompletedCount         int            `json:"completed_count"`          // Durable successes
	PermanentlyFailedCount int            `json:"permanently_failed_count"` // Slots given up on
	PerCategory            map[string]int `json:"per_category"`             // Durable successes by category
}

// Clone returns a deep copy, so snapshots handed out never alias the
// store's live counters.
func (s RunState) Clone() RunState {
	out := s
	out.PerCategory = make(map[string]int, len(s.PerCategory))
	for k, v := range s.PerCategory {
		out.PerCategory[k] = v
	}
	return out
}

// CheckpointRecord is one line of the append-only checkpoint file. Each record
// is self-describing: it carries both the batch of new results and the run
// state as of the flush, so recovery never needs to replay counters.
type CheckpointRecord struct {
	Sequence  int64              `json:"sequence"`
	Results   []GenerationResult `json:"results"`
	RunState  RunState           `json:"run_state"`
	WrittenAt time.Time          `json:"written_at"`
}
