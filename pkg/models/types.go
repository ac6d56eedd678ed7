package models

import (
	"fmt"
	"time"
)

// ResumeKey identifies one slot of a sampling plan cell. It is stable across
// restarts and independent of any randomized prompt content, which makes it
// the identity used for resume deduplication.
type ResumeKey struct {
	Category string `json:"category"`
	Format   string `json:"format"`
	Index    int    `json:"index"`
}

func (k ResumeKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Category, k.Format, k.Index)
}

// TaskState tracks a task through its lifecycle. Terminal states are
// TaskSucceeded and TaskFailed.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskInFlight  TaskState = "in-flight"
	TaskRequeued  TaskState = "requeued"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "permanently-failed"
)

// CosmeticVariables are the randomized prompt ingredients drawn per task.
// They may be redrawn freely on retry without affecting plan totals.
type CosmeticVariables struct {
	Subject             string   `json:"subject"`
	Domain              string   `json:"domain"`
	Trigger             string   `json:"trigger"`
	EmotionalState      string   `json:"emotional_state"`
	LanguageStyle       string   `json:"language_style"`
	UniqueAngle         string   `json:"unique_angle"`
	SecondaryCategories []string `json:"secondary_categories,omitempty"`
}

// GenerationTask is one unit of work materialized from a plan cell. A task
// exists only for the lifetime of a run; across restarts its slot is
// identified by Key alone.
type GenerationTask struct {
	ID          string
	Key         ResumeKey
	Complexity  string
	Perspective string
	Vars        CosmeticVariables
	Attempts    int
	State       TaskState
}

// ResultMetadata captures how a result was produced.
type ResultMetadata struct {
	Complexity          string   `json:"complexity"`
	Perspective         string   `json:"perspective"`
	Subject             string   `json:"subject"`
	Domain              string   `json:"domain"`
	Trigger             string   `json:"trigger"`
	EmotionalState      string   `json:"emotional_state"`
	LanguageStyle       string   `json:"language_style"`
	UniqueAngle         string   `json:"unique_angle"`
	SecondaryCategories []string `json:"secondary_categories,omitempty"`
	Model               string   `json:"model"`
	Attempts            int      `json:"attempts"`
	LatencyMS           int64    `json:"latency_ms"`
}

// GenerationResult is a successful generation for one resume key. It is
// buffered by the checkpoint store until flushed, then immutable.
type GenerationResult struct {
	Key         ResumeKey      `json:"key"`
	Text        string         `json:"text"`
	Metadata    ResultMetadata `json:"metadata"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// ExportMetadata is the generation provenance nested inside an export row.
// Fields promoted to the top level of ExportRecord are not repeated here.
type ExportMetadata struct {
	Subject        string `json:"subject"`
	Trigger        string `json:"trigger"`
	EmotionalState string `json:"emotional_state"`
	LanguageStyle  string `json:"language_style"`
	UniqueAngle    string `json:"unique_angle"`
	Model          string `json:"model"`
	Attempts       int    `json:"attempts"`
	LatencyMS      int64  `json:"latency_ms"`
}

// ExportRecord is the final dataset row shape.
type ExportRecord struct {
	Text                string         `json:"text"`
	PrimaryCategory     string         `json:"primary_category"`
	SecondaryCategories []string       `json:"secondary_categories"`
	Domain              string         `json:"domain"`
	Complexity          string         `json:"complexity"`
	Perspective         string         `json:"perspective"`
	Format              string         `json:"format"`
	Metadata            ExportMetadata `json:"metadata"`
}

// RunStatus is the terminal disposition of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunAborted   RunStatus = "aborted"
)

// RunReport is emitted at the end of every run, successful or not. A dataset
// is never left silently partial: the report always states the count gap.
type RunReport struct {
	RunID                  string         `json:"run_id"`
	Status                 RunStatus      `json:"status"`
	RequestedCount         int            `json:"requested_count"`
	CompletedCount         int            `json:"completed_count"`
	PermanentlyFailedCount int            `json:"permanently_failed_count"`
	DurationSeconds        float64        `json:"duration_seconds"`
	PerCategory            map[string]int `json:"per_category"`
	Error                  string         `json:"error,omitempty"`
}
