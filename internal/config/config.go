package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// ConfigError reports an invalid or inconsistent configuration value. It is
// always fatal before any work starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config represents the complete application configuration
type Config struct {
	Run        RunConfig         `toml:"run"`
	Endpoint   EndpointConfig    `toml:"endpoint"`
	Weights    WeightsConfig     `toml:"weights"`
	Retry      RetryConfig       `toml:"retry"`
	Checkpoint CheckpointConfig  `toml:"checkpoint"`
	Export     ExportConfig      `toml:"export"`
	Metrics    MetricsConfig     `toml:"metrics"`
	Pools      PoolsConfig       `toml:"pools"`
	Templates  map[string]string `toml:"templates"` // format name -> prompt template override
}

// RunConfig holds run-level settings
type RunConfig struct {
	Target               int    `toml:"target"`                 // Total examples to generate
	Concurrency          int    `toml:"concurrency"`            // Max in-flight generation calls
	Seed                 int64  `toml:"seed"`                   // Cosmetic sampling seed (0 = default 42, -1 = time-based)
	OutputDir            string `toml:"output_dir"`             // Parent directory for run directories
	ShutdownGraceSeconds int    `toml:"shutdown_grace_seconds"` // How long to wait for in-flight calls on cancel
}

// EndpointConfig describes the generation endpoint
type EndpointConfig struct {
	BaseURL            string `toml:"base_url"`
	Model              string `toml:"model"`
	TimeoutSeconds     int    `toml:"timeout_seconds"` // Per-call timeout
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"`
	BurstPercent       int    `toml:"burst_percent"`      // Burst capacity as percentage of per-second rate (1-50)
	MinResponseChars   int    `toml:"min_response_chars"` // Responses shorter than this after cleanup are invalid
}

// WeightsConfig holds the sampling weights. Categories and Formats drive the
// stratified plan; Complexity and Perspectives bias per-task cosmetic draws
// (empty map = uniform over the pool).
type WeightsConfig struct {
	Categories   map[string]float64 `toml:"categories"`
	Formats      map[string]float64 `toml:"formats"`
	Complexity   map[string]float64 `toml:"complexity"`
	Perspectives map[string]float64 `toml:"perspectives"`
}

// RetryConfig governs the failure policy
type RetryConfig struct {
	MaxAttempts           int `toml:"max_attempts"`            // Attempts per task before permanent failure
	InitialBackoffMS      int `toml:"initial_backoff_ms"`      // First transient-retry delay
	MaxBackoffSeconds     int `toml:"max_backoff_seconds"`     // Backoff ceiling
	FatalDegradeThreshold int `toml:"fatal_degrade_threshold"` // Consecutive fatal errors before dropping to serial mode
	FatalAbortThreshold   int `toml:"fatal_abort_threshold"`   // Consecutive fatal errors in serial mode before aborting
}

// CheckpointConfig governs flush cadence and buffering
type CheckpointConfig struct {
	FlushCount           int `toml:"flush_count"`            // Flush after this many buffered results
	FlushIntervalSeconds int `toml:"flush_interval_seconds"` // Or after this much time, whichever first
	BufferCapacity       int `toml:"buffer_capacity"`        // Appends block when the buffer is this full
}

// ExportConfig selects output encodings
type ExportConfig struct {
	Encodings []string `toml:"encodings"` // "jsonl" and/or "json"
}

// MetricsConfig controls the optional Prometheus endpoint
type MetricsConfig struct {
	Addr string `toml:"addr"` // e.g. ":9090"; empty disables the /metrics server
}

// PoolsConfig holds the variable pools drawn from when sampling cosmetic task
// variables. Empty fields fall back to the compiled-in defaults.
type PoolsConfig struct {
	Categories      map[string]string `toml:"categories"` // category name -> description used in prompts
	Complexity      map[string]string `toml:"complexity"` // complexity level -> description
	Subjects        []string          `toml:"subjects"`
	Domains         []string          `toml:"domains"`
	Triggers        []string          `toml:"triggers"`
	EmotionalStates []string          `toml:"emotional_states"`
	LanguageStyles  []string          `toml:"language_styles"`
	Perspectives    []string          `toml:"perspectives"`
	UniqueAngles    []string          `toml:"unique_angles"`
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKey string
}

const (
	// MaxConcurrency is the maximum allowed concurrency
	MaxConcurrency = 256
	// MaxTarget is the maximum dataset size per run
	MaxTarget = 1_000_000
	// MaxBurstPercent is the maximum rate limiter burst percentage
	MaxBurstPercent = 50
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Run.Target < 0 {
		return &ConfigError{Field: "run.target", Reason: fmt.Sprintf("must not be negative (got %d)", c.Run.Target)}
	}
	if c.Run.Target > MaxTarget {
		return &ConfigError{Field: "run.target", Reason: fmt.Sprintf("must not exceed %d (got %d)", MaxTarget, c.Run.Target)}
	}
	if c.Run.Concurrency < 1 {
		return &ConfigError{Field: "run.concurrency", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Run.Concurrency)}
	}
	if c.Run.Concurrency > MaxConcurrency {
		return &ConfigError{Field: "run.concurrency", Reason: fmt.Sprintf("must not exceed %d (got %d)", MaxConcurrency, c.Run.Concurrency)}
	}
	if c.Run.OutputDir == "" {
		return &ConfigError{Field: "run.output_dir", Reason: "is required"}
	}
	if c.Run.ShutdownGraceSeconds < 1 {
		return &ConfigError{Field: "run.shutdown_grace_seconds", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Run.ShutdownGraceSeconds)}
	}

	if c.Endpoint.BaseURL == "" {
		return &ConfigError{Field: "endpoint.base_url", Reason: "is required"}
	}
	if c.Endpoint.Model == "" {
		return &ConfigError{Field: "endpoint.model", Reason: "is required"}
	}
	if c.Endpoint.TimeoutSeconds < 1 {
		return &ConfigError{Field: "endpoint.timeout_seconds", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Endpoint.TimeoutSeconds)}
	}
	if c.Endpoint.RateLimitPerMinute < 1 {
		return &ConfigError{Field: "endpoint.rate_limit_per_minute", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Endpoint.RateLimitPerMinute)}
	}
	if c.Endpoint.BurstPercent < 1 || c.Endpoint.BurstPercent > MaxBurstPercent {
		return &ConfigError{Field: "endpoint.burst_percent", Reason: fmt.Sprintf("must be between 1 and %d (got %d)", MaxBurstPercent, c.Endpoint.BurstPercent)}
	}
	if c.Endpoint.MinResponseChars < 0 {
		return &ConfigError{Field: "endpoint.min_response_chars", Reason: fmt.Sprintf("must not be negative (got %d)", c.Endpoint.MinResponseChars)}
	}

	if err := validateWeightMap("weights.categories", c.Weights.Categories, true); err != nil {
		return err
	}
	if err := validateWeightMap("weights.formats", c.Weights.Formats, true); err != nil {
		return err
	}
	if err := validateWeightMap("weights.complexity", c.Weights.Complexity, false); err != nil {
		return err
	}
	if err := validateWeightMap("weights.perspectives", c.Weights.Perspectives, false); err != nil {
		return err
	}

	// Every weighted category must have a pool description, and every weighted
	// format must have a prompt template, or rendering would fail mid-run.
	for name := range c.Weights.Categories {
		if _, ok := c.Pools.Categories[name]; !ok {
			return &ConfigError{Field: "weights.categories", Reason: fmt.Sprintf("category %q has no entry in pools.categories", name)}
		}
	}
	for name := range c.Weights.Formats {
		if _, ok := c.Templates[name]; !ok {
			return &ConfigError{Field: "weights.formats", Reason: fmt.Sprintf("format %q has no prompt template", name)}
		}
	}
	for name := range c.Weights.Complexity {
		if _, ok := c.Pools.Complexity[name]; !ok {
			return &ConfigError{Field: "weights.complexity", Reason: fmt.Sprintf("complexity %q has no entry in pools.complexity", name)}
		}
	}

	if err := validatePools(&c.Pools); err != nil {
		return err
	}

	if c.Retry.MaxAttempts < 1 {
		return &ConfigError{Field: "retry.max_attempts", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Retry.MaxAttempts)}
	}
	if c.Retry.InitialBackoffMS < 1 {
		return &ConfigError{Field: "retry.initial_backoff_ms", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Retry.InitialBackoffMS)}
	}
	if c.Retry.MaxBackoffSeconds < 1 {
		return &ConfigError{Field: "retry.max_backoff_seconds", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Retry.MaxBackoffSeconds)}
	}
	if c.Retry.FatalDegradeThreshold < 1 {
		return &ConfigError{Field: "retry.fatal_degrade_threshold", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Retry.FatalDegradeThreshold)}
	}
	if c.Retry.FatalAbortThreshold < 1 {
		return &ConfigError{Field: "retry.fatal_abort_threshold", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Retry.FatalAbortThreshold)}
	}

	if c.Checkpoint.FlushCount < 1 {
		return &ConfigError{Field: "checkpoint.flush_count", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Checkpoint.FlushCount)}
	}
	if c.Checkpoint.FlushIntervalSeconds < 1 {
		return &ConfigError{Field: "checkpoint.flush_interval_seconds", Reason: fmt.Sprintf("must be at least 1 (got %d)", c.Checkpoint.FlushIntervalSeconds)}
	}
	if c.Checkpoint.BufferCapacity < c.Checkpoint.FlushCount {
		return &ConfigError{Field: "checkpoint.buffer_capacity", Reason: fmt.Sprintf("must be at least flush_count %d (got %d)", c.Checkpoint.FlushCount, c.Checkpoint.BufferCapacity)}
	}

	if len(c.Export.Encodings) == 0 {
		return &ConfigError{Field: "export.encodings", Reason: "at least one encoding is required"}
	}
	for _, enc := range c.Export.Encodings {
		if enc != "jsonl" && enc != "json" {
			return &ConfigError{Field: "export.encodings", Reason: fmt.Sprintf("unsupported encoding %q (want jsonl or json)", enc)}
		}
	}

	return nil
}

// validateWeightMap enforces positive finite weights. Required maps must be
// non-empty; optional ones may be empty (meaning uniform sampling).
func validateWeightMap(field string, weights map[string]float64, required bool) error {
	if len(weights) == 0 {
		if required {
			return &ConfigError{Field: field, Reason: "at least one entry is required"}
		}
		return nil
	}
	for name, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("weight for %q must be finite", name)}
		}
		if w <= 0 {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("weight for %q must be positive (got %g)", name, w)}
		}
	}
	return nil
}

func validatePools(p *PoolsConfig) error {
	lists := []struct {
		field string
		pool  []string
	}{
		{"pools.subjects", p.Subjects},
		{"pools.domains", p.Domains},
		{"pools.triggers", p.Triggers},
		{"pools.emotional_states", p.EmotionalStates},
		{"pools.language_styles", p.LanguageStyles},
		{"pools.perspectives", p.Perspectives},
		{"pools.unique_angles", p.UniqueAngles},
	}
	for _, l := range lists {
		if len(l.pool) == 0 {
			return &ConfigError{Field: l.field, Reason: "must not be empty"}
		}
		for _, entry := range l.pool {
			if entry == "" {
				return &ConfigError{Field: l.field, Reason: "entries must not be empty strings"}
			}
		}
	}
	if len(p.Categories) == 0 {
		return &ConfigError{Field: "pools.categories", Reason: "must not be empty"}
	}
	if len(p.Complexity) == 0 {
		return &ConfigError{Field: "pools.complexity", Reason: "must not be empty"}
	}
	return nil
}

// PlanHash returns a stable hash of the fields that define the sampling plan.
// A checkpoint may only be resumed when this hash matches: a different target
// or different weights would make old resume keys meaningless.
func (c *Config) PlanHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "target=%d\n", c.Run.Target)
	writeSortedWeights(h, "categories", c.Weights.Categories)
	writeSortedWeights(h, "formats", c.Weights.Formats)
	return hex.EncodeToString(h.Sum(nil))
}

func writeSortedWeights(w io.Writer, section string, weights map[string]float64) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s.%s=%g\n", section, name, weights[name])
	}
}

// LoadSecrets loads sensitive credentials from environment variables.
// Local endpoints without auth leave the key empty.
func LoadSecrets() *Secrets {
	return &Secrets{
		APIKey: os.Getenv("STRATAFORGE_API_KEY"),
	}
}
