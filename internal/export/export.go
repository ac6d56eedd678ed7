package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/lioth/strataforge/internal/checkpoint"
	"github.com/lioth/strataforge/pkg/models"
)

const (
	// JSONLFilename and JSONFilename are the dataset outputs in a run directory.
	JSONLFilename = "dataset.jsonl"
	JSONFilename  = "dataset.json"
	// QuarantineFilename collects rows excluded from the dataset, with reasons.
	QuarantineFilename = "quarantine.jsonl"
)

// maxQuarantineRaw bounds how much of a malformed line is preserved.
const maxQuarantineRaw = 500

// RecordError describes a result excluded from the export. Excluded rows are
// quarantined, never fatal; only destination write failures abort an export.
type RecordError struct {
	Key    models.ResumeKey
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("export record %s: %s", e.Key, e.Reason)
}

// Report summarizes one export pass.
type Report struct {
	Exported    int      `json:"exported"`
	Duplicates  int      `json:"duplicates"`
	Quarantined int      `json:"quarantined"`
	Files       []string `json:"files"`
}

type quarantineEntry struct {
	Line   int    `json:"line,omitempty"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

// Exporter renders a run directory's durable results into dataset files.
// Export is a pure function of the checkpoint log: the same durable set
// always produces byte-identical output.
type Exporter struct {
	dir       string
	encodings []string
	logger    *slog.Logger
}

// New creates an exporter for the given run directory.
func New(dir string, encodings []string, logger *slog.Logger) *Exporter {
	return &Exporter{
		dir:       dir,
		encodings: encodings,
		logger:    logger,
	}
}

// Export reads every checkpoint record, deduplicates by resume key (first
// durable occurrence wins), sorts by (category, format, index), and writes
// the configured encodings plus a quarantine file for anything excluded.
func (e *Exporter) Export() (*Report, error) {
	var records []models.CheckpointRecord
	var quarantined []quarantineEntry

	err := checkpoint.Replay(e.dir,
		func(rec models.CheckpointRecord) {
			records = append(records, rec)
		},
		func(line int, raw []byte, err error) {
			quarantined = append(quarantined, quarantineEntry{
				Line:   line,
				Reason: fmt.Sprintf("malformed checkpoint line: %v", err),
				Raw:    truncate(string(raw), maxQuarantineRaw),
			})
		})
	if err != nil {
		return nil, err
	}

	// Replay order is already write order; sorting by sequence keeps the
	// first-occurrence rule stable even for hand-merged logs
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Sequence < records[j].Sequence
	})

	type keyedRow struct {
		key models.ResumeKey
		rec models.ExportRecord
	}

	seen := make(map[models.ResumeKey]bool)
	var rows []keyedRow
	duplicates := 0

	for _, rec := range records {
		for _, res := range rec.Results {
			if seen[res.Key] {
				duplicates++
				quarantined = append(quarantined, quarantineEntry{
					Key:    res.Key.String(),
					Reason: "duplicate resume key, first occurrence kept",
				})
				continue
			}
			seen[res.Key] = true

			row, rerr := buildRecord(res)
			if rerr != nil {
				quarantined = append(quarantined, quarantineEntry{
					Key:    res.Key.String(),
					Reason: rerr.Reason,
				})
				continue
			}
			rows = append(rows, keyedRow{key: res.Key, rec: row})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].key, rows[j].key
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Format != b.Format {
			return a.Format < b.Format
		}
		return a.Index < b.Index
	})

	out := make([]models.ExportRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.rec)
	}

	report := &Report{
		Exported:    len(out),
		Duplicates:  duplicates,
		Quarantined: len(quarantined),
	}

	for _, enc := range e.encodings {
		switch enc {
		case "jsonl":
			path := filepath.Join(e.dir, JSONLFilename)
			if err := writeJSONL(path, out); err != nil {
				return nil, err
			}
			report.Files = append(report.Files, path)
		case "json":
			path := filepath.Join(e.dir, JSONFilename)
			if err := writeJSON(path, out); err != nil {
				return nil, err
			}
			report.Files = append(report.Files, path)
		default:
			// Config validation rejects unknown encodings; a standalone
			// export over a hand-edited config still should not explode
			e.logger.Warn("Skipping unknown encoding", "encoding", enc)
		}
	}

	if len(quarantined) > 0 {
		if err := writeQuarantine(filepath.Join(e.dir, QuarantineFilename), quarantined); err != nil {
			return nil, err
		}
	}

	e.logger.Info("Export complete",
		"exported", report.Exported,
		"duplicates", report.Duplicates,
		"quarantined", report.Quarantined,
		"files", len(report.Files))

	return report, nil
}

func buildRecord(res models.GenerationResult) (models.ExportRecord, *RecordError) {
	if res.Key.Category == "" || res.Key.Format == "" || res.Key.Index < 0 {
		return models.ExportRecord{}, &RecordError{Key: res.Key, Reason: "incomplete resume key"}
	}
	if res.Text == "" {
		return models.ExportRecord{}, &RecordError{Key: res.Key, Reason: "empty text"}
	}

	m := res.Metadata
	secondaries := m.SecondaryCategories
	if secondaries == nil {
		secondaries = []string{}
	}

	return models.ExportRecord{
		Text:                res.Text,
		PrimaryCategory:     res.Key.Category,
		SecondaryCategories: secondaries,
		Domain:              m.Domain,
		Complexity:          m.Complexity,
		Perspective:         m.Perspective,
		Format:              res.Key.Format,
		Metadata: models.ExportMetadata{
			Subject:        m.Subject,
			Trigger:        m.Trigger,
			EmotionalState: m.EmotionalState,
			LanguageStyle:  m.LanguageStyle,
			UniqueAngle:    m.UniqueAngle,
			Model:          m.Model,
			Attempts:       m.Attempts,
			LatencyMS:      m.LatencyMS,
		},
	}, nil
}

func writeJSONL(path string, rows []models.ExportRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}

	for i := range rows {
		data, err := json.Marshal(rows[i])
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			file.Close()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close dataset file: %w", err)
	}
	return nil
}

func writeJSON(path string, rows []models.ExportRecord) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dataset file: %w", err)
	}
	return nil
}

func writeQuarantine(path string, entries []quarantineEntry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create quarantine file: %w", err)
	}

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to marshal quarantine entry: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			file.Close()
			return fmt.Errorf("failed to write quarantine entry: %w", err)
		}
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close quarantine file: %w", err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
