package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lioth/strataforge/internal/config"
	"github.com/lioth/strataforge/internal/metrics"
	"github.com/lioth/strataforge/pkg/models"
)

// Filename is the checkpoint log inside a run directory.
const Filename = "checkpoints.jsonl"

// IOError is a durable-write failure. Any occurrence fails the run: progress
// must never be reported without having been persisted first.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Store buffers successful results and appends them to the run directory's
// checkpoint log in durable batches. It is the single writer of RunState:
// workers report completions via Append and permanent failures via MarkFailed.
type Store struct {
	mu      sync.Mutex
	notFull *sync.Cond
	buffer  []models.GenerationResult
	state   models.RunState
	seq     int64
	err     error // first durable-write failure, sticky

	file      *os.File
	logger    *slog.Logger
	collector *metrics.Collector

	flushCount int
	capacity   int
	interval   time.Duration

	flushReq  chan struct{}
	stop      chan struct{}
	writerWg  sync.WaitGroup
	closeOnce sync.Once
}

// NewStore opens the checkpoint log for a fresh run.
func NewStore(dir string, cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) (*Store, error) {
	state := models.RunState{
		RunID:       uuid.New().String(),
		StartedAt:   time.Now().UTC(),
		ConfigHash:  cfg.PlanHash(),
		Target:      cfg.Run.Target,
		PerCategory: make(map[string]int),
	}
	return newStore(dir, cfg.Checkpoint, state, 0, collector, logger)
}

// NewStoreFromSnapshot reopens the checkpoint log of an interrupted run for
// appending. Sequence numbers continue above the snapshot's maximum.
func NewStoreFromSnapshot(dir string, cfg *config.Config, snap *Snapshot, collector *metrics.Collector, logger *slog.Logger) (*Store, error) {
	return newStore(dir, cfg.Checkpoint, snap.State.Clone(), snap.MaxSequence, collector, logger)
}

func newStore(dir string, cfg config.CheckpointConfig, state models.RunState, seq int64, collector *metrics.Collector, logger *slog.Logger) (*Store, error) {
	path := filepath.Join(dir, Filename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}

	s := &Store{
		buffer:     make([]models.GenerationResult, 0, cfg.BufferCapacity),
		state:      state,
		seq:        seq,
		file:       file,
		logger:     logger,
		collector:  collector,
		flushCount: cfg.FlushCount,
		capacity:   cfg.BufferCapacity,
		interval:   time.Duration(cfg.FlushIntervalSeconds) * time.Second,
		flushReq:   make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	s.notFull = sync.NewCond(&s.mu)

	s.writerWg.Add(1)
	go s.runWriter()

	return s, nil
}

// runWriter owns all disk writes. A flush happens when the count threshold is
// reached, when the interval ticker fires, and once more on shutdown.
func (s *Store) runWriter() {
	defer s.writerWg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.flushReq:
			s.flush()
		case <-ticker.C:
			s.flush()
		case <-s.stop:
			// Final flush so completed-but-unflushed results survive
			s.flush()
			return
		}
	}
}

// Append records a completed result. It blocks while the buffer is at
// capacity, which is what stalls dispatch when durable writes lag generation
// throughput. A non-nil error means a durable write has failed and the run
// must stop.
func (s *Store) Append(result models.GenerationResult) error {
	s.mu.Lock()
	for len(s.buffer) >= s.capacity && s.err == nil {
		s.notFull.Wait()
	}
	if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	s.buffer = append(s.buffer, result)
	s.state.CompletedCount++
	s.state.PerCategory[result.Key.Category]++
	buffered := len(s.buffer)
	s.mu.Unlock()

	s.collector.SetBufferedResults(buffered)
	if buffered >= s.flushCount {
		select {
		case s.flushReq <- struct{}{}:
		default: // writer already has a pending request
		}
	}
	return nil
}

// MarkFailed records a permanent task failure. The updated counts become
// durable with the next flush.
func (s *Store) MarkFailed(key models.ResumeKey) {
	s.mu.Lock()
	s.state.PermanentlyFailedCount++
	s.mu.Unlock()
	s.logger.Debug("Recorded permanent failure", "key", key.String())
}

// State returns a copy of the current run state.
func (s *Store) State() models.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// flush swaps the buffer out under the lock and appends one record to the
// log. Appends are excluded only during the swap; blocked appenders resume
// while the write itself is in flight.
func (s *Store) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 || s.err != nil {
		s.mu.Unlock()
		return
	}
	s.seq++
	rec := models.CheckpointRecord{
		Sequence:  s.seq,
		Results:   s.buffer,
		RunState:  s.state.Clone(),
		WrittenAt: time.Now().UTC(),
	}
	s.buffer = make([]models.GenerationResult, 0, s.capacity)
	s.collector.SetBufferedResults(0)
	s.notFull.Broadcast()
	s.mu.Unlock()

	start := time.Now()
	if err := s.writeRecord(&rec); err != nil {
		s.fail(err)
		return
	}
	s.collector.ObserveFlush(time.Since(start))

	s.logger.Debug("Checkpoint flushed",
		"sequence", rec.Sequence,
		"results", len(rec.Results),
		"completed", rec.RunState.CompletedCount)
}

// writeRecord appends one JSON line and syncs it to disk. Only the writer
// goroutine calls this, so records land in sequence order.
func (s *Store) writeRecord(rec *models.CheckpointRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &IOError{Op: "encode", Err: err}
	}
	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return &IOError{Op: "append", Err: err}
	}
	if err := s.file.Sync(); err != nil {
		return &IOError{Op: "sync", Err: err}
	}
	return nil
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.notFull.Broadcast()
	s.mu.Unlock()
	s.logger.Error("Checkpoint write failed", "error", err)
}

// Close performs a final flush, stops the writer, and closes the log file.
// Callers must stop appending before Close.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	s.writerWg.Wait()

	s.mu.Lock()
	err := s.err
	s.mu.Unlock()

	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = &IOError{Op: "close", Err: cerr}
	}
	return err
}
