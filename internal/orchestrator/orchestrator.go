package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lioth/strataforge/internal/checkpoint"
	"github.com/lioth/strataforge/internal/config"
	"github.com/lioth/strataforge/internal/metrics"
	"github.com/lioth/strataforge/internal/plan"
	"github.com/lioth/strataforge/internal/prompt"
	"github.com/lioth/strataforge/internal/stats"
	"github.com/lioth/strataforge/pkg/models"
)

// resultBufferSize is the channel buffer between workers and the collector.
// Keeping it small means a stalled checkpoint flush reaches the workers
// quickly: the collector blocks in Append, this buffer fills, and dispatch
// stops until the store drains.
const resultBufferSize = 16

// Generator is the one-call generation dependency. The engine owns all retry
// and degradation policy; the generator performs exactly one call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// outcome is one task that reached a terminal state.
type outcome struct {
	task     *models.GenerationTask
	result   models.GenerationResult // valid when the task succeeded
	duration time.Duration           // latency of the successful attempt
	err      error                   // last error when the task permanently failed
}

// Engine dispatches the materialized plan to the generation endpoint under a
// bounded in-flight limit, applies the retry policy, and hands finalized
// outcomes to the checkpoint store and the statistics aggregator.
type Engine struct {
	cfg        *config.Config
	client     Generator
	library    *prompt.Library
	sampler    *prompt.Sampler
	store      *checkpoint.Store
	aggregator *stats.Aggregator
	collector  *metrics.Collector
	logger     *slog.Logger

	limiter *Limiter

	// Fatal-failure escalation state. consecutiveFatals counts fatal adapter
	// errors not interrupted by any other call outcome.
	fatalMu           sync.Mutex
	consecutiveFatals int
	degraded          bool

	abortOnce sync.Once
	abortErr  error
	cancelRun context.CancelFunc
}

// New creates an engine wired to its collaborators.
func New(
	cfg *config.Config,
	client Generator,
	library *prompt.Library,
	sampler *prompt.Sampler,
	store *checkpoint.Store,
	aggregator *stats.Aggregator,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		client:     client,
		library:    library,
		sampler:    sampler,
		store:      store,
		aggregator: aggregator,
		collector:  collector,
		logger:     logger,
		limiter:    NewLimiter(cfg.Run.Concurrency),
	}
}

// Run executes the plan to completion, cancellation, or abort. Whatever the
// exit path, the checkpoint store is closed on the way out, which flushes
// every completed-but-unflushed result.
func (e *Engine) Run(ctx context.Context, p *plan.Plan, durable map[models.ResumeKey]bool) (err error) {
	defer func() {
		if cerr := e.store.Close(); cerr != nil {
			e.logger.Error("Failed to close checkpoint store", "error", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	tasks := Materialize(p, durable, e.sampler)

	e.logger.Info("Starting generation",
		"target", p.Target(),
		"pending", len(tasks),
		"already_durable", len(durable),
		"concurrency", e.cfg.Run.Concurrency)

	if len(tasks) == 0 {
		e.logger.Info("Nothing left to generate")
		return nil
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	e.cancelRun = cancelRun

	// In-flight calls survive run cancellation for the grace period, so work
	// that is already paid for can still land in the final flush.
	callCtx, cancelCalls := context.WithCancel(context.Background())
	defer cancelCalls()

	jobs := make(chan *models.GenerationTask, len(tasks))
	results := make(chan outcome, resultBufferSize)

	var wg sync.WaitGroup
	wg.Add(e.cfg.Run.Concurrency) // Add all workers before starting goroutines
	for i := 0; i < e.cfg.Run.Concurrency; i++ {
		go e.worker(runCtx, callCtx, i, jobs, results, &wg)
	}

	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)

	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go e.collectResults(results, len(tasks), &collectorWg)

	workersDone := make(chan struct{})
	go e.enforceGrace(runCtx, workersDone, cancelCalls)

	wg.Wait()
	close(workersDone)
	close(results)
	collectorWg.Wait()

	if e.abortErr != nil {
		return e.abortErr
	}
	if ctx.Err() != nil {
		return fmt.Errorf("run cancelled: %w", ctx.Err())
	}
	return nil
}

// enforceGrace hard-aborts in-flight calls when they outlive the shutdown
// grace period after a cancellation.
func (e *Engine) enforceGrace(runCtx context.Context, workersDone chan struct{}, cancelCalls context.CancelFunc) {
	select {
	case <-workersDone:
		return
	case <-runCtx.Done():
	}

	grace := time.Duration(e.cfg.Run.ShutdownGraceSeconds) * time.Second
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-workersDone:
	case <-timer.C:
		e.logger.Warn("Shutdown grace period elapsed, aborting in-flight calls", "grace", grace)
		cancelCalls()
	}
}

// collectResults is the single goroutine applying finalized outcomes: durable
// persistence through the store, counters through the aggregator. Append
// blocking here is the backpressure path.
func (e *Engine) collectResults(results <-chan outcome, total int, wg *sync.WaitGroup) {
	defer wg.Done()

	bar := progressbar.Default(int64(total), "Generating")

	for out := range results {
		switch out.task.State {
		case models.TaskSucceeded:
			if err := e.store.Append(out.result); err != nil {
				// Sticky store failure: stop the run, keep draining so no
				// worker blocks on send
				e.abort(err)
				continue
			}
			e.aggregator.Record(stats.Update{
				Category:   out.task.Key.Category,
				Format:     out.task.Key.Format,
				Complexity: out.task.Complexity,
				Domain:     out.task.Vars.Domain,
				Success:    true,
				Latency:    out.duration,
			})
		case models.TaskFailed:
			e.store.MarkFailed(out.task.Key)
			e.aggregator.Record(stats.Update{
				Category:   out.task.Key.Category,
				Format:     out.task.Key.Format,
				Complexity: out.task.Complexity,
				Domain:     out.task.Vars.Domain,
				Success:    false,
			})
			e.logger.Warn("Task permanently failed",
				"key", out.task.Key.String(),
				"attempts", out.task.Attempts,
				"error", out.err)
		}
		_ = bar.Add(1)
	}
}

// abort stops the run with a fatal error. The first cause wins; durable
// results are left intact for inspection or resume.
func (e *Engine) abort(err error) {
	e.abortOnce.Do(func() {
		e.abortErr = err
		e.logger.Error("Aborting run", "error", err)
		e.cancelRun()
	})
}

// noteFatal records one fatal adapter failure. At the degrade threshold the
// limiter drops to a single permit; past the abort threshold it reports that
// the run should stop. Serial mode is sticky for the rest of the run.
func (e *Engine) noteFatal() (abort bool) {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()

	e.consecutiveFatals++
	if !e.degraded && e.consecutiveFatals >= e.cfg.Retry.FatalDegradeThreshold {
		e.degraded = true
		e.limiter.SetLimit(1)
		e.logger.Warn("Repeated fatal endpoint failures, degrading to serial generation",
			"consecutive_failures", e.consecutiveFatals)
	}
	return e.degraded &&
		e.consecutiveFatals >= e.cfg.Retry.FatalDegradeThreshold+e.cfg.Retry.FatalAbortThreshold
}

// resetFatalStreak clears the consecutive-fatal counter after any call that
// came back with a non-fatal outcome.
func (e *Engine) resetFatalStreak() {
	e.fatalMu.Lock()
	e.consecutiveFatals = 0
	e.fatalMu.Unlock()
}
