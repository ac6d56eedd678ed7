package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/lioth/strataforge/internal/api"
	"github.com/lioth/strataforge/pkg/models"
)

func (e *Engine) worker(
	runCtx, callCtx context.Context,
	workerID int,
	jobs <-chan *models.GenerationTask,
	results chan<- outcome,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	workerLogger := e.logger.With("worker_id", workerID)
	workerLogger.Debug("Worker started")

	for task := range jobs {
		select {
		case <-runCtx.Done():
			workerLogger.Debug("Worker cancelled")
			return
		default:
		}

		out, ok := e.runTask(runCtx, callCtx, workerLogger, task)
		if !ok {
			// The run ended mid-task; the slot regenerates on resume
			workerLogger.Debug("Worker cancelled")
			return
		}
		results <- out
	}

	workerLogger.Debug("Worker finished")
}

// runTask drives one task to a terminal state under the retry policy:
// transient failures requeue with backoff up to the attempt cap, an invalid
// response gets one immediate retry with re-sampled variables, and fatal
// failures escalate through the engine's degrade/abort counter. ok is false
// when the run ended before the task got anywhere terminal.
func (e *Engine) runTask(
	runCtx, callCtx context.Context,
	logger *slog.Logger,
	task *models.GenerationTask,
) (outcome, bool) {
	invalidRetried := false

	for {
		if err := e.limiter.Acquire(runCtx); err != nil {
			return outcome{}, false
		}

		task.State = models.TaskInFlight
		task.Attempts++

		promptText, rerr := e.library.Render(*task)
		if rerr != nil {
			e.limiter.Release()
			// A template that fails for one draw fails for every draw
			task.State = models.TaskFailed
			return outcome{task: task, err: rerr}, true
		}

		start := time.Now()
		e.collector.IncInFlight()
		text, err := e.client.Generate(callCtx, promptText)
		e.collector.DecInFlight()
		duration := time.Since(start)
		e.limiter.Release()

		if err == nil {
			e.resetFatalStreak()
			e.collector.ObserveGeneration("success", duration)
			task.State = models.TaskSucceeded
			return outcome{
				task:     task,
				result:   e.buildResult(task, text, duration),
				duration: duration,
			}, true
		}

		if runCtx.Err() != nil || callCtx.Err() != nil {
			// Cancellation is the run ending, not the task failing
			return outcome{}, false
		}

		kind := api.KindOf(err)
		e.collector.ObserveGeneration(string(kind), duration)

		if kind == api.KindFatalClient {
			if e.noteFatal() {
				e.abort(fmt.Errorf("endpoint unreachable after repeated fatal failures: %w", err))
				return outcome{}, false
			}
		} else {
			e.resetFatalStreak()
		}

		switch {
		case kind == api.KindInvalidResponse:
			if invalidRetried {
				task.State = models.TaskFailed
				return outcome{task: task, err: err}, true
			}
			invalidRetried = true
			task.Vars, task.Complexity, task.Perspective = e.sampler.Draw(task.Key.Category, task.Key.Format)
			task.State = models.TaskRequeued
			e.collector.IncRetry(string(kind))
			logger.Info("Invalid response, retrying with re-sampled variables",
				"key", task.Key.String(),
				"attempt", task.Attempts)

		case kind == api.KindTimeout, kind == api.KindRateLimited,
			kind == api.KindTransientServer, kind == api.KindFatalClient:
			if task.Attempts >= e.cfg.Retry.MaxAttempts {
				task.State = models.TaskFailed
				return outcome{task: task, err: err}, true
			}
			task.State = models.TaskRequeued
			e.collector.IncRetry(string(kind))

			delay := e.backoffDelay(task.Attempts, kind)
			logger.Warn("Retrying generation",
				"key", task.Key.String(),
				"attempt", task.Attempts,
				"max_attempts", e.cfg.Retry.MaxAttempts,
				"reason", string(kind),
				"backoff", delay)

			select {
			case <-runCtx.Done():
				return outcome{}, false
			case <-time.After(delay):
			}

		default:
			// Not a classified generation failure: request construction or
			// an unexpected transport condition
			task.State = models.TaskFailed
			return outcome{task: task, err: err}, true
		}
	}
}

// backoffDelay computes the exponential retry delay with jitter. Rate-limit
// failures back off harder (3^n) so the window has actually reset before the
// next attempt.
func (e *Engine) backoffDelay(attempt int, kind api.ErrorKind) time.Duration {
	base := time.Duration(e.cfg.Retry.InitialBackoffMS) * time.Millisecond

	delay := time.Duration(math.Pow(2, float64(attempt-1))) * base
	if kind == api.KindRateLimited {
		delay = time.Duration(math.Pow(3, float64(attempt))) * base
	}
	if limit := time.Duration(e.cfg.Retry.MaxBackoffSeconds) * time.Second; delay > limit {
		delay = limit
	}

	jitter := time.Duration(float64(delay) * 0.1 * (2*float64(time.Now().UnixNano()%100)/100 - 1))
	return delay + jitter
}

func (e *Engine) buildResult(task *models.GenerationTask, text string, duration time.Duration) models.GenerationResult {
	return models.GenerationResult{
		Key:  task.Key,
		Text: text,
		Metadata: models.ResultMetadata{
			Complexity:          task.Complexity,
			Perspective:         task.Perspective,
			Subject:             task.Vars.Subject,
			Domain:              task.Vars.Domain,
			Trigger:             task.Vars.Trigger,
			EmotionalState:      task.Vars.EmotionalState,
			LanguageStyle:       task.Vars.LanguageStyle,
			UniqueAngle:         task.Vars.UniqueAngle,
			SecondaryCategories: task.Vars.SecondaryCategories,
			Model:               e.cfg.Endpoint.Model,
			Attempts:            task.Attempts,
			LatencyMS:           duration.Milliseconds(),
		},
		GeneratedAt: time.Now().UTC(),
	}
}
