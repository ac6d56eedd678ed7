package stats

import (
	"time"

	"github.com/lioth/strataforge/internal/metrics"
)

// updateBufferSize is the channel buffer for aggregator events. It absorbs
// bursts from the worker pool; the owner's work per event is a few map
// increments, so the buffer never stays full long enough to stall dispatch.
const updateBufferSize = 100

// Update is one finalized task outcome.
type Update struct {
	Category   string
	Format     string
	Complexity string
	Domain     string
	Success    bool
	Latency    time.Duration
}

// Snapshot is a point-in-time copy of the aggregated counters. The per-*
// maps and the average latency cover successes; FailureCount counts tasks
// given up on.
type Snapshot struct {
	StartTime      time.Time
	SuccessCount   int
	FailureCount   int
	PerCategory    map[string]int
	PerFormat      map[string]int
	PerComplexity  map[string]int
	PerDomain      map[string]int
	AverageLatency time.Duration
	SuccessRate    float64 // percentage of finalized tasks that succeeded
}

type event struct {
	update Update
	reply  chan Snapshot // non-nil marks a snapshot request
}

// Aggregator serializes all statistics updates through one owner goroutine.
// Updates and snapshot requests share a single channel, so a snapshot
// reflects every update recorded before it.
type Aggregator struct {
	events    chan event
	done      chan struct{}
	collector *metrics.Collector

	// Owned by the run goroutine; read directly only after done closes
	startTime     time.Time
	successCount  int
	failureCount  int
	totalLatency  time.Duration
	perCategory   map[string]int
	perFormat     map[string]int
	perComplexity map[string]int
	perDomain     map[string]int
}

// New starts the owner goroutine.
func New(collector *metrics.Collector) *Aggregator {
	a := &Aggregator{
		events:        make(chan event, updateBufferSize),
		done:          make(chan struct{}),
		collector:     collector,
		startTime:     time.Now(),
		perCategory:   make(map[string]int),
		perFormat:     make(map[string]int),
		perComplexity: make(map[string]int),
		perDomain:     make(map[string]int),
	}
	go a.run()
	return a
}

func (a *Aggregator) run() {
	defer close(a.done)
	for ev := range a.events {
		if ev.reply != nil {
			ev.reply <- a.snapshot()
			continue
		}
		a.apply(ev.update)
	}
}

func (a *Aggregator) apply(u Update) {
	if u.Success {
		a.successCount++
		a.totalLatency += u.Latency
		a.perCategory[u.Category]++
		a.perFormat[u.Format]++
		a.perComplexity[u.Complexity]++
		a.perDomain[u.Domain]++
	} else {
		a.failureCount++
	}
	a.collector.IncExample(u.Category, u.Success)
}

func (a *Aggregator) snapshot() Snapshot {
	s := Snapshot{
		StartTime:     a.startTime,
		SuccessCount:  a.successCount,
		FailureCount:  a.failureCount,
		PerCategory:   copyCounts(a.perCategory),
		PerFormat:     copyCounts(a.perFormat),
		PerComplexity: copyCounts(a.perComplexity),
		PerDomain:     copyCounts(a.perDomain),
	}
	if a.successCount > 0 {
		s.AverageLatency = a.totalLatency / time.Duration(a.successCount)
	}
	if total := a.successCount + a.failureCount; total > 0 {
		s.SuccessRate = float64(a.successCount) / float64(total) * 100.0
	}
	return s
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Record queues one outcome. Must not be called after Close.
func (a *Aggregator) Record(u Update) {
	a.events <- event{update: u}
}

// Snapshot returns a copy of the counters, consistent with every update
// recorded before the call. Safe both during the run and after Close.
func (a *Aggregator) Snapshot() Snapshot {
	select {
	case <-a.done:
		// Owner has exited; its state is settled
		return a.snapshot()
	default:
	}
	reply := make(chan Snapshot, 1)
	a.events <- event{reply: reply}
	return <-reply
}

// Close drains queued updates and stops the owner goroutine.
func (a *Aggregator) Close() {
	close(a.events)
	<-a.done
}
