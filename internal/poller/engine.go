// Package poller reconciles in-flight job records against the remote
// processor on a fixed interval until each record reaches a terminal state.
package poller

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"blitzai/internal/api"
	"blitzai/internal/infra"
	"blitzai/internal/job"
	"blitzai/internal/telemetry"
)

// DefaultInterval matches the legacy client's 3 second tick.
const DefaultInterval = 3 * time.Second

// LabelPollLimit marks records abandoned because the attempt budget ran out.
const LabelPollLimit = "poll_limit_exceeded"

// StatusFetcher is the slice of the API client the engine depends on.
type StatusFetcher interface {
	GetStatus(ctx context.Context, jobID string) (*api.StatusPayload, error)
}

// Options configures an Engine.
type Options struct {
	// Interval between reconciliation ticks; DefaultInterval when zero.
	Interval time.Duration
	// MaxAttempts bounds the number of status polls per record. Zero keeps
	// the legacy retry-forever behavior.
	MaxAttempts int
	Logger      *infra.Logger
	// OnUpdate receives a snapshot of a record after every applied change,
	// including the one that made it terminal.
	OnUpdate func(rec job.Record)
}

// Engine drives fixed-interval polling over a set of active records. Each
// record is queried independently; responses are applied in arrival order and
// serialized per record, so an overlapping in-flight request can never revert
// a newer observation.
type Engine struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxAttempts int
	logger      *infra.Logger
	onUpdate    func(rec job.Record)

	mu     sync.Mutex
	active map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	rec      job.Record
	attempts int
}

// NewEngine constructs an engine over the given fetcher.
func NewEngine(fetcher StatusFetcher, opts Options) *Engine {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Engine{
		fetcher:     fetcher,
		interval:    interval,
		maxAttempts: opts.MaxAttempts,
		logger:      logger,
		onUpdate:    opts.OnUpdate,
		active:      make(map[string]*entry),
	}
}

// Track adds a record to the active poll set. Terminal records are ignored.
func (e *Engine) Track(rec job.Record) {
	if rec.ID == "" || rec.State.Terminal() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[rec.ID]; ok {
		return
	}
	e.active[rec.ID] = &entry{rec: rec.Clone()}
	telemetry.ActiveJobsGauge.Inc()
}

// Forget stops observing a record without touching its state. The remote job
// keeps running; the processor exposes no cancel endpoint.
func (e *Engine) Forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[id]; ok {
		delete(e.active, id)
		telemetry.ActiveJobsGauge.Dec()
	}
}

// ActiveCount reports how many records are currently being polled.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Run polls until the context is cancelled. It keeps running when the active
// set drains so records tracked later are picked up on the next tick.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

// pollOnce issues one status request per active record. Requests run
// concurrently across records; a tick does not wait for the previous tick's
// stragglers, matching the legacy overlap tolerance.
func (e *Engine) pollOnce(ctx context.Context) {
	e.mu.Lock()
	snapshot := make(map[string]*entry, len(e.active))
	for id, en := range e.active {
		snapshot[id] = en
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	for id, en := range snapshot {
		wg.Add(1)
		go func(id string, en *entry) {
			defer wg.Done()
			e.poll(ctx, id, en)
		}(id, en)
	}
	wg.Wait()
}

func (e *Engine) poll(ctx context.Context, id string, en *entry) {
	telemetry.PollsTotal.Inc()
	payload, err := e.fetcher.GetStatus(ctx, id)

	en.mu.Lock()
	defer en.mu.Unlock()

	if en.rec.State.Terminal() {
		// A slower sibling request already finished the record.
		return
	}
	en.attempts++

	if err != nil {
		telemetry.PollErrors.Inc()
		e.logger.Warn().Err(err).Str("job_id", id).Msg("poller: status request failed, will retry")
		if e.maxAttempts > 0 && en.attempts >= e.maxAttempts {
			e.exhaust(id, en)
		}
		return
	}

	changed := en.rec.Apply(payload)
	if en.rec.State.Terminal() {
		e.finish(id, en)
	} else if e.maxAttempts > 0 && en.attempts >= e.maxAttempts {
		e.exhaust(id, en)
		return
	}
	if changed {
		e.notify(en.rec)
	}
}

// finish removes a terminal record from the active set.
func (e *Engine) finish(id string, en *entry) {
	e.mu.Lock()
	if _, ok := e.active[id]; ok {
		delete(e.active, id)
		telemetry.ActiveJobsGauge.Dec()
	}
	e.mu.Unlock()

	switch en.rec.State {
	case job.StateCompleted:
		telemetry.JobsCompleted.Inc()
		e.logger.Info().Str("job_id", id).Int("results", len(en.rec.ResultRefs)).Msg("poller: job completed")
	case job.StateFailed:
		telemetry.JobsFailed.Inc()
		e.logger.Info().Str("job_id", id).Msg("poller: job failed")
	}
}

// exhaust fails a record locally once its poll budget is spent. The remote
// job may still finish server-side; the client just stops watching.
func (e *Engine) exhaust(id string, en *entry) {
	en.rec.Fail(LabelPollLimit)
	e.logger.Warn().Str("job_id", id).Int("attempts", en.attempts).Msg("poller: poll budget exhausted")
	e.finish(id, en)
	e.notify(en.rec)
}

func (e *Engine) notify(rec job.Record) {
	if e.onUpdate != nil {
		e.onUpdate(rec.Clone())
	}
}
