// Package manager owns job orchestration: submission, polling, and the
// durable mirror of every record. The legacy web client repeated this wiring
// in three places; here it lives once and call sites only differ in what they
// render.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"blitzai/internal/api"
	"blitzai/internal/infra"
	"blitzai/internal/job"
	"blitzai/internal/poller"
	"blitzai/internal/store"
)

// ErrUnknownJob is returned for operations on ids the manager does not track.
var ErrUnknownJob = errors.New("manager: unknown job")

// Client is the slice of the API surface the manager depends on.
type Client interface {
	CreateJob(ctx context.Context, req api.CreateJobRequest) (*api.CreateJobResponse, error)
	UploadPayload(ctx context.Context, target api.UploadTarget, contentType string, data []byte) error
	StartProcessing(ctx context.Context, jobID string, mode api.Mode, cfg api.StartConfig) error
	GetStatus(ctx context.Context, jobID string) (*api.StatusPayload, error)
}

// Options configures a Manager.
type Options struct {
	Client Client
	Store  store.Store
	Logger *infra.Logger
	// PollInterval and MaxPollAttempts are forwarded to the polling engine.
	PollInterval    time.Duration
	MaxPollAttempts int
	// OnChange receives a snapshot after every record mutation, submission
	// and polling alike.
	OnChange func(rec job.Record)
}

// Upload is one payload file attached to a submission.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// SubmitRequest describes a new unit of work.
type SubmitRequest struct {
	Description string
	TargetURL   string
	Mode        api.Mode
	Files       []Upload
	Options     job.GenerationOptions
}

// Manager ties the API client, the polling engine and the persistence
// adapter together around one record set.
type Manager struct {
	client   Client
	store    store.Store
	engine   *poller.Engine
	logger   *infra.Logger
	onChange func(rec job.Record)

	mu      sync.Mutex
	records map[string]job.Record
}

// New loads the persisted record set and resumes polling for every record
// that was still in flight when the previous process stopped.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Client == nil {
		return nil, errors.New("manager: api client is required")
	}
	if opts.Store == nil {
		return nil, errors.New("manager: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	m := &Manager{
		client:   opts.Client,
		store:    opts.Store,
		logger:   logger,
		onChange: opts.OnChange,
		records:  make(map[string]job.Record),
	}

	m.engine = poller.NewEngine(opts.Client, poller.Options{
		Interval:    opts.PollInterval,
		MaxAttempts: opts.MaxPollAttempts,
		Logger:      logger,
		OnUpdate:    m.applyUpdate,
	})

	persisted, err := opts.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("manager: load records: %w", err)
	}
	for _, rec := range persisted {
		m.records[rec.ID] = rec
		if !rec.State.Terminal() {
			m.engine.Track(rec)
		}
	}
	if len(persisted) > 0 {
		logger.Info().Int("records", len(persisted)).Int("resumed", m.engine.ActiveCount()).Msg("manager: restored job records")
	}
	return m, nil
}

// Run drives the polling engine until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	return m.engine.Run(ctx)
}

// Submit registers a job with the processor, uploads its payload files,
// starts processing, and begins polling. Any error along the way fails the
// record synchronously and is returned to the caller.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (job.Record, error) {
	fileTypes := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		fileTypes = append(fileTypes, f.ContentType)
	}
	created, err := m.client.CreateJob(ctx, api.CreateJobRequest{
		Description: req.Description,
		TargetURL:   req.TargetURL,
		FileTypes:   fileTypes,
	})
	if err != nil {
		return job.Record{}, fmt.Errorf("manager: create job: %w", err)
	}

	description := req.Description
	if description == "" {
		description = req.TargetURL
	}
	rec := job.NewRecord(created.JobID, description, req.Mode, req.Options.Normalize())
	rec.State = job.StateUploading
	m.persist(ctx, rec)

	if err := m.uploadAll(ctx, created.UploadURLs, req.Files); err != nil {
		rec.Fail("submission_failed")
		m.persist(ctx, rec)
		return rec, err
	}

	if err := m.client.StartProcessing(ctx, rec.ID, req.Mode, req.Options.StartConfig()); err != nil {
		rec.Fail("submission_failed")
		m.persist(ctx, rec)
		return rec, fmt.Errorf("manager: start processing: %w", err)
	}

	rec.State = job.StateProcessing
	rec.StateLabel = job.LabelInitializing
	m.persist(ctx, rec)
	m.engine.Track(rec)
	m.logger.Info().Str("job_id", rec.ID).Str("mode", string(req.Mode)).Int("cost_estimate", req.Options.CostEstimate()).Msg("manager: job submitted")
	return rec, nil
}

func (m *Manager) uploadAll(ctx context.Context, targets []api.UploadTarget, files []Upload) error {
	if len(files) > len(targets) {
		return fmt.Errorf("manager: %d files but only %d upload targets", len(files), len(targets))
	}
	for i, f := range files {
		if err := m.client.UploadPayload(ctx, targets[i], f.ContentType, f.Data); err != nil {
			return fmt.Errorf("manager: upload %s: %w", f.Name, err)
		}
	}
	return nil
}

// Cancel stops observing a job. The remote processor keeps working on it;
// there is no cancel endpoint to call.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	_, ok := m.records[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}
	m.engine.Forget(id)
	m.logger.Info().Str("job_id", id).Msg("manager: stopped observing job")
	return nil
}

// Reset releases a terminal record so the same brief can be submitted again.
// The processor-assigned id is discarded with the record; the returned
// snapshot keeps the description, mode and options for the resubmission.
func (m *Manager) Reset(ctx context.Context, id string) (job.Record, error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	m.mu.Unlock()
	if !ok {
		return job.Record{}, ErrUnknownJob
	}
	if !rec.State.Terminal() {
		return job.Record{}, fmt.Errorf("manager: job %s is still %s", id, rec.State)
	}
	if err := m.Delete(ctx, id); err != nil {
		return job.Record{}, err
	}
	draft := job.Record{
		Description: rec.Description,
		Mode:        rec.Mode,
		State:       job.StateIdle,
		Options:     rec.Options,
	}
	m.logger.Info().Str("job_id", id).Msg("manager: job reset for resubmission")
	return draft, nil
}

// Delete removes a record from memory and from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.engine.Forget(id)
	m.mu.Lock()
	_, ok := m.records[id]
	delete(m.records, id)
	m.mu.Unlock()
	if err := m.store.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) && ok {
			return nil
		}
		return err
	}
	return nil
}

// Get returns a snapshot of one record.
func (m *Manager) Get(id string) (job.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return job.Record{}, false
	}
	return rec.Clone(), true
}

// List returns snapshots of all records, newest first.
func (m *Manager) List() []job.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]job.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// applyUpdate receives polling engine snapshots and mirrors them durably.
func (m *Manager) applyUpdate(rec job.Record) {
	m.persist(context.Background(), rec)
}

// persist updates the in-memory set and rewrites the full persisted
// collection. The whole-set write is the shared-resource policy: records
// changing in the same tick serialize here instead of clobbering each other.
func (m *Manager) persist(ctx context.Context, rec job.Record) {
	m.mu.Lock()
	m.records[rec.ID] = rec.Clone()
	all := make([]job.Record, 0, len(m.records))
	for _, r := range m.records {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	m.mu.Unlock()

	if err := m.store.Save(ctx, all); err != nil {
		m.logger.Error().Err(err).Str("job_id", rec.ID).Msg("manager: persist records failed")
	}
	if m.onChange != nil {
		m.onChange(rec.Clone())
	}
}
