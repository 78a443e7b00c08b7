// Package stub is an in-memory stand-in for the hosted Blitz processor. It
// implements the four remote endpoints the client depends on and walks each
// job through a scripted status progression, so the CLI and integration tests
// run without network access to the real service.
package stub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"blitzai/internal/api"
	"blitzai/internal/infra"
	"blitzai/internal/middleware"
)

// PollsUntilComplete is how many status requests a started job answers with a
// processing status before turning terminal.
const PollsUntilComplete = 3

// Processor holds the in-memory job table.
type Processor struct {
	logger infra.Logger

	mu   sync.Mutex
	jobs map[string]*stubJob
}

type stubJob struct {
	id          string
	description string
	targetURL   string
	mode        api.Mode
	config      api.StartConfig
	uploads     map[string][]byte
	expected    int
	started     bool
	failNext    bool
	polls       int
}

// NewProcessor creates an empty processor.
func NewProcessor(logger infra.Logger) *Processor {
	return &Processor{logger: logger, jobs: make(map[string]*stubJob)}
}

// Router assembles the processor's HTTP surface with the same middleware
// chain the hosted API fronts requests with.
func (p *Processor) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(p.logger))
	r.Use(middleware.CORS([]string{"http://localhost:3000", "http://localhost:5173"}))

	r.Post("/create-job", p.createJob)
	r.Put("/upload/{jobID}/{key}", p.uploadPayload)
	r.Get("/upload/{jobID}/{key}", p.downloadPayload)
	r.Post("/start-processing", p.startProcessing)
	r.Get("/job-status/{jobID}", p.jobStatus)
	return r
}

type createJobRequest struct {
	Description string   `json:"description"`
	TargetURL   string   `json:"target_url"`
	FileTypes   []string `json:"file_types"`
}

func (p *Processor) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Description == "" && req.TargetURL == "" && len(req.FileTypes) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "empty job descriptor")
		return
	}

	jobID := uuid.NewString()
	j := &stubJob{
		id:          jobID,
		description: req.Description,
		targetURL:   req.TargetURL,
		uploads:     make(map[string][]byte),
		expected:    len(req.FileTypes),
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	targets := make([]api.UploadTarget, 0, len(req.FileTypes))
	for i := range req.FileTypes {
		key := fmt.Sprintf("source-%02d", i+1)
		targets = append(targets, api.UploadTarget{
			URL: fmt.Sprintf("%s://%s/upload/%s/%s", scheme, r.Host, jobID, key),
			Key: key,
		})
	}

	p.mu.Lock()
	p.jobs[jobID] = j
	p.mu.Unlock()
	p.logger.Info().Str("job_id", jobID).Int("upload_targets", len(targets)).Msg("stub: job created")

	writeJSON(w, http.StatusOK, api.CreateJobResponse{JobID: jobID, UploadURLs: targets})
}

func (p *Processor) uploadPayload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	key := chi.URLParam(r, "key")

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[jobID]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	j.uploads[key] = data
	w.WriteHeader(http.StatusOK)
}

func (p *Processor) downloadPayload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	key := chi.URLParam(r, "key")

	p.mu.Lock()
	j, ok := p.jobs[jobID]
	var data []byte
	if ok {
		data, ok = j.uploads[key]
	}
	p.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown asset")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

type startProcessingRequest struct {
	JobID  string          `json:"jobId"`
	Mode   api.Mode        `json:"mode"`
	Config api.StartConfig `json:"config"`
}

func (p *Processor) startProcessing(w http.ResponseWriter, r *http.Request) {
	var req startProcessingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[req.JobID]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	j.mode = req.Mode
	j.config = req.Config
	j.started = true
	j.polls = 0
	p.logger.Info().Str("job_id", j.id).Str("mode", string(j.mode)).Msg("stub: processing started")
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// FailJob scripts the next status answer for a job to be the failed terminal
// state. Tests use it to exercise the failure path.
func (p *Processor) FailJob(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[jobID]
	if !ok {
		return false
	}
	j.failNext = true
	return true
}

func (p *Processor) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[jobID]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}

	if j.failNext {
		writeJSON(w, http.StatusOK, api.StatusPayload{Status: "failed"})
		return
	}
	if !j.started || (j.expected > 0 && len(j.uploads) < j.expected) {
		writeJSON(w, http.StatusOK, api.StatusPayload{Status: "pending_upload"})
		return
	}

	j.polls++
	if j.polls <= PollsUntilComplete {
		writeJSON(w, http.StatusOK, api.StatusPayload{Status: processingLabel(j.mode)})
		return
	}
	writeJSON(w, http.StatusOK, j.completedPayload(r))
}

func processingLabel(mode api.Mode) string {
	switch mode {
	case api.ModeMagic:
		return "processing_magic"
	case api.ModePhotoshoot:
		return "generating_photos"
	case api.ModeCampaign:
		return "processing_campaign"
	default:
		return "processing"
	}
}

// completedPayload mints result locators for everything that was uploaded.
// Photoshoot jobs answer on the photo_urls field and campaign jobs attach
// social copy, mirroring the shape variance of the hosted processor.
func (j *stubJob) completedPayload(r *http.Request) api.StatusPayload {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	refs := make([]string, 0, len(j.uploads))
	for key := range j.uploads {
		refs = append(refs, fmt.Sprintf("%s://%s/upload/%s/%s", scheme, r.Host, j.id, key))
	}
	if len(refs) == 0 && j.targetURL != "" {
		refs = append(refs, fmt.Sprintf("%s://%s/upload/%s/report", scheme, r.Host, j.id))
	}

	payload := api.StatusPayload{Status: "completed"}
	if j.mode == api.ModePhotoshoot {
		payload.PhotoURLs = refs
	} else {
		payload.ResultURLs = refs
	}
	if j.mode == api.ModeCampaign || j.config.SocialCopy {
		payload.SocialCopy = "Launch day! " + strings.TrimSpace(j.description)
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
