// Package api is a minimal typed boundary over the Blitz processing API. Each
// operation is a single network round trip with no retries; recovery from
// transient failures is the polling engine's concern.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"blitzai/internal/infra"
)

// ErrMissingBaseURL indicates that the client was configured without an endpoint.
var ErrMissingBaseURL = errors.New("api: base url is required")

// Mode selects the kind of creative work the processor performs.
type Mode string

const (
	ModeMagic      Mode = "magic"
	ModePhotoshoot Mode = "photoshoot"
	ModeCampaign   Mode = "campaign"
	ModeAudit      Mode = "audit"
)

// Options configures the processing API client.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the Blitz processing API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

// CreateJobRequest describes the unit of work to submit. At least one of the
// fields must be populated.
type CreateJobRequest struct {
	Description string   `json:"description,omitempty"`
	TargetURL   string   `json:"target_url,omitempty"`
	FileTypes   []string `json:"file_types,omitempty"`
}

// UploadTarget is a presigned destination for one payload file.
type UploadTarget struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// CreateJobResponse carries the processor-assigned job identifier and any
// upload destinations the caller must fill before starting.
type CreateJobResponse struct {
	JobID      string         `json:"jobId"`
	UploadURLs []UploadTarget `json:"uploadUrls,omitempty"`
}

// StartConfig is the generation configuration folded into the start-processing
// request body.
type StartConfig struct {
	Quality    string `json:"quality,omitempty"`
	Variations int    `json:"variations,omitempty"`
	Enhance    bool   `json:"enhance,omitempty"`
	Watermark  bool   `json:"watermark,omitempty"`
	SocialCopy bool   `json:"social_copy,omitempty"`
}

// StatusPayload is the processor's raw view of a job. The result location
// varies across several fields; normalization happens in the job package, not
// here.
type StatusPayload struct {
	Status         string   `json:"status"`
	ResultURL      string   `json:"result_url,omitempty"`
	ResultURLs     []string `json:"result_urls,omitempty"`
	PhotoURLs      []string `json:"photo_urls,omitempty"`
	CleanPhotoURLs []string `json:"clean_photo_urls,omitempty"`
	SocialCopy     string   `json:"social_copy,omitempty"`
}

type startProcessingRequest struct {
	JobID  string      `json:"jobId"`
	Mode   Mode        `json:"mode"`
	Config StartConfig `json:"config"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RemoteRejection reports a non-2xx response from the processor.
type RemoteRejection struct {
	Operation  string
	StatusCode int
	Detail     string
}

func (e *RemoteRejection) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api: %s rejected with status %d: %s", e.Operation, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api: %s rejected with status %d", e.Operation, e.StatusCode)
}

// UploadError reports a failed payload transfer to an upload target.
type UploadError struct {
	Target     string
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api: upload to %s failed: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("api: upload to %s failed with status %d", e.Target, e.StatusCode)
}

func (e *UploadError) Unwrap() error { return e.Err }

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CreateJob registers a unit of work with the processor and returns the
// assigned identifier plus upload destinations for the payload files.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*CreateJobResponse, error) {
	if req.Description == "" && req.TargetURL == "" && len(req.FileTypes) == 0 {
		return nil, errors.New("api: create job requires a non-empty descriptor")
	}
	var decoded CreateJobResponse
	if err := c.postJSON(ctx, "create job", "/create-job", req, &decoded); err != nil {
		return nil, err
	}
	if decoded.JobID == "" {
		return nil, errors.New("api: create job returned an empty job id")
	}
	c.logger.Debug().
		Str("job_id", decoded.JobID).
		Int("upload_targets", len(decoded.UploadURLs)).
		Msg("api: job created")
	return &decoded, nil
}

// UploadPayload transfers raw bytes to a presigned target.
func (c *Client) UploadPayload(ctx context.Context, target UploadTarget, contentType string, data []byte) error {
	if strings.TrimSpace(target.URL) == "" {
		return &UploadError{Target: target.Key, Err: errors.New("empty upload url")}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, target.URL, bytes.NewReader(data))
	if err != nil {
		return &UploadError{Target: target.URL, Err: err}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &UploadError{Target: target.URL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &UploadError{Target: target.URL, StatusCode: resp.StatusCode}
	}
	c.logger.Debug().Str("target", target.Key).Int("bytes", len(data)).Msg("api: payload uploaded")
	return nil
}

// StartProcessing signals the processor to begin work on a created job.
func (c *Client) StartProcessing(ctx context.Context, jobID string, mode Mode, cfg StartConfig) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("api: job id is required")
	}
	payload := startProcessingRequest{JobID: jobID, Mode: mode, Config: cfg}
	if err := c.postJSON(ctx, "start processing", "/start-processing", payload, nil); err != nil {
		return err
	}
	c.logger.Debug().Str("job_id", jobID).Str("mode", string(mode)).Msg("api: processing started")
	return nil
}

// GetStatus fetches the processor's current view of a job. The payload is
// returned as-is; callers map its status vocabulary to lifecycle states.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*StatusPayload, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("api: job id is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/job-status/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("api: build status request: %w", err)
	}
	c.authorize(httpReq)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api: status request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api: read status response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, rejection("get status", resp.StatusCode, raw)
	}
	var decoded StatusPayload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("api: decode status response: %w", err)
	}
	return &decoded, nil
}

func (c *Client) postJSON(ctx context.Context, operation, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("api: encode %s request: %w", operation, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("api: build %s request: %w", operation, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("api: %s request: %w", operation, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read %s response: %w", operation, err)
	}
	if resp.StatusCode >= 300 {
		return rejection(operation, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func rejection(operation string, status int, raw []byte) error {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		msg := detail.Message
		if msg == "" {
			msg = detail.Error
		}
		if msg != "" {
			return &RemoteRejection{Operation: operation, StatusCode: status, Detail: msg}
		}
	}
	return &RemoteRejection{Operation: operation, StatusCode: status, Detail: strings.TrimSpace(string(raw))}
}
