package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type captureTransport struct {
	responses map[string]responseStub
	lastReq   *http.Request
	lastBody  []byte
}

type responseStub struct {
	status int
	body   []byte
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{responses: map[string]responseStub{}}
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.lastReq = req
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	} else {
		c.lastBody = nil
	}
	if stub, ok := c.responses[req.URL.Path]; ok {
		return &http.Response{
			StatusCode: stub.status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(bytes.NewReader(stub.body)),
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader(`{"error":"not found"}`)),
	}, nil
}

func (c *captureTransport) setJSONResponse(path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{status: status, body: body}
}

func newTestClient(t *testing.T, transport *captureTransport) *Client {
	t.Helper()
	client, err := NewClient(Options{
		BaseURL:    "https://processor.test",
		APIKey:     "secret",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("err = %v, want ErrMissingBaseURL", err)
	}
}

func TestCreateJobDecodesResponse(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/create-job", http.StatusOK, map[string]any{
		"jobId": "job-123",
		"uploadUrls": []any{
			map[string]any{"url": "https://upload.test/a", "key": "a"},
		},
	})
	client := newTestClient(t, transport)

	resp, err := client.CreateJob(context.Background(), CreateJobRequest{FileTypes: []string{"image/png"}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if resp.JobID != "job-123" {
		t.Fatalf("job id = %q, want job-123", resp.JobID)
	}
	if len(resp.UploadURLs) != 1 || resp.UploadURLs[0].Key != "a" {
		t.Fatalf("upload urls = %#v", resp.UploadURLs)
	}
	if auth := transport.lastReq.Header.Get("Authorization"); auth != "Bearer secret" {
		t.Fatalf("authorization header = %q", auth)
	}
}

func TestCreateJobRequiresDescriptor(t *testing.T) {
	client := newTestClient(t, newCaptureTransport())
	if _, err := client.CreateJob(context.Background(), CreateJobRequest{}); err == nil {
		t.Fatalf("expected error for empty descriptor")
	}
}

func TestCreateJobSurfacesRemoteRejection(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/create-job", http.StatusUnprocessableEntity, map[string]string{"message": "quota exhausted"})
	client := newTestClient(t, transport)

	_, err := client.CreateJob(context.Background(), CreateJobRequest{Description: "brief"})
	var rejection *RemoteRejection
	if !errors.As(err, &rejection) {
		t.Fatalf("err = %v, want RemoteRejection", err)
	}
	if rejection.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rejection.StatusCode)
	}
	if !strings.Contains(rejection.Detail, "quota exhausted") {
		t.Fatalf("detail = %q", rejection.Detail)
	}
}

func TestUploadPayloadSetsContentType(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/upload/a", http.StatusOK, map[string]string{})
	client := newTestClient(t, transport)

	err := client.UploadPayload(context.Background(), UploadTarget{URL: "https://processor.test/upload/a", Key: "a"}, "image/png", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if transport.lastReq.Method != http.MethodPut {
		t.Fatalf("method = %s, want PUT", transport.lastReq.Method)
	}
	if ct := transport.lastReq.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.Equal(transport.lastBody, []byte{1, 2, 3}) {
		t.Fatalf("body = %v", transport.lastBody)
	}
}

func TestUploadPayloadFailureIsUploadError(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/upload/a", http.StatusForbidden, map[string]string{})
	client := newTestClient(t, transport)

	err := client.UploadPayload(context.Background(), UploadTarget{URL: "https://processor.test/upload/a", Key: "a"}, "image/png", nil)
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("err = %v, want UploadError", err)
	}
	if uploadErr.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", uploadErr.StatusCode)
	}
}

func TestStartProcessingSendsModeAndConfig(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/start-processing", http.StatusOK, map[string]string{"status": "accepted"})
	client := newTestClient(t, transport)

	err := client.StartProcessing(context.Background(), "job-123", ModeCampaign, StartConfig{Quality: "hd", Variations: 2, SocialCopy: true})
	if err != nil {
		t.Fatalf("start processing: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["jobId"] != "job-123" {
		t.Fatalf("jobId = %v", payload["jobId"])
	}
	if payload["mode"] != "campaign" {
		t.Fatalf("mode = %v", payload["mode"])
	}
	cfg := payload["config"].(map[string]any)
	if cfg["quality"] != "hd" {
		t.Fatalf("config.quality = %v", cfg["quality"])
	}
	if cfg["variations"] != float64(2) {
		t.Fatalf("config.variations = %v", cfg["variations"])
	}
	if cfg["social_copy"] != true {
		t.Fatalf("config.social_copy = %v", cfg["social_copy"])
	}
}

func TestStartProcessingUnknownJobIsRejected(t *testing.T) {
	client := newTestClient(t, newCaptureTransport())
	err := client.StartProcessing(context.Background(), "ghost", ModeMagic, StartConfig{})
	var rejection *RemoteRejection
	if !errors.As(err, &rejection) {
		t.Fatalf("err = %v, want RemoteRejection", err)
	}
}

func TestGetStatusDecodesAllResultFields(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/job-status/job-123", http.StatusOK, map[string]any{
		"status":           "completed",
		"result_url":       "single",
		"result_urls":      []string{"a", "b"},
		"photo_urls":       []string{"p"},
		"clean_photo_urls": []string{"c"},
		"social_copy":      "caption",
	})
	client := newTestClient(t, transport)

	payload, err := client.GetStatus(context.Background(), "job-123")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if payload.Status != "completed" {
		t.Fatalf("status = %q", payload.Status)
	}
	if len(payload.ResultURLs) != 2 || payload.ResultURL != "single" {
		t.Fatalf("result fields = %#v", payload)
	}
	if len(payload.PhotoURLs) != 1 || len(payload.CleanPhotoURLs) != 1 {
		t.Fatalf("photo fields = %#v", payload)
	}
	if payload.SocialCopy != "caption" {
		t.Fatalf("social copy = %q", payload.SocialCopy)
	}
}

func TestGetStatusWrapsTransportErrors(t *testing.T) {
	client, err := NewClient(Options{
		BaseURL:    "https://processor.test",
		HTTPClient: &http.Client{Transport: failingTransport{}},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.GetStatus(context.Background(), "job-123"); err == nil {
		t.Fatalf("expected transport error")
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}
