package stub

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"blitzai/internal/api"
)

func newStubClient(t *testing.T) (*Processor, *api.Client) {
	t.Helper()
	processor := NewProcessor(zerolog.Nop())
	server := httptest.NewServer(processor.Router())
	t.Cleanup(server.Close)
	client, err := api.NewClient(api.Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new api client: %v", err)
	}
	return processor, client
}

func TestStatusProgressionMagicJob(t *testing.T) {
	_, client := newStubClient(t)
	ctx := context.Background()

	created, err := client.CreateJob(ctx, api.CreateJobRequest{Description: "brief", FileTypes: []string{"image/png"}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if len(created.UploadURLs) != 1 {
		t.Fatalf("upload targets = %d, want 1", len(created.UploadURLs))
	}

	// Before the payload lands the processor reports pending_upload.
	payload, err := client.GetStatus(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if payload.Status != "pending_upload" {
		t.Fatalf("status = %q, want pending_upload", payload.Status)
	}

	if err := client.UploadPayload(ctx, created.UploadURLs[0], "image/png", []byte("data")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := client.StartProcessing(ctx, created.JobID, api.ModeMagic, api.StartConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < PollsUntilComplete; i++ {
		payload, err = client.GetStatus(ctx, created.JobID)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		if payload.Status != "processing_magic" {
			t.Fatalf("poll %d status = %q, want processing_magic", i, payload.Status)
		}
	}

	payload, err = client.GetStatus(ctx, created.JobID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if payload.Status != "completed" {
		t.Fatalf("status = %q, want completed", payload.Status)
	}
	if len(payload.ResultURLs) != 1 {
		t.Fatalf("result urls = %#v, want 1 entry", payload.ResultURLs)
	}
}

func TestPhotoshootAnswersOnPhotoURLs(t *testing.T) {
	_, client := newStubClient(t)
	ctx := context.Background()

	created, err := client.CreateJob(ctx, api.CreateJobRequest{Description: "shots", FileTypes: []string{"image/jpeg"}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := client.UploadPayload(ctx, created.UploadURLs[0], "image/jpeg", []byte("jpg")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := client.StartProcessing(ctx, created.JobID, api.ModePhotoshoot, api.StartConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	var payload *api.StatusPayload
	for i := 0; i <= PollsUntilComplete; i++ {
		payload, err = client.GetStatus(ctx, created.JobID)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
	}
	if payload.Status != "completed" {
		t.Fatalf("status = %q, want completed", payload.Status)
	}
	if len(payload.PhotoURLs) != 1 || len(payload.ResultURLs) != 0 {
		t.Fatalf("expected photo_urls fallback shape, got %#v", payload)
	}
}

func TestUnknownJobStatusIsRejected(t *testing.T) {
	_, client := newStubClient(t)
	if _, err := client.GetStatus(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected rejection for unknown job")
	}
}

func TestUploadedBytesAreServedBack(t *testing.T) {
	_, client := newStubClient(t)
	ctx := context.Background()

	created, err := client.CreateJob(ctx, api.CreateJobRequest{Description: "brief", FileTypes: []string{"image/png"}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	want := []byte("png-bytes")
	if err := client.UploadPayload(ctx, created.UploadURLs[0], "image/png", want); err != nil {
		t.Fatalf("upload: %v", err)
	}

	resp, err := http.Get(created.UploadURLs[0].URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("downloaded %q, want %q", buf.Bytes(), want)
	}
}
