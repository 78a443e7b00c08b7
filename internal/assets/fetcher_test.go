package assets

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"blitzai/internal/job"
)

func TestFetchArchiveBundlesAllRefs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/results/hero.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/results/alt.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("alt-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	rec := job.Record{
		ID:         "job-1",
		State:      job.StateCompleted,
		ResultRefs: []string{server.URL + "/results/hero.png", server.URL + "/results/alt.png"},
	}
	archive, err := NewFetcher(Options{}).FetchArchive(context.Background(), rec)
	if err != nil {
		t.Fatalf("fetch archive: %v", err)
	}
	if len(archive) == 0 {
		t.Fatalf("expected non-empty archive")
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive holds %d entries, want 2", len(zr.File))
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["hero.png"] || !names["alt.png"] {
		t.Fatalf("unexpected entry names: %#v", names)
	}
}

func TestFetchArchiveEmptyRefsIsNotAnError(t *testing.T) {
	rec := job.Record{ID: "job-2", State: job.StateCompleted}
	archive, err := NewFetcher(Options{}).FetchArchive(context.Background(), rec)
	if err != nil {
		t.Fatalf("fetch archive: %v", err)
	}
	if archive != nil {
		t.Fatalf("expected nil archive for empty refs")
	}
}

func TestFetchArchiveFailsOnMissingAsset(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	rec := job.Record{
		ID:         "job-3",
		State:      job.StateCompleted,
		ResultRefs: []string{server.URL + "/results/gone.png"},
	}
	if _, err := NewFetcher(Options{}).FetchArchive(context.Background(), rec); err == nil {
		t.Fatalf("expected error for missing asset")
	}
}
