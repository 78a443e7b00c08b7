package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"blitzai/internal/api"
	"blitzai/internal/job"
)

func testRecords() []job.Record {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return []job.Record{
		{
			ID:          "job-1",
			Description: "summer campaign",
			Mode:        api.ModeCampaign,
			State:       job.StateProcessing,
			StateLabel:  "processing_campaign",
			CreatedAt:   created,
		},
		{
			ID:             "job-2",
			Description:    "product shots",
			Mode:           api.ModePhotoshoot,
			State:          job.StateCompleted,
			CreatedAt:      created.Add(time.Minute),
			ResultRefs:     []string{"https://cdn.example.com/a.png"},
			DerivedContent: "caption",
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()

	records := testRecords()
	if err := s.Save(ctx, records); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, records) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", loaded, records)
	}
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "never-written.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	loaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty set, got %#v", loaded)
	}
}

func TestFileStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	loaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load should swallow corruption, got %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty set from corrupt file, got %#v", loaded)
	}
}

func TestFileStoreDelete(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	if err := s.Save(ctx, testRecords()); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Delete(ctx, "job-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "job-2" {
		t.Fatalf("unexpected remaining set: %#v", loaded)
	}

	if err := s.Delete(ctx, "job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete of missing id = %v, want ErrNotFound", err)
	}
}
