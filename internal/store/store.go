// Package store is the local persistence boundary for job records. The
// contract is deliberately coarse: the whole record set is loaded and saved
// wholesale, and callers must read-modify-write the full collection so
// concurrent per-record changes never produce lost updates.
package store

import (
	"context"
	"errors"

	"blitzai/internal/job"
)

// ErrNotFound is returned by Delete when the record id is unknown.
var ErrNotFound = errors.New("store: record not found")

// Store mirrors the set of job records across process restarts.
//
// Load returns the previously persisted set; missing or unparseable data is
// treated as an empty set, never as an error. Save overwrites the entire set.
// Delete removes a single record by id.
type Store interface {
	Load(ctx context.Context) ([]job.Record, error)
	Save(ctx context.Context, records []job.Record) error
	Delete(ctx context.Context, id string) error
}

// removeByID filters one record out of a set, reporting whether it was found.
func removeByID(records []job.Record, id string) ([]job.Record, bool) {
	out := records[:0]
	found := false
	for _, rec := range records {
		if rec.ID == id {
			found = true
			continue
		}
		out = append(out, rec)
	}
	return out, found
}
