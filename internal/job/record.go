// Package job holds the record tracked per submitted unit of creative work and
// the lifecycle rules that reconcile it against processor status payloads.
package job

import (
	"time"

	"blitzai/internal/api"
)

// Record is one submitted unit of work. ID, Description and CreatedAt are
// immutable once assigned; the remaining fields are mutated only through Apply
// or the explicit submission failure path.
type Record struct {
	ID             string            `json:"id"`
	Description    string            `json:"description"`
	Mode           api.Mode          `json:"mode,omitempty"`
	State          State             `json:"state"`
	StateLabel     string            `json:"state_label,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ResultRefs     []string          `json:"result_refs,omitempty"`
	DerivedContent string            `json:"derived_content,omitempty"`
	Options        GenerationOptions `json:"options"`
}

// NewRecord creates a record in the idle state for a processor-assigned id.
func NewRecord(id, description string, mode api.Mode, opts GenerationOptions) Record {
	return Record{
		ID:          id,
		Description: description,
		Mode:        mode,
		State:       StateIdle,
		CreatedAt:   time.Now().UTC(),
		Options:     opts,
	}
}

// Clone returns a deep copy so callers can hand records across goroutine
// boundaries without sharing the ResultRefs slice.
func (r Record) Clone() Record {
	out := r
	if len(r.ResultRefs) > 0 {
		out.ResultRefs = append([]string(nil), r.ResultRefs...)
	}
	return out
}

// Fail moves the record to the failed terminal state on the synchronous
// submission error path.
func (r *Record) Fail(label string) {
	r.State = StateFailed
	r.StateLabel = label
}
