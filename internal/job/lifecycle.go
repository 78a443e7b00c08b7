package job

import (
	"strings"

	"blitzai/internal/api"
)

// State is the local lifecycle position of a record.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state ends the lifecycle. Terminal records are
// never polled again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// LabelInitializing is the sub-label shown while the processor waits for the
// payload upload to land.
const LabelInitializing = "initializing"

type mappedStatus struct {
	state State
	label string
}

// statusTable reproduces the processor's status vocabulary exactly. Unknown
// values are not listed; they map to processing with the raw value as label so
// new remote statuses never stall the client.
var statusTable = map[string]mappedStatus{
	"pending_upload":      {state: StateProcessing, label: LabelInitializing},
	"processing":          {state: StateProcessing, label: "processing"},
	"processing_magic":    {state: StateProcessing, label: "processing_magic"},
	"generating_photos":   {state: StateProcessing, label: "generating_photos"},
	"processing_campaign": {state: StateProcessing, label: "processing_campaign"},
	"completed":           {state: StateCompleted},
	"pending_details":     {state: StateCompleted},
	"failed":              {state: StateFailed},
}

// MapRemoteStatus translates a remote status string into a lifecycle state and
// display sub-label.
func MapRemoteStatus(remote string) (State, string) {
	remote = strings.TrimSpace(remote)
	if m, ok := statusTable[remote]; ok {
		return m.state, m.label
	}
	return StateProcessing, remote
}

// ExtractResultRefs pulls result locators out of a status payload. The field
// precedence is a compatibility contract with the processor and must not be
// reordered: result_urls, then result_url, then photo_urls, then
// clean_photo_urls. The first non-empty field wins; none present yields nil.
func ExtractResultRefs(p *api.StatusPayload) []string {
	if p == nil {
		return nil
	}
	if len(p.ResultURLs) > 0 {
		return append([]string(nil), p.ResultURLs...)
	}
	if strings.TrimSpace(p.ResultURL) != "" {
		return []string{p.ResultURL}
	}
	if len(p.PhotoURLs) > 0 {
		return append([]string(nil), p.PhotoURLs...)
	}
	if len(p.CleanPhotoURLs) > 0 {
		return append([]string(nil), p.CleanPhotoURLs...)
	}
	return nil
}

// Apply reconciles one status payload into the record. It is idempotent and
// monotonic: a record that has reached a terminal state never moves back to
// processing, and ResultRefs is set at most once. DerivedContent is the one
// field that stays mutable after completion; the processor may attach social
// copy late and the newest non-empty value always wins.
func (r *Record) Apply(p *api.StatusPayload) bool {
	if p == nil {
		return false
	}
	changed := false
	if copyText := strings.TrimSpace(p.SocialCopy); copyText != "" && copyText != r.DerivedContent {
		r.DerivedContent = copyText
		changed = true
	}
	if r.State.Terminal() {
		return changed
	}

	state, label := MapRemoteStatus(p.Status)
	if r.State != state || r.StateLabel != label {
		r.State = state
		r.StateLabel = label
		changed = true
	}
	if state == StateCompleted && len(r.ResultRefs) == 0 {
		if refs := ExtractResultRefs(p); len(refs) > 0 {
			r.ResultRefs = refs
			changed = true
		}
		// A completed status with none of the recognized result fields is a
		// recoverable inconsistency: the record completes with empty refs.
	}
	return changed
}
