// ABOUTME: The durable workflow record and its ULID identifier helper.
// ABOUTME: Records are owned by the registry; everything here is plain data.
package workflow

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record is one durable workflow: a single invocation of a pipeline, from
// PENDING through a terminal status. All mutation goes through the registry.
type Record struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Prompts         []string       `json:"prompts"`
	Strategy        string         `json:"strategy,omitempty"`
	Status          Status         `json:"status"`
	StartedAt       *time.Time     `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at"`
	BranchName      string         `json:"branch_name,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	AsyncTaskID     string         `json:"async_task_id,omitempty"`
	ProgressMessage string         `json:"progress_message"`
	ProgressPercent int            `json:"progress_percent"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
}

// PrimaryPrompt returns the first prompt, the one that drives topic selection.
func (r *Record) PrimaryPrompt() string {
	if len(r.Prompts) == 0 {
		return ""
	}
	return r.Prompts[0]
}

// NewID generates a ULID for a new workflow record. ULIDs sort by creation
// time, which keeps ids monotonically assigned across the registry.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// ClampPercent bounds a progress percentage into [0, 100] before persistence.
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// MaxProgressMessageLen bounds the persisted progress beacon text.
const MaxProgressMessageLen = 500

// TruncateProgressMessage trims a progress beacon message to the persisted limit.
func TruncateProgressMessage(msg string) string {
	if len(msg) <= MaxProgressMessageLen {
		return msg
	}
	return msg[:MaxProgressMessageLen]
}
