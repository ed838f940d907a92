package jobs

import (
	"time"

	"github.com/MimeLyc/timeline-renderer/internal/template"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type EnqueueRequest struct {
	RecordID string
	Request  *template.Request
}

// Output is what a successful executor hands back to the queue.
type Output struct {
	URL        string
	Resolution string
}

type Job struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	URL        string    `json:"url,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	Error      string    `json:"error,omitempty"`
	RecordID   string    `json:"recordId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	Request *template.Request `json:"-"`
}

const interruptedMessage = "interrupted by restart"
