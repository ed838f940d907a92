// Package record mirrors job status transitions onto an external project
// record. Updates are best effort: a failed write is logged and counted,
// never surfaced to the render job.
package record

import (
	"context"
	"sync"
	"time"

	"github.com/MimeLyc/timeline-renderer/internal/jobs"
	"github.com/MimeLyc/timeline-renderer/internal/metrics"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

const DefaultUpdateTimeout = 10 * time.Second

type Update struct {
	Status     string
	URL        string
	Resolution string
	Error      string
}

// Recorder writes one status update to the record with the given id.
type Recorder interface {
	Update(ctx context.Context, recordID string, u Update) error
}

type Nop struct{}

func (Nop) Update(context.Context, string, Update) error { return nil }

// FromJob builds the update for a job's current status.
func FromJob(job jobs.Job) Update {
	u := Update{Status: string(job.Status)}
	switch job.Status {
	case jobs.StatusCompleted:
		u.URL = job.URL
		u.Resolution = job.Resolution
	case jobs.StatusFailed:
		u.Error = job.Error
	}
	return u
}

// Notifier sends updates asynchronously with a per-update timeout.
type Notifier struct {
	recorder Recorder
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewNotifier(recorder Recorder, timeout time.Duration) *Notifier {
	if recorder == nil {
		recorder = Nop{}
	}
	if timeout <= 0 {
		timeout = DefaultUpdateTimeout
	}
	return &Notifier{recorder: recorder, timeout: timeout}
}

// Hook adapts the notifier to queue transitions. Jobs without a record id
// are skipped.
func (n *Notifier) Hook() jobs.TransitionHook {
	return func(job jobs.Job) {
		if job.RecordID == "" {
			return
		}
		n.Notify(job.RecordID, FromJob(job))
	}
}

func (n *Notifier) Notify(recordID string, u Update) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.recorder.Update(ctx, recordID, u); err != nil {
			metrics.RecordUpdateFailures.Inc()
			log.Warn("record=%s status=%s update failed: %v", recordID, u.Status, err)
		}
	}()
}

// Wait blocks until every pending update has returned.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
