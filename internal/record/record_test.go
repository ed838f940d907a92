package record

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/timeline-renderer/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeRecorder struct {
	mu      sync.Mutex
	updates map[string][]Update
	err     error
	block   bool
}

func (f *fakeRecorder) Update(ctx context.Context, recordID string, u Update) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = make(map[string][]Update)
	}
	f.updates[recordID] = append(f.updates[recordID], u)
	return f.err
}

func TestFromJob(t *testing.T) {
	completed := FromJob(jobs.Job{Status: jobs.StatusCompleted, URL: "/renders/a.mp4", Resolution: "1080x1920", Error: "ignored"})
	assert.Equal(t, Update{Status: "completed", URL: "/renders/a.mp4", Resolution: "1080x1920"}, completed)

	failed := FromJob(jobs.Job{Status: jobs.StatusFailed, Error: "engine exploded", URL: "ignored"})
	assert.Equal(t, Update{Status: "failed", Error: "engine exploded"}, failed)

	assert.Equal(t, Update{Status: "processing"}, FromJob(jobs.Job{Status: jobs.StatusProcessing}))
}

func TestNotifier_HookSkipsJobsWithoutRecord(t *testing.T) {
	rec := &fakeRecorder{}
	n := NewNotifier(rec, time.Second)

	hook := n.Hook()
	hook(jobs.Job{ID: "a", Status: jobs.StatusProcessing})
	hook(jobs.Job{ID: "b", RecordID: "rec-b", Status: jobs.StatusCompleted, URL: "u"})
	n.Wait()

	assert.Len(t, rec.updates, 1)
	assert.Equal(t, []Update{{Status: "completed", URL: "u"}}, rec.updates["rec-b"])
}

func TestNotifier_FailuresDoNotPropagate(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	n := NewNotifier(rec, time.Second)

	n.Notify("rec-1", Update{Status: "failed"})
	n.Wait()

	assert.Len(t, rec.updates["rec-1"], 1)
}

func TestNotifier_TimesOutSlowRecorder(t *testing.T) {
	n := NewNotifier(&fakeRecorder{block: true}, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		n.Notify("rec-1", Update{Status: "processing"})
		n.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifier did not give up on a blocked recorder")
	}
}

func TestRecordFilter(t *testing.T) {
	hex := "65a1b2c3d4e5f60718293a4b"
	oid, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)

	assert.Equal(t, bson.M{"_id": oid}, recordFilter(hex))
	assert.Equal(t, bson.M{"_id": "project-42"}, recordFilter("project-42"))
}

func TestSetFields_OmitsEmptyValues(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, bson.M{"renderStatus": "processing", "updatedAt": now}, setFields(Update{Status: "processing"}, now))
	assert.Equal(t, bson.M{
		"renderStatus": "completed",
		"renderUrl":    "/renders/a.mp4",
		"resolution":   "1080x1920",
		"updatedAt":    now,
	}, setFields(Update{Status: "completed", URL: "/renders/a.mp4", Resolution: "1080x1920"}, now))
}
