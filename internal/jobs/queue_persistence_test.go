package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*Job)}
}

func (m *memoryStore) LoadJobs(_ context.Context) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		ret = append(ret, cloneJob(j))
	}
	return ret, nil
}

func (m *memoryStore) UpsertJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memoryStore) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *memoryStore) get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return cloneJob(j), ok
}

func TestQueue_InterruptedJobsFailOnRestart(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.jobs["a"] = &Job{ID: "a", Status: StatusPending, RecordID: "rec-a", CreatedAt: now, UpdatedAt: now}
	store.jobs["b"] = &Job{ID: "b", Status: StatusProcessing, Progress: 40, CreatedAt: now, UpdatedAt: now}
	store.jobs["c"] = &Job{ID: "c", Status: StatusCompleted, Progress: 100, URL: "/renders/render-c.mp4", CreatedAt: now, UpdatedAt: now}

	var hooked []Job
	q := NewQueue(1, store, WithTransitionHook(func(job Job) { hooked = append(hooked, job) }))

	for _, id := range []string{"a", "b"} {
		got, ok := q.Get(id)
		require.True(t, ok)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, interruptedMessage, got.Error)

		stored, _ := store.get(id)
		assert.Equal(t, StatusFailed, stored.Status)
	}
	got, _ := q.Get("c")
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "/renders/render-c.mp4", got.URL)

	require.Len(t, hooked, 2)
	recordIDs := []string{hooked[0].RecordID, hooked[1].RecordID}
	assert.Contains(t, recordIDs, "rec-a")
}

func TestQueue_PersistsTransitionsAndEvictions(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store)
	q.Start(func(context.Context, *Job, Reporter) (Output, error) {
		return Output{URL: "/renders/x.mp4"}, nil
	})
	defer q.Stop()

	job := q.Enqueue(EnqueueRequest{})
	waitForStatus(t, q, job.ID, StatusCompleted)

	require.Eventually(t, func() bool {
		stored, ok := store.get(job.ID)
		return ok && stored.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)

	q.Evict(time.Now().Add(2 * time.Hour))
	_, ok := store.get(job.ID)
	assert.False(t, ok)
}
