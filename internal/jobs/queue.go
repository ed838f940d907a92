package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MimeLyc/timeline-renderer/internal/errs"
	"github.com/MimeLyc/timeline-renderer/internal/metrics"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
	"github.com/google/uuid"
)

const DefaultRetention = time.Hour

// Reporter receives engine progress for the job being executed.
type Reporter interface {
	Progress(percent int)
}

type Executor func(ctx context.Context, job *Job, report Reporter) (Output, error)

// TransitionHook observes every status change with a snapshot of the job.
type TransitionHook func(job Job)

type Option func(*Queue)

func WithRetention(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retention = d
		}
	}
}

func WithTransitionHook(hook TransitionHook) Option {
	return func(q *Queue) {
		q.hooks = append(q.hooks, hook)
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

type Queue struct {
	workerCount int
	retention   time.Duration
	store       Store
	hooks       []TransitionHook
	now         func() time.Time

	mu         sync.RWMutex
	jobs       map[string]*Job
	started    bool
	pendingIDs chan string

	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(workerCount int, store Store, opts ...Option) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workerCount: workerCount,
		retention:   DefaultRetention,
		store:       store,
		now:         time.Now,
		jobs:        make(map[string]*Job),
		pendingIDs:  make(chan string, 1024),
		ctx:         ctx,
		cancel:      cancel,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.hydrateFromStore(context.Background())
	return q
}

// Enqueue stores a pending job and schedules it. It never blocks on rendering.
func (q *Queue) Enqueue(req EnqueueRequest) *Job {
	now := q.now()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		RecordID:  req.RecordID,
		Request:   req.Request,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	started := q.started
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	if started {
		q.enqueuePendingID(job.ID)
	}
	return snapshot
}

func (q *Queue) Get(id string) (*Job, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns all known jobs, newest first.
func (q *Queue) List() []*Job {
	q.mu.RLock()
	ret := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, cloneJob(job))
	}
	q.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].ID < ret[j].ID
		}
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	return ret
}

func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]*Job, 0)
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	ids := make([]string, 0, len(pending))
	for _, job := range pending {
		ids = append(ids, job.ID)
	}
	q.mu.Unlock()

	for _, id := range ids {
		q.enqueuePendingID(id)
	}

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop cancels in-flight jobs and waits for the workers to return.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.cancel()
		q.wg.Wait()
	})
}

// Evict removes every job created more than the retention window before now,
// whatever its status. Later updates to an evicted id are ignored.
func (q *Queue) Evict(now time.Time) []string {
	cutoff := now.Add(-q.retention)

	q.mu.Lock()
	evicted := make([]string, 0)
	for id, job := range q.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(q.jobs, id)
			evicted = append(evicted, id)
		}
	}
	q.mu.Unlock()

	sort.Strings(evicted)
	if len(evicted) > 0 {
		metrics.JobsEvictedTotal.Add(float64(len(evicted)))
		log.Info("Evicted %d job(s) older than %s", len(evicted), q.retention)
	}
	q.deleteJobsFromStore(evicted)
	return evicted
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.pendingIDs:
			q.run(exec, id)
		}
	}
}

func (q *Queue) run(exec Executor, id string) {
	job, ok := q.markProcessing(id)
	if !ok {
		return
	}
	started := q.now()
	metrics.RenderActiveJobs.Inc()
	defer metrics.RenderActiveJobs.Dec()

	var out Output
	err := errs.SafeExecute(func() error {
		var execErr error
		out, execErr = exec(q.ctx, job, &reporter{q: q, id: id})
		return execErr
	})
	metrics.RenderDuration.Observe(q.now().Sub(started).Seconds())

	if err != nil {
		log.Error("job=%s failed: %v", id, err)
		q.markFailed(id, err.Error())
		return
	}
	log.Info("job=%s completed: %s", id, out.URL)
	q.markCompleted(id, out)
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() { q.pendingIDs <- id }()
	}
}

// update applies fn to a live job under the lock. fn returns false to leave
// the job untouched. Missing ids are a no-op.
func (q *Queue) update(id string, fn func(job *Job) bool) (*Job, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || !fn(job) {
		q.mu.Unlock()
		return nil, false
	}
	job.UpdatedAt = q.now()
	snapshot := cloneJob(job)
	q.mu.Unlock()
	return snapshot, true
}

func (q *Queue) markProcessing(id string) (*Job, bool) {
	snapshot, ok := q.update(id, func(job *Job) bool {
		if job.Status != StatusPending {
			return false
		}
		job.Status = StatusProcessing
		return true
	})
	if ok {
		q.transitioned(snapshot)
	}
	return snapshot, ok
}

func (q *Queue) markCompleted(id string, out Output) {
	snapshot, ok := q.update(id, func(job *Job) bool {
		if job.Status.Terminal() {
			return false
		}
		job.Status = StatusCompleted
		job.Progress = 100
		job.URL = out.URL
		job.Resolution = out.Resolution
		job.Error = ""
		return true
	})
	if ok {
		metrics.RenderJobsTotal.WithLabelValues(string(StatusCompleted)).Inc()
		q.transitioned(snapshot)
	}
}

func (q *Queue) markFailed(id string, message string) {
	snapshot, ok := q.update(id, func(job *Job) bool {
		if job.Status.Terminal() {
			return false
		}
		job.Status = StatusFailed
		job.Error = message
		return true
	})
	if ok {
		metrics.RenderJobsTotal.WithLabelValues(string(StatusFailed)).Inc()
		q.transitioned(snapshot)
	}
}

// setProgress raises a processing job's progress, clamped to [1,99].
func (q *Queue) setProgress(id string, percent int) {
	percent = max(1, min(percent, 99))
	q.update(id, func(job *Job) bool {
		if job.Status != StatusProcessing || percent <= job.Progress {
			return false
		}
		job.Progress = percent
		return true
	})
}

func (q *Queue) transitioned(job *Job) {
	q.persistJob(job)
	for _, hook := range q.hooks {
		hook(*cloneJob(job))
	}
}

type reporter struct {
	q  *Queue
	id string
}

func (r *reporter) Progress(percent int) {
	r.q.setProgress(r.id, percent)
}

func (q *Queue) deleteJobsFromStore(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete evicted job %s from store: %v", id, err)
		}
	}
}

// hydrateFromStore loads persisted jobs. Jobs that were still pending or
// processing when the process stopped cannot be resumed and become failed.
func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from store: %v", err)
		return
	}

	now := q.now()
	toPersist := make([]*Job, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if !job.Status.Terminal() {
			job.Status = StatusFailed
			job.Error = interruptedMessage
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		q.jobs[job.ID] = job
	}
	q.mu.Unlock()

	for _, job := range toPersist {
		q.transitioned(job)
	}
}

func (q *Queue) persistJob(job *Job) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}
