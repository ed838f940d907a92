package main

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/timeline-renderer/internal/jobs"
	"github.com/MimeLyc/timeline-renderer/pkg/file"
	"github.com/MimeLyc/timeline-renderer/pkg/icron"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

type cronScheduler interface {
	AddFunc(expr string, cmd func()) (cron.EntryID, error)
	Remove(id cron.EntryID)
}

// rowPruner drops persisted jobs older than a cutoff, including rows left
// behind by earlier processes.
type rowPruner interface {
	DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// sweeper evicts expired jobs on a cron schedule and cleans up what they
// leave behind.
type sweeper struct {
	queue     *jobs.Queue
	pruner    rowPruner
	tempDir   string
	retention time.Duration
	cron      cronScheduler
	now       func() time.Time

	mu    sync.Mutex
	expr  string
	entry cron.EntryID
	ctx   context.Context
	group singleflight.Group
}

func newSweeper(queue *jobs.Queue, pruner rowPruner, tempDir string, retention time.Duration, c cronScheduler, expr string) *sweeper {
	return &sweeper{
		queue:     queue,
		pruner:    pruner,
		tempDir:   tempDir,
		retention: retention,
		cron:      c,
		now:       time.Now,
		expr:      expr,
		ctx:       context.Background(),
	}
}

func (s *sweeper) Schedule(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	expr := s.expr
	s.mu.Unlock()
	return s.Reschedule(expr)
}

// Reschedule swaps the cron entry. On error the previous entry stays.
func (s *sweeper) Reschedule(expr string) error {
	if _, err := icron.Parse(expr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(expr, s.run)
	if err != nil {
		return err
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = id
	s.expr = expr
	log.Info("Job sweep scheduled: %q", expr)
	return nil
}

func (s *sweeper) Expr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

func (s *sweeper) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	_, _, _ = s.group.Do("sweep", func() (any, error) {
		s.Sweep(ctx, s.now())
		return nil, nil
	})
}

func (s *sweeper) Sweep(ctx context.Context, now time.Time) {
	evicted := s.queue.Evict(now)
	cutoff := now.Add(-s.retention)

	if s.pruner != nil {
		n, err := s.pruner.DeleteJobsBefore(ctx, cutoff)
		if err != nil {
			log.Error("Failed to prune persisted jobs: %v", err)
		} else if n > 0 {
			log.Info("Pruned %d persisted job(s)", n)
		}
	}

	removed, err := file.RemoveStale(s.tempDir, cutoff)
	if err != nil {
		log.Error("Failed to clean temp dir %s: %v", s.tempDir, err)
	} else if removed > 0 {
		log.Info("Removed %d stale temp file(s) from %s", removed, s.tempDir)
	}

	log.Debug("Sweep done: evicted=%d", len(evicted))
}
