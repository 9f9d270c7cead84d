package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tastythames/host-backup/internal/results"
)

const DefaultMaxParallel = 4

type Scheduler struct {
	maxParallel int
	runner      Runner
	store       results.Store
	log         *slog.Logger

	// stats (atomic) for observability
	started   uint64
	completed uint64
}

type Options struct {
	MaxParallel int
	Runner      Runner
	Store       results.Store
	Logger      *slog.Logger
}

// NewScheduler creates a scheduler that runs jobs on a fixed pool of
// MaxParallel workers.
func NewScheduler(opts Options) *Scheduler {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.Store == nil {
		opts.Store = results.NewMemStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		maxParallel: opts.MaxParallel,
		runner:      opts.Runner,
		store:       opts.Store,
		log:         opts.Logger,
	}
}

// Run executes every job and returns once all of them have finished. Jobs
// run in no particular order. A failing host never stops the others.
func (s *Scheduler) Run(ctx context.Context, jobs []Job) {
	workers := s.maxParallel
	if len(jobs) < workers {
		workers = len(jobs)
	}

	jobCh := make(chan Job)
	var g errgroup.Group
	g.SetLimit(workers + 1)

	for i := 0; i < workers; i++ {
		id := i
		g.Go(func() error {
			s.startWorker(ctx, id, jobCh)
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobCh)
		for _, j := range jobs {
			jobCh <- j
		}
		return nil
	})

	_ = g.Wait()
}

func (s *Scheduler) startWorker(ctx context.Context, id int, jobs <-chan Job) {
	s.log.Debug("worker started", "worker", id)
	for job := range jobs {
		atomic.AddUint64(&s.started, 1)
		res := s.runOne(ctx, job)
		s.store.Set(job.Host, res)
		atomic.AddUint64(&s.completed, 1)
	}
}

// runOne keeps a panicking runner from taking the rest of the fleet down.
func (s *Scheduler) runOne(ctx context.Context, job Job) (res results.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("host worker panicked", "host", job.Host, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res = results.Result{Host: job.Host, At: start, Duration: time.Since(start), Failed: true}
		}
	}()
	return s.runner.Run(ctx, job)
}

func (s *Scheduler) Stats() (started uint64, completed uint64) {
	return atomic.LoadUint64(&s.started), atomic.LoadUint64(&s.completed)
}

// Results returns what the workers recorded so far.
func (s *Scheduler) Results() map[string]results.Result {
	return s.store.Snapshot()
}
