package scheduler_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/tastythames/host-backup/internal/results"
	"github.com/tastythames/host-backup/internal/scheduler"
)

// countingRunner records how many runs overlap.
type countingRunner struct {
	active  int32
	maxSeen int32
	hold    time.Duration

	mu   sync.Mutex
	seen []string
}

func (r *countingRunner) Run(_ context.Context, job scheduler.Job) results.Result {
	n := atomic.AddInt32(&r.active, 1)
	for {
		m := atomic.LoadInt32(&r.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&r.maxSeen, m, n) {
			break
		}
	}
	time.Sleep(r.hold)
	atomic.AddInt32(&r.active, -1)

	r.mu.Lock()
	r.seen = append(r.seen, job.Host)
	r.mu.Unlock()
	return results.Result{Host: job.Host}
}

func jobs(n int) []scheduler.Job {
	out := make([]scheduler.Job, n)
	for i := range out {
		h := fmt.Sprintf("10.0.0.%d", i+1)
		out[i] = scheduler.Job{Host: h, ConfigPath: "/store/" + h}
	}
	return out
}

type schedulerSuite struct{}

var _ = gc.Suite(&schedulerSuite{})

func (s *schedulerSuite) TestConcurrencyBound(c *gc.C) {
	r := &countingRunner{hold: 20 * time.Millisecond}
	store := results.NewMemStore()
	sched := scheduler.NewScheduler(scheduler.Options{MaxParallel: 3, Runner: r, Store: store})

	sched.Run(context.Background(), jobs(10))

	c.Check(atomic.LoadInt32(&r.maxSeen) <= 3, jc.IsTrue)
	c.Check(atomic.LoadInt32(&r.maxSeen) >= 1, jc.IsTrue)
	c.Check(r.seen, gc.HasLen, 10)
	c.Check(store.Snapshot(), gc.HasLen, 10)

	started, completed := sched.Stats()
	c.Check(started, gc.Equals, uint64(10))
	c.Check(completed, gc.Equals, uint64(10))
}

func (s *schedulerSuite) TestFewerJobsThanWorkers(c *gc.C) {
	r := &countingRunner{}
	sched := scheduler.NewScheduler(scheduler.Options{MaxParallel: 8, Runner: r})
	sched.Run(context.Background(), jobs(2))
	c.Check(sched.Results(), gc.HasLen, 2)
}

func (s *schedulerSuite) TestNoJobs(c *gc.C) {
	sched := scheduler.NewScheduler(scheduler.Options{Runner: &countingRunner{}})
	sched.Run(context.Background(), nil)
	c.Check(sched.Results(), gc.HasLen, 0)
}

func (s *schedulerSuite) TestDefaultMaxParallel(c *gc.C) {
	r := &countingRunner{hold: 20 * time.Millisecond}
	sched := scheduler.NewScheduler(scheduler.Options{Runner: r})
	sched.Run(context.Background(), jobs(9))
	c.Check(atomic.LoadInt32(&r.maxSeen) <= scheduler.DefaultMaxParallel, jc.IsTrue)
	c.Check(r.seen, gc.HasLen, 9)
}

type panickyRunner struct{}

func (panickyRunner) Run(_ context.Context, job scheduler.Job) results.Result {
	if job.Host == "10.0.0.2" {
		panic("boom")
	}
	return results.Result{Host: job.Host}
}

func (s *schedulerSuite) TestPanicIsContained(c *gc.C) {
	var buf bytes.Buffer
	sched := scheduler.NewScheduler(scheduler.Options{
		MaxParallel: 2,
		Runner:      panickyRunner{},
		Logger:      slog.New(slog.NewTextHandler(&buf, nil)),
	})
	sched.Run(context.Background(), jobs(4))

	res := sched.Results()
	c.Assert(res, gc.HasLen, 4)
	c.Check(res["10.0.0.2"].Failed, jc.IsTrue)
	c.Check(res["10.0.0.1"].Failed, jc.IsFalse)
	c.Check(buf.String(), jc.Contains, `msg="host worker panicked" host=10.0.0.2 panic=boom`)
}
