package canharness

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Task is a body handed to a Scheduler. StackSize and Priority are hints
// kept for parity with RTOS schedulers; goroutines ignore both.
type Task struct {
	Name      string
	Body      func(ctx context.Context)
	StackSize int
	Priority  int
}

// TaskHandle identifies an admitted task. The scheduler owns the task, the
// handle is only good for logging.
type TaskHandle struct {
	id   uint64
	name string
}

func (h TaskHandle) ID() uint64 {
	return h.id
}

func (h TaskHandle) String() string {
	return fmt.Sprintf("%s#%d", h.name, h.id)
}

// Scheduler admits tasks. Admit must not block, it is called from the
// dispatcher's timer path.
type Scheduler interface {
	Admit(tasks ...Task) ([]TaskHandle, error)
}

// Pool runs each admitted task on its own goroutine, bounded by a fixed
// number of slots. Admission of a batch is all or nothing.
type Pool struct {
	ctx   context.Context
	slots int64
	sem   *semaphore.Weighted
	wg    sync.WaitGroup

	seq     atomic.Uint64
	running atomic.Int64
}

// NewPool returns a pool whose tasks run with ctx; cancelling it is the
// equivalent of the process going away.
func NewPool(ctx context.Context, slots int) *Pool {
	return &Pool{
		ctx:   ctx,
		slots: int64(slots),
		sem:   semaphore.NewWeighted(int64(slots)),
	}
}

func (p *Pool) Admit(tasks ...Task) ([]TaskHandle, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if p.ctx.Err() != nil {
		return nil, ErrSchedulerClosed
	}
	if int64(len(tasks)) > p.slots || !p.sem.TryAcquire(int64(len(tasks))) {
		return nil, ErrAdmission
	}
	handles := make([]TaskHandle, 0, len(tasks))
	for _, t := range tasks {
		h := TaskHandle{id: p.seq.Add(1), name: t.Name}
		handles = append(handles, h)
		p.wg.Add(1)
		p.running.Add(1)
		go func(body func(context.Context)) {
			defer p.wg.Done()
			defer p.sem.Release(1)
			defer p.running.Add(-1)
			body(p.ctx)
		}(t.Body)
	}
	return handles, nil
}

// Running is the number of tasks whose body has not returned yet.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Wait blocks until every admitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Delay suspends the calling task for d. It only returns early when ctx is
// done, in which case ctx.Err() is returned.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
