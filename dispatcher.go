package canharness

import (
	"context"
	"errors"
	"time"
)

// Dispatcher fires a handler at a fixed period. The handler runs on the
// dispatcher goroutine and stands in for an interrupt: it must return
// quickly and never block, anything longer belongs in a scheduled task.
type Dispatcher struct {
	Period time.Duration
	// Limit stops Run after that many firings of that Run, 0 means no limit.
	Limit uint64

	handler func(cycle uint64)
	cycle   uint64
}

func NewDispatcher(period time.Duration, handler func(cycle uint64)) (*Dispatcher, error) {
	if period <= 0 {
		return nil, errors.New("dispatcher period must be positive")
	}
	if handler == nil {
		return nil, errors.New("dispatcher handler is nil")
	}
	return &Dispatcher{Period: period, handler: handler}, nil
}

// Fire runs one firing. The cycle counter is owned by the dispatcher and
// passed to the handler, Fire must not be called concurrently with Run.
func (d *Dispatcher) Fire() uint64 {
	d.cycle++
	d.handler(d.cycle)
	return d.cycle
}

// Cycles returns the number of firings so far.
func (d *Dispatcher) Cycles() uint64 {
	return d.cycle
}

// Run arms the timer and fires every Period until ctx is done or Limit is
// reached. Missed ticks are not queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Period)
	defer ticker.Stop()
	var fired uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Fire()
			if fired++; d.Limit > 0 && fired >= d.Limit {
				return nil
			}
		}
	}
}
