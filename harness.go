package canharness

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Harness is the periodic bus exchange: every Period the dispatcher admits
// a transmitter and a receiver task against the same controller.
type Harness struct {
	cfg        Config
	ctl        Controller
	sched      Scheduler
	sink       Sink
	log        *zap.Logger
	dispatcher *Dispatcher
	stats      Stats
	started    bool

	// tasks is the context default Pool tasks run with; abort cancels it
	// when the controller fails for good.
	tasks context.Context
	abort context.CancelFunc
}

// New validates cfg and wires the harness. Unless WithScheduler is given,
// tasks run on a Pool with cfg.Slots slots, bound to a context derived from
// ctx that is also cancelled on an unrecoverable controller error. Without
// WithLogger the harness logs to zap.L().
func New(ctx context.Context, ctl Controller, cfg Config, opts ...Option) (*Harness, error) {
	if ctl == nil {
		return nil, fmt.Errorf("%w: nil controller", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Harness{
		cfg: cfg,
		ctl: ctl,
		log: zap.L(),
	}
	for _, o := range opts {
		if err := o(h); err != nil {
			return nil, err
		}
	}
	h.tasks, h.abort = context.WithCancel(ctx)
	if h.sched == nil {
		h.sched = NewPool(h.tasks, cfg.Slots)
	}
	if h.sink == nil {
		h.sink = NewZapSink(h.log)
	}
	d, err := NewDispatcher(cfg.Period, h.dispatch)
	if err != nil {
		return nil, err
	}
	d.Limit = cfg.Cycles
	h.dispatcher = d
	return h, nil
}

func (h *Harness) Config() Config {
	return h.cfg
}

func (h *Harness) Stats() Snapshot {
	return h.stats.Snapshot()
}

// Init waits out the startup delay, then configures and starts the
// controller. Any failure is a *DriverError and the harness must not be run.
func (h *Harness) Init(ctx context.Context) error {
	if h.started {
		return nil
	}
	if h.cfg.StartupDelay > 0 {
		h.log.Info("delaying startup", zap.Duration("delay", h.cfg.StartupDelay))
		if err := Delay(ctx, h.cfg.StartupDelay); err != nil {
			return err
		}
	}
	bus := h.cfg.Bus
	if err := h.ctl.Configure(ctx, &bus); err != nil {
		h.log.Error("CAN INIT [ FAILED ]", zap.String("adapter", h.ctl.Name()), zap.Error(err))
		return &DriverError{Op: "configure", Err: err}
	}
	h.log.Info("CAN INIT [ SUCCESS ]", zap.String("adapter", h.ctl.Name()),
		zap.Stringer("mode", bus.Mode), zap.Float64("kbit", bus.CANRate), zap.Bool("loopback", bus.Loopback))
	if err := h.ctl.Start(); err != nil {
		h.log.Error("CAN STARTED [ FAILED ]", zap.Error(err))
		return &DriverError{Op: "start", Err: err}
	}
	h.log.Info("CAN STARTED [ SUCCESS ]")
	h.started = true
	return nil
}

// Fire performs a single dispatch cycle outside the periodic timer.
func (h *Harness) Fire() uint64 {
	return h.dispatcher.Fire()
}

// Run initialises the controller if needed, arms the dispatcher and
// supervises controller events until ctx is done, the cycle limit is hit or
// the controller reports an unrecoverable error. Tasks admitted by the last
// cycles are waited for when the scheduler supports it; after an
// unrecoverable error the default Pool's tasks are cancelled first, so the
// harness cannot be run again.
func (h *Harness) Run(ctx context.Context) error {
	if err := h.Init(ctx); err != nil {
		return err
	}
	h.log.Info("dispatcher armed", zap.Duration("period", h.cfg.Period), zap.Uint64("cycles", h.cfg.Cycles))

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(rctx)
	g.Go(func() error {
		defer cancel()
		return h.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return h.watch(gctx)
	})
	err := g.Wait()
	if err != nil && !IsRecoverable(err) {
		// tasks blocked on a dead controller would never return
		h.abort()
	}

	if w, ok := h.sched.(interface{ Wait() }); ok {
		w.Wait()
	}
	h.log.Info("harness stopped", zap.Stringer("stats", h.stats.Snapshot()), zap.Stringer("controller", h.ctl.Stats()))
	return err
}

// dispatch is the dispatcher handler. It only asks the scheduler for two
// new tasks; if that fails the cycle is dropped and the next firing tries
// again.
func (h *Harness) dispatch(cycle uint64) {
	h.stats.fired.Add(1)
	cfg := h.cfg.Exchange
	if _, err := h.sched.Admit(
		Task{Name: "CAN-Write", Body: h.transmitTask(cycle, cfg), StackSize: cfg.StackSize, Priority: cfg.Priority},
		Task{Name: "CAN-Read", Body: h.receiveTask(cycle, cfg), StackSize: cfg.StackSize, Priority: cfg.Priority},
	); err != nil {
		h.stats.skipped.Add(1)
		h.log.Debug("dispatch cycle skipped", zap.Uint64("cycle", cycle), zap.Error(err))
	}
}

func (h *Harness) record(r Report) {
	h.stats.record(r.Task, r.Outcome)
	h.sink.Record(r)
}

func (h *Harness) watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-h.ctl.Event():
			h.logEvent(evt)
		case err := <-h.ctl.Err():
			if err == nil {
				continue
			}
			if !IsRecoverable(err) {
				return fmt.Errorf("%s: %w", h.ctl.Name(), err)
			}
			h.log.Warn("controller error", zap.String("adapter", h.ctl.Name()), zap.Error(err))
		}
	}
}

func (h *Harness) logEvent(evt Event) {
	fields := []zap.Field{zap.String("adapter", h.ctl.Name()), zap.Time("at", evt.Time)}
	switch evt.Type {
	case EventTypeError:
		h.log.Error(evt.Details, fields...)
	case EventTypeWarning:
		h.log.Warn(evt.Details, fields...)
	case EventTypeInfo:
		h.log.Info(evt.Details, fields...)
	default:
		h.log.Debug(evt.Details, fields...)
	}
}
