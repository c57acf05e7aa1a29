package canharness

import (
	"errors"

	"go.uber.org/zap"
)

type Option func(h *Harness) error

func WithLogger(log *zap.Logger) Option {
	return func(h *Harness) error {
		if log == nil {
			return errors.New("nil logger")
		}
		h.log = log
		return nil
	}
}

// WithSink sets where classified reports go. The default logs them through
// the harness logger.
func WithSink(sink Sink) Option {
	return func(h *Harness) error {
		if sink == nil {
			return errors.New("nil sink")
		}
		h.sink = sink
		return nil
	}
}

// WithScheduler replaces the default goroutine Pool.
func WithScheduler(s Scheduler) Option {
	return func(h *Harness) error {
		if s == nil {
			return errors.New("nil scheduler")
		}
		h.sched = s
		return nil
	}
}
