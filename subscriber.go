package canharness

import (
	"context"
	"sync"
)

type Subscriber struct {
	hub       *Hub
	kinds     []TaskKind
	ch        chan Report
	closeOnce sync.Once
}

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.hub.unsubscribe(s)
	})
}

func (s *Subscriber) Chan() <-chan Report {
	return s.ch
}

// Wait returns the next report, false when ctx ends or the subscriber is closed.
func (s *Subscriber) Wait(ctx context.Context) (Report, bool) {
	select {
	case <-ctx.Done():
		return Report{}, false
	case r, ok := <-s.ch:
		return r, ok
	}
}
