package canharness

import (
	"sync"
	"sync/atomic"
)

// Hub fans reports out to a fixed set of sinks and to any number of
// channel subscribers. Slow subscribers lose reports rather than stalling
// the tasks that produce them.
type Hub struct {
	sinks []Sink

	mu        sync.RWMutex
	subs      map[TaskKind]map[*Subscriber]struct{}
	allSubs   map[*Subscriber]struct{}
	undeliver atomic.Uint64
}

func NewHub(sinks ...Sink) *Hub {
	return &Hub{
		sinks:   sinks,
		subs:    make(map[TaskKind]map[*Subscriber]struct{}),
		allSubs: make(map[*Subscriber]struct{}),
	}
}

// Subscribe returns a subscriber for reports of the given kinds, all kinds
// when none are given.
func (h *Hub) Subscribe(bufSize int, kinds ...TaskKind) *Subscriber {
	if bufSize <= 0 {
		bufSize = 100
	}
	sub := &Subscriber{
		hub:   h,
		kinds: kinds,
		ch:    make(chan Report, bufSize),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(kinds) == 0 {
		h.allSubs[sub] = struct{}{}
		return sub
	}
	for _, k := range kinds {
		if _, ok := h.subs[k]; !ok {
			h.subs[k] = make(map[*Subscriber]struct{})
		}
		h.subs[k][sub] = struct{}{}
	}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(sub.kinds) == 0 {
		delete(h.allSubs, sub)
	}
	for _, k := range sub.kinds {
		if subs, ok := h.subs[k]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.subs, k)
			}
		}
	}
	close(sub.ch)
}

// Record implements Sink.
func (h *Hub) Record(r Report) {
	for _, s := range h.sinks {
		s.Record(r)
	}
	h.deliver(r)
}

// Undelivered counts reports dropped because a subscriber was full.
func (h *Hub) Undelivered() uint64 {
	return h.undeliver.Load()
}

// NOTE: We send while holding RLock on h.mu. unsubscribe acquires the write lock
// and closes sub.ch. Holding RLock guarantees the channel won't be closed
// mid-send, avoiding send-on-closed-channel panics.
func (h *Hub) deliver(r Report) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.allSubs {
		h.send(sub, r)
	}
	for sub := range h.subs[r.Task] {
		h.send(sub, r)
	}
}

func (h *Hub) send(sub *Subscriber, r Report) {
	select {
	case sub.ch <- r:
	default:
		h.undeliver.Add(1)
	}
}
