package canharness

import (
	"fmt"
	"sync/atomic"
)

// ControllerStats are updated from the controller's own goroutines and the
// tasks calling into it, so every counter is atomic.
type ControllerStats struct {
	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
	errors   atomic.Uint64
}

type ControllerSnapshot struct {
	Sent     uint64
	Received uint64
	Dropped  uint64
	Errors   uint64
}

func (st *ControllerStats) Snapshot() ControllerSnapshot {
	return ControllerSnapshot{
		Sent:     st.sent.Load(),
		Received: st.received.Load(),
		Dropped:  st.dropped.Load(),
		Errors:   st.errors.Load(),
	}
}

func (s ControllerSnapshot) String() string {
	return fmt.Sprintf("sent: %d recv: %d dropped: %d errors: %d", s.Sent, s.Received, s.Dropped, s.Errors)
}

// Stats counts dispatch cycles and classified outcomes across all tasks.
type Stats struct {
	fired   atomic.Uint64
	skipped atomic.Uint64
	tx      [4]atomic.Uint64
	rx      [4]atomic.Uint64
}

func (st *Stats) record(kind TaskKind, o Outcome) {
	if o < Success || o > UnhandledError {
		o = UnhandledError
	}
	switch kind {
	case TaskTransmit:
		st.tx[o].Add(1)
	case TaskReceive:
		st.rx[o].Add(1)
	}
}

type Snapshot struct {
	CyclesFired   uint64
	CyclesSkipped uint64
	Transmit      map[Outcome]uint64
	Receive       map[Outcome]uint64
}

func (st *Stats) Snapshot() Snapshot {
	s := Snapshot{
		CyclesFired:   st.fired.Load(),
		CyclesSkipped: st.skipped.Load(),
		Transmit:      make(map[Outcome]uint64, len(Outcomes)),
		Receive:       make(map[Outcome]uint64, len(Outcomes)),
	}
	for _, o := range Outcomes {
		s.Transmit[o] = st.tx[o].Load()
		s.Receive[o] = st.rx[o].Load()
	}
	return s
}

func (s Snapshot) String() string {
	return fmt.Sprintf("cycles: %d skipped: %d tx ok: %d tx failed: %d rx ok: %d rx failed: %d",
		s.CyclesFired, s.CyclesSkipped,
		s.Transmit[Success], s.Transmit[InvalidState]+s.Transmit[Timeout]+s.Transmit[UnhandledError],
		s.Receive[Success], s.Receive[InvalidState]+s.Receive[Timeout]+s.Receive[UnhandledError],
	)
}
