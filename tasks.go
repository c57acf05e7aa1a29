package canharness

import (
	"context"
	"time"
)

// transmitTask sends MessageCount frames carrying their sequence index in
// byte 0. Failures are recorded; under PolicyContinue the loop goes on.
func (h *Harness) transmitTask(cycle uint64, cfg ExchangeConfig) func(context.Context) {
	return func(ctx context.Context) {
		for i := 0; i < cfg.MessageCount; i++ {
			frame := NewFrame(cfg.Identifier, []byte{byte(i)}, Outgoing)
			err := h.ctl.Transmit(ctx, frame, cfg.TransmitTimeout)
			if err != nil && ctx.Err() != nil {
				return
			}
			outcome, st := ClassifyErr(err)
			h.record(Report{
				Cycle:   cycle,
				Task:    TaskTransmit,
				Index:   i,
				Outcome: outcome,
				Status:  st,
				Frame:   frame,
				Time:    time.Now(),
			})
			if outcome != Success && cfg.TransmitPolicy == PolicyAbort {
				return
			}
			if i == cfg.MessageCount-1 {
				break
			}
			if err := Delay(ctx, cfg.Delay); err != nil {
				return
			}
		}
	}
}

// receiveTask reads up to MessageCount frames. Under PolicyAbort, the
// default, the first failed receive ends the task.
func (h *Harness) receiveTask(cycle uint64, cfg ExchangeConfig) func(context.Context) {
	return func(ctx context.Context) {
		for i := 0; i < cfg.MessageCount; i++ {
			frame, err := h.ctl.Receive(ctx, cfg.ReceiveTimeout)
			if err != nil && ctx.Err() != nil {
				return
			}
			outcome, st := ClassifyErr(err)
			if err != nil {
				frame = nil
			}
			h.record(Report{
				Cycle:   cycle,
				Task:    TaskReceive,
				Index:   i,
				Outcome: outcome,
				Status:  st,
				Frame:   frame,
				Time:    time.Now(),
			})
			if outcome != Success && cfg.ReceivePolicy == PolicyAbort {
				return
			}
		}
	}
}
