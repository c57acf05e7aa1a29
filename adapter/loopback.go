package adapter

import (
	"context"

	"github.com/devboard/canharness"
)

func init() {
	if err := canharness.RegisterAdapter(&canharness.AdapterInfo{
		Name:               "Loopback",
		Description:        "In-memory bus, every frame is received back",
		RequiresSerialPort: false,
		New:                NewLoopback,
	}); err != nil {
		panic(err)
	}
}

// Loopback is a controller without a wire. Frames leave the transmit queue
// and, with BusConfig.Loopback set, land in the receive queue. Inject plays
// the part of other nodes on the bus.
type Loopback struct {
	*canharness.BaseController
}

func NewLoopback(cfg *canharness.AdapterConfig) (canharness.Controller, error) {
	return &Loopback{
		BaseController: canharness.NewBaseController("Loopback", cfg),
	}, nil
}

func (l *Loopback) Configure(ctx context.Context, cfg *canharness.BusConfig) error {
	return l.Install(cfg)
}

func (l *Loopback) Start() error {
	stop, err := l.Activate()
	if err != nil {
		return err
	}
	go l.sendManager(stop)
	return nil
}

func (l *Loopback) Stop() error {
	return l.Deactivate()
}

func (l *Loopback) Close() error {
	l.BaseController.Close()
	return nil
}

// Inject delivers a frame as if another node had sent it.
func (l *Loopback) Inject(frame *canharness.CANFrame) bool {
	return l.Deliver(frame)
}

func (l *Loopback) sendManager(stop <-chan struct{}) {
	out := l.Outgoing()
	for {
		select {
		case <-stop:
			return
		case frame := <-out:
			l.Sent(frame)
			l.Echo(frame)
		}
	}
}
