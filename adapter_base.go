package canharness

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

type driverState int

const (
	stateUninstalled driverState = iota
	stateStopped
	stateRunning
	stateClosed
)

func (s driverState) String() string {
	switch s {
	case stateUninstalled:
		return "uninstalled"
	case stateStopped:
		return "stopped"
	case stateRunning:
		return "running"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// BaseController implements the queueing, state and timeout handling shared
// by all drivers. A driver embeds it, moves frames from Outgoing onto its
// wire and hands received frames to Deliver.
type BaseController struct {
	name string
	cfg  *AdapterConfig

	mu       sync.RWMutex
	state    driverState
	bus      BusConfig
	stopChan chan struct{}

	sendChan, recvChan chan *CANFrame

	errOnce sync.Once
	errChan chan error

	evtChan chan Event

	closeOnce sync.Once
	closeChan chan struct{}

	stats ControllerStats
}

func NewBaseController(name string, cfg *AdapterConfig) *BaseController {
	if cfg == nil {
		cfg = &AdapterConfig{}
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(msg string) {
			zap.L().Debug(msg, zap.String("adapter", name))
		}
	}
	txLen, rxLen := cfg.TxQueueLen, cfg.RxQueueLen
	if txLen <= 0 {
		txLen = DefaultTxQueueLen
	}
	if rxLen <= 0 {
		rxLen = DefaultRxQueueLen
	}
	return &BaseController{
		name:      name,
		cfg:       cfg,
		sendChan:  make(chan *CANFrame, txLen),
		recvChan:  make(chan *CANFrame, rxLen),
		errChan:   make(chan error, 1),
		evtChan:   make(chan Event, 100),
		closeChan: make(chan struct{}),
	}
}

// Name returns the adapter name.
func (base *BaseController) Name() string {
	return base.name
}

func (base *BaseController) Config() *AdapterConfig {
	return base.cfg
}

// Bus returns a copy of the installed bus parameters.
func (base *BaseController) Bus() BusConfig {
	base.mu.RLock()
	defer base.mu.RUnlock()
	return base.bus
}

func (base *BaseController) Running() bool {
	base.mu.RLock()
	defer base.mu.RUnlock()
	return base.state == stateRunning
}

// Install validates and stores cfg. Allowed while uninstalled or stopped.
func (base *BaseController) Install(cfg *BusConfig) error {
	if cfg == nil {
		return StatusInvalidArg.Err("configure")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", StatusInvalidArg.Err("configure"), err)
	}
	base.mu.Lock()
	defer base.mu.Unlock()
	switch base.state {
	case stateUninstalled, stateStopped:
	default:
		return StatusInvalidState.Err("configure")
	}
	base.bus = *cfg
	base.state = stateStopped
	return nil
}

// Activate moves a configured controller to running. The returned channel
// is closed by Deactivate or Close; driver goroutines started for this run
// should exit when it is.
func (base *BaseController) Activate() (<-chan struct{}, error) {
	base.mu.Lock()
	defer base.mu.Unlock()
	if base.state != stateStopped {
		return nil, StatusInvalidState.Err("start")
	}
	base.stopChan = make(chan struct{})
	base.state = stateRunning
	base.Info("controller started in " + base.bus.Mode.String() + " mode")
	return base.stopChan, nil
}

func (base *BaseController) Deactivate() error {
	base.mu.Lock()
	defer base.mu.Unlock()
	if base.state != stateRunning {
		return StatusInvalidState.Err("stop")
	}
	close(base.stopChan)
	base.state = stateStopped
	base.Info("controller stopped")
	return nil
}

// Outgoing is the transmit queue the driver drains onto its wire.
func (base *BaseController) Outgoing() <-chan *CANFrame {
	return base.sendChan
}

// Return the error channel for the adapter
func (base *BaseController) Err() <-chan error {
	return base.errChan
}

func (base *BaseController) Event() <-chan Event {
	return base.evtChan
}

func (base *BaseController) Stats() ControllerSnapshot {
	return base.stats.Snapshot()
}

func newTimeout(d time.Duration) (<-chan time.Time, func()) {
	if d < 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}

func (base *BaseController) Transmit(ctx context.Context, frame *CANFrame, timeout time.Duration) error {
	if frame == nil {
		return StatusInvalidArg.Err("transmit")
	}
	if err := frame.Validate(); err != nil {
		return fmt.Errorf("%w: %v", StatusInvalidArg.Err("transmit"), err)
	}

	base.mu.RLock()
	state, stop, mode := base.state, base.stopChan, base.bus.Mode
	base.mu.RUnlock()

	if state != stateRunning {
		return StatusInvalidState.Err("transmit")
	}
	if mode == ModeListenOnly {
		return StatusNotSupported.Err("transmit")
	}

	frame = frame.WithType(Outgoing)
	if timeout == 0 {
		select {
		case base.sendChan <- frame:
			return nil
		default:
			return StatusTimeout.Err("transmit")
		}
	}

	expired, stopTimer := newTimeout(timeout)
	defer stopTimer()
	select {
	case base.sendChan <- frame:
		return nil
	case <-expired:
		return StatusTimeout.Err("transmit")
	case <-stop:
		return StatusInvalidState.Err("transmit")
	case <-base.closeChan:
		return StatusInvalidState.Err("transmit")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (base *BaseController) Receive(ctx context.Context, timeout time.Duration) (*CANFrame, error) {
	base.mu.RLock()
	state := base.state
	base.mu.RUnlock()

	if state == stateUninstalled || state == stateClosed {
		return nil, StatusInvalidState.Err("receive")
	}

	if timeout == 0 {
		select {
		case frame := <-base.recvChan:
			return frame, nil
		default:
			return nil, StatusTimeout.Err("receive")
		}
	}

	expired, stopTimer := newTimeout(timeout)
	defer stopTimer()
	select {
	case frame := <-base.recvChan:
		return frame, nil
	case <-expired:
		return nil, StatusTimeout.Err("receive")
	case <-base.closeChan:
		return nil, StatusInvalidState.Err("receive")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver queues a frame read from the wire. Frames rejected by the
// acceptance filter are ignored; when the receive queue is full the frame
// is dropped and a warning event raised.
func (base *BaseController) Deliver(frame *CANFrame) bool {
	base.mu.RLock()
	filter := base.bus.Filter
	base.mu.RUnlock()
	if !filter.Accept(frame.Identifier()) {
		return false
	}
	select {
	case base.recvChan <- frame.WithType(Incoming):
		base.stats.received.Add(1)
		return true
	default:
		base.stats.dropped.Add(1)
		base.Warn(fmt.Sprintf("%v, dropped 0x%03X", ErrDroppedFrame, frame.Identifier()))
		return false
	}
}

// Sent records a frame that made it onto the wire.
func (base *BaseController) Sent(frame *CANFrame) {
	base.stats.sent.Add(1)
	if base.cfg.Debug {
		base.cfg.OnMessage(">> " + frame.String())
	}
}

// Echo delivers a transmitted frame to the local receive queue when the
// bus is configured for self reception. Drivers whose hardware loops frames
// back on its own must not call it.
func (base *BaseController) Echo(frame *CANFrame) {
	if base.Bus().Loopback {
		base.Deliver(frame)
	}
}

func (base *BaseController) Close() {
	base.closeOnce.Do(func() {
		base.mu.Lock()
		if base.state == stateRunning {
			close(base.stopChan)
		}
		base.state = stateClosed
		base.mu.Unlock()
		close(base.closeChan)
	})
}

// Done is closed when the controller is closed.
func (base *BaseController) Done() <-chan struct{} {
	return base.closeChan
}

// Set a fatal adapter error, meaning communication is broken and cannot continue.
func (base *BaseController) Fatal(err error) {
	base.stats.errors.Add(1)
	base.errOnce.Do(func() {
		select {
		case base.errChan <- Unrecoverable(err):
		default:
			_, file, no, ok := runtime.Caller(1)
			if ok {
				zap.L().Error("error channel full", zap.String("caller", fmt.Sprintf("%s:%d", filepath.Base(file), no)), zap.Error(err))
			} else {
				zap.L().Error("error channel full", zap.Error(err))
			}
		}
	})
}

func (base *BaseController) sendEvent(eventType EventType, details string) {
	select {
	case base.evtChan <- Event{Type: eventType, Details: details, Time: time.Now()}:
	default:
		zap.L().Warn("event channel full", zap.String("adapter", base.name), zap.String("details", details))
	}
}

// Send an error event
func (base *BaseController) Error(err error) {
	base.stats.errors.Add(1)
	base.sendEvent(EventTypeError, err.Error())
}

// Send a warning event
func (base *BaseController) Warn(warn string) {
	base.sendEvent(EventTypeWarning, warn)
}

// Send an info event
func (base *BaseController) Info(info string) {
	base.sendEvent(EventTypeInfo, info)
}

// Send a debug event
func (base *BaseController) Debug(debug string) {
	base.sendEvent(EventTypeDebug, debug)
}
