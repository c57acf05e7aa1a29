package canharness

import (
	"context"
	"fmt"
	"time"
)

// Forever makes Transmit and Receive block until they can complete.
const Forever time.Duration = -1

// Controller is a CAN bus controller driver. Transmit and Receive must be
// safe to call concurrently from unrelated goroutines.
type Controller interface {
	Name() string
	// Configure installs the driver with the given bus parameters. It may
	// only be called while the controller is not running.
	Configure(context.Context, *BusConfig) error
	Start() error
	Stop() error
	// Transmit queues frame for transmission, waiting up to timeout for room
	// in the transmit queue. Errors carry a Status, see StatusOf.
	Transmit(ctx context.Context, frame *CANFrame, timeout time.Duration) error
	// Receive waits up to timeout for the next frame accepted by the filter.
	Receive(ctx context.Context, timeout time.Duration) (*CANFrame, error)
	// Event returns controller alerts.
	Event() <-chan Event
	// Err returns fatal controller errors, communication cannot continue
	// after one is delivered.
	Err() <-chan error
	Stats() ControllerSnapshot
	Close() error
}

type Mode int

const (
	ModeNormal Mode = iota
	// ModeNoAck transmits without requiring an acknowledge, used for self tests.
	ModeNoAck
	ModeListenOnly
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeNoAck:
		return "no-ack"
	case ModeListenOnly:
		return "listen-only"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeNormal, ModeNoAck, ModeListenOnly} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

// SupportedRates are the bus speeds in kbit/s the drivers know how to set.
var SupportedRates = []float64{10, 20, 50, 100, 125, 250, 500, 800, 1000}

// Filter accepts a frame when (identifier ^ Code) & Mask == 0. The zero
// value accepts everything.
type Filter struct {
	Code uint32
	Mask uint32
}

func (f Filter) Accept(identifier uint32) bool {
	return (identifier^f.Code)&f.Mask == 0
}

type BusConfig struct {
	TxPin    int
	RxPin    int
	Mode     Mode
	CANRate  float64 // kbit/s
	Filter   Filter
	Loopback bool // deliver every transmitted frame to the local receive queue
}

// DefaultBusConfig matches the development board wiring: pins 21/22, no-ack
// mode at 500 kbit/s, accept all and self reception.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		TxPin:    21,
		RxPin:    22,
		Mode:     ModeNoAck,
		CANRate:  500,
		Loopback: true,
	}
}

func (c *BusConfig) Validate() error {
	if c.TxPin < 0 || c.RxPin < 0 {
		return fmt.Errorf("%w: negative pin number", ErrInvalidConfig)
	}
	if c.TxPin == c.RxPin {
		return fmt.Errorf("%w: tx and rx share pin %d", ErrInvalidConfig, c.TxPin)
	}
	for _, r := range SupportedRates {
		if r == c.CANRate {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported CAN rate %g kbit/s", ErrInvalidConfig, c.CANRate)
}
