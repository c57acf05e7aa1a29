package canharness

import (
	"fmt"
	"time"
)

// ErrorPolicy decides what a task does after a failed transmit or receive.
type ErrorPolicy int

const (
	// PolicyContinue records the failure and carries on with the next frame.
	PolicyContinue ErrorPolicy = iota
	// PolicyAbort records the failure and ends the task.
	PolicyAbort
)

func (p ErrorPolicy) String() string {
	switch p {
	case PolicyContinue:
		return "continue"
	case PolicyAbort:
		return "abort"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "continue":
		return PolicyContinue, nil
	case "abort":
		return PolicyAbort, nil
	}
	return 0, fmt.Errorf("%w: unknown error policy %q", ErrInvalidConfig, s)
}

// ExchangeConfig is copied into every task at admission and never written
// afterwards.
type ExchangeConfig struct {
	Identifier      uint32
	MessageCount    int
	Delay           time.Duration
	TransmitTimeout time.Duration
	ReceiveTimeout  time.Duration
	TransmitPolicy  ErrorPolicy
	ReceivePolicy   ErrorPolicy
	StackSize       int
	Priority        int
}

// MaxMessageCount keeps the sequence index representable in payload byte 0.
const MaxMessageCount = 256

func DefaultExchangeConfig() ExchangeConfig {
	return ExchangeConfig{
		Identifier:      0x555,
		MessageCount:    10,
		Delay:           10 * time.Millisecond,
		TransmitTimeout: Forever,
		ReceiveTimeout:  Forever,
		TransmitPolicy:  PolicyContinue,
		ReceivePolicy:   PolicyAbort,
		StackSize:       4096,
		Priority:        5,
	}
}

func (c ExchangeConfig) Validate() error {
	if c.Identifier > MaxStandardID {
		return fmt.Errorf("%w: identifier 0x%X exceeds 11 bits", ErrInvalidConfig, c.Identifier)
	}
	if c.MessageCount < 1 || c.MessageCount > MaxMessageCount {
		return fmt.Errorf("%w: message count %d not in 1..%d", ErrInvalidConfig, c.MessageCount, MaxMessageCount)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: negative inter-message delay", ErrInvalidConfig)
	}
	for _, p := range []ErrorPolicy{c.TransmitPolicy, c.ReceivePolicy} {
		if p != PolicyContinue && p != PolicyAbort {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, p)
		}
	}
	return nil
}

// Config is everything fixed before the dispatcher is armed.
type Config struct {
	Period       time.Duration
	Exchange     ExchangeConfig
	Bus          BusConfig
	Slots        int    // scheduler capacity, two per dispatch cycle
	Cycles       uint64 // stop after this many firings, 0 runs until cancelled
	StartupDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Period:   500 * time.Millisecond,
		Exchange: DefaultExchangeConfig(),
		Bus:      DefaultBusConfig(),
		Slots:    8,
	}
}

func (c *Config) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if c.Slots < 2 {
		return fmt.Errorf("%w: need at least 2 scheduler slots, got %d", ErrInvalidConfig, c.Slots)
	}
	if c.StartupDelay < 0 {
		return fmt.Errorf("%w: negative startup delay", ErrInvalidConfig)
	}
	if err := c.Exchange.Validate(); err != nil {
		return err
	}
	return c.Bus.Validate()
}
