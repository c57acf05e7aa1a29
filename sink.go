package canharness

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

type TaskKind int

const (
	TaskTransmit TaskKind = iota
	TaskReceive
)

func (k TaskKind) String() string {
	switch k {
	case TaskTransmit:
		return "transmit"
	case TaskReceive:
		return "receive"
	}
	return "unknown"
}

// Report is one classified transmit or receive attempt.
type Report struct {
	Cycle   uint64
	Task    TaskKind
	Index   int
	Outcome Outcome
	Status  Status
	Frame   *CANFrame // sent or received frame, nil when a receive failed
	Time    time.Time
}

// Payload returns the first data byte of the frame.
func (r Report) Payload() (byte, bool) {
	if r.Frame == nil {
		return 0, false
	}
	return r.Frame.Byte(0)
}

// Sink records reports. Record is called from task goroutines, possibly
// several at once, and exactly once per classified attempt.
type Sink interface {
	Record(Report)
}

type SinkFunc func(Report)

func (f SinkFunc) Record(r Report) { f(r) }

// ZapSink writes one structured log line per report.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Record(r Report) {
	fields := []zap.Field{
		zap.Uint64("cycle", r.Cycle),
		zap.Stringer("task", r.Task),
		zap.Int("index", r.Index),
		zap.Stringer("outcome", r.Outcome),
		zap.Stringer("status", r.Status),
	}
	if b, ok := r.Payload(); ok {
		fields = append(fields, zap.Uint8("data", b))
	}
	if r.Frame != nil {
		fields = append(fields, zap.Uint32("id", r.Frame.Identifier()))
	}
	switch {
	case r.Outcome != Success:
		s.log.Warn(r.Task.String()+" failed", fields...)
	case r.Task == TaskReceive:
		s.log.Info("msg received", fields...)
	default:
		s.log.Info("msg queued for transmission", fields...)
	}
}

// ConsoleSink prints human readable lines, coloured by outcome.
type ConsoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewConsoleSink(w io.Writer, colored bool) *ConsoleSink {
	return &ConsoleSink{w: w, color: colored}
}

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	warnColor = color.New(color.FgYellow).SprintFunc()
	errColor  = color.New(color.FgRed).SprintFunc()
)

func (s *ConsoleSink) outcome(o Outcome) string {
	if !s.color {
		return o.String()
	}
	switch o {
	case Success:
		return okColor(o.String())
	case Timeout, InvalidState:
		return warnColor(o.String())
	}
	return errColor(o.String())
}

func (s *ConsoleSink) Record(r Report) {
	var line string
	switch {
	case r.Task == TaskReceive && r.Outcome == Success:
		b, _ := r.Payload()
		line = fmt.Sprintf("#%d rx[%d] msg received - data = %d", r.Cycle, r.Index, b)
	case r.Task == TaskReceive:
		line = fmt.Sprintf("#%d rx[%d] %s (%s)", r.Cycle, r.Index, s.outcome(r.Outcome), r.Status)
	default:
		line = fmt.Sprintf("#%d tx[%d] %s (%s)", r.Cycle, r.Index, s.outcome(r.Outcome), r.Status)
	}
	if r.Frame != nil {
		if s.color {
			line += " " + r.Frame.ColorString()
		} else {
			line += " " + r.Frame.String()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}
