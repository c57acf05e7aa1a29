package adapter

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/devboard/canharness"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

func init() {
	if err := canharness.RegisterAdapter(&canharness.AdapterInfo{
		Name:               "SLCan",
		Description:        "Canable / Lawicel compatible SLCAN adapter",
		RequiresSerialPort: true,
		New:                NewSLCan,
	}); err != nil {
		panic(err)
	}
}

// SLCan drives a serial line CAN adapter. The adapter does not hand our own
// frames back, so self reception is done in software after each write.
type SLCan struct {
	*canharness.BaseController

	wmu     sync.Mutex
	port    serial.Port
	reading bool
	closed  atomic.Bool
}

func NewSLCan(cfg *canharness.AdapterConfig) (canharness.Controller, error) {
	if cfg.PortBaudrate == 0 {
		cfg.PortBaudrate = 115200
	}
	return &SLCan{
		BaseController: canharness.NewBaseController("SLCan", cfg),
	}, nil
}

var slcanRates = map[float64]string{
	10:   "S0",
	20:   "S1",
	50:   "S2",
	100:  "S3",
	125:  "S4",
	250:  "S5",
	500:  "S6",
	800:  "S7",
	1000: "S8",
}

func (sl *SLCan) Configure(ctx context.Context, cfg *canharness.BusConfig) error {
	rate, ok := slcanRates[cfg.CANRate]
	if !ok {
		return fmt.Errorf("%w: unsupported CAN rate %g", canharness.StatusInvalidArg.Err("configure"), cfg.CANRate)
	}
	if err := sl.Install(cfg); err != nil {
		return err
	}
	if cfg.Mode == canharness.ModeNoAck {
		sl.Warn("SLCAN has no no-ack mode, using normal mode")
	}
	if sl.port == nil {
		if err := sl.open(ctx); err != nil {
			return err
		}
	}
	// close the channel in case the adapter was left open, then set speed
	for _, cmd := range []string{"C", rate} {
		if err := sl.command(cmd); err != nil {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (sl *SLCan) open(ctx context.Context) error {
	cfg := sl.Config()
	if err := portInfo(cfg.Port); err != nil {
		return err
	}
	mode := &serial.Mode{
		BaudRate: cfg.PortBaudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	err := retry.Do(func() error {
		p, err := serial.Open(cfg.Port, mode)
		if err != nil {
			return fmt.Errorf("failed to open com port %q: %w", cfg.Port, err)
		}
		sl.port = p
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			cfg.OnMessage(fmt.Sprintf("retry #%d: %v", n, err))
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}
	if err := sl.port.SetReadTimeout(3 * time.Millisecond); err != nil {
		sl.port.Close()
		return err
	}
	sl.port.ResetOutputBuffer()
	sl.port.ResetInputBuffer()
	if !sl.reading {
		sl.reading = true
		go sl.recvManager()
	}
	return nil
}

func portInfo(portName string) error {
	if portName == "" {
		return errors.New("no serial port given")
	}
	if runtime.GOOS == "windows" {
		portName = strings.ToUpper(portName)
	}
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return err
	}
	for _, port := range ports {
		if strings.EqualFold(port.Name, portName) {
			return nil
		}
	}
	return fmt.Errorf("serial port %q not found", portName)
}

func (sl *SLCan) Start() error {
	cmd := "O"
	if sl.Bus().Mode == canharness.ModeListenOnly {
		cmd = "L"
	}
	stop, err := sl.Activate()
	if err != nil {
		return err
	}
	if err := sl.command(cmd); err != nil {
		sl.Deactivate()
		return err
	}
	go sl.sendManager(stop)
	return nil
}

func (sl *SLCan) Stop() error {
	if err := sl.Deactivate(); err != nil {
		return err
	}
	return sl.command("C")
}

func (sl *SLCan) Close() error {
	sl.BaseController.Close()
	if sl.port == nil {
		return nil
	}
	sl.closed.Store(true)
	sl.command("C")
	time.Sleep(10 * time.Millisecond)
	return sl.port.Close()
}

func (sl *SLCan) command(cmd string) error {
	return sl.write(append([]byte(cmd), '\r'))
}

func (sl *SLCan) write(b []byte) error {
	sl.wmu.Lock()
	defer sl.wmu.Unlock()
	if _, err := sl.port.Write(b); err != nil {
		return fmt.Errorf("failed to write to com port: %w", err)
	}
	if sl.Config().Debug {
		sl.Config().OnMessage(">> " + strings.TrimSuffix(string(b), "\r"))
	}
	return nil
}

func (sl *SLCan) sendManager(stop <-chan struct{}) {
	out := sl.Outgoing()
	buf := make([]byte, 0, 32)
	for {
		select {
		case <-stop:
			return
		case frame := <-out:
			buf = encodeFrame(buf[:0], frame)
			if err := sl.write(buf); err != nil {
				sl.Error(err)
				continue
			}
			sl.Sent(frame)
			sl.Echo(frame)
		}
	}
}

func (sl *SLCan) recvManager() {
	buf := make([]byte, 0, 64)
	readBuf := make([]byte, 32)
	for {
		n, err := sl.port.Read(readBuf)
		if err != nil {
			if !sl.closed.Load() {
				sl.Fatal(fmt.Errorf("failed to read com port: %w", err))
			}
			return
		}
		if n == 0 {
			if sl.closed.Load() {
				return
			}
			continue
		}
		buf = sl.parse(buf, readBuf[:n])
	}
}

// parse consumes readBuf and returns any trailing partial line.
func (sl *SLCan) parse(buf, readBuf []byte) []byte {
	for _, b := range readBuf {
		switch b {
		case '\a':
			sl.Warn("adapter rejected command")
			buf = buf[:0]
		case '\r':
			if len(buf) == 0 {
				continue
			}
			switch buf[0] {
			case 't', 'T':
				f, err := decodeFrame(buf)
				if err != nil {
					sl.Error(fmt.Errorf("%w: %q", err, buf))
					break
				}
				sl.Deliver(f)
			case 'z', 'Z':
				// transmit acknowledge
			default:
				sl.Debug("unknown << " + string(buf))
			}
			buf = buf[:0]
		default:
			buf = append(buf, b)
		}
	}
	return buf
}

const hexDigits = "0123456789ABCDEF"

// encodeFrame appends the SLCAN text form of frame: 't', 3 hex digit id, dlc
// and data bytes, so id 0x555 with payload 03 is "t555103\r". Extended
// frames use 'T' and an 8 digit id.
func encodeFrame(buf []byte, frame *canharness.CANFrame) []byte {
	id := frame.Identifier()
	if frame.Extended() {
		buf = append(buf, 'T')
		for shift := 28; shift >= 0; shift -= 4 {
			buf = append(buf, hexDigits[(id>>uint(shift))&0xF])
		}
	} else {
		buf = append(buf, 't',
			hexDigits[(id>>8)&0x7],
			hexDigits[(id>>4)&0xF],
			hexDigits[id&0xF],
		)
	}
	data := frame.Data()
	buf = append(buf, hexDigits[len(data)&0xF])
	for _, b := range data {
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0xF])
	}
	return append(buf, '\r')
}

func decodeFrame(line []byte) (*canharness.CANFrame, error) {
	idLen := 3
	extended := false
	if len(line) > 0 && line[0] == 'T' {
		idLen = 8
		extended = true
	}
	if len(line) < 2+idLen {
		return nil, errors.New("short frame")
	}
	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to decode identifier: %w", err)
	}
	dlc, err := strconv.ParseUint(string(line[1+idLen]), 16, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data length: %w", err)
	}
	if dlc > canharness.MaxDataLength {
		return nil, fmt.Errorf("invalid data length: %d", dlc)
	}
	body := line[2+idLen:]
	if len(body) < int(dlc)*2 {
		return nil, fmt.Errorf("frame body too short for %d bytes", dlc)
	}
	data, err := hex.DecodeString(string(body[:dlc*2]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame body: %w", err)
	}
	var f *canharness.CANFrame
	if extended {
		f = canharness.NewExtendedFrame(uint32(id), data, canharness.Incoming)
	} else {
		f = canharness.NewFrame(uint32(id), data, canharness.Incoming)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}
