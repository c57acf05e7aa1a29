package canharness

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
	MaxDataLength = 8
)

var (
	ErrInvalidIdentifier = errors.New("invalid frame identifier")
	ErrInvalidLength     = errors.New("invalid frame data length")
)

type CANFrameType struct {
	Type int
}

var (
	Incoming = CANFrameType{Type: 0}
	Outgoing = CANFrameType{Type: 1}
)

// CANFrame is a classic CAN frame. It is never mutated after construction,
// Data returns a copy of the payload.
type CANFrame struct {
	identifier uint32
	extended   bool
	data       []byte
	frameType  CANFrameType
}

// NewFrame returns a standard 11 bit frame. The payload is copied.
func NewFrame(identifier uint32, data []byte, frameType CANFrameType) *CANFrame {
	b := make([]byte, len(data))
	copy(b, data)
	return &CANFrame{
		identifier: identifier,
		data:       b,
		frameType:  frameType,
	}
}

// NewExtendedFrame returns a 29 bit frame. The payload is copied.
func NewExtendedFrame(identifier uint32, data []byte, frameType CANFrameType) *CANFrame {
	f := NewFrame(identifier, data, frameType)
	f.extended = true
	return f
}

func (f *CANFrame) Identifier() uint32 {
	return f.identifier
}

func (f *CANFrame) Extended() bool {
	return f.extended
}

func (f *CANFrame) Type() CANFrameType {
	return f.frameType
}

func (f *CANFrame) Length() int {
	return len(f.data)
}

func (f *CANFrame) Data() []byte {
	b := make([]byte, len(f.data))
	copy(b, f.data)
	return b
}

// Byte returns payload byte i, ok is false when the frame is shorter.
func (f *CANFrame) Byte(i int) (byte, bool) {
	if i < 0 || i >= len(f.data) {
		return 0, false
	}
	return f.data[i], true
}

// WithType returns a copy of the frame carrying a different direction.
func (f *CANFrame) WithType(t CANFrameType) *CANFrame {
	return &CANFrame{
		identifier: f.identifier,
		extended:   f.extended,
		data:       f.data,
		frameType:  t,
	}
}

func (f *CANFrame) Validate() error {
	if len(f.data) > MaxDataLength {
		return fmt.Errorf("%w: %d", ErrInvalidLength, len(f.data))
	}
	limit := uint32(MaxStandardID)
	if f.extended {
		limit = MaxExtendedID
	}
	if f.identifier > limit {
		return fmt.Errorf("%w: 0x%X", ErrInvalidIdentifier, f.identifier)
	}
	return nil
}

var (
	yellow = color.New(color.FgHiBlue).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
)

func (f *CANFrame) direction() string {
	switch f.frameType.Type {
	case 0:
		return "<i> || "
	case 1:
		return "<o> || "
	}
	return "<?> || "
}

func (f *CANFrame) identifierString() string {
	if f.extended {
		return fmt.Sprintf("0x%08X", f.identifier)
	}
	return fmt.Sprintf("0x%03X", f.identifier)
}

func (f *CANFrame) hexView() string {
	var hexView strings.Builder
	for i, b := range f.data {
		hexView.WriteString(fmt.Sprintf("%02X", b))
		if i != len(f.data)-1 {
			hexView.WriteString(" ")
		}
	}
	return fmt.Sprintf("%-23s", hexView.String())
}

func (f *CANFrame) String() string {
	var out strings.Builder
	out.WriteString(f.direction())
	out.WriteString(f.identifierString() + " || ")
	out.WriteString(strconv.Itoa(len(f.data)) + " || ")
	out.WriteString(f.hexView())
	out.WriteString(" || ")
	out.WriteString(onlyPrintable(f.data))
	return out.String()
}

func (f *CANFrame) ColorString() string {
	var out strings.Builder
	out.WriteString(f.direction())
	out.WriteString(green("%s", f.identifierString()) + " || ")
	out.WriteString(strconv.Itoa(len(f.data)) + " || ")
	out.WriteString(red("%s", f.hexView()))
	out.WriteString(" || ")
	out.WriteString(yellow("%s", onlyPrintable(f.data)))
	return out.String()
}

func onlyPrintable(data []byte) string {
	var out strings.Builder
	for _, b := range data {
		if b < 32 || b > 126 {
			out.WriteString("·")
		} else {
			out.WriteByte(b)
		}
	}
	return out.String()
}
