package bar

import (
	"fmt"
	"io"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
)

// Frames counts received frames for one message identifier. Failed
// receives do not move the bar, they show up in the description.
type Frames struct {
	pb     *progressbar.ProgressBar
	id     uint32
	failed int
}

// New writes to the terminal. A total of zero or less gives a spinner for
// runs without a known end.
func New(total int, identifier uint32) *Frames {
	return NewWithWriter(ansi.NewAnsiStdout(), total, identifier)
}

func NewWithWriter(w io.Writer, total int, identifier uint32) *Frames {
	if total <= 0 {
		total = -1
	}
	f := &Frames{id: identifier}
	f.pb = progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(f.description()),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return f
}

func (f *Frames) description() string {
	if f.failed == 0 {
		return fmt.Sprintf("rx 0x%03X", f.id)
	}
	return fmt.Sprintf("rx 0x%03X [red]%d failed[reset]", f.id, f.failed)
}

// Received records one receive attempt.
func (f *Frames) Received(ok bool) {
	if ok {
		_ = f.pb.Add(1)
		return
	}
	f.failed++
	f.pb.Describe(f.description())
}

func (f *Frames) Failed() int {
	return f.failed
}

func (f *Frames) Finish() error {
	return f.pb.Finish()
}
