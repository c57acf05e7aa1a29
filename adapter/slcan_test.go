package adapter

import (
	"context"
	"testing"

	"github.com/devboard/canharness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame *canharness.CANFrame
		want  string
	}{
		{"standard", canharness.NewFrame(0x555, []byte{0x03}, canharness.Outgoing), "t555103\r"},
		{"empty", canharness.NewFrame(0x7DF, nil, canharness.Outgoing), "t7DF0\r"},
		{"full", canharness.NewFrame(0x001, []byte{0, 1, 2, 3, 4, 5, 6, 0xFF}, canharness.Outgoing), "t001800010203040506FF\r"},
		{"extended", canharness.NewExtendedFrame(0x18DAF110, []byte{0xAB}, canharness.Outgoing), "T18DAF1101AB\r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(encodeFrame(nil, tt.frame)))
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	f, err := decodeFrame([]byte("t555103"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x555), f.Identifier())
	assert.False(t, f.Extended())
	assert.Equal(t, []byte{0x03}, f.Data())
	assert.Equal(t, canharness.Incoming, f.Type())

	f, err = decodeFrame([]byte("T18DAF1102ABCD"))
	require.NoError(t, err)
	assert.True(t, f.Extended())
	assert.Equal(t, uint32(0x18DAF110), f.Identifier())
	assert.Equal(t, []byte{0xAB, 0xCD}, f.Data())

	for _, bad := range []string{"t55", "t5559", "t5552AA", "tXYZ0", "t5551ZZ", "t8000"} {
		_, err := decodeFrame([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := canharness.NewFrame(0x555, []byte{9}, canharness.Outgoing)
	line := encodeFrame(nil, in)
	out, err := decodeFrame(line[:len(line)-1])
	require.NoError(t, err)
	assert.Equal(t, in.Identifier(), out.Identifier())
	assert.Equal(t, in.Data(), out.Data())
}

func TestSLCanParse(t *testing.T) {
	ctl, err := NewSLCan(&canharness.AdapterConfig{})
	require.NoError(t, err)
	sl := ctl.(*SLCan)
	bus := canharness.DefaultBusConfig()
	require.NoError(t, sl.Install(&bus))

	rest := sl.parse(nil, []byte("z\rt555100\rt55"))
	assert.Equal(t, "t55", string(rest))
	rest = sl.parse(rest, []byte("5101\r"))
	assert.Empty(t, rest)

	for _, want := range []byte{0, 1} {
		f, err := sl.Receive(context.Background(), 0)
		require.NoError(t, err)
		b, _ := f.Byte(0)
		assert.Equal(t, want, b)
	}
	assert.Equal(t, 115200, sl.Config().PortBaudrate)
}
