package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/devboard/canharness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopback(t *testing.T) *Loopback {
	t.Helper()
	ctl, err := canharness.NewAdapter("Loopback", &canharness.AdapterConfig{TxQueueLen: 16, RxQueueLen: 16})
	require.NoError(t, err)
	t.Cleanup(func() { ctl.Close() })
	return ctl.(*Loopback)
}

func TestLoopbackRegistered(t *testing.T) {
	assert.Contains(t, canharness.ListAdapterNames(), "Loopback")
	_, err := canharness.NewAdapter("nope", nil)
	assert.ErrorIs(t, err, canharness.ErrUnknownAdapter)
}

func TestLoopbackTransmitBeforeStart(t *testing.T) {
	l := newLoopback(t)
	err := l.Transmit(context.Background(), canharness.NewFrame(0x555, []byte{0}, canharness.Outgoing), canharness.Forever)
	assert.Equal(t, canharness.InvalidState, canharness.Classify(canharness.StatusOf(err)))
}

func TestLoopbackSelfReception(t *testing.T) {
	l := newLoopback(t)
	bus := canharness.DefaultBusConfig()
	require.NoError(t, l.Configure(context.Background(), &bus))
	require.NoError(t, l.Start())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Transmit(ctx, canharness.NewFrame(0x555, []byte{byte(i)}, canharness.Outgoing), canharness.Forever))
	}
	for i := 0; i < 3; i++ {
		f, err := l.Receive(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, canharness.Incoming, f.Type())
		b, _ := f.Byte(0)
		assert.Equal(t, byte(i), b)
	}
	assert.Equal(t, uint64(3), l.Stats().Sent)
}

func TestLoopbackWithoutSelfReception(t *testing.T) {
	l := newLoopback(t)
	bus := canharness.DefaultBusConfig()
	bus.Loopback = false
	require.NoError(t, l.Configure(context.Background(), &bus))
	require.NoError(t, l.Start())

	require.NoError(t, l.Transmit(context.Background(), canharness.NewFrame(0x555, nil, canharness.Outgoing), canharness.Forever))
	_, err := l.Receive(context.Background(), 20*time.Millisecond)
	assert.Equal(t, canharness.StatusTimeout, canharness.StatusOf(err))

	require.True(t, l.Inject(canharness.NewFrame(0x7DF, []byte{2, 1, 0}, canharness.Incoming)))
	f, err := l.Receive(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7DF), f.Identifier())
}

func TestLoopbackStopStart(t *testing.T) {
	l := newLoopback(t)
	bus := canharness.DefaultBusConfig()
	require.NoError(t, l.Configure(context.Background(), &bus))
	require.NoError(t, l.Start())
	require.NoError(t, l.Stop())

	err := l.Transmit(context.Background(), canharness.NewFrame(0x555, nil, canharness.Outgoing), 0)
	assert.Equal(t, canharness.StatusInvalidState, canharness.StatusOf(err))

	bus.CANRate = 250
	require.NoError(t, l.Configure(context.Background(), &bus))
	require.NoError(t, l.Start())
	assert.Equal(t, float64(250), l.Bus().CANRate)
}

type collector struct {
	mu      sync.Mutex
	reports []canharness.Report
}

func (c *collector) Record(r canharness.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

func TestLoopbackExchange(t *testing.T) {
	l := newLoopback(t)
	cfg := canharness.DefaultConfig()
	cfg.Period = 50 * time.Millisecond
	cfg.Cycles = 1
	cfg.Exchange.Delay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	col := &collector{}
	h, err := canharness.New(ctx, l, cfg, canharness.WithSink(col))
	require.NoError(t, err)
	require.NoError(t, h.Run(ctx))

	var got []byte
	for _, r := range col.reports {
		if r.Task != canharness.TaskReceive {
			continue
		}
		require.Equal(t, canharness.Success, r.Outcome)
		b, ok := r.Payload()
		require.True(t, ok)
		got = append(got, b)
	}
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)

	st := h.Stats()
	assert.Equal(t, uint64(10), st.Transmit[canharness.Success])
	assert.Equal(t, uint64(10), st.Receive[canharness.Success])
}
