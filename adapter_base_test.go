package canharness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installed(t *testing.T, bus BusConfig, txLen, rxLen int) *BaseController {
	t.Helper()
	base := NewBaseController("test", &AdapterConfig{TxQueueLen: txLen, RxQueueLen: rxLen})
	require.NoError(t, base.Install(&bus))
	return base
}

func TestBaseControllerTransmitRequiresRunning(t *testing.T) {
	base := NewBaseController("test", nil)
	frame := NewFrame(0x555, []byte{0}, Outgoing)

	err := base.Transmit(context.Background(), frame, Forever)
	assert.Equal(t, InvalidState, Classify(StatusOf(err)))

	bus := DefaultBusConfig()
	require.NoError(t, base.Install(&bus))
	err = base.Transmit(context.Background(), frame, Forever)
	assert.Equal(t, StatusInvalidState, StatusOf(err))

	_, err = base.Activate()
	require.NoError(t, err)
	assert.NoError(t, base.Transmit(context.Background(), frame, Forever))
}

func TestBaseControllerInvalidFrame(t *testing.T) {
	base := installed(t, DefaultBusConfig(), 1, 1)
	_, err := base.Activate()
	require.NoError(t, err)

	assert.Equal(t, StatusInvalidArg, StatusOf(base.Transmit(context.Background(), nil, 0)))
	long := NewFrame(0x555, make([]byte, 9), Outgoing)
	assert.Equal(t, StatusInvalidArg, StatusOf(base.Transmit(context.Background(), long, 0)))
}

func TestBaseControllerTransmitTimeout(t *testing.T) {
	base := installed(t, DefaultBusConfig(), 1, 1)
	_, err := base.Activate()
	require.NoError(t, err)
	frame := NewFrame(0x555, []byte{0}, Outgoing)

	require.NoError(t, base.Transmit(context.Background(), frame, 0))
	// queue is full and nothing drains it
	assert.Equal(t, StatusTimeout, StatusOf(base.Transmit(context.Background(), frame, 0)))

	start := time.Now()
	err = base.Transmit(context.Background(), frame, 20*time.Millisecond)
	assert.Equal(t, Timeout, Classify(StatusOf(err)))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestBaseControllerTransmitInterruptedByStop(t *testing.T) {
	base := installed(t, DefaultBusConfig(), 1, 1)
	_, err := base.Activate()
	require.NoError(t, err)
	frame := NewFrame(0x555, []byte{0}, Outgoing)
	require.NoError(t, base.Transmit(context.Background(), frame, 0))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = base.Deactivate()
	}()
	err = base.Transmit(context.Background(), frame, Forever)
	assert.Equal(t, StatusInvalidState, StatusOf(err))
}

func TestBaseControllerListenOnly(t *testing.T) {
	bus := DefaultBusConfig()
	bus.Mode = ModeListenOnly
	base := installed(t, bus, 1, 1)
	_, err := base.Activate()
	require.NoError(t, err)

	err = base.Transmit(context.Background(), NewFrame(0x555, nil, Outgoing), 0)
	assert.Equal(t, StatusNotSupported, StatusOf(err))
	assert.Equal(t, UnhandledError, Classify(StatusOf(err)))
}

func TestBaseControllerReceive(t *testing.T) {
	base := NewBaseController("test", nil)
	_, err := base.Receive(context.Background(), 0)
	assert.Equal(t, StatusInvalidState, StatusOf(err))

	bus := DefaultBusConfig()
	require.NoError(t, base.Install(&bus))

	_, err = base.Receive(context.Background(), 10*time.Millisecond)
	assert.Equal(t, StatusTimeout, StatusOf(err))

	require.True(t, base.Deliver(NewFrame(0x555, []byte{9}, Outgoing)))
	f, err := base.Receive(context.Background(), Forever)
	require.NoError(t, err)
	assert.Equal(t, Incoming, f.Type())
	b, _ := f.Byte(0)
	assert.Equal(t, byte(9), b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = base.Receive(ctx, Forever)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBaseControllerFilterAndDrop(t *testing.T) {
	bus := DefaultBusConfig()
	bus.Filter = Filter{Code: 0x555, Mask: 0x7FF}
	base := installed(t, bus, 1, 1)

	assert.False(t, base.Deliver(NewFrame(0x123, nil, Incoming)))
	assert.True(t, base.Deliver(NewFrame(0x555, nil, Incoming)))
	assert.False(t, base.Deliver(NewFrame(0x555, nil, Incoming)))

	st := base.Stats()
	assert.Equal(t, uint64(1), st.Received)
	assert.Equal(t, uint64(1), st.Dropped)

	select {
	case evt := <-base.Event():
		assert.Equal(t, EventTypeWarning, evt.Type)
		assert.Contains(t, evt.Details, "dropped 0x555")
	case <-time.After(time.Second):
		t.Fatal("no warning event for dropped frame")
	}
}

func TestBaseControllerInstallWhileRunning(t *testing.T) {
	base := installed(t, DefaultBusConfig(), 1, 1)
	_, err := base.Activate()
	require.NoError(t, err)

	bus := DefaultBusConfig()
	assert.Equal(t, StatusInvalidState, StatusOf(base.Install(&bus)))

	_, err = base.Activate()
	assert.Equal(t, StatusInvalidState, StatusOf(err))

	bus.TxPin = bus.RxPin
	require.NoError(t, base.Deactivate())
	assert.Equal(t, StatusInvalidArg, StatusOf(base.Install(&bus)))
}

func TestBaseControllerClose(t *testing.T) {
	base := installed(t, DefaultBusConfig(), 1, 1)
	stop, err := base.Activate()
	require.NoError(t, err)

	base.Close()
	base.Close()
	<-stop
	<-base.Done()
	_, err = base.Receive(context.Background(), Forever)
	assert.Equal(t, StatusInvalidState, StatusOf(err))
}

func TestBaseControllerFatalOnce(t *testing.T) {
	base := NewBaseController("test", nil)
	base.Fatal(assert.AnError)
	base.Fatal(assert.AnError)

	err := <-base.Err()
	assert.False(t, IsRecoverable(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, uint64(2), base.Stats().Errors)
}

func TestBaseControllerDebugWithoutOnMessage(t *testing.T) {
	base := NewBaseController("test", &AdapterConfig{Debug: true})
	require.NotNil(t, base.Config().OnMessage)
	assert.NotPanics(t, func() {
		base.Sent(NewFrame(0x555, []byte{1}, Outgoing))
	})
	assert.Equal(t, uint64(1), base.Stats().Sent)
}
