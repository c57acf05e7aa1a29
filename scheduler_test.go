package canharness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockingTask(name string, release <-chan struct{}) Task {
	return Task{Name: name, Body: func(ctx context.Context) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}}
}

func TestPoolAdmitsWithinSlots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(ctx, 4)

	release := make(chan struct{})
	handles, err := p.Admit(blockingTask("a", release), blockingTask("b", release))
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.NotEqual(t, handles[0].ID(), handles[1].ID())
	assert.Equal(t, "a#1", handles[0].String())

	close(release)
	p.Wait()
	assert.Equal(t, 0, p.Running())
}

func TestPoolAdmissionIsAllOrNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(ctx, 3)

	release := make(chan struct{})
	_, err := p.Admit(blockingTask("a", release), blockingTask("b", release))
	require.NoError(t, err)

	// one slot left, the pair does not fit and neither task may start
	_, err = p.Admit(blockingTask("c", release), blockingTask("d", release))
	assert.ErrorIs(t, err, ErrAdmission)
	assert.Equal(t, 2, p.Running())

	_, err = p.Admit(blockingTask("e", release))
	assert.NoError(t, err)

	close(release)
	p.Wait()
}

func TestPoolReleasesSlots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(ctx, 2)

	release := make(chan struct{})
	_, err := p.Admit(blockingTask("a", release), blockingTask("b", release))
	require.NoError(t, err)
	_, err = p.Admit(blockingTask("c", release))
	require.ErrorIs(t, err, ErrAdmission)

	close(release)
	p.Wait()

	done := make(chan struct{})
	_, err = p.Admit(blockingTask("d", done), blockingTask("e", done))
	assert.NoError(t, err)
	close(done)
	p.Wait()
}

func TestPoolRejectsOversizedBatch(t *testing.T) {
	p := NewPool(context.Background(), 1)
	noop := Task{Name: "noop", Body: func(context.Context) {}}
	_, err := p.Admit(noop, noop)
	assert.ErrorIs(t, err, ErrAdmission)
	assert.Equal(t, 0, p.Running())
}

func TestPoolClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(ctx, 2)
	cancel()
	_, err := p.Admit(Task{Name: "noop", Body: func(context.Context) {}})
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestDelay(t *testing.T) {
	start := time.Now()
	require.NoError(t, Delay(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	assert.ErrorIs(t, Delay(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Delay(context.Background(), 0))
}
