package canharness

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status Status
		want   Outcome
	}{
		{StatusOK, Success},
		{StatusInvalidState, InvalidState},
		{StatusTimeout, Timeout},
		{StatusFail, UnhandledError},
		{StatusNoMem, UnhandledError},
		{StatusInvalidArg, UnhandledError},
		{StatusInvalidSize, UnhandledError},
		{StatusNotFound, UnhandledError},
		{StatusNotSupported, UnhandledError},
		{Status(0x1FF), UnhandledError},
		{Status(math.MinInt32), UnhandledError},
		{Status(math.MaxInt32), UnhandledError},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status))
		})
	}
}

func TestClassifyIsTotalAndStable(t *testing.T) {
	valid := map[Outcome]bool{}
	for _, o := range Outcomes {
		valid[o] = true
	}
	for s := Status(-0x200); s <= 0x200; s++ {
		first := Classify(s)
		require.True(t, valid[first], "status %v classified outside the outcome set", s)
		require.Equal(t, first, Classify(s), "status %v classified differently on second call", s)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "INVALID_STATE", StatusInvalidState.String())
	assert.Equal(t, "UNKNOWN(0x1FF)", Status(0x1FF).String())
	assert.True(t, StatusTimeout.Known())
	assert.False(t, Status(42).Known())
}

func TestStatusOf(t *testing.T) {
	wrapped := fmt.Errorf("queue: %w", StatusInvalidState.Err("transmit"))
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOK},
		{"status error", StatusTimeout.Err("receive"), StatusTimeout},
		{"wrapped", wrapped, StatusInvalidState},
		{"deadline", context.DeadlineExceeded, StatusTimeout},
		{"other", errors.New("boom"), StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
	assert.NoError(t, StatusOK.Err("transmit"))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "SUCCESS", Success.String())
	assert.Equal(t, "UNHANDLED_ERROR", Outcome(99).String())
}
