package bar

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramesCountsFailures(t *testing.T) {
	var buf bytes.Buffer
	f := NewWithWriter(&buf, 10, 0x555)

	f.Received(true)
	f.Received(false)
	f.Received(false)
	f.Received(true)
	require.NoError(t, f.Finish())

	assert.Equal(t, 2, f.Failed())
	out := buf.String()
	assert.Contains(t, out, "rx 0x555")
	assert.Contains(t, out, "2 failed")
}

func TestFramesUnbounded(t *testing.T) {
	var buf bytes.Buffer
	f := NewWithWriter(&buf, 0, 0x7DF)
	f.Received(true)
	assert.Zero(t, f.Failed())
	assert.NotPanics(t, func() { _ = f.Finish() })
}
