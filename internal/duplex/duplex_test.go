package duplex

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleWatermarkPolicy(t *testing.T) {
	const kib = 1024
	const mib = 1024 * kib
	tests := []struct {
		maxFrameSize int
		want         int
	}{
		{0, 512 * kib},
		{64 * kib, 512 * kib},
		{128 * kib, 512 * kib},
		{129 * kib, 2 * mib},
		{1 * mib, 2 * mib},
		{2 * mib, 4 * mib},
		{10 * mib, 20 * mib},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Scale(tt.maxFrameSize), "maxFrameSize=%d", tt.maxFrameSize)
	}
}

func TestPipeWriteReadRoundTrip(t *testing.T) {
	p := newPipe(1024)
	n, err := p.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestPipePausesPastThresholdAndResumes(t *testing.T) {
	p := newPipe(10)
	_, err := p.Write(make([]byte, 11))
	require.NoError(t, err)
	assert.True(t, p.Paused())

	buf := make([]byte, 11)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.False(t, p.Paused())
}

func TestPipeCloseWithErrorDrainsThenReturnsErr(t *testing.T) {
	p := newPipe(1024)
	_, err := p.Write([]byte("x"))
	require.NoError(t, err)
	p.CloseWithError(nil)

	buf := make([]byte, 1)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf[:n]))

	_, err = p.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipeWriteAfterCloseFails(t *testing.T) {
	p := newPipe(1024)
	p.CloseWithError(io.EOF)
	_, err := p.Write([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestChannelCloseTearsDownBothHalves(t *testing.T) {
	c := New(64 * 1024)
	c.Close()

	buf := make([]byte, 1)
	_, err := c.Outbound.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	_, err = c.Inbound.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestChannelCloseWithErrorPropagatesToBothHalves(t *testing.T) {
	c := New(64 * 1024)
	boom := assert.AnError
	c.CloseWithError(boom)

	buf := make([]byte, 1)
	_, err := c.Outbound.Read(buf)
	assert.ErrorIs(t, err, boom)
	_, err = c.Inbound.Read(buf)
	assert.ErrorIs(t, err, boom)
}
