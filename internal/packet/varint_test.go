package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendVarInt(t *testing.T) {
	tests := []struct {
		name  string
		value int
		want  []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"127", 127, []byte{0x7F}},
		{"128", 128, []byte{0x80, 0x01}},
		{"16383", 16383, []byte{0xFF, 0x7F}},
		{"16384", 16384, []byte{0x80, 0x80, 0x01}},
		{"2097151", 2097151, []byte{0xFF, 0xFF, 0x7F}},
		{"2097152", 2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{"268435455", 268435455, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppendVarInt(nil, tt.value)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), VarIntSize(tt.value))
		})
	}
}

func TestAppendVarIntOutOfRange(t *testing.T) {
	assert.Panics(t, func() { AppendVarInt(nil, -1) })
	assert.Panics(t, func() { AppendVarInt(nil, MaxRemainingLength+1) })
}

func TestDecodeVarInt(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want int
		n    int
	}{
		{"zero", []byte{0x00}, 0, 1},
		{"127", []byte{0x7F}, 127, 1},
		{"128", []byte{0x80, 0x01}, 128, 2},
		{"16384", []byte{0x80, 0x80, 0x01}, 16384, 3},
		{"2097152", []byte{0x80, 0x80, 0x80, 0x01}, 2097152, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, n, complete, err := DecodeVarInt(tt.buf)
			require.NoError(t, err)
			assert.True(t, complete)
			assert.Equal(t, tt.want, value)
			assert.Equal(t, tt.n, n)
		})
	}
}

func TestDecodeVarIntIncomplete(t *testing.T) {
	_, _, complete, err := DecodeVarInt([]byte{0x80})
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestDecodeVarIntRejectsFifthByte(t *testing.T) {
	_, _, complete, err := DecodeVarInt([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F})
	assert.True(t, complete)
	assert.Error(t, err)
}

func TestVarIntRoundTrip(t *testing.T) {
	for _, v := range []int{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, 268435455} {
		encoded := AppendVarInt(nil, v)
		decoded, n, complete, err := DecodeVarInt(encoded)
		require.NoError(t, err)
		require.True(t, complete)
		assert.Equal(t, v, decoded)
		assert.Equal(t, len(encoded), n)
	}
}
