package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceNeverProducesZero(t *testing.T) {
	var s Source
	for i := 0; i < 70000; i++ {
		assert.NotZero(t, s.Next())
	}
}

func TestSourceStartsAtOne(t *testing.T) {
	var s Source
	assert.Equal(t, uint16(1), s.Next())
	assert.Equal(t, uint16(2), s.Next())
}

func TestSourceFullCycleIsAPermutation(t *testing.T) {
	var s Source
	seen := make(map[uint16]bool, 65535)
	for i := 0; i < 65535; i++ {
		id := s.Next()
		assert.False(t, seen[id], "id %d produced twice within one cycle", id)
		seen[id] = true
	}
	assert.Len(t, seen, 65535)
	for id := 1; id <= 65535; id++ {
		assert.True(t, seen[uint16(id)], "id %d never produced", id)
	}
}

func TestSourceWrapsAfterMax(t *testing.T) {
	var s Source
	for i := 0; i < 65535; i++ {
		s.Next()
	}
	assert.Equal(t, uint16(1), s.Next())
}
