package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlign(t *testing.T) {
	assert.Equal(t, 0, alignDown(3))
	assert.Equal(t, 4, alignDown(7))
	assert.Equal(t, 8, alignUp(5))
	assert.Equal(t, 8, alignUp(8))
	assert.Equal(t, 0, alignUp(0))
}

func TestSpan(t *testing.T) {
	w := span(6, 4)
	assert.Equal(t, window{lo: 4, hi: 12, skip: 2}, w)
	assert.False(t, w.aligned(4))

	w = span(8, 16)
	assert.Equal(t, window{lo: 8, hi: 24, skip: 0}, w)
	assert.True(t, w.aligned(16))

	// A 2-byte element at an aligned offset still needs a padded read.
	w = span(4, 2)
	assert.False(t, w.aligned(2))
	assert.Equal(t, 4, w.hi-w.lo)
}
