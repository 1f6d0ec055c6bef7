package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolReuse(t *testing.T) {
	var destroyed []int
	p := newPool(func(id int) { destroyed = append(destroyed, id) })

	_, _, ok := p.get(64)
	assert.False(t, ok)

	p.put(1, 128)
	id, size, ok := p.get(100)
	assert.True(t, ok)
	assert.Equal(t, 1, id)
	assert.Equal(t, uint64(128), size)

	// A smaller buffer never serves a larger request.
	p.put(2, 64)
	_, _, ok = p.get(96)
	assert.False(t, ok)

	// Classes are kept apart.
	_, _, ok = p.get(8 * 1024)
	assert.False(t, ok)

	assert.Equal(t, PoolStats{Hits: 1, Misses: 3, Idle: 1}, p.stats())
	p.clear()
	assert.Equal(t, []int{2}, destroyed)
	assert.Equal(t, 0, p.stats().Idle)
}

func TestPoolFull(t *testing.T) {
	var destroyed int
	p := newPool(func(int) { destroyed++ })
	for i := 0; i < maxPoolSize+3; i++ {
		p.put(i, 16)
	}
	assert.Equal(t, 3, destroyed)
	assert.Equal(t, maxPoolSize, p.stats().Idle)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, smallClass, classify(4095))
	assert.Equal(t, mediumClass, classify(4096))
	assert.Equal(t, largeClass, classify(1<<20))
}
