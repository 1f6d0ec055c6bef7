package webgpu

import "sync"

// sizeClass buckets buffers so lookups scan few candidates.
type sizeClass int

const (
	smallClass  sizeClass = iota // < 4KB
	mediumClass                  // 4KB-1MB
	largeClass                   // > 1MB
)

const (
	smallThreshold  = 4 * 1024
	mediumThreshold = 1024 * 1024
	maxPoolSize     = 64 // Max idle buffers per class
)

func classify(size uint64) sizeClass {
	switch {
	case size < smallThreshold:
		return smallClass
	case size < mediumThreshold:
		return mediumClass
	default:
		return largeClass
	}
}

type pooled[B any] struct {
	buf  B
	size uint64
}

// PoolStats reports buffer reuse.
type PoolStats struct {
	Hits, Misses uint64
	Idle         int
}

// pool keeps released device buffers for reuse. A buffer is handed out
// again only for a request of at most its size within the same class.
type pool[B any] struct {
	mu      sync.Mutex
	classes [3][]pooled[B]
	destroy func(B)
	hits    uint64
	misses  uint64
}

func newPool[B any](destroy func(B)) *pool[B] {
	return &pool[B]{destroy: destroy}
}

// get returns an idle buffer of at least size bytes and its real size.
func (p *pool[B]) get(size uint64) (B, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := classify(size)
	for i, pb := range p.classes[c] {
		if pb.size >= size {
			p.classes[c] = append(p.classes[c][:i], p.classes[c][i+1:]...)
			p.hits++
			return pb.buf, pb.size, true
		}
	}
	p.misses++
	var zero B
	return zero, 0, false
}

// put returns a buffer to the pool, destroying it when its class is full.
func (p *pool[B]) put(buf B, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := classify(size)
	if len(p.classes[c]) >= maxPoolSize {
		p.destroy(buf)
		return
	}
	p.classes[c] = append(p.classes[c], pooled[B]{buf: buf, size: size})
}

// clear destroys every idle buffer.
func (p *pool[B]) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.classes {
		for _, pb := range p.classes[c] {
			p.destroy(pb.buf)
		}
		p.classes[c] = nil
	}
}

func (p *pool[B]) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle := 0
	for _, c := range p.classes {
		idle += len(c)
	}
	return PoolStats{Hits: p.hits, Misses: p.misses, Idle: idle}
}
