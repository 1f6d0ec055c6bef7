// Package parallel provides data-parallel loop helpers for the kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool `yaml:"enabled" json:"enabled"`     // Whether parallel execution is enabled.
	NumWorkers   int  `yaml:"workers" json:"workers"`     // Number of worker goroutines; <= 0 means runtime.NumCPU.
	MinChunkSize int  `yaml:"min_chunk" json:"min_chunk"` // Minimum work units per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// Serial returns a configuration that always runs sequentially.
func Serial() Config {
	return Config{MinChunkSize: 1}
}

func (c Config) workers() int {
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}
	return runtime.NumCPU()
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
// Each index is visited by exactly one goroutine.
func For(n int, f func(i int), cfg Config) {
	minChunk := max(cfg.MinChunkSize, 1)
	workers := cfg.workers()
	if !cfg.Enabled || workers <= 1 || n < 2*minChunk {
		// Sequential fallback.
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+workers-1)/workers, minChunk)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForCost is For where every index costs roughly cost scalar steps. The
// minimum chunk is divided by the cost so heavy rows still fan out.
func ForCost(n, cost int, f func(i int), cfg Config) {
	if cost > 1 {
		cfg.MinChunkSize = max(cfg.MinChunkSize/cost, 1)
	}
	For(n, f, cfg)
}
