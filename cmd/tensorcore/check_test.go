package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorcore/internal/ops"
	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

func TestRunChecks(t *testing.T) {
	results := runChecks(ops.New(ops.WithParallel(parallel.Serial())), tensor.Host)
	require.Len(t, results, len(properties()))
	for _, r := range results {
		assert.True(t, r.Pass, "%s: %s", r.Name, r.Error)
	}
}

func TestParseTokens(t *testing.T) {
	ids, err := parseTokens(" 1, 2,3 ,")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseTokens("")
	assert.Error(t, err)
	_, err = parseTokens("1,x")
	assert.Error(t, err)
}

func TestBenchCases(t *testing.T) {
	for _, dt := range []tensor.DataType{tensor.Float32, tensor.BFloat16} {
		b, err := newBench(ops.New(ops.WithParallel(parallel.Serial())), dt, 4, 16, 2, newRand())
		require.NoError(t, err)
		for _, c := range b.cases() {
			assert.NoError(t, c.run(), c.name)
		}
		b.release()
	}
}

func TestTinyConfig(t *testing.T) {
	assert.NoError(t, tinyConfig("bfloat16").Validate())
}

func newRand() *rand.Rand { return rand.New(rand.NewSource(1)) }
