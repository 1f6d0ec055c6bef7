package model

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorcore/internal/ops"
	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

func tinyConfig(dtype string) Config {
	cfg := Config{
		NumLayers:    2,
		HiddenSize:   16,
		NumHeads:     4,
		NumKVHeads:   2,
		HeadDim:      4,
		Intermediate: 32,
		MaxSeqLen:    16,
		VocabSize:    24,
		EOS:          -1,
		TorchDType:   dtype,
	}
	cfg.applyDefaults()
	return cfg
}

func newTinyModel(t *testing.T, cfg Config, seed int64) (*Model, *Weights) {
	t.Helper()
	w, err := RandomWeights(cfg, rand.New(rand.NewSource(seed)), tensor.Host)
	require.NoError(t, err)
	m, err := New(cfg, w, WithExecutor(ops.New(ops.WithParallel(parallel.Serial()))))
	require.NoError(t, err)
	t.Cleanup(func() {
		m.Release()
		w.Release()
	})
	return m, w
}

func logitsOf(t *testing.T, m *Model, tokens []int64) []float32 {
	t.Helper()
	logits, err := m.Forward(context.Background(), tokens)
	require.NoError(t, err)
	defer logits.Release()
	assert.Equal(t, tensor.Shape{m.Config().VocabSize}, logits.Shape())
	vals, err := tensor.ToFloat32(logits)
	require.NoError(t, err)
	return vals
}

func TestForward_PrefillMatchesDecode(t *testing.T) {
	m, _ := newTinyModel(t, tinyConfig("float32"), 1)

	full := logitsOf(t, m, []int64{3, 1, 4, 1})
	assert.Equal(t, 4, m.Pos())

	m.Reset()
	logitsOf(t, m, []int64{3, 1, 4})
	step := logitsOf(t, m, []int64{1})
	assert.Equal(t, 4, m.Pos())

	require.Len(t, step, len(full))
	for i := range full {
		assert.InDelta(t, full[i], step[i], 1e-5, "logit %d", i)
	}
}

func TestForward_ResetIsDeterministic(t *testing.T) {
	m, _ := newTinyModel(t, tinyConfig("float32"), 2)
	a := logitsOf(t, m, []int64{5, 6})
	m.Reset()
	b := logitsOf(t, m, []int64{5, 6})
	assert.Equal(t, a, b)
}

func TestForward_ReducedPrecision(t *testing.T) {
	for _, dt := range []string{"float16", "bfloat16"} {
		t.Run(dt, func(t *testing.T) {
			m, _ := newTinyModel(t, tinyConfig(dt), 3)
			vals := logitsOf(t, m, []int64{0, 7, 9})
			for _, v := range vals {
				assert.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
			}
		})
	}
}

func TestForward_Errors(t *testing.T) {
	m, _ := newTinyModel(t, tinyConfig("float32"), 4)

	_, err := m.Forward(context.Background(), nil)
	assert.ErrorIs(t, err, tensor.ErrShape)

	_, err = m.Forward(context.Background(), make([]int64, 17))
	assert.ErrorIs(t, err, tensor.ErrShape)
	assert.Equal(t, 0, m.Pos())

	// Out-of-vocabulary ids are rejected by the embedding kernel.
	_, err = m.Forward(context.Background(), []int64{99})
	assert.ErrorIs(t, err, tensor.ErrShape)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Forward(ctx, []int64{1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate(t *testing.T) {
	cfg := tinyConfig("float32")
	m, _ := newTinyModel(t, cfg, 5)

	out, err := m.Generate(context.Background(), []int64{1, 2}, 5)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for _, tok := range out {
		assert.True(t, tok >= 0 && tok < int64(cfg.VocabSize))
	}
	assert.Equal(t, 2+5-1, m.Pos())

	first, err := func() (int64, error) {
		m.Reset()
		return m.Next(context.Background(), []int64{1, 2})
	}()
	require.NoError(t, err)
	assert.Equal(t, out[0], first)

	// Stop at the end-of-sequence token.
	m.cfg.EOS = first
	out, err = m.Generate(context.Background(), []int64{1, 2}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{first}, out)
}

func TestWithMaxSeqLen(t *testing.T) {
	cfg := tinyConfig("float32")
	w, err := RandomWeights(cfg, rand.New(rand.NewSource(6)), tensor.Host)
	require.NoError(t, err)
	defer w.Release()
	m, err := New(cfg, w, WithMaxSeqLen(4))
	require.NoError(t, err)
	defer m.Release()

	_, err = m.Forward(context.Background(), []int64{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, tensor.ErrShape)
}

func TestNew_LayerMismatch(t *testing.T) {
	cfg := tinyConfig("float32")
	w, err := RandomWeights(cfg, rand.New(rand.NewSource(7)), tensor.Host)
	require.NoError(t, err)
	defer w.Release()
	cfg.NumLayers = 3
	_, err = New(cfg, w)
	assert.Error(t, err)
}
