package model

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorcore/internal/tensor"
)

// mapCollection serves tensors from memory. Lookups return new views.
type mapCollection map[string]*tensor.Tensor

func (c mapCollection) Tensor(name string) (*tensor.Tensor, error) {
	t, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingWeight)
	}
	return t.Contiguous()
}

// hfNames lays w out under HuggingFace names.
func hfNames(w *Weights) mapCollection {
	c := mapCollection{
		"model.embed_tokens.weight": w.Embed,
		"model.norm.weight":         w.Norm,
		"lm_head.weight":            w.LMHead,
	}
	for i, l := range w.Layers {
		p := fmt.Sprintf("model.layers.%d.", i)
		c[p+"input_layernorm.weight"] = l.AttnNorm
		c[p+"self_attn.q_proj.weight"] = l.Q
		c[p+"self_attn.q_proj.bias"] = l.QBias
		c[p+"self_attn.k_proj.weight"] = l.K
		c[p+"self_attn.k_proj.bias"] = l.KBias
		c[p+"self_attn.v_proj.weight"] = l.V
		c[p+"self_attn.v_proj.bias"] = l.VBias
		c[p+"self_attn.o_proj.weight"] = l.O
		c[p+"post_attention_layernorm.weight"] = l.MLPNorm
		c[p+"mlp.gate_proj.weight"] = l.Gate
		c[p+"mlp.up_proj.weight"] = l.Up
		c[p+"mlp.down_proj.weight"] = l.Down
	}
	return c
}

func TestBind(t *testing.T) {
	cfg := tinyConfig("float32")
	src, err := RandomWeights(cfg, rand.New(rand.NewSource(11)), tensor.Host)
	require.NoError(t, err)
	defer src.Release()

	w, err := Bind(cfg, hfNames(src), tensor.Host)
	require.NoError(t, err)
	defer w.Release()

	// Bound weights produce the same logits as the source set.
	a, err := New(cfg, src)
	require.NoError(t, err)
	defer a.Release()
	b, err := New(cfg, w)
	require.NoError(t, err)
	defer b.Release()
	ta, err := a.Next(context.Background(), []int64{2, 3})
	require.NoError(t, err)
	tb, err := b.Next(context.Background(), []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, ta, tb)
}

func TestBind_OptionalWeights(t *testing.T) {
	cfg := tinyConfig("float32")
	src, err := RandomWeights(cfg, rand.New(rand.NewSource(12)), tensor.Host)
	require.NoError(t, err)
	defer src.Release()

	col := hfNames(src)
	delete(col, "lm_head.weight")
	delete(col, "model.layers.0.self_attn.q_proj.bias")

	w, err := Bind(cfg, col, tensor.Host)
	require.NoError(t, err)
	defer w.Release()
	assert.Same(t, w.Embed, w.LMHead)
	assert.Nil(t, w.Layers[0].QBias)
	assert.NotNil(t, w.Layers[1].QBias)
}

func TestBind_Errors(t *testing.T) {
	cfg := tinyConfig("float32")
	src, err := RandomWeights(cfg, rand.New(rand.NewSource(13)), tensor.Host)
	require.NoError(t, err)
	defer src.Release()

	col := hfNames(src)
	delete(col, "model.layers.1.mlp.up_proj.weight")
	_, err = Bind(cfg, col, tensor.Host)
	assert.ErrorIs(t, err, ErrMissingWeight)

	col = hfNames(src)
	col["model.norm.weight"] = src.Layers[0].Q
	_, err = Bind(cfg, col, tensor.Host)
	assert.ErrorIs(t, err, tensor.ErrShape)

	half := tinyConfig("float16")
	_, err = Bind(half, hfNames(src), tensor.Host)
	assert.ErrorIs(t, err, tensor.ErrDtypeMismatch)
}

// writeSafeTensors encodes float32 tensors into a .safetensors file.
func writeSafeTensors(t *testing.T, path string, tensors map[string][]float32, shapes map[string][]int) {
	t.Helper()
	header := map[string]any{"__metadata__": map[string]string{"format": "pt"}}
	var data bytes.Buffer
	for name, vals := range tensors {
		start := data.Len()
		require.NoError(t, binary.Write(&data, binary.LittleEndian, vals))
		header[name] = safeTensorInfo{DType: "F32", Shape: shapes[name], DataOffsets: [2]int64{int64(start), int64(data.Len())}}
	}
	hdr, err := json.Marshal(header)
	require.NoError(t, err)

	var file bytes.Buffer
	require.NoError(t, binary.Write(&file, binary.LittleEndian, uint64(len(hdr))))
	file.Write(hdr)
	file.Write(data.Bytes())
	require.NoError(t, os.WriteFile(path, file.Bytes(), 0o600))
}

func TestSafeTensors(t *testing.T) {
	dir := t.TempDir()
	writeSafeTensors(t, filepath.Join(dir, "model-00001.safetensors"),
		map[string][]float32{"a": {1, 2, 3, 4, 5, 6}},
		map[string][]int{"a": {2, 3}})
	writeSafeTensors(t, filepath.Join(dir, "model-00002.safetensors"),
		map[string][]float32{"b": {7, 8}},
		map[string][]int{"b": {2}})

	st, err := OpenSafeTensors(tensor.Host, dir)
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, []string{"a", "b"}, st.Names())

	a, err := st.Tensor("a")
	require.NoError(t, err)
	defer a.Release()
	assert.Equal(t, tensor.Shape{2, 3}, a.Shape())
	vals, err := tensor.ToFloat32(a)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, vals)

	b, err := st.Tensor("b")
	require.NoError(t, err)
	defer b.Release()
	vals, err = tensor.ToFloat32(b)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 8}, vals)

	_, err = st.Tensor("c")
	assert.ErrorIs(t, err, ErrMissingWeight)
}

func TestSafeTensors_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenSafeTensors(tensor.Host, dir)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.safetensors")
	require.NoError(t, os.WriteFile(bad, []byte{1, 2, 3}, 0o600))
	_, err = OpenSafeTensors(tensor.Host, bad)
	assert.Error(t, err)

	_, err = safeTensorsDType("F8_E4M3")
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDataType)
	dt, err := safeTensorsDType("BF16")
	require.NoError(t, err)
	assert.Equal(t, tensor.BFloat16, dt)
}
