package model

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/tensorcore/internal/tensor"
)

// ErrMissingWeight is returned by a Collection that has no tensor under the
// requested name.
var ErrMissingWeight = errors.New("weight not found")

// Collection provides named weight tensors in HuggingFace naming
// ("model.layers.0.self_attn.q_proj.weight").
type Collection interface {
	Tensor(name string) (*tensor.Tensor, error)
}

// Layer holds one decoder block. Projection biases may be nil.
type Layer struct {
	AttnNorm *tensor.Tensor
	Q, QBias *tensor.Tensor
	K, KBias *tensor.Tensor
	V, VBias *tensor.Tensor
	O        *tensor.Tensor
	MLPNorm  *tensor.Tensor
	Gate     *tensor.Tensor
	Up       *tensor.Tensor
	Down     *tensor.Tensor
}

// Weights is the full parameter set of a decoder.
type Weights struct {
	Embed  *tensor.Tensor
	Norm   *tensor.Tensor
	LMHead *tensor.Tensor
	Layers []Layer
}

// binder fetches tensors from a Collection and checks them against the
// expected shape and dtype.
type binder struct {
	col   Collection
	dtype tensor.DataType
	dev   tensor.Device
	held  []*tensor.Tensor
}

func (b *binder) get(name string, optional bool, shape ...int) (*tensor.Tensor, error) {
	t, err := b.col.Tensor(name)
	if err != nil {
		if optional && errors.Is(err, ErrMissingWeight) {
			return nil, nil
		}
		return nil, fmt.Errorf("bind %s: %w", name, err)
	}
	if !t.Shape().Equal(shape) {
		t.Release()
		return nil, tensor.Errorf(tensor.KindShape, "bind", []string{name}, "shape %v, want %v", t.Shape(), tensor.Shape(shape))
	}
	if t.DType() != b.dtype {
		t.Release()
		return nil, tensor.Errorf(tensor.KindDtypeMismatch, "bind", []string{name}, "dtype %s, want %s", t.DType(), b.dtype)
	}
	// Kernels need contiguous weights on the compute device.
	if t.Device() != b.dev || !t.IsContiguous() {
		moved, err := t.Contiguous()
		if err == nil && moved.Device() != b.dev {
			var dst *tensor.Tensor
			dst, err = moved.To(b.dev)
			moved.Release()
			moved = dst
		}
		t.Release()
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
		t = moved
	}
	b.held = append(b.held, t)
	return t, nil
}

func (b *binder) abort() {
	for _, t := range b.held {
		t.Release()
	}
}

// Bind resolves every decoder weight from col. Tensors are checked against
// cfg and moved to dev when needed. A missing lm_head falls back to the
// embedding table.
func Bind(cfg Config, col Collection, dev tensor.Device) (*Weights, error) {
	dtype, err := cfg.DType()
	if err != nil {
		return nil, err
	}
	b := &binder{col: col, dtype: dtype, dev: dev}
	w, err := b.bind(cfg)
	if err != nil {
		b.abort()
		return nil, err
	}
	return w, nil
}

func (b *binder) bind(cfg Config) (*Weights, error) {
	hs, v := cfg.HiddenSize, cfg.VocabSize
	w := &Weights{Layers: make([]Layer, cfg.NumLayers)}
	var err error
	if w.Embed, err = b.get("model.embed_tokens.weight", false, v, hs); err != nil {
		return nil, err
	}
	if w.Norm, err = b.get("model.norm.weight", false, hs); err != nil {
		return nil, err
	}
	if w.LMHead, err = b.get("lm_head.weight", true, v, hs); err != nil {
		return nil, err
	}
	if w.LMHead == nil {
		w.LMHead = w.Embed
	}
	for i := range w.Layers {
		p := fmt.Sprintf("model.layers.%d.", i)
		l := &w.Layers[i]
		for _, f := range []struct {
			dst      **tensor.Tensor
			name     string
			optional bool
			shape    []int
		}{
			{&l.AttnNorm, "input_layernorm.weight", false, []int{hs}},
			{&l.Q, "self_attn.q_proj.weight", false, []int{cfg.QDim(), hs}},
			{&l.QBias, "self_attn.q_proj.bias", true, []int{cfg.QDim()}},
			{&l.K, "self_attn.k_proj.weight", false, []int{cfg.KVDim(), hs}},
			{&l.KBias, "self_attn.k_proj.bias", true, []int{cfg.KVDim()}},
			{&l.V, "self_attn.v_proj.weight", false, []int{cfg.KVDim(), hs}},
			{&l.VBias, "self_attn.v_proj.bias", true, []int{cfg.KVDim()}},
			{&l.O, "self_attn.o_proj.weight", false, []int{hs, cfg.QDim()}},
			{&l.MLPNorm, "post_attention_layernorm.weight", false, []int{hs}},
			{&l.Gate, "mlp.gate_proj.weight", false, []int{cfg.Intermediate, hs}},
			{&l.Up, "mlp.up_proj.weight", false, []int{cfg.Intermediate, hs}},
			{&l.Down, "mlp.down_proj.weight", false, []int{hs, cfg.Intermediate}},
		} {
			if *f.dst, err = b.get(p+f.name, f.optional, f.shape...); err != nil {
				return nil, err
			}
		}
	}
	return w, nil
}

// RandomWeights builds a weight set with uniform values in [-0.02, 0.02),
// unit norm gains and projection biases. Used for smoke tests and benches.
func RandomWeights(cfg Config, rng *rand.Rand, dev tensor.Device) (*Weights, error) {
	dtype, err := cfg.DType()
	if err != nil {
		return nil, err
	}
	var held []*tensor.Tensor
	fail := func(err error) (*Weights, error) {
		for _, t := range held {
			t.Release()
		}
		return nil, err
	}
	rnd := func(shape ...int) (*tensor.Tensor, error) {
		t, err := tensor.Rand(shape, dtype, 0.02, rng, dev)
		if err == nil {
			held = append(held, t)
		}
		return t, err
	}
	ones := func(n int) (*tensor.Tensor, error) {
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = 1
		}
		t, err := tensor.FromFloat32(tensor.Shape{n}, vals, dtype, dev)
		if err == nil {
			held = append(held, t)
		}
		return t, err
	}

	hs := cfg.HiddenSize
	w := &Weights{Layers: make([]Layer, cfg.NumLayers)}
	if w.Embed, err = rnd(cfg.VocabSize, hs); err != nil {
		return fail(err)
	}
	if w.Norm, err = ones(hs); err != nil {
		return fail(err)
	}
	w.LMHead = w.Embed
	if !cfg.TieEmbeddings {
		if w.LMHead, err = rnd(cfg.VocabSize, hs); err != nil {
			return fail(err)
		}
	}
	for i := range w.Layers {
		l := &w.Layers[i]
		steps := []func() error{
			func() (err error) { l.AttnNorm, err = ones(hs); return },
			func() (err error) { l.Q, err = rnd(cfg.QDim(), hs); return },
			func() (err error) { l.QBias, err = rnd(cfg.QDim()); return },
			func() (err error) { l.K, err = rnd(cfg.KVDim(), hs); return },
			func() (err error) { l.KBias, err = rnd(cfg.KVDim()); return },
			func() (err error) { l.V, err = rnd(cfg.KVDim(), hs); return },
			func() (err error) { l.VBias, err = rnd(cfg.KVDim()); return },
			func() (err error) { l.O, err = rnd(hs, cfg.QDim()); return },
			func() (err error) { l.MLPNorm, err = ones(hs); return },
			func() (err error) { l.Gate, err = rnd(cfg.Intermediate, hs); return },
			func() (err error) { l.Up, err = rnd(cfg.Intermediate, hs); return },
			func() (err error) { l.Down, err = rnd(hs, cfg.Intermediate); return },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return fail(err)
			}
		}
	}
	return w, nil
}

// Release drops every weight reference.
func (w *Weights) Release() {
	release := func(ts ...*tensor.Tensor) {
		for _, t := range ts {
			if t != nil {
				t.Release()
			}
		}
	}
	release(w.Embed, w.Norm)
	if w.LMHead != w.Embed {
		release(w.LMHead)
	}
	for _, l := range w.Layers {
		release(l.AttnNorm, l.Q, l.QBias, l.K, l.KBias, l.V, l.VBias, l.O, l.MLPNorm, l.Gate, l.Up, l.Down)
	}
}
