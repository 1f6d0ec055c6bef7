package ops

import (
	"github.com/born-ml/tensorcore/internal/tensor"
)

// Embedding gathers weight rows: out[i,:] = weight[indices[i],:].
// indices [N] is int32 or int64, weight [V,E], out [N,E].
func (e *Executor) Embedding(out, indices, weight *tensor.Tensor) error {
	c := newCall("embedding", req("out", out), req("indices", indices), req("weight", weight))
	return e.run(c, func(b Backend) error { return b.Embedding(out, indices, weight) },
		func() error { return c.contiguous() },
		func() error { return c.sameDType("out", "weight") },
		func() error { return c.dtypeIn("indices", indices, tensor.Int32, tensor.Int64) },
		func() error { return c.rank("indices", indices, 1) },
		func() error { return c.rank("weight", weight, 2) },
		func() error { return c.rank("out", out, 2) },
		func() error { return c.dim("out", out, 0, indices.Shape()[0], "number of indices") },
		func() error { return c.dim("out", out, 1, weight.Shape()[1], "embedding width") },
	)
}

// Linear computes out = in · weightᵀ + bias. in [M,K], weight [N,K],
// bias [N] or nil, out [M,N].
func (e *Executor) Linear(out, in, weight, bias *tensor.Tensor) error {
	c := newCall("linear", req("out", out), req("in", in), req("weight", weight), opt("bias", bias))
	return e.run(c, func(b Backend) error { return b.Linear(out, in, weight, bias) },
		func() error { return c.contiguous() },
		func() error { return c.sameDType("out", "in", "weight", "bias") },
		func() error { return c.rank("in", in, 2) },
		func() error { return c.rank("weight", weight, 2) },
		func() error { return c.rank("out", out, 2) },
		func() error { return c.dim("weight", weight, 1, in.Shape()[1], "in_features") },
		func() error { return c.dim("out", out, 0, in.Shape()[0], "rows of in") },
		func() error { return c.dim("out", out, 1, weight.Shape()[0], "out_features") },
		func() error {
			if bias == nil {
				return nil
			}
			if err := c.rank("bias", bias, 1); err != nil {
				return err
			}
			return c.dim("bias", bias, 0, weight.Shape()[0], "out_features")
		},
	)
}

// RMSNorm normalizes each row of in [M,D]: out = x / sqrt(mean(x²)+eps) * weight.
func (e *Executor) RMSNorm(out, in, weight *tensor.Tensor, eps float32) error {
	c := newCall("rms_norm", req("out", out), req("in", in), req("weight", weight))
	return e.run(c, func(b Backend) error { return b.RMSNorm(out, in, weight, eps) },
		func() error { return c.contiguous() },
		func() error { return c.sameDType("out", "in", "weight") },
		func() error { return c.rank("in", in, 2) },
		func() error { return c.sameShape("out", "in", out, in) },
		func() error { return c.rank("weight", weight, 1) },
		func() error { return c.dim("weight", weight, 0, in.Shape()[1], "row width") },
		func() error {
			if eps < 0 {
				return c.fail(tensor.KindShape, nil, "eps %g must be non-negative", eps)
			}
			return nil
		},
	)
}

// RoPE rotates in [L,H,D] by position ids pos [L] (int64) with base theta.
func (e *Executor) RoPE(out, in, pos *tensor.Tensor, theta float32) error {
	c := newCall("rope", req("out", out), req("in", in), req("pos_ids", pos))
	return e.run(c, func(b Backend) error { return b.RoPE(out, in, pos, theta) },
		func() error { return c.contiguous() },
		func() error { return c.sameDType("out", "in") },
		func() error { return c.dtypeIn("pos_ids", pos, tensor.Int64) },
		func() error { return c.rank("in", in, 3) },
		func() error { return c.sameShape("out", "in", out, in) },
		func() error { return c.rank("pos_ids", pos, 1) },
		func() error { return c.dim("pos_ids", pos, 0, in.Shape()[0], "sequence length") },
		func() error {
			if in.Shape()[2]%2 != 0 {
				return c.fail(tensor.KindShape, []string{"in"}, "head dim %d must be even", in.Shape()[2])
			}
			return nil
		},
		func() error {
			if theta <= 0 {
				return c.fail(tensor.KindShape, nil, "theta %g must be positive", theta)
			}
			return nil
		},
	)
}

// SelfAttention computes grouped-query causal attention.
// q [S,H,D], k [T,Hkv,D], v [T,Hkv,Dv], out [S,H,Dv], with H a multiple of
// Hkv and T >= S.
func (e *Executor) SelfAttention(out, q, k, v *tensor.Tensor, scale float32) error {
	c := newCall("self_attention", req("attn_val", out), req("q", q), req("k", k), req("v", v))
	return e.run(c, func(b Backend) error { return b.SelfAttention(out, q, k, v, scale) },
		func() error { return c.contiguous() },
		func() error { return c.sameDType("attn_val", "q", "k", "v") },
		func() error { return c.rank("q", q, 3) },
		func() error { return c.rank("k", k, 3) },
		func() error { return c.rank("v", v, 3) },
		func() error { return c.rank("attn_val", out, 3) },
		func() error { return c.dim("k", k, 2, q.Shape()[2], "head dim of q") },
		func() error { return c.dim("v", v, 0, k.Shape()[0], "total length of k") },
		func() error { return c.dim("v", v, 1, k.Shape()[1], "kv heads of k") },
		func() error { return c.dim("attn_val", out, 0, q.Shape()[0], "sequence length of q") },
		func() error { return c.dim("attn_val", out, 1, q.Shape()[1], "heads of q") },
		func() error { return c.dim("attn_val", out, 2, v.Shape()[2], "value dim of v") },
		func() error {
			nh, nkvh := q.Shape()[1], k.Shape()[1]
			if nkvh == 0 || nh%nkvh != 0 {
				return c.fail(tensor.KindShape, []string{"q", "k"}, "%d query heads not divisible by %d kv heads", nh, nkvh)
			}
			return nil
		},
		func() error {
			if s, t := q.Shape()[0], k.Shape()[0]; t < s {
				return c.fail(tensor.KindShape, []string{"q", "k"}, "total length %d shorter than sequence length %d", t, s)
			}
			return nil
		},
	)
}

// SwiGLU computes out = up * silu(gate) over same-shaped tensors.
func (e *Executor) SwiGLU(out, gate, up *tensor.Tensor) error {
	c := newCall("swiglu", req("out", out), req("gate", gate), req("up", up))
	return e.run(c, func(b Backend) error { return b.SwiGLU(out, gate, up) },
		func() error { return c.contiguous() },
		func() error { return c.sameDType("out", "gate", "up") },
		func() error { return c.sameShape("out", "gate", out, gate) },
		func() error { return c.sameShape("out", "up", out, up) },
	)
}

// Add computes out = a + b over same-shaped tensors.
func (e *Executor) Add(out, a, b *tensor.Tensor) error {
	c := newCall("add", req("out", out), req("a", a), req("b", b))
	return e.run(c, func(be Backend) error { return be.Add(out, a, b) },
		func() error { return c.contiguous() },
		func() error { return c.sameDType("out", "a", "b") },
		func() error { return c.sameShape("out", "a", out, a) },
		func() error { return c.sameShape("out", "b", out, b) },
	)
}

// ArgMax reduces vals [...,K] over the last axis into maxIdx (int64) and
// maxVal (dtype of vals). Both outputs hold one element per leading row.
func (e *Executor) ArgMax(maxIdx, maxVal, vals *tensor.Tensor) error {
	c := newCall("argmax", req("max_idx", maxIdx), req("max_val", maxVal), req("vals", vals))
	return e.run(c, func(b Backend) error { return b.ArgMax(maxIdx, maxVal, vals) },
		func() error { return c.contiguous() },
		func() error { return c.dtypeIn("max_idx", maxIdx, tensor.Int64) },
		func() error { return c.sameDType("max_val", "vals") },
		func() error {
			if vals.NDim() == 0 || vals.Shape()[vals.NDim()-1] == 0 {
				return c.fail(tensor.KindShape, []string{"vals"}, "cannot reduce empty last axis of shape %v", vals.Shape())
			}
			return nil
		},
		func() error {
			rows := vals.NumElements() / vals.Shape()[vals.NDim()-1]
			for _, a := range []arg{req("max_idx", maxIdx), req("max_val", maxVal)} {
				if a.t.NumElements() != rows {
					return c.fail(tensor.KindShape, []string{a.name, "vals"},
						"%s has %d elements, vals %v has %d rows", a.name, a.t.NumElements(), vals.Shape(), rows)
				}
			}
			return nil
		},
	)
}

// Rearrange copies in into out honoring both views' strides. Shapes and
// dtypes must match; neither side needs to be contiguous.
func (e *Executor) Rearrange(out, in *tensor.Tensor) error {
	c := newCall("rearrange", req("out", out), req("in", in))
	return e.run(c, func(b Backend) error { return b.Rearrange(out, in) },
		func() error { return c.sameDType("out", "in") },
		func() error { return c.sameShape("out", "in", out, in) },
	)
}
