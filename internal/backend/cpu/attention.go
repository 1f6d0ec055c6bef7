package cpu

import (
	"math"

	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// SelfAttention computes grouped-query causal attention.
//
// Shapes: q [S,H,D], k [T,Hkv,D], v [T,Hkv,Dv], out [S,H,Dv]. Query head h
// reads kv head h/(H/Hkv). Query i sits at global position T-S+i and sees
// keys at positions t <= T-S+i.
func (cpu *CPUBackend) SelfAttention(out, q, k, v *tensor.Tensor, scale float32) error {
	switch out.DType() {
	case tensor.Float32:
		return selfAttention(cpu.par, out, q, k, v, scale, tensor.F32Codec)
	case tensor.Float16:
		return selfAttention(cpu.par, out, q, k, v, scale, tensor.F16Codec)
	case tensor.BFloat16:
		return selfAttention(cpu.par, out, q, k, v, scale, tensor.BF16Codec)
	default:
		return unsupported("self_attention", out.DType())
	}
}

func selfAttention[T tensor.Float](par parallel.Config, out, q, k, v *tensor.Tensor, scale float32, c tensor.Codec[T]) error {
	d, err := floats[T](out, q, k, v)
	if err != nil {
		return err
	}
	y, qd, kd, vd := d[0], d[1], d[2], d[3]

	seqLen, nh, dh := q.Shape()[0], q.Shape()[1], q.Shape()[2]
	totalLen, nkvh := k.Shape()[0], k.Shape()[1]
	dv := v.Shape()[2]
	group := nh / nkvh

	parallel.ForCost(seqLen*nh, totalLen*(dh+dv), func(row int) {
		i, h := row/nh, row%nh
		kh := h / group
		visible := totalLen - seqLen + i + 1

		// Scores and the accumulator are private to this (query, head).
		scores := make([]float32, visible)
		qr := widenRow(qd[row*dh:(row+1)*dh], c)
		maxv := float32(math.Inf(-1))
		for t := 0; t < visible; t++ {
			kr := kd[(t*nkvh+kh)*dh : (t*nkvh+kh+1)*dh]
			var dot float32
			for p, qv := range qr {
				dot += qv * c.Widen(kr[p])
			}
			s := dot * scale
			scores[t] = s
			if s > maxv {
				maxv = s
			}
		}

		var sum float32
		for t, s := range scores {
			e := float32(math.Exp(float64(s - maxv)))
			scores[t] = e
			sum += e
		}

		acc := make([]float32, dv)
		for t, w := range scores {
			p := w / sum
			vr := vd[(t*nkvh+kh)*dv : (t*nkvh+kh+1)*dv]
			for e := range acc {
				acc[e] += p * c.Widen(vr[e])
			}
		}
		dst := y[row*dv : (row+1)*dv]
		for e, a := range acc {
			dst[e] = c.Narrow(a)
		}
	}, par)
	return nil
}

func widenRow[T tensor.Float](src []T, c tensor.Codec[T]) []float32 {
	dst := make([]float32, len(src))
	tensor.WidenSlice(dst, src, c)
	return dst
}
