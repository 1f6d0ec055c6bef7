package cpu

import (
	"math"

	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// RoPE applies rotary position embedding to in [L,H,D] with position ids
// pos [L] (int64). Element pairs (j, j+D/2) are rotated by
// pos · theta^(-2j/D). Angles and the rotation run in float64.
func (cpu *CPUBackend) RoPE(out, in, pos *tensor.Tensor, theta float32) error {
	ids, err := tensor.Data[int64](pos)
	if err != nil {
		return err
	}
	switch out.DType() {
	case tensor.Float32:
		return rope(cpu.par, out, in, ids, theta, tensor.F32Codec)
	case tensor.Float16:
		return rope(cpu.par, out, in, ids, theta, tensor.F16Codec)
	case tensor.BFloat16:
		return rope(cpu.par, out, in, ids, theta, tensor.BF16Codec)
	default:
		return unsupported("rope", out.DType())
	}
}

// InvFreq returns theta^(-2j/dim) for j in [0, dim/2).
func InvFreq(dim int, theta float64) []float64 {
	half := dim / 2
	inv := make([]float64, half)
	for j := range inv {
		inv[j] = 1.0 / math.Pow(theta, float64(2*j)/float64(dim))
	}
	return inv
}

func rope[T tensor.Float](par parallel.Config, out, in *tensor.Tensor, ids []int64, theta float32, c tensor.Codec[T]) error {
	d, err := floats[T](out, in)
	if err != nil {
		return err
	}
	y, x := d[0], d[1]
	shape := in.Shape()
	seq, heads, dim := shape[0], shape[1], shape[2]
	half := dim / 2
	inv := InvFreq(dim, float64(theta))

	parallel.ForCost(seq*heads, dim, func(row int) {
		p := float64(ids[row/heads])
		base := row * dim
		for j := 0; j < half; j++ {
			angle := p * inv[j]
			sin, cos := math.Sincos(angle)
			a := float64(c.Widen(x[base+j]))
			b := float64(c.Widen(x[base+j+half]))
			y[base+j] = c.Narrow(float32(a*cos - b*sin))
			y[base+j+half] = c.Narrow(float32(b*cos + a*sin))
		}
	}, par)
	return nil
}
