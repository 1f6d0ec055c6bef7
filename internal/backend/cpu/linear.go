package cpu

import (
	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// Linear computes out = in · weightᵀ + bias.
// Shapes: in [M,K], weight [N,K], bias [N] or nil, out [M,N].
func (cpu *CPUBackend) Linear(out, in, weight, bias *tensor.Tensor) error {
	switch out.DType() {
	case tensor.Float32:
		return linear(cpu.par, out, in, weight, bias, tensor.F32Codec)
	case tensor.Float16:
		return linear(cpu.par, out, in, weight, bias, tensor.F16Codec)
	case tensor.BFloat16:
		return linear(cpu.par, out, in, weight, bias, tensor.BF16Codec)
	default:
		return unsupported("linear", out.DType())
	}
}

func linear[T tensor.Float](par parallel.Config, out, in, weight, bias *tensor.Tensor, c tensor.Codec[T]) error {
	d, err := floats[T](out, in, weight, bias)
	if err != nil {
		return err
	}
	y, x, w, b := d[0], d[1], d[2], d[3]
	m, k := in.Shape()[0], in.Shape()[1]
	n := weight.Shape()[0]

	// Each output element is one dot product of length K.
	parallel.ForCost(m*n, k, func(idx int) {
		i, j := idx/n, idx%n
		xr := x[i*k : (i+1)*k]
		wr := w[j*k : (j+1)*k]
		var sum float32
		for p := range xr {
			sum += c.Widen(xr[p]) * c.Widen(wr[p])
		}
		if b != nil {
			sum += c.Widen(b[j])
		}
		y[idx] = c.Narrow(sum)
	}, par)
	return nil
}
