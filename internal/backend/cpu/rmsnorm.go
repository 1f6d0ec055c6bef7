package cpu

import (
	"math"

	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// RMSNorm normalizes each row of in [M,D] by its root mean square and scales
// by weight [D]: out = x / sqrt(mean(x²) + eps) * weight.
func (cpu *CPUBackend) RMSNorm(out, in, weight *tensor.Tensor, eps float32) error {
	switch out.DType() {
	case tensor.Float32:
		return rmsNorm(cpu.par, out, in, weight, eps, tensor.F32Codec)
	case tensor.Float16:
		return rmsNorm(cpu.par, out, in, weight, eps, tensor.F16Codec)
	case tensor.BFloat16:
		return rmsNorm(cpu.par, out, in, weight, eps, tensor.BF16Codec)
	default:
		return unsupported("rms_norm", out.DType())
	}
}

func rmsNorm[T tensor.Float](par parallel.Config, out, in, weight *tensor.Tensor, eps float32, c tensor.Codec[T]) error {
	d, err := floats[T](out, in, weight)
	if err != nil {
		return err
	}
	y, x, w := d[0], d[1], d[2]
	rows, dim := in.Shape()[0], in.Shape()[1]
	if dim == 0 {
		return nil
	}

	parallel.ForCost(rows, dim, func(r int) {
		src := x[r*dim : (r+1)*dim]
		dst := y[r*dim : (r+1)*dim]
		var sum float32
		for _, v := range src {
			f := c.Widen(v)
			sum += f * f
		}
		mean := sum / float32(dim)
		scale := float32(1.0) / float32(math.Sqrt(float64(mean+eps)))
		for i, v := range src {
			dst[i] = c.Narrow(c.Widen(v) * scale * c.Widen(w[i]))
		}
	}, par)
	return nil
}
