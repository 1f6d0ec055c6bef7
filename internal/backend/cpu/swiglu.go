package cpu

import (
	"math"

	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// SwiGLU computes out = up * silu(gate) elementwise.
func (cpu *CPUBackend) SwiGLU(out, gate, up *tensor.Tensor) error {
	switch out.DType() {
	case tensor.Float32:
		return swiglu(cpu.par, out, gate, up, tensor.F32Codec)
	case tensor.Float16:
		return swiglu(cpu.par, out, gate, up, tensor.F16Codec)
	case tensor.BFloat16:
		return swiglu(cpu.par, out, gate, up, tensor.BF16Codec)
	default:
		return unsupported("swiglu", out.DType())
	}
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Silu computes the Sigmoid Linear Unit (SiLU) activation.
func Silu(x float32) float32 {
	return x * Sigmoid(x)
}

func swiglu[T tensor.Float](par parallel.Config, out, gate, up *tensor.Tensor, c tensor.Codec[T]) error {
	d, err := floats[T](out, gate, up)
	if err != nil {
		return err
	}
	y, g, u := d[0], d[1], d[2]
	parallel.For(len(y), func(i int) {
		y[i] = c.Narrow(c.Widen(u[i]) * Silu(c.Widen(g[i])))
	}, par)
	return nil
}
