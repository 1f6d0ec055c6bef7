package cpu

import (
	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// Add computes out = a + b elementwise over same-shaped tensors.
func (cpu *CPUBackend) Add(out, a, b *tensor.Tensor) error {
	switch out.DType() {
	case tensor.Float32:
		return add(cpu.par, out, a, b, tensor.F32Codec)
	case tensor.Float16:
		return add(cpu.par, out, a, b, tensor.F16Codec)
	case tensor.BFloat16:
		return add(cpu.par, out, a, b, tensor.BF16Codec)
	default:
		return unsupported("add", out.DType())
	}
}

func add[T tensor.Float](par parallel.Config, out, a, b *tensor.Tensor, c tensor.Codec[T]) error {
	d, err := floats[T](out, a, b)
	if err != nil {
		return err
	}
	y, x0, x1 := d[0], d[1], d[2]
	parallel.For(len(y), func(i int) {
		y[i] = c.Narrow(c.Widen(x0[i]) + c.Widen(x1[i]))
	}, par)
	return nil
}
