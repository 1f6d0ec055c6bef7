package cpu

import (
	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// ArgMax reduces vals [...,K] over its last axis. For every leading row it
// stores the index (int64) and value of the first maximal element.
func (cpu *CPUBackend) ArgMax(maxIdx, maxVal, vals *tensor.Tensor) error {
	switch vals.DType() {
	case tensor.Float32:
		return argmax(cpu.par, maxIdx, maxVal, vals, tensor.F32Codec)
	case tensor.Float16:
		return argmax(cpu.par, maxIdx, maxVal, vals, tensor.F16Codec)
	case tensor.BFloat16:
		return argmax(cpu.par, maxIdx, maxVal, vals, tensor.BF16Codec)
	default:
		return unsupported("argmax", vals.DType())
	}
}

func argmax[T tensor.Float](par parallel.Config, maxIdx, maxVal, vals *tensor.Tensor, c tensor.Codec[T]) error {
	d, err := floats[T](maxVal, vals)
	if err != nil {
		return err
	}
	mv, x := d[0], d[1]
	mi, err := tensor.Data[int64](maxIdx)
	if err != nil {
		return err
	}
	k := 1
	if vals.NDim() > 0 {
		k = vals.Shape()[vals.NDim()-1]
	}
	if k == 0 {
		return nil
	}
	rows := vals.NumElements() / k

	parallel.ForCost(rows, k, func(r int) {
		row := x[r*k : (r+1)*k]
		best := 0
		bestVal := c.Widen(row[0])
		for i := 1; i < k; i++ {
			if v := c.Widen(row[i]); v > bestVal {
				best, bestVal = i, v
			}
		}
		mi[r] = int64(best)
		mv[r] = row[best]
	}, par)
	return nil
}
