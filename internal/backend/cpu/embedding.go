package cpu

import (
	"fmt"

	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// Embedding gathers rows of weight [V,E] into out [N,E] for indices [N]
// (int32 or int64). Every index is checked before the first row is written.
func (cpu *CPUBackend) Embedding(out, indices, weight *tensor.Tensor) error {
	switch indices.DType() {
	case tensor.Int64:
		return embedding[int64](cpu.par, out, indices, weight)
	case tensor.Int32:
		return embedding[int32](cpu.par, out, indices, weight)
	default:
		return unsupported("embedding", indices.DType())
	}
}

func embedding[I int32 | int64](par parallel.Config, out, indices, weight *tensor.Tensor) error {
	idx, err := tensor.Data[I](indices)
	if err != nil {
		return err
	}
	vocab := weight.Shape()[0]
	idx = idx[:indices.NumElements()]
	for i, ix := range idx {
		if ix < 0 || int64(ix) >= int64(vocab) {
			return &tensor.Error{
				Kind:    tensor.KindShape,
				Op:      "embedding",
				Msg:     fmt.Sprintf("index %d at position %d outside vocabulary of %d", ix, i, vocab),
				Tensors: []string{"indices"},
			}
		}
	}

	dst, dOff, err := out.HostBuffer()
	if err != nil {
		return err
	}
	src, sOff, err := weight.HostBuffer()
	if err != nil {
		return err
	}
	rowBytes := weight.Shape()[1] * weight.ElementSize()
	parallel.ForCost(len(idx), rowBytes, func(i int) {
		s := sOff + int(idx[i])*rowBytes
		d := dOff + i*rowBytes
		copy(dst[d:d+rowBytes], src[s:s+rowBytes])
	}, par)
	return nil
}
