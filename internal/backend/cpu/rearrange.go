package cpu

import (
	"unsafe"

	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// Rearrange copies in into out element by element, honoring the strides of
// both views. The shapes and data types must match. Contiguous to contiguous
// copies are a single byte copy.
func (cpu *CPUBackend) Rearrange(out, in *tensor.Tensor) error {
	dst, dOff, err := out.HostBuffer()
	if err != nil {
		return err
	}
	src, sOff, err := in.HostBuffer()
	if err != nil {
		return err
	}
	es := in.ElementSize()
	if out.IsContiguous() && in.IsContiguous() {
		n := in.NumElements() * es
		copy(dst[dOff:dOff+n], src[sOff:sOff+n])
		return nil
	}

	switch es {
	case 1:
		rearrange[uint8](cpu.par, dst, dOff, out.Strides(), src, sOff, in.Strides(), in.Shape())
	case 2:
		rearrange[uint16](cpu.par, dst, dOff, out.Strides(), src, sOff, in.Strides(), in.Shape())
	case 4:
		rearrange[uint32](cpu.par, dst, dOff, out.Strides(), src, sOff, in.Strides(), in.Shape())
	case 8:
		rearrange[uint64](cpu.par, dst, dOff, out.Strides(), src, sOff, in.Strides(), in.Shape())
	default:
		return unsupported("rearrange", in.DType())
	}
	return nil
}

// rearrange moves elements as opaque words of their byte size. The outermost
// dimension is split across workers; each worker walks the rest.
func rearrange[W uint8 | uint16 | uint32 | uint64](par parallel.Config, dst []byte, dOff int, dStrides []int,
	src []byte, sOff int, sStrides []int, shape tensor.Shape) {
	if shape.NumElements() == 0 {
		return
	}
	d, s := words[W](dst), words[W](src)
	es := int(unsafe.Sizeof(W(0)))
	db, sb := dOff/es, sOff/es
	if len(shape) == 0 {
		d[db] = s[sb]
		return
	}

	inner := shape[1:]
	parallel.ForCost(shape[0], inner.NumElements(), func(i int) {
		do := db + i*dStrides[0]
		so := sb + i*sStrides[0]
		if len(inner) == 0 {
			d[do] = s[so]
			return
		}
		tensor.Walk2(inner, dStrides[1:], sStrides[1:], func(a, b int) {
			d[do+a] = s[so+b]
		})
	}, par)
}

// words reinterprets a byte buffer as a slice of W. Host storage comes from
// make([]byte), which is aligned for every word size.
func words[W uint8 | uint16 | uint32 | uint64](b []byte) []W {
	if len(b) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(W(0)))
	//nolint:gosec // reinterpretation of host storage bytes
	return unsafe.Slice((*W)(unsafe.Pointer(&b[0])), len(b)/size)
}
