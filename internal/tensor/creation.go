package tensor

import (
	"fmt"
	"math/rand"
)

// Full creates a tensor on dev with every element set to value.
//
// Example:
//
//	t, err := tensor.Full[float32](Shape{3, 3}, 3.14, tensor.Host)
func Full[T Element](shape Shape, value T, dev Device) (*Tensor, error) {
	data := make([]T, shape.NumElements())
	for i := range data {
		data[i] = value
	}
	return FromSlice(shape, data, dev)
}

// Arange creates a 1D int64 tensor with values [start, end).
// Position ids for rotary embedding are built this way.
func Arange(start, end int64, dev Device) (*Tensor, error) {
	if end < start {
		return nil, Errorf(KindShape, "arange", nil, "end %d before start %d", end, start)
	}
	data := make([]int64, end-start)
	for i := range data {
		data[i] = start + int64(i)
	}
	return FromSlice(Shape{len(data)}, data, dev)
}

// Rand creates a float tensor with values uniformly distributed in
// [-scale, scale), drawn from rng. Reduced precision types are narrowed from
// the float32 sample.
//
// Note: Uses math/rand (not crypto/rand), reproducible for a fixed seed.
func Rand(shape Shape, dtype DataType, scale float32, rng *rand.Rand, dev Device) (*Tensor, error) {
	n := shape.NumElements()
	sample := func() float32 {
		return (rng.Float32()*2 - 1) * scale
	}
	switch dtype {
	case Float32:
		data := make([]float32, n)
		for i := range data {
			data[i] = sample()
		}
		return FromSlice(shape, data, dev)
	case Float16:
		data := make([]F16, n)
		for i := range data {
			data[i] = F16FromFloat32(sample())
		}
		return FromSlice(shape, data, dev)
	case BFloat16:
		data := make([]BF16, n)
		for i := range data {
			data[i] = BF16FromFloat32(sample())
		}
		return FromSlice(shape, data, dev)
	case Float64:
		data := make([]float64, n)
		for i := range data {
			data[i] = float64(sample())
		}
		return FromSlice(shape, data, dev)
	default:
		return nil, &Error{Kind: KindUnsupportedDataType, Op: "rand", Msg: fmt.Sprintf("%s is not a float type", dtype)}
	}
}

// FromFloat32 narrows float32 values into a tensor of the given float dtype.
func FromFloat32(shape Shape, values []float32, dtype DataType, dev Device) (*Tensor, error) {
	switch dtype {
	case Float32:
		return FromSlice(shape, values, dev)
	case Float16:
		data := make([]F16, len(values))
		NarrowSlice(data, values, F16Codec)
		return FromSlice(shape, data, dev)
	case BFloat16:
		data := make([]BF16, len(values))
		NarrowSlice(data, values, BF16Codec)
		return FromSlice(shape, data, dev)
	default:
		return nil, &Error{Kind: KindUnsupportedDataType, Op: "from_float32", Msg: dtype.String()}
	}
}

// ToFloat32 returns the logical contents of a float tensor widened to
// float32 in row-major order.
func ToFloat32(t *Tensor) ([]float32, error) {
	raw, err := t.Bytes()
	if err != nil {
		return nil, err
	}
	n := t.NumElements()
	out := make([]float32, n)
	if n == 0 {
		return out, nil
	}
	switch t.dtype {
	case Float32:
		copy(out, bytesAs[float32](raw, n))
	case Float16:
		WidenSlice(out, bytesAs[F16](raw, n), F16Codec)
	case BFloat16:
		WidenSlice(out, bytesAs[BF16](raw, n), BF16Codec)
	case Float64:
		for i, v := range bytesAs[float64](raw, n) {
			out[i] = float32(v)
		}
	default:
		return nil, &Error{Kind: KindUnsupportedDataType, Op: "to_float32", Msg: t.dtype.String()}
	}
	return out, nil
}
