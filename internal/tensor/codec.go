package tensor

import (
	"math"

	"github.com/x448/float16"
)

// BF16 is a 16-bit brain float element: the upper half of a float32.
type BF16 uint16

// BF16FromFloat32 narrows f to bfloat16 with round-to-nearest-even.
func BF16FromFloat32(f float32) BF16 {
	u := math.Float32bits(f)
	if u&0x7F800000 == 0x7F800000 && u&0x007FFFFF != 0 {
		// Keep NaN quiet instead of letting rounding carry into infinity.
		return BF16(u>>16 | 0x40)
	}
	rnd := uint32(0x7FFF + ((u >> 16) & 1))
	return BF16((u + rnd) >> 16)
}

// Float32 widens b to float32. The conversion is exact.
func (b BF16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// F16FromFloat32 narrows f to binary16 with round-to-nearest-even.
func F16FromFloat32(f float32) F16 {
	return float16.Fromfloat32(f)
}

// Codec pairs the widening and narrowing conversions for a float element type.
// Kernels accumulate in float32 and only narrow when storing a final value.
type Codec[T Float] struct {
	Widen  func(T) float32
	Narrow func(float32) T
}

var (
	// F32Codec is the identity codec.
	F32Codec = Codec[float32]{
		Widen:  func(v float32) float32 { return v },
		Narrow: func(v float32) float32 { return v },
	}

	// F16Codec converts binary16 elements.
	F16Codec = Codec[F16]{
		Widen:  func(v F16) float32 { return v.Float32() },
		Narrow: F16FromFloat32,
	}

	// BF16Codec converts bfloat16 elements.
	BF16Codec = Codec[BF16]{
		Widen:  func(v BF16) float32 { return v.Float32() },
		Narrow: BF16FromFloat32,
	}
)

// WidenSlice converts src to float32 into dst.
func WidenSlice[T Float](dst []float32, src []T, c Codec[T]) {
	for i, v := range src {
		dst[i] = c.Widen(v)
	}
}

// NarrowSlice converts float32 values in src into dst.
func NarrowSlice[T Float](dst []T, src []float32, c Codec[T]) {
	for i, v := range src {
		dst[i] = c.Narrow(v)
	}
}
