// Package tensor provides the strided tensor view engine: storage ownership,
// element type tags, shapes, and view-producing operations.
package tensor

import (
	"fmt"
	"strings"

	"github.com/x448/float16"
)

// Element is a constraint over the Go types that back a tensor element.
type Element interface {
	~uint8 | ~int8 | ~int16 | ~int32 | ~int64 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~bool
}

// Float is the constraint for element types the floating point kernels
// operate on. Reduced precision types are widened to float32 for arithmetic.
type Float interface {
	float32 | F16 | BF16
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Invalid DataType = iota
	Byte
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	BFloat16
	Float32
	Float64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Byte, Bool, Int8, Uint8:
		return 1
	case Int16, Uint16, Float16, BFloat16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether dt is a known element type.
func (dt DataType) Valid() bool {
	return dt.Size() > 0
}

// IsFloat reports whether the kernels' float family covers dt.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float16 || dt == BFloat16
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Byte:
		return "byte"
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so layouts serialize by name.
func (dt DataType) MarshalText() ([]byte, error) {
	return []byte(dt.String()), nil
}

// ParseDataType converts a name such as "bf16" or "float32" to a DataType.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "byte":
		return Byte, nil
	case "bool":
		return Bool, nil
	case "i8", "int8":
		return Int8, nil
	case "i16", "int16":
		return Int16, nil
	case "i32", "int32":
		return Int32, nil
	case "i64", "int64":
		return Int64, nil
	case "u8", "uint8":
		return Uint8, nil
	case "u16", "uint16":
		return Uint16, nil
	case "u32", "uint32":
		return Uint32, nil
	case "u64", "uint64":
		return Uint64, nil
	case "f16", "fp16", "float16", "half":
		return Float16, nil
	case "bf16", "bfloat16":
		return BFloat16, nil
	case "f32", "fp32", "float32", "float":
		return Float32, nil
	case "f64", "fp64", "float64", "double":
		return Float64, nil
	default:
		return Invalid, fmt.Errorf("unknown data type %q", name)
	}
}

// dataTypeOf infers the DataType tags compatible with a Go element type.
// Byte and Uint8 share a Go representation, so both are accepted for uint8.
func dataTypeOf[T Element]() []DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return []DataType{Float32}
	case float64:
		return []DataType{Float64}
	case F16:
		return []DataType{Float16}
	case BF16:
		return []DataType{BFloat16}
	case int8:
		return []DataType{Int8}
	case int16:
		return []DataType{Int16}
	case int32:
		return []DataType{Int32}
	case int64:
		return []DataType{Int64}
	case uint8:
		return []DataType{Uint8, Byte}
	case uint16:
		return []DataType{Uint16}
	case uint32:
		return []DataType{Uint32}
	case uint64:
		return []DataType{Uint64}
	case bool:
		return []DataType{Bool}
	default:
		return nil
	}
}

// F16 is an IEEE 754 binary16 element.
type F16 = float16.Float16
