// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/born-ml/tensorcore/internal/tensor"
)

// Tensor is a strided view over shared storage.
type Tensor = tensor.Tensor

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Layout is the serializable view descriptor returned by Tensor.Layout.
type Layout = tensor.Layout

// DataType represents the element type tag of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Byte     DataType = tensor.Byte
	Bool     DataType = tensor.Bool
	Int8     DataType = tensor.Int8
	Int16    DataType = tensor.Int16
	Int32    DataType = tensor.Int32
	Int64    DataType = tensor.Int64
	Uint8    DataType = tensor.Uint8
	Uint16   DataType = tensor.Uint16
	Uint32   DataType = tensor.Uint32
	Uint64   DataType = tensor.Uint64
	Float16  DataType = tensor.Float16
	BFloat16 DataType = tensor.BFloat16
	Float32  DataType = tensor.Float32
	Float64  DataType = tensor.Float64
)

// Element constrains the Go types backing tensor elements.
type Element = tensor.Element

// Float constrains the element types of the floating point kernels.
type Float = tensor.Float

// F16 is an IEEE 754 binary16 value.
type F16 = tensor.F16

// BF16 is a bfloat16 value.
type BF16 = tensor.BF16

// Codec pairs widening and narrowing conversions for a float element type.
type Codec[T Float] = tensor.Codec[T]

// DeviceType is the kind of compute device.
type DeviceType = tensor.DeviceType

// Device type constants.
const (
	CPU    DeviceType = tensor.CPU
	CUDA   DeviceType = tensor.CUDA
	WebGPU DeviceType = tensor.WebGPU
)

// Device identifies one device instance.
type Device = tensor.Device

// Host is the default CPU device.
var Host = tensor.Host

// Storage is a reference-counted memory block.
type Storage = tensor.Storage

// Runtime is the allocator and copy capability for one device type.
type Runtime = tensor.Runtime

// Memory is a raw allocation owned by a Runtime.
type Memory = tensor.Memory

// HostRuntime allocates CPU memory.
type HostRuntime = tensor.HostRuntime

// Error is a structured contract violation.
type Error = tensor.Error

// Kind categorizes an Error.
type Kind = tensor.Kind

// Error kinds.
const (
	KindDeviceMismatch      = tensor.KindDeviceMismatch
	KindContiguity          = tensor.KindContiguity
	KindDtypeMismatch       = tensor.KindDtypeMismatch
	KindShape               = tensor.KindShape
	KindUnsupportedDataType = tensor.KindUnsupportedDataType
	KindUnsupportedDevice   = tensor.KindUnsupportedDevice
	KindAllocation          = tensor.KindAllocation
)

// Sentinel errors for errors.Is.
var (
	ErrDeviceMismatch      = tensor.ErrDeviceMismatch
	ErrContiguity          = tensor.ErrContiguity
	ErrDtypeMismatch       = tensor.ErrDtypeMismatch
	ErrShape               = tensor.ErrShape
	ErrUnsupportedDataType = tensor.ErrUnsupportedDataType
	ErrUnsupportedDevice   = tensor.ErrUnsupportedDevice
	ErrAllocation          = tensor.ErrAllocation
)

// KindOf returns the Kind carried by err, or 0.
func KindOf(err error) Kind { return tensor.KindOf(err) }

// New allocates a zeroed, row-major tensor.
//
// Example:
//
//	x, err := tensor.New(tensor.Shape{2, 3}, tensor.Float32, tensor.Host)
func New(shape Shape, dtype DataType, dev Device) (*Tensor, error) {
	return tensor.New(shape, dtype, dev)
}

// FromSlice allocates a tensor and loads data into it.
func FromSlice[T Element](shape Shape, data []T, dev Device) (*Tensor, error) {
	return tensor.FromSlice(shape, data, dev)
}

// FromBytes allocates a tensor and loads raw element bytes into it.
func FromBytes(shape Shape, dtype DataType, data []byte, dev Device) (*Tensor, error) {
	return tensor.FromBytes(shape, dtype, data, dev)
}

// FromFloat32 narrows float32 values into a tensor of a float dtype.
func FromFloat32(shape Shape, values []float32, dtype DataType, dev Device) (*Tensor, error) {
	return tensor.FromFloat32(shape, values, dtype, dev)
}

// Full creates a tensor with every element set to value.
func Full[T Element](shape Shape, value T, dev Device) (*Tensor, error) {
	return tensor.Full(shape, value, dev)
}

// Arange creates a 1D int64 tensor with values [start, end).
func Arange(start, end int64, dev Device) (*Tensor, error) {
	return tensor.Arange(start, end, dev)
}

// Rand creates a float tensor uniform in [-scale, scale).
func Rand(shape Shape, dtype DataType, scale float32, rng *rand.Rand, dev Device) (*Tensor, error) {
	return tensor.Rand(shape, dtype, scale, rng, dev)
}

// Data returns a zero-copy typed slice over a host tensor.
func Data[T Element](t *Tensor) ([]T, error) {
	return tensor.Data[T](t)
}

// ToFloat32 returns the logical contents of a float tensor as float32.
func ToFloat32(t *Tensor) ([]float32, error) {
	return tensor.ToFloat32(t)
}

// RegisterRuntime installs rt for its device type.
func RegisterRuntime(rt Runtime) { tensor.RegisterRuntime(rt) }

// NewHostRuntime creates a host runtime. A positive limit caps live bytes.
func NewHostRuntime(limit int64) *HostRuntime { return tensor.NewHostRuntime(limit) }

// ParseDataType converts a name such as "bf16" to a DataType.
func ParseDataType(name string) (DataType, error) { return tensor.ParseDataType(name) }

// ParseDeviceType converts a name such as "webgpu" to a DeviceType.
func ParseDeviceType(name string) (DeviceType, error) { return tensor.ParseDeviceType(name) }
