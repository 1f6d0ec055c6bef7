// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the strided tensor views used by the kernel layer.
//
// # Overview
//
// A Tensor is a view (shape, strides, byte offset, data type) over a
// reference-counted Storage that lives on one device. Views share storage:
//   - Slice narrows one dimension without copying
//   - Permute reorders dimensions without copying
//   - View reinterprets a contiguous tensor with a new shape
//   - Contiguous and Reshape compact when needed
//
// # Basic Usage
//
//	import "github.com/born-ml/tensorcore/tensor"
//
//	func main() {
//	    x, _ := tensor.FromSlice(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}, tensor.Host)
//	    defer x.Release()
//
//	    col, _ := x.Slice(1, 1, 2) // shape [2 1], strides [3 1]
//	    defer col.Release()
//	    fmt.Println(col.Info())
//	}
//
// # Data Types
//
// Every tensor carries a DataType tag. The floating point kernels accept
// Float32, Float16 and BFloat16; reduced precision values are widened to
// float32 for arithmetic and narrowed once on store.
//
// # Devices
//
// Storage is allocated through the Runtime registered for the device type.
// The host runtime is always registered. Other runtimes (see device/webgpu)
// call RegisterRuntime.
//
// # Errors
//
// Failures are *Error values carrying one Kind. Match them with errors.Is
// against the sentinels:
//
//	if errors.Is(err, tensor.ErrShape) { ... }
//
// # Memory Management
//
// Release drops a view's reference. Storage is freed when its last view is
// released.
package tensor
