// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU storage runtime.
//
// WebGPU is a cross-platform graphics and compute API. The runtime keeps
// tensor storage in GPU buffers and moves bytes through staging buffers.
// It is built for Windows; elsewhere New reports tensor.ErrUnsupportedDevice.
//
// Example:
//
//	import (
//	    "github.com/born-ml/tensorcore/device/webgpu"
//	    "github.com/born-ml/tensorcore/tensor"
//	)
//
//	func main() {
//	    if !webgpu.IsAvailable() {
//	        return
//	    }
//	    rt, err := webgpu.Register()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer rt.Release()
//
//	    x, _ := tensor.New(tensor.Shape{1024}, tensor.Float32, tensor.Device{Type: tensor.WebGPU})
//	    defer x.Release()
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/tensorcore/internal/device/webgpu"
)

// Runtime is the WebGPU allocator and copy engine.
type Runtime = internalwebgpu.Runtime

// New opens the default adapter without registering it.
func New() (*Runtime, error) {
	return internalwebgpu.New()
}

// Register opens the default adapter and installs it for tensor.WebGPU.
// Call Release() when done to free GPU resources.
func Register() (*Runtime, error) {
	return internalwebgpu.Register()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// This function attempts to initialize a WebGPU adapter to verify
// that a compatible GPU and drivers are present. It's useful for
// graceful fallback to host storage when GPU is not available.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
