// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go kernel backend.
//
// # Overview
//
// This package implements the transformer kernels with:
//   - Pure Go implementation (no CGO)
//   - Float32, Float16 and BFloat16 elements, accumulated in float32
//   - Rows and heads split across goroutines
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/tensorcore/backend/cpu"
//	    "github.com/born-ml/tensorcore/ops"
//	    "github.com/born-ml/tensorcore/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New(cpu.SerialParallel())
//	    exec := ops.New(ops.WithBackend(tensor.CPU, backend))
//	    fmt.Println(cpu.DetectFeatures())
//	}
package cpu
