// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/tensorcore/internal/backend/cpu"
	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/ops"
)

// Backend is the pure Go kernel library.
type Backend = internalcpu.CPUBackend

// Features reports the instruction set extensions of the host.
type Features = internalcpu.Features

// Parallel configures how kernels split rows across goroutines.
type Parallel = parallel.Config

// Compile-time check that Backend implements ops.Backend.
var _ ops.Backend = (*Backend)(nil)

// New creates a CPU backend with the given worker configuration.
//
// Example:
//
//	import (
//	    "github.com/born-ml/tensorcore/backend/cpu"
//	    "github.com/born-ml/tensorcore/ops"
//	    "github.com/born-ml/tensorcore/tensor"
//	)
//
//	func main() {
//	    exec := ops.New(ops.WithBackend(tensor.CPU, cpu.New(cpu.DefaultParallel())))
//	    _ = exec
//	}
func New(cfg Parallel) *Backend {
	return internalcpu.New(cfg)
}

// DefaultParallel uses every CPU.
func DefaultParallel() Parallel { return parallel.DefaultConfig() }

// SerialParallel runs every kernel on the calling goroutine.
func SerialParallel() Parallel { return parallel.Serial() }

// DetectFeatures reads the host CPU capabilities.
func DetectFeatures() Features { return internalcpu.DetectFeatures() }
