// Package cpu implements the host kernel library: one generic body per kernel,
// instantiated for each element type selected at dispatch time.
package cpu

import (
	"fmt"

	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// CPUBackend runs kernels on host memory. Inputs are assumed validated by the
// caller (device, contiguity, dtype and shape); the backend only selects the
// type-specialized routine and reports tags it has no routine for.
type CPUBackend struct {
	device   tensor.Device
	par      parallel.Config
	features Features
}

// New creates a CPU backend using cfg for row and head level parallelism.
func New(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device:   tensor.Host,
		par:      cfg,
		features: DetectFeatures(),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device type.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Parallel returns the loop configuration.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.par
}

// Features returns the detected instruction set extensions.
func (cpu *CPUBackend) Features() Features {
	return cpu.features
}

func unsupported(op string, dt tensor.DataType) error {
	return &tensor.Error{
		Kind: tensor.KindUnsupportedDataType,
		Op:   op,
		Msg:  fmt.Sprintf("no %s routine for %s", op, dt),
	}
}

// floats returns the contiguous typed slices of the given tensors.
func floats[T tensor.Float](ts ...*tensor.Tensor) ([][]T, error) {
	out := make([][]T, len(ts))
	for i, t := range ts {
		if t == nil {
			continue
		}
		data, err := tensor.Data[T](t)
		if err != nil {
			return nil, err
		}
		out[i] = data[:t.NumElements()]
	}
	return out, nil
}
