//go:build !windows

package webgpu

import (
	"errors"

	"github.com/born-ml/tensorcore/internal/tensor"
)

var errNoNative = errors.New("webgpu runtime is only built for windows")

// Runtime is unavailable on this platform.
type Runtime struct {
	tensor.Runtime
}

// New always fails on this platform.
func New() (*Runtime, error) {
	return nil, unavailable("init", errNoNative)
}

// IsAvailable reports false on this platform.
func IsAvailable() bool { return false }

// Name returns the runtime name.
func (r *Runtime) Name() string { return "webgpu" }

// Release is a no-op.
func (r *Runtime) Release() {}
