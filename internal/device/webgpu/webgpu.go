// Package webgpu provides a tensor.Runtime backed by WebGPU buffers.
//
// Storage allocated through it lives in GPU memory; the view engine moves
// bytes with CopyFromHost and CopyToHost. The native runtime is only wired
// on Windows, other platforms get a stub whose New reports an
// unsupported-device error.
package webgpu

import (
	"github.com/born-ml/tensorcore/internal/tensor"
)

// copyAlign is the WebGPU requirement for buffer copy offsets and sizes.
const copyAlign = 4

// alignDown rounds n down to a multiple of copyAlign.
func alignDown(n int) int { return n &^ (copyAlign - 1) }

// alignUp rounds n up to a multiple of copyAlign.
func alignUp(n int) int { return (n + copyAlign - 1) &^ (copyAlign - 1) }

// window describes the aligned byte range covering [off, off+n).
type window struct {
	lo, hi int // aligned bounds
	skip   int // off - lo
}

func span(off, n int) window {
	lo := alignDown(off)
	return window{lo: lo, hi: alignUp(off + n), skip: off - lo}
}

// aligned reports whether the range needs no read-modify-write.
func (w window) aligned(n int) bool {
	return w.skip == 0 && w.hi-w.lo == n
}

// Register creates the runtime and installs it for tensor.WebGPU devices.
func Register() (*Runtime, error) {
	rt, err := New()
	if err != nil {
		return nil, err
	}
	tensor.RegisterRuntime(rt)
	return rt, nil
}

func unavailable(op string, err error) error {
	return &tensor.Error{Kind: tensor.KindUnsupportedDevice, Op: op, Msg: "webgpu not available", Err: err}
}
