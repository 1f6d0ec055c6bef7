// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ops exposes the transformer kernels.
//
// Every kernel validates its arguments in a fixed order before touching any
// output: device agreement, contiguity, data types, then shapes. A failed
// call leaves every output unchanged and returns a *tensor.Error.
//
// The package-level functions use a process-wide Executor with the CPU
// backend. Create an Executor with New to register other backends or
// change the worker configuration.
//
// Example:
//
//	out, _ := tensor.New(tensor.Shape{m, n}, tensor.Float32, tensor.Host)
//	if err := ops.Linear(out, x, w, nil); err != nil {
//	    return err
//	}
package ops

import (
	"github.com/born-ml/tensorcore/internal/ops"
	"github.com/born-ml/tensorcore/tensor"
)

// Executor validates kernel calls and routes them to a backend.
type Executor = ops.Executor

// Backend is a kernel library for one device type.
type Backend = ops.Backend

// Option configures an Executor.
type Option = ops.Option

// New creates an Executor with the CPU backend registered.
func New(opts ...Option) *Executor { return ops.New(opts...) }

// Default returns the process-wide Executor.
func Default() *Executor { return ops.Default() }

// Options re-exported from the kernel layer.
var (
	WithLogger   = ops.WithLogger
	WithBackend  = ops.WithBackend
	WithParallel = ops.WithParallel
)

// Embedding gathers weight rows: out[i,:] = weight[indices[i],:].
func Embedding(out, indices, weight *tensor.Tensor) error {
	return ops.Default().Embedding(out, indices, weight)
}

// Linear computes out = in · weightᵀ + bias. bias may be nil.
func Linear(out, in, weight, bias *tensor.Tensor) error {
	return ops.Default().Linear(out, in, weight, bias)
}

// RMSNorm normalizes each row of in and scales it by weight.
func RMSNorm(out, in, weight *tensor.Tensor, eps float32) error {
	return ops.Default().RMSNorm(out, in, weight, eps)
}

// RoPE applies rotary position embedding to in [L,H,D].
func RoPE(out, in, pos *tensor.Tensor, theta float32) error {
	return ops.Default().RoPE(out, in, pos, theta)
}

// SelfAttention computes grouped-query causal attention.
func SelfAttention(out, q, k, v *tensor.Tensor, scale float32) error {
	return ops.Default().SelfAttention(out, q, k, v, scale)
}

// SwiGLU computes out = up * silu(gate).
func SwiGLU(out, gate, up *tensor.Tensor) error {
	return ops.Default().SwiGLU(out, gate, up)
}

// Add computes out = a + b.
func Add(out, a, b *tensor.Tensor) error {
	return ops.Default().Add(out, a, b)
}

// ArgMax reduces vals over its last axis.
func ArgMax(maxIdx, maxVal, vals *tensor.Tensor) error {
	return ops.Default().ArgMax(maxIdx, maxVal, vals)
}

// Rearrange copies in into out honoring both views' strides.
func Rearrange(out, in *tensor.Tensor) error {
	return ops.Default().Rearrange(out, in)
}
