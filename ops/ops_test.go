// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorcore/ops"
	"github.com/born-ml/tensorcore/tensor"
)

func TestLinearThroughDefault(t *testing.T) {
	x, err := tensor.FromSlice(tensor.Shape{1, 2}, []float32{1, 2}, tensor.Host)
	require.NoError(t, err)
	defer x.Release()
	w, err := tensor.FromSlice(tensor.Shape{2, 2}, []float32{1, 0, 1, 1}, tensor.Host)
	require.NoError(t, err)
	defer w.Release()
	b, err := tensor.FromSlice(tensor.Shape{2}, []float32{0.5, -1}, tensor.Host)
	require.NoError(t, err)
	defer b.Release()
	out, err := tensor.New(tensor.Shape{1, 2}, tensor.Float32, tensor.Host)
	require.NoError(t, err)
	defer out.Release()

	require.NoError(t, ops.Linear(out, x, w, b))
	got, err := tensor.ToFloat32(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 2}, got)
}

func TestRearrangeTranspose(t *testing.T) {
	x, err := tensor.FromSlice(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}, tensor.Host)
	require.NoError(t, err)
	defer x.Release()
	xt, err := x.Permute(1, 0)
	require.NoError(t, err)
	defer xt.Release()
	out, err := tensor.New(tensor.Shape{3, 2}, tensor.Float32, tensor.Host)
	require.NoError(t, err)
	defer out.Release()

	require.NoError(t, ops.Rearrange(out, xt))
	got, err := tensor.ToFloat32(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, got)

	// Non-contiguous inputs are rejected by kernels other than rearrange.
	err = ops.Add(out, xt, xt)
	assert.ErrorIs(t, err, tensor.ErrContiguity)
}
