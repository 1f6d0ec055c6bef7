//go:build windows

package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorcore/internal/tensor"
)

func TestRuntimeRoundTrip(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	rt, err := Register()
	require.NoError(t, err)
	defer rt.Release()

	dev := tensor.Device{Type: tensor.WebGPU}
	host, err := tensor.FromSlice(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}, tensor.Host)
	require.NoError(t, err)
	defer host.Release()

	gpu, err := host.To(dev)
	require.NoError(t, err)
	defer gpu.Release()
	assert.Equal(t, dev, gpu.Device())

	// A strided view on the device is staged through host memory.
	col, err := gpu.Slice(1, 1, 2)
	require.NoError(t, err)
	defer col.Release()
	got, err := tensor.ToFloat32(col)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 5}, got)

	back, err := gpu.To(tensor.Host)
	require.NoError(t, err)
	defer back.Release()
	vals, err := tensor.ToFloat32(back)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, vals)
}

func TestRuntimeUnalignedWrite(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	rt, err := New()
	require.NoError(t, err)
	defer rt.Release()

	mem, err := rt.Allocate(0, 7)
	require.NoError(t, err)
	defer rt.Free(mem)

	require.NoError(t, rt.CopyFromHost(mem, 0, []byte{1, 2, 3, 4, 5, 6, 7}))
	require.NoError(t, rt.CopyFromHost(mem, 3, []byte{9, 9}))
	out := make([]byte, 7)
	require.NoError(t, rt.CopyToHost(out, mem, 0))
	assert.Equal(t, []byte{1, 2, 3, 9, 9, 6, 7}, out)

	_, err = rt.Allocate(1, 4)
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDevice)
}

func TestRuntimeReusesZeroedBuffers(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	rt, err := New()
	require.NoError(t, err)
	defer rt.Release()

	mem, err := rt.Allocate(0, 8)
	require.NoError(t, err)
	require.NoError(t, rt.CopyFromHost(mem, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	rt.Free(mem)

	mem, err = rt.Allocate(0, 6)
	require.NoError(t, err)
	defer rt.Free(mem)
	out := make([]byte, 6)
	require.NoError(t, rt.CopyToHost(out, mem, 0))
	assert.Equal(t, make([]byte, 6), out)
	assert.Equal(t, uint64(1), rt.PoolStats().Hits)
}
