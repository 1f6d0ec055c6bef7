package ops

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorcore/internal/backend/cpu"
	"github.com/born-ml/tensorcore/internal/logger"
	"github.com/born-ml/tensorcore/internal/parallel"
	"github.com/born-ml/tensorcore/internal/tensor"
)

// fakeAccelerator is host memory registered under a non-CPU device type.
type fakeAccelerator struct {
	*tensor.HostRuntime
}

func (fakeAccelerator) DeviceType() tensor.DeviceType { return tensor.CUDA }

func init() {
	tensor.RegisterRuntime(fakeAccelerator{tensor.NewHostRuntime(0)})
}

func newTestExecutor(opts ...Option) *Executor {
	opts = append([]Option{WithParallel(parallel.Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1})}, opts...)
	return New(opts...)
}

func mustFloats(t *testing.T, shape tensor.Shape, data []float32) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(shape, data, tensor.Host)
	require.NoError(t, err)
	t.Cleanup(x.Release)
	return x
}

func mustNew(t *testing.T, shape tensor.Shape, dt tensor.DataType, dev tensor.Device) *tensor.Tensor {
	t.Helper()
	x, err := tensor.New(shape, dt, dev)
	require.NoError(t, err)
	t.Cleanup(x.Release)
	return x
}

func TestNew(t *testing.T) {
	e := New()
	b, ok := e.Backend(tensor.CPU)
	require.True(t, ok)
	assert.Equal(t, "CPU", b.Name())

	_, ok = e.Backend(tensor.WebGPU)
	assert.False(t, ok)

	assert.Same(t, Default(), Default())
}

func TestValidation_DeviceMismatch(t *testing.T) {
	e := newTestExecutor()
	a := mustNew(t, tensor.Shape{2}, tensor.Float32, tensor.Host)
	b := mustNew(t, tensor.Shape{2}, tensor.Float32, tensor.Device{Type: tensor.CPU, ID: 1})
	out := mustNew(t, tensor.Shape{2}, tensor.Float32, tensor.Host)

	err := e.Add(out, a, b)
	require.ErrorIs(t, err, tensor.ErrDeviceMismatch)
	assert.Equal(t, []string{"out", "b"}, err.(*tensor.Error).Tensors)
}

func TestValidation_DeviceCheckedFirst(t *testing.T) {
	e := newTestExecutor()
	// Both a device mismatch and a dtype mismatch: the device wins.
	a := mustNew(t, tensor.Shape{2}, tensor.Float16, tensor.Device{Type: tensor.CPU, ID: 2})
	b := mustNew(t, tensor.Shape{3}, tensor.Float32, tensor.Host)
	out := mustNew(t, tensor.Shape{2}, tensor.Float32, tensor.Host)

	require.ErrorIs(t, e.Add(out, a, b), tensor.ErrDeviceMismatch)
}

func TestValidation_Contiguity(t *testing.T) {
	e := newTestExecutor()
	x := mustFloats(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	xt, err := x.Permute(1, 0)
	require.NoError(t, err)
	defer xt.Release()
	w := mustFloats(t, tensor.Shape{2}, []float32{1, 1})
	out := mustNew(t, tensor.Shape{3, 2}, tensor.Float32, tensor.Host)

	err = e.RMSNorm(out, xt, w, 1e-6)
	require.ErrorIs(t, err, tensor.ErrContiguity)
	assert.Contains(t, err.Error(), "in")

	// Rearrange is the one kernel that accepts strided views.
	require.NoError(t, e.Rearrange(out, xt))
	got, err := tensor.ToFloat32(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, got)
}

func TestValidation_DtypeMismatch(t *testing.T) {
	e := newTestExecutor()
	in := mustNew(t, tensor.Shape{1, 2}, tensor.Float32, tensor.Host)
	w := mustNew(t, tensor.Shape{3, 2}, tensor.Float16, tensor.Host)
	out := mustNew(t, tensor.Shape{1, 3}, tensor.Float32, tensor.Host)

	err := e.Linear(out, in, w, nil)
	require.ErrorIs(t, err, tensor.ErrDtypeMismatch)
	assert.ErrorContains(t, err, "weight is float16")

	idx := mustNew(t, tensor.Shape{2}, tensor.Float32, tensor.Host)
	table := mustNew(t, tensor.Shape{4, 2}, tensor.Float32, tensor.Host)
	emb := mustNew(t, tensor.Shape{2, 2}, tensor.Float32, tensor.Host)
	require.ErrorIs(t, e.Embedding(emb, idx, table), tensor.ErrDtypeMismatch)
}

func TestValidation_Shape(t *testing.T) {
	e := newTestExecutor()
	f := func(shape ...int) *tensor.Tensor { return mustNew(t, shape, tensor.Float32, tensor.Host) }

	tests := []struct {
		name string
		run  func() error
	}{
		{"linear in_features", func() error { return e.Linear(f(2, 3), f(2, 4), f(3, 5), nil) }},
		{"linear out rows", func() error { return e.Linear(f(1, 3), f(2, 4), f(3, 4), nil) }},
		{"linear bias", func() error { return e.Linear(f(2, 3), f(2, 4), f(3, 4), f(4)) }},
		{"linear rank", func() error { return e.Linear(f(2, 3), f(2, 2, 4), f(3, 4), nil) }},
		{"rms_norm weight", func() error { return e.RMSNorm(f(2, 3), f(2, 3), f(2), 1e-5) }},
		{"rms_norm out", func() error { return e.RMSNorm(f(2, 4), f(2, 3), f(3), 1e-5) }},
		{"rope odd", func() error {
			return e.RoPE(f(1, 1, 3), f(1, 1, 3), mustNew(t, tensor.Shape{1}, tensor.Int64, tensor.Host), 1e4)
		}},
		{"rope pos length", func() error {
			return e.RoPE(f(2, 1, 4), f(2, 1, 4), mustNew(t, tensor.Shape{3}, tensor.Int64, tensor.Host), 1e4)
		}},
		{"attention heads", func() error { return e.SelfAttention(f(1, 3, 4), f(1, 3, 4), f(2, 2, 4), f(2, 2, 4), 1) }},
		{"attention head dim", func() error { return e.SelfAttention(f(1, 2, 4), f(1, 2, 4), f(2, 1, 8), f(2, 1, 4), 1) }},
		{"attention causal length", func() error { return e.SelfAttention(f(3, 2, 4), f(3, 2, 4), f(2, 1, 4), f(2, 1, 4), 1) }},
		{"attention out", func() error { return e.SelfAttention(f(1, 2, 5), f(1, 2, 4), f(2, 1, 4), f(2, 1, 4), 1) }},
		{"swiglu", func() error { return e.SwiGLU(f(4), f(4), f(5)) }},
		{"add", func() error { return e.Add(f(2, 2), f(4), f(2, 2)) }},
		{"argmax rows", func() error {
			return e.ArgMax(mustNew(t, tensor.Shape{2}, tensor.Int64, tensor.Host), f(3), f(3, 4))
		}},
		{"argmax empty", func() error {
			return e.ArgMax(mustNew(t, tensor.Shape{1}, tensor.Int64, tensor.Host), f(1), f(1, 0))
		}},
		{"rearrange", func() error { return e.Rearrange(f(2, 3), f(3, 2)) }},
		{"embedding width", func() error {
			return e.Embedding(f(2, 3), mustNew(t, tensor.Shape{2}, tensor.Int64, tensor.Host), f(5, 2))
		}},
		{"missing argument", func() error { return e.SwiGLU(f(4), nil, f(4)) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.run(), tensor.ErrShape)
		})
	}
}

func TestValidation_NoPartialWrite(t *testing.T) {
	e := newTestExecutor()
	out := mustFloats(t, tensor.Shape{2}, []float32{9, 9})
	gate := mustFloats(t, tensor.Shape{2}, []float32{1, 2})
	up := mustNew(t, tensor.Shape{2}, tensor.Float16, tensor.Host)

	require.Error(t, e.SwiGLU(out, gate, up))
	got, err := tensor.ToFloat32(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9}, got)
}

func TestUnsupportedDataType(t *testing.T) {
	e := newTestExecutor()
	a, err := tensor.FromSlice(tensor.Shape{2}, []int32{1, 2}, tensor.Host)
	require.NoError(t, err)
	defer a.Release()
	out := mustNew(t, tensor.Shape{2}, tensor.Int32, tensor.Host)

	require.ErrorIs(t, e.Add(out, a, a), tensor.ErrUnsupportedDataType)
}

func TestUnsupportedDevice(t *testing.T) {
	gpu := tensor.Device{Type: tensor.CUDA}
	a := mustNew(t, tensor.Shape{2}, tensor.Float32, gpu)
	out := mustNew(t, tensor.Shape{2}, tensor.Float32, gpu)

	err := newTestExecutor().Add(out, a, a)
	require.ErrorIs(t, err, tensor.ErrUnsupportedDevice)
	assert.Contains(t, err.Error(), "cuda:0")

	// Registering a backend for the device type routes the call.
	e := newTestExecutor(WithBackend(tensor.CUDA, cpu.New(parallel.Serial())))
	require.NoError(t, a.Load(tensorBytes([]float32{1, 2})))
	require.NoError(t, e.Add(out, a, a))
	got, err := tensor.ToFloat32(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4}, got)
}

func TestDispatchLogging(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(WithLogger(logger.JSON(&buf, slog.LevelDebug)))
	assert.Contains(t, buf.String(), `"msg":"backend registered"`)
	a := mustFloats(t, tensor.Shape{2}, []float32{1, 2})
	out := mustNew(t, tensor.Shape{2}, tensor.Float32, tensor.Host)

	require.NoError(t, e.Add(out, a, a))
	assert.Contains(t, buf.String(), `"msg":"dispatch"`)
	assert.Contains(t, buf.String(), `"op":"add"`)

	buf.Reset()
	require.Error(t, e.Add(out, a, mustNew(t, tensor.Shape{3}, tensor.Float32, tensor.Host)))
	assert.Contains(t, buf.String(), `"msg":"validation failed"`)
}

func tensorBytes(v []float32) []byte {
	x, err := tensor.FromSlice(tensor.Shape{len(v)}, v, tensor.Host)
	if err != nil {
		panic(err)
	}
	defer x.Release()
	b, err := x.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}
