package tensor

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo(t *testing.T) {
	x := arange(t, Shape{2, 3})
	s, err := x.Slice(1, 1, 3)
	require.NoError(t, err)
	defer s.Release()

	assert.Equal(t, "Tensor: shape[ 2 2 ] strides[ 3 1 ] dtype=float32 device=cpu:0 offset=4", s.Info())
	assert.Equal(t, s.Info(), s.String())
}

func TestLayoutJSON(t *testing.T) {
	x := arange(t, Shape{2, 3})
	p, err := x.Permute(1, 0)
	require.NoError(t, err)
	defer p.Release()

	raw, err := p.LayoutJSON()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "float32", got["dtype"])
	assert.Equal(t, []any{float64(3), float64(2)}, got["shape"])
	assert.Equal(t, []any{float64(1), float64(3)}, got["strides"])
	assert.Equal(t, false, got["contiguous"])
	assert.Equal(t, float64(24), got["storage_bytes"])
	assert.Equal(t, float64(2), got["refs"])
	assert.Equal(t, x.Storage().ID().String(), got["storage"])
	assert.Equal(t, map[string]any{"type": "cpu", "id": float64(0)}, got["device"])
}

func TestDebug(t *testing.T) {
	x := arange(t, Shape{2, 3})
	p, err := x.Permute(1, 0)
	require.NoError(t, err)
	defer p.Release()

	var buf bytes.Buffer
	require.NoError(t, p.Debug(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Tensor: shape[ 3 2 ]"))
	assert.Equal(t, "0 3", strings.TrimSpace(lines[1]))
	assert.Equal(t, "2 5", strings.TrimSpace(lines[3]))

	h, err := FromFloat32(Shape{2}, []float32{0.5, -1.25}, BFloat16, Host)
	require.NoError(t, err)
	defer h.Release()
	buf.Reset()
	require.NoError(t, h.Debug(&buf))
	assert.Contains(t, buf.String(), "0.5 -1.25")
}

func TestFormatElement(t *testing.T) {
	b, err := FromSlice(Shape{1}, []bool{true}, Host)
	require.NoError(t, err)
	defer b.Release()
	raw, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "true", FormatElement(raw, Bool))

	i, err := FromSlice(Shape{1}, []int16{-300}, Host)
	require.NoError(t, err)
	defer i.Release()
	raw, err = i.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "-300", FormatElement(raw, Int16))
}

func TestCreation(t *testing.T) {
	f, err := Full[float32](Shape{2, 2}, 3.5, Host)
	require.NoError(t, err)
	defer f.Release()
	assert.Equal(t, []float32{3.5, 3.5, 3.5, 3.5}, contents(t, f))

	a, err := Arange(3, 7, Host)
	require.NoError(t, err)
	defer a.Release()
	ids, err := Data[int64](a)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5, 6}, ids)

	_, err = Arange(5, 1, Host)
	assert.ErrorIs(t, err, ErrShape)

	for _, dt := range []DataType{Float32, Float16, BFloat16, Float64} {
		r, err := Rand(Shape{64}, dt, 0.5, rand.New(rand.NewSource(1)), Host)
		require.NoError(t, err, dt.String())
		vals := contents(t, r)
		for _, v := range vals {
			assert.LessOrEqual(t, v, float32(0.5))
			assert.GreaterOrEqual(t, v, float32(-0.5))
		}
		r.Release()
	}
	_, err = Rand(Shape{2}, Int32, 1, rand.New(rand.NewSource(1)), Host)
	assert.ErrorIs(t, err, ErrUnsupportedDataType)

	_, err = ToFloat32(a)
	assert.ErrorIs(t, err, ErrUnsupportedDataType)
}
