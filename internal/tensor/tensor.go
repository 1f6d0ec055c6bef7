package tensor

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Tensor is a strided view over a shared Storage.
//
// A Tensor never owns bytes exclusively: Slice, Permute and View return new
// descriptors over the same Storage and bump its reference count. Strides are
// in elements, the offset is in bytes.
type Tensor struct {
	storage  *Storage
	shape    Shape
	strides  []int
	dtype    DataType
	offset   int
	released atomic.Bool
}

// New allocates a zeroed, row-major tensor on dev.
//
// Example:
//
//	t, err := tensor.New(tensor.Shape{2, 3}, tensor.Float32, tensor.Host)
func New(shape Shape, dtype DataType, dev Device) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, &Error{Kind: KindShape, Op: "create", Msg: err.Error()}
	}
	if !dtype.Valid() {
		return nil, &Error{Kind: KindUnsupportedDataType, Op: "create", Msg: dtype.String()}
	}
	storage, err := NewStorage(dev, shape.NumElements()*dtype.Size())
	if err != nil {
		return nil, err
	}
	return &Tensor{
		storage: storage,
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
		dtype:   dtype,
	}, nil
}

// FromSlice allocates a tensor on dev and loads data into it.
func FromSlice[T Element](shape Shape, data []T, dev Device) (*Tensor, error) {
	dts := dataTypeOf[T]()
	if len(dts) == 0 {
		return nil, &Error{Kind: KindUnsupportedDataType, Op: "from_slice", Msg: fmt.Sprintf("%T", *new(T))}
	}
	if shape.NumElements() != len(data) {
		return nil, &Error{
			Kind: KindShape,
			Op:   "from_slice",
			Msg:  fmt.Sprintf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data)),
		}
	}
	t, err := New(shape, dts[0], dev)
	if err != nil {
		return nil, err
	}
	if err := t.Load(sliceBytes(data)); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// FromBytes allocates a tensor on dev and loads raw little-endian element
// bytes into it. len(data) must equal numel*dtype.Size().
func FromBytes(shape Shape, dtype DataType, data []byte, dev Device) (*Tensor, error) {
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return nil, Errorf(KindShape, "from_bytes", nil, "shape %v of %s requires %d bytes, but got %d",
			shape, dtype, want, len(data))
	}
	t, err := New(shape, dtype, dev)
	if err != nil {
		return nil, err
	}
	if err := t.Load(data); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// newView builds a descriptor sharing t's storage after checking that every
// reachable element lies inside the storage.
func (t *Tensor) newView(op string, shape Shape, strides []int, offset int) (*Tensor, error) {
	lo, hi := byteExtent(shape, strides, t.dtype.Size())
	if offset+lo < 0 || offset+hi > t.storage.Size() {
		return nil, &Error{
			Kind: KindShape,
			Op:   op,
			Msg: fmt.Sprintf("view [%d,%d) exceeds storage of %d bytes",
				offset+lo, offset+hi, t.storage.Size()),
		}
	}
	t.storage.retain()
	return &Tensor{
		storage: t.storage,
		shape:   shape,
		strides: strides,
		dtype:   t.dtype,
		offset:  offset,
	}, nil
}

// byteExtent returns the lowest and one-past-highest byte offsets reachable
// from the view origin. Negative strides move the lower bound.
func byteExtent(shape Shape, strides []int, elemSize int) (lo, hi int) {
	if shape.NumElements() == 0 {
		return 0, 0
	}
	minIdx, maxIdx := 0, 0
	for i, dim := range shape {
		step := (dim - 1) * strides[i]
		if step < 0 {
			minIdx += step
		} else {
			maxIdx += step
		}
	}
	return minIdx * elemSize, (maxIdx + 1) * elemSize
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape }

// Strides returns the per-dimension element strides.
func (t *Tensor) Strides() []int { return t.strides }

// DType returns the element type tag.
func (t *Tensor) DType() DataType { return t.dtype }

// Device returns the device of the backing storage.
func (t *Tensor) Device() Device { return t.storage.Device() }

// Offset returns the byte offset of the view origin.
func (t *Tensor) Offset() int { return t.offset }

// Storage returns the shared backing storage.
func (t *Tensor) Storage() *Storage { return t.storage }

// NDim returns the number of dimensions.
func (t *Tensor) NDim() int { return len(t.shape) }

// NumElements returns the product of the shape.
func (t *Tensor) NumElements() int { return t.shape.NumElements() }

// ElementSize returns the byte size of one element.
func (t *Tensor) ElementSize() int { return t.dtype.Size() }

// IsContiguous reports whether the strides match the row-major layout.
func (t *Tensor) IsContiguous() bool {
	return contiguousStrides(t.shape, t.strides)
}

// Release drops this view's reference to the storage. Releasing a view twice
// is a no-op; the storage is freed when its last view is released.
func (t *Tensor) Release() {
	if t.released.Swap(true) {
		return
	}
	t.storage.release()
}

// Slice narrows dimension dim to [start, end). The result shares storage.
func (t *Tensor) Slice(dim, start, end int) (*Tensor, error) {
	if dim < 0 || dim >= t.NDim() {
		return nil, Errorf(KindShape, "slice", nil, "dimension %d out of range for %dD tensor", dim, t.NDim())
	}
	if start < 0 || start >= end {
		return nil, Errorf(KindShape, "slice", nil, "start %d must be non-negative and less than end %d", start, end)
	}
	if end > t.shape[dim] {
		return nil, Errorf(KindShape, "slice", nil, "end %d larger than dimension size %d", end, t.shape[dim])
	}
	shape := t.shape.Clone()
	shape[dim] = end - start
	strides := append([]int(nil), t.strides...)
	offset := t.offset + start*t.strides[dim]*t.dtype.Size()
	return t.newView("slice", shape, strides, offset)
}

// Permute reorders dimensions: result dimension i is source dimension order[i].
func (t *Tensor) Permute(order ...int) (*Tensor, error) {
	if len(order) != t.NDim() {
		return nil, Errorf(KindShape, "permute", nil, "order length %d != ndim %d", len(order), t.NDim())
	}
	seen := make([]bool, t.NDim())
	shape := make(Shape, len(order))
	strides := make([]int, len(order))
	for i, ax := range order {
		if ax < 0 || ax >= t.NDim() {
			return nil, Errorf(KindShape, "permute", nil, "invalid axis %d for %dD tensor", ax, t.NDim())
		}
		if seen[ax] {
			return nil, Errorf(KindShape, "permute", nil, "duplicate axis %d", ax)
		}
		seen[ax] = true
		shape[i] = t.shape[ax]
		strides[i] = t.strides[ax]
	}
	return t.newView("permute", shape, strides, t.offset)
}

// View reinterprets a contiguous tensor with a new shape of equal size.
func (t *Tensor) View(shape ...int) (*Tensor, error) {
	newShape := Shape(shape).Clone()
	if err := newShape.Validate(); err != nil {
		return nil, &Error{Kind: KindShape, Op: "view", Msg: err.Error()}
	}
	if !t.IsContiguous() {
		return nil, Errorf(KindShape, "view", nil, "source with strides %v is not contiguous", t.strides)
	}
	if newShape.NumElements() != t.NumElements() {
		return nil, Errorf(KindShape, "view", nil, "cannot view %v (%d elements) as %v (%d elements)",
			t.shape, t.NumElements(), newShape, newShape.NumElements())
	}
	return t.newView("view", newShape, newShape.ComputeStrides(), t.offset)
}

// Contiguous returns t itself as a new shared view when it is already
// contiguous, otherwise a compacted copy in freshly allocated storage on the
// same device.
func (t *Tensor) Contiguous() (*Tensor, error) {
	if t.IsContiguous() {
		return t.newView("contiguous", t.shape.Clone(), append([]int(nil), t.strides...), t.offset)
	}
	out, err := New(t.shape, t.dtype, t.Device())
	if err != nil {
		return nil, err
	}
	if src, ok := t.storage.host(); ok {
		if dst, ok := out.storage.host(); ok {
			CopyStrided(dst, 0, out.strides, src, t.offset, t.strides, t.shape, t.dtype.Size())
			return out, nil
		}
	}
	data, err := t.Bytes()
	if err == nil {
		err = out.Load(data)
	}
	if err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// Reshape is Contiguous followed by View.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	c, err := t.Contiguous()
	if err != nil {
		return nil, err
	}
	defer c.Release()
	return c.View(shape...)
}

// To copies the tensor to dev. A tensor already on dev is returned as a new
// shared view.
func (t *Tensor) To(dev Device) (*Tensor, error) {
	if dev == t.Device() {
		return t.newView("to", t.shape.Clone(), append([]int(nil), t.strides...), t.offset)
	}
	data, err := t.Bytes()
	if err != nil {
		return nil, err
	}
	out, err := New(t.shape, t.dtype, dev)
	if err != nil {
		return nil, err
	}
	if err := out.Load(data); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// Load copies numel*elementSize bytes from src into the tensor. The tensor
// must be contiguous. Host or device placement is handled by the runtime.
func (t *Tensor) Load(src []byte) error {
	if !t.IsContiguous() {
		return Errorf(KindContiguity, "load", nil, "destination with strides %v is not contiguous", t.strides)
	}
	n := t.NumElements() * t.dtype.Size()
	if len(src) < n {
		return Errorf(KindShape, "load", nil, "source has %d bytes, need %d", len(src), n)
	}
	if t.storage.Released() {
		return Errorf(KindAllocation, "load", nil, "storage %s already released", t.storage.ID())
	}
	return t.storage.rt.CopyFromHost(t.storage.mem, t.offset, src[:n])
}

// Bytes returns a host copy of the logical contents in row-major order.
func (t *Tensor) Bytes() ([]byte, error) {
	es := t.dtype.Size()
	out := make([]byte, t.NumElements()*es)
	if len(out) == 0 {
		return out, nil
	}
	lo, hi := byteExtent(t.shape, t.strides, es)
	src, ok := t.storage.host()
	base := t.offset
	if !ok {
		if t.storage.Released() {
			return nil, Errorf(KindAllocation, "bytes", nil, "storage %s already released", t.storage.ID())
		}
		if err := t.storage.rt.Synchronize(); err != nil {
			return nil, err
		}
		src = make([]byte, hi-lo)
		if err := t.storage.rt.CopyToHost(src, t.storage.mem, t.offset+lo); err != nil {
			return nil, err
		}
		base = -lo
	}
	if t.IsContiguous() {
		copy(out, src[base:base+len(out)])
		return out, nil
	}
	CopyStrided(out, 0, t.shape.ComputeStrides(), src, base, t.strides, t.shape, es)
	return out, nil
}

// HostBuffer returns the host bytes of the whole storage together with the
// view's byte offset. Kernels index it with the view strides.
func (t *Tensor) HostBuffer() ([]byte, int, error) {
	buf, ok := t.storage.host()
	if !ok {
		if t.storage.Released() {
			return nil, 0, Errorf(KindAllocation, "host_buffer", nil, "storage %s already released", t.storage.ID())
		}
		return nil, 0, Errorf(KindUnsupportedDevice, "host_buffer", nil, "%s memory is not host addressable", t.Device())
	}
	return buf, t.offset, nil
}

// Data returns a zero-copy typed slice covering the view's reachable
// elements, starting at the view origin. For contiguous tensors its length
// is NumElements. T must match the tensor's data type. The slice aliases
// storage and is valid only while some view still holds a reference.
func Data[T Element](t *Tensor) ([]T, error) {
	if !matchesDType[T](t.dtype) {
		return nil, Errorf(KindDtypeMismatch, "data", nil, "tensor dtype is %s, not %T", t.dtype, *new(T))
	}
	buf, off, err := t.HostBuffer()
	if err != nil {
		return nil, err
	}
	lo, hi := byteExtent(t.shape, t.strides, t.dtype.Size())
	if lo < 0 {
		return nil, Errorf(KindShape, "data", nil, "negative strides %v need HostBuffer access", t.strides)
	}
	if hi == 0 {
		return nil, nil
	}
	b := buf[off : off+hi]
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by byteExtent
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), hi/t.dtype.Size()), nil
}

func matchesDType[T Element](dt DataType) bool {
	for _, d := range dataTypeOf[T]() {
		if d == dt {
			return true
		}
	}
	return false
}

func sliceBytes[T Element](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // reinterpretation of a typed slice as bytes
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(data[0])))
}

// bytesAs reinterprets the first n elements of b as []T.
func bytesAs[T Element](b []byte, n int) []T {
	//nolint:gosec // reinterpretation of a byte buffer, length checked by callers
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// CopyStrided copies a logical shape element by element between two byte
// buffers laid out with arbitrary element strides. Offsets are in bytes.
func CopyStrided(dst []byte, dstOff int, dstStrides []int, src []byte, srcOff int, srcStrides []int, shape Shape, elemSize int) {
	if shape.NumElements() == 0 {
		return
	}
	if len(shape) == 0 {
		copy(dst[dstOff:dstOff+elemSize], src[srcOff:srcOff+elemSize])
		return
	}
	Walk2(shape, dstStrides, srcStrides, func(d, s int) {
		do := dstOff + d*elemSize
		so := srcOff + s*elemSize
		copy(dst[do:do+elemSize], src[so:so+elemSize])
	})
}

// Walk2 visits every index of shape and calls fn with the element offsets
// of that index under two stride sets.
func Walk2(shape Shape, aStrides, bStrides []int, fn func(a, b int)) {
	if shape.NumElements() == 0 {
		return
	}
	if len(shape) == 0 {
		fn(0, 0)
		return
	}
	walk2(shape, aStrides, bStrides, 0, 0, 0, fn)
}

func walk2(shape Shape, as, bs []int, dim, a, b int, fn func(a, b int)) {
	n := shape[dim]
	if dim == len(shape)-1 {
		sa, sb := as[dim], bs[dim]
		for i := 0; i < n; i++ {
			fn(a+i*sa, b+i*sb)
		}
		return
	}
	for i := 0; i < n; i++ {
		walk2(shape, as, bs, dim+1, a+i*as[dim], b+i*bs[dim], fn)
	}
}
