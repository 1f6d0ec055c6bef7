//go:build windows

package webgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/tensorcore/internal/tensor"
)

// buffer is a GPU allocation. Its device size is padded to copyAlign.
type buffer struct {
	buf    *wgpu.Buffer
	size   int
	padded uint64
}

func (b *buffer) Len() int { return b.size }

// Runtime allocates tensor storage in WebGPU buffers on the default adapter.
type Runtime struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	pool     *pool[*wgpu.Buffer]

	mu      sync.Mutex // serializes queue submissions and mapping
	used    atomic.Int64
	buffers atomic.Int64
}

// New opens the default high-performance adapter.
// Returns an error if WebGPU is not available or initialization fails.
func New() (rt *Runtime, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			rt = nil
			err = unavailable("init", fmt.Errorf("native library not available: %v", r))
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, unavailable("init", fmt.Errorf("request adapter: %w", err))
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, unavailable("init", fmt.Errorf("request device: %w", err))
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, unavailable("init", fmt.Errorf("no default queue"))
	}
	return &Runtime{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		pool:     newPool(func(b *wgpu.Buffer) { b.Release() }),
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Name returns the runtime name.
func (r *Runtime) Name() string { return "webgpu" }

// Used returns the bytes held by live buffers.
func (r *Runtime) Used() int64 { return r.used.Load() }

// DeviceType returns tensor.WebGPU.
func (r *Runtime) DeviceType() tensor.DeviceType { return tensor.WebGPU }

// SetActiveDevice accepts only the default adapter.
func (r *Runtime) SetActiveDevice(deviceID int) error {
	if deviceID != 0 {
		return unavailable("set_device", fmt.Errorf("device id %d: only the default adapter is opened", deviceID))
	}
	return nil
}

// PoolStats reports buffer reuse.
func (r *Runtime) PoolStats() PoolStats { return r.pool.stats() }

// Allocate returns a zero-initialized storage buffer, reusing a released
// one when the pool has a fit.
func (r *Runtime) Allocate(deviceID, size int) (tensor.Memory, error) {
	if err := r.SetActiveDevice(deviceID); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, &tensor.Error{Kind: tensor.KindAllocation, Op: "allocate", Msg: fmt.Sprintf("negative size %d", size)}
	}
	//nolint:gosec // G115: size is non-negative
	padded := uint64(max(alignUp(size), copyAlign))
	if buf, got, ok := r.pool.get(padded); ok {
		r.zero(buf, got)
		r.used.Add(int64(got))
		r.buffers.Add(1)
		return &buffer{buf: buf, size: size, padded: got}, nil
	}
	buf := r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  padded,
	})
	if buf == nil {
		return nil, &tensor.Error{Kind: tensor.KindAllocation, Op: "allocate", Msg: fmt.Sprintf("webgpu buffer of %d bytes", padded)}
	}
	r.used.Add(int64(padded))
	r.buffers.Add(1)
	return &buffer{buf: buf, size: size, padded: padded}, nil
}

// Free returns the GPU buffer to the pool.
func (r *Runtime) Free(mem tensor.Memory) {
	b, ok := mem.(*buffer)
	if !ok || b.buf == nil {
		return
	}
	r.pool.put(b.buf, b.padded)
	b.buf = nil
	r.used.Add(-int64(b.padded))
	r.buffers.Add(-1)
}

// CopyFromHost uploads src into mem at byte offset off. Unaligned edges are
// merged with the current device contents first.
func (r *Runtime) CopyFromHost(mem tensor.Memory, off int, src []byte) error {
	b, err := r.buffer(mem, off, len(src))
	if err != nil || len(src) == 0 {
		return err
	}
	w := span(off, len(src))
	data := src
	if !w.aligned(len(src)) {
		data = make([]byte, w.hi-w.lo)
		if err := r.read(data, b, w.lo); err != nil {
			return err
		}
		copy(data[w.skip:], src)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	staging := r.upload(data)
	defer staging.Release()
	encoder := r.device.CreateCommandEncoder(nil)
	//nolint:gosec // G115: aligned offsets are non-negative
	encoder.CopyBufferToBuffer(staging, 0, b.buf, uint64(w.lo), uint64(len(data)))
	r.queue.Submit(encoder.Finish(nil))
	return nil
}

// CopyToHost downloads len(dst) bytes of mem starting at off.
func (r *Runtime) CopyToHost(dst []byte, mem tensor.Memory, off int) error {
	b, err := r.buffer(mem, off, len(dst))
	if err != nil || len(dst) == 0 {
		return err
	}
	w := span(off, len(dst))
	if w.aligned(len(dst)) {
		return r.read(dst, b, off)
	}
	tmp := make([]byte, w.hi-w.lo)
	if err := r.read(tmp, b, w.lo); err != nil {
		return err
	}
	copy(dst, tmp[w.skip:])
	return nil
}

// CopyDevice copies n bytes between two buffers, staging through host
// memory when the range is not copy-aligned.
func (r *Runtime) CopyDevice(dst tensor.Memory, dstOff int, src tensor.Memory, srcOff, n int) error {
	d, err := r.buffer(dst, dstOff, n)
	if err != nil {
		return err
	}
	s, err := r.buffer(src, srcOff, n)
	if err != nil || n == 0 {
		return err
	}
	if dstOff%copyAlign != 0 || srcOff%copyAlign != 0 || n%copyAlign != 0 {
		tmp := make([]byte, n)
		if err := r.CopyToHost(tmp, src, srcOff); err != nil {
			return err
		}
		return r.CopyFromHost(dst, dstOff, tmp)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	encoder := r.device.CreateCommandEncoder(nil)
	//nolint:gosec // G115: offsets validated above
	encoder.CopyBufferToBuffer(s.buf, uint64(srcOff), d.buf, uint64(dstOff), uint64(n))
	r.queue.Submit(encoder.Finish(nil))
	return nil
}

// Synchronize waits for submitted work. Reads already block on the map, so
// an empty submission is enough to flush the queue.
func (r *Runtime) Synchronize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	encoder := r.device.CreateCommandEncoder(nil)
	r.queue.Submit(encoder.Finish(nil))
	return nil
}

// Release frees pooled buffers, the device, adapter and instance.
func (r *Runtime) Release() {
	r.pool.clear()
	if r.queue != nil {
		r.queue.Release()
	}
	if r.device != nil {
		r.device.Release()
	}
	if r.adapter != nil {
		r.adapter.Release()
	}
	if r.instance != nil {
		r.instance.Release()
	}
}

func (r *Runtime) buffer(mem tensor.Memory, off, n int) (*buffer, error) {
	b, ok := mem.(*buffer)
	if !ok || b.buf == nil {
		return nil, &tensor.Error{Kind: tensor.KindUnsupportedDevice, Op: "memcpy", Msg: "memory is not a live webgpu buffer"}
	}
	if off < 0 || n < 0 || off+n > b.size {
		return nil, &tensor.Error{
			Kind: tensor.KindShape,
			Op:   "memcpy",
			Msg:  fmt.Sprintf("range [%d,%d) outside buffer of %d bytes", off, off+n, b.size),
		}
	}
	return b, nil
}

// zero clears a reused buffer.
func (r *Runtime) zero(buf *wgpu.Buffer, size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	staging := r.upload(make([]byte, size))
	defer staging.Release()
	encoder := r.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, buf, 0, size)
	r.queue.Submit(encoder.Finish(nil))
}

// upload creates a mapped-at-creation staging buffer holding data.
func (r *Runtime) upload(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	staging := r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(unsafe.Slice((*byte)(mapped), size), data)
	staging.Unmap()
	return staging
}

// read copies len(dst) bytes at an aligned offset through a map-read staging
// buffer.
func (r *Runtime) read(dst []byte, b *buffer, off int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := uint64(alignUp(len(dst)))
	staging := r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := r.device.CreateCommandEncoder(nil)
	//nolint:gosec // G115: aligned offset is non-negative
	encoder.CopyBufferToBuffer(b.buf, uint64(off), staging, 0, size)
	r.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(r.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("webgpu: map staging buffer: %w", err)
	}
	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(dst, unsafe.Slice((*byte)(mapped), size))
	staging.Unmap()
	return nil
}
