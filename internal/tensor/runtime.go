package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Memory is a raw allocation owned by a Runtime.
type Memory interface {
	Len() int
}

// HostMemory is a Memory the CPU can address directly.
type HostMemory interface {
	Memory
	Bytes() []byte
}

// Runtime is the allocator and copy capability for one device type.
// It is used by the view engine only; kernel bodies never touch it.
type Runtime interface {
	DeviceType() DeviceType
	Allocate(deviceID, size int) (Memory, error)
	Free(mem Memory)
	SetActiveDevice(deviceID int) error
	// CopyFromHost copies src into mem starting at byte offset off.
	CopyFromHost(mem Memory, off int, src []byte) error
	// CopyToHost copies len(dst) bytes of mem starting at off into dst.
	CopyToHost(dst []byte, mem Memory, off int) error
	// CopyDevice copies n bytes between two allocations of this runtime.
	CopyDevice(dst Memory, dstOff int, src Memory, srcOff, n int) error
	Synchronize() error
}

var (
	runtimesMu sync.RWMutex
	runtimes   = map[DeviceType]Runtime{}
)

func init() {
	RegisterRuntime(NewHostRuntime(0))
}

// RegisterRuntime installs rt as the allocator for its device type,
// replacing any previous registration.
func RegisterRuntime(rt Runtime) {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()
	runtimes[rt.DeviceType()] = rt
}

// RuntimeFor returns the registered runtime for dt.
func RuntimeFor(dt DeviceType) (Runtime, error) {
	runtimesMu.RLock()
	defer runtimesMu.RUnlock()
	rt, ok := runtimes[dt]
	if !ok {
		return nil, &Error{
			Kind: KindUnsupportedDevice,
			Op:   "runtime",
			Msg:  fmt.Sprintf("no runtime registered for %s", dt),
		}
	}
	return rt, nil
}

// hostMemory is a plain Go byte slice.
type hostMemory struct {
	data []byte
}

func (m *hostMemory) Len() int      { return len(m.data) }
func (m *hostMemory) Bytes() []byte { return m.data }

// HostRuntime allocates CPU memory. Every device id maps onto host memory,
// which lets callers model several logical host devices.
type HostRuntime struct {
	limit  int64
	used   atomic.Int64
	active atomic.Int64
}

// NewHostRuntime creates a host runtime. A positive limit caps the number of
// live bytes; zero means unlimited.
func NewHostRuntime(limit int64) *HostRuntime {
	return &HostRuntime{limit: limit}
}

// DeviceType returns CPU.
func (h *HostRuntime) DeviceType() DeviceType { return CPU }

// Used returns the number of live allocated bytes.
func (h *HostRuntime) Used() int64 { return h.used.Load() }

// Allocate returns zeroed host memory.
func (h *HostRuntime) Allocate(deviceID, size int) (Memory, error) {
	if size < 0 || deviceID < 0 {
		return nil, &Error{
			Kind: KindAllocation,
			Op:   "allocate",
			Msg:  fmt.Sprintf("invalid request: device %d, %d bytes", deviceID, size),
		}
	}
	if h.limit > 0 {
		if h.used.Add(int64(size)) > h.limit {
			h.used.Add(-int64(size))
			return nil, &Error{
				Kind: KindAllocation,
				Op:   "allocate",
				Msg:  fmt.Sprintf("%d bytes exceeds host limit of %d bytes", size, h.limit),
			}
		}
	} else {
		h.used.Add(int64(size))
	}
	return &hostMemory{data: make([]byte, size)}, nil
}

// Free returns mem's bytes to the accounting pool.
func (h *HostRuntime) Free(mem Memory) {
	hm, ok := mem.(*hostMemory)
	if !ok || hm.data == nil {
		return
	}
	h.used.Add(-int64(len(hm.data)))
	hm.data = nil
}

// SetActiveDevice records the active device id.
func (h *HostRuntime) SetActiveDevice(deviceID int) error {
	h.active.Store(int64(deviceID))
	return nil
}

// CopyFromHost copies src into mem.
func (h *HostRuntime) CopyFromHost(mem Memory, off int, src []byte) error {
	dst, err := hostBytes(mem, off, len(src))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// CopyToHost copies from mem into dst.
func (h *HostRuntime) CopyToHost(dst []byte, mem Memory, off int) error {
	src, err := hostBytes(mem, off, len(dst))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// CopyDevice copies between two host allocations.
func (h *HostRuntime) CopyDevice(dst Memory, dstOff int, src Memory, srcOff, n int) error {
	d, err := hostBytes(dst, dstOff, n)
	if err != nil {
		return err
	}
	s, err := hostBytes(src, srcOff, n)
	if err != nil {
		return err
	}
	copy(d, s)
	return nil
}

// Synchronize is a no-op: host copies complete synchronously.
func (h *HostRuntime) Synchronize() error { return nil }

func hostBytes(mem Memory, off, n int) ([]byte, error) {
	hm, ok := mem.(HostMemory)
	if !ok {
		return nil, &Error{Kind: KindUnsupportedDevice, Op: "memcpy", Msg: "memory is not host addressable"}
	}
	b := hm.Bytes()
	if off < 0 || n < 0 || off+n > len(b) {
		return nil, &Error{
			Kind: KindShape,
			Op:   "memcpy",
			Msg:  fmt.Sprintf("range [%d,%d) outside allocation of %d bytes", off, off+n, len(b)),
		}
	}
	return b[off : off+n], nil
}
