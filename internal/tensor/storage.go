package tensor

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Storage is a reference-counted memory block shared by one or more views.
// Its size never changes after allocation.
type Storage struct {
	id       uuid.UUID
	device   Device
	size     int
	mem      Memory
	rt       Runtime
	refCount atomic.Int32
	mu       sync.Mutex // guards release
}

// NewStorage allocates size bytes on dev through the device's runtime.
func NewStorage(dev Device, size int) (*Storage, error) {
	rt, err := RuntimeFor(dev.Type)
	if err != nil {
		return nil, err
	}
	if dev.Type != CPU {
		if err := rt.SetActiveDevice(dev.ID); err != nil {
			return nil, &Error{Kind: KindUnsupportedDevice, Op: "create", Msg: dev.String(), Err: err}
		}
	}
	mem, err := rt.Allocate(dev.ID, size)
	if err != nil {
		if KindOf(err) == KindAllocation {
			return nil, err
		}
		return nil, &Error{Kind: KindAllocation, Op: "create", Msg: dev.String(), Err: err}
	}
	s := &Storage{
		id:     uuid.New(),
		device: dev,
		size:   size,
		mem:    mem,
		rt:     rt,
	}
	s.refCount.Store(1)
	return s, nil
}

// ID returns the storage's unique identifier.
func (s *Storage) ID() uuid.UUID { return s.id }

// Device returns the device the storage lives on.
func (s *Storage) Device() Device { return s.device }

// Size returns the byte length of the storage.
func (s *Storage) Size() int { return s.size }

// Refs returns the number of live references.
func (s *Storage) Refs() int { return int(s.refCount.Load()) }

// Released reports whether the memory has been returned to the runtime.
func (s *Storage) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem == nil
}

func (s *Storage) retain() {
	s.refCount.Add(1)
}

// release decrements the reference count and frees the memory at zero.
// Extra releases after the memory is gone are ignored.
func (s *Storage) release() {
	if s.refCount.Add(-1) > 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem == nil {
		return
	}
	s.rt.Free(s.mem)
	s.mem = nil
}

// host returns the directly addressable bytes for host storage.
func (s *Storage) host() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hm, ok := s.mem.(HostMemory)
	if !ok {
		return nil, false
	}
	return hm.Bytes(), true
}
