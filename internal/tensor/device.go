package tensor

import (
	"fmt"
	"strings"
)

// DeviceType represents the kind of compute device backing a storage.
type DeviceType int

// Supported device types.
const (
	CPU DeviceType = iota
	CUDA
	WebGPU
)

// String returns a human-readable device name.
func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d DeviceType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDeviceType converts a device name to a DeviceType.
func ParseDeviceType(name string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cpu", "host":
		return CPU, nil
	case "cuda", "nvidia", "gpu":
		return CUDA, nil
	case "webgpu", "wgpu":
		return WebGPU, nil
	default:
		return CPU, fmt.Errorf("unknown device %q (expected cpu, cuda, or webgpu)", name)
	}
}

// Device identifies one device instance.
type Device struct {
	Type DeviceType `json:"type"`
	ID   int        `json:"id"`
}

// Host is the default CPU device.
var Host = Device{Type: CPU}

// String returns e.g. "cpu:0".
func (d Device) String() string {
	return fmt.Sprintf("%s:%d", d.Type, d.ID)
}
