package gpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

// Headless is a gpucontext.DeviceProvider that owns its own wgpu instance,
// adapter and device, for hosts without a window (the CLI, tests).
// Backends register through blank imports of wgpu/hal packages.
type Headless struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	info     gpucontext.AdapterInfo
}

var _ gpucontext.DeviceProvider = (*Headless)(nil)

// OpenHeadless requests the default adapter and a device on it.
func OpenHeadless() (*Headless, error) {
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("gpu: request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("gpu: request device: %w", err)
	}
	ai := adapter.Info()
	return &Headless{
		instance: instance,
		adapter:  adapter,
		device:   device,
		info:     gpucontext.AdapterInfo{Name: ai.Name, Type: adapterType(ai.DeviceType)},
	}, nil
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// Device returns the *wgpu.Device.
func (h *Headless) Device() gpucontext.Device { return h.device }

// Queue returns the device queue.
func (h *Headless) Queue() gpucontext.Queue { return h.device.Queue() }

// SurfaceFormat is undefined: there is no surface.
func (h *Headless) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// Adapter returns the *wgpu.Adapter.
func (h *Headless) Adapter() gpucontext.Adapter { return h.adapter }

// AdapterInfo returns the adapter name and type.
func (h *Headless) AdapterInfo() gpucontext.AdapterInfo { return h.info }

// Close releases the device, adapter and instance.
func (h *Headless) Close() {
	h.device.Release()
	h.adapter.Release()
	h.instance.Release()
}
