package wgpudev

import (
	"fmt"
	"runtime"

	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// DeviceOption configures the WebGPU device during construction.
type DeviceOption func(*device)

// New creates a WebGPU-backed modern device. Without options the device is
// headless; supply WithSurface to render into a host window.
//
// Parameters:
//   - opts: optional configuration functions
//
// Returns:
//   - Device: the new device
//   - error: an error if no compatible adapter or device could be acquired
func New(opts ...DeviceOption) (Device, error) {
	runtime.LockOSThread()

	d := &device{
		pipelines: make(map[pipelineKey]*pipelineEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	d.instance = wgpu.CreateInstance(nil)
	if d.surfaceDescriptor != nil {
		d.surface = d.instance.CreateSurface(d.surfaceDescriptor)
	}

	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("unable to acquire adapter: %w", err)
	}
	d.adapter = adapter

	limits := wgpu.DefaultLimits()
	wgpuDevice, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Effect Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("unable to acquire device: %w", err)
	}
	d.wgpuDevice = wgpuDevice
	d.queue = wgpuDevice.GetQueue()

	// WebGPU guarantees non-power-of-two textures and renderable float
	// targets; border addressing is absent from the core sampler model.
	d.caps = gpu.Caps{
		MaxTextureWidth:   limits.MaxTextureDimension2D,
		MaxTextureHeight:  limits.MaxTextureDimension2D,
		NonPow2:           true,
		BorderSampling:    false,
		RGBA32FRenderable: true,
		FeatureLevel:      gpu.FeatureLevel11_0,
	}

	d.quadBuffer, err = wgpuDevice.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Pass Quad",
		Size:  uint64(quadByteSize),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("unable to allocate quad buffer: %w", err)
	}

	return d, nil
}

// WithSurface attaches a presentation surface created from the given
// platform descriptor.
//
// Parameters:
//   - desc: the platform surface descriptor
//
// Returns:
//   - DeviceOption: the option to pass to New
func WithSurface(desc *wgpu.SurfaceDescriptor) DeviceOption {
	return func(d *device) {
		d.surfaceDescriptor = desc
	}
}

// WithForceFallbackAdapter forces adapter selection onto the software
// fallback, useful for environments without GPU access.
//
// Parameters:
//   - force: true to require the fallback adapter
//
// Returns:
//   - DeviceOption: the option to pass to New
func WithForceFallbackAdapter(force bool) DeviceOption {
	return func(d *device) {
		d.forceFallbackAdapter = force
	}
}

// WithVSync selects the FIFO present mode instead of immediate presentation.
//
// Parameters:
//   - enabled: true to cap presentation to the display refresh
//
// Returns:
//   - DeviceOption: the option to pass to New
func WithVSync(enabled bool) DeviceOption {
	return func(d *device) {
		d.vsync = enabled
	}
}
