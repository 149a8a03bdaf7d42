// Package wgpudev implements the modern device generation on WebGPU through
// the cogentcore/webgpu bindings. Textures, samplers, uniform buffers, and
// shader programs map directly onto their WebGPU counterparts; pass draws are
// encoded one quad at a time with render pipelines cached per program pair
// and target format. The wrapper exposes no GPU query sets, so timestamp and
// disjoint queries resolve against the CPU clock at command submission time.
package wgpudev

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// Device is a WebGPU-backed modern device with an optional presentation
// surface.
type Device interface {
	gpu.ModernDevice

	// ConfigureSurface (re)configures the presentation surface to the given
	// pixel dimensions. Must be called before the first AcquireFrame and
	// again whenever the host window resizes.
	//
	// Parameters:
	//   - width: the surface width in pixels
	//   - height: the surface height in pixels
	//
	// Returns:
	//   - error: an error if the device was built without a surface
	ConfigureSurface(width, height int) error

	// AcquireFrame acquires the surface texture for the current frame and
	// wraps it as a render target. The returned handle is valid until the
	// next Present call and must not be released by the caller.
	//
	// Returns:
	//   - gpu.Texture: the presentation render target
	//   - error: an error if the surface image could not be acquired
	AcquireFrame() (gpu.Texture, error)

	// Present presents the previously acquired frame and releases the
	// surface image. A call without a pending frame is a no-op.
	Present()

	// Release frees the WebGPU device and every cached pipeline.
	Release()
}

type device struct {
	mu sync.Mutex

	instance   *wgpu.Instance
	adapter    *wgpu.Adapter
	wgpuDevice *wgpu.Device
	queue      *wgpu.Queue

	surface       *wgpu.Surface
	surfaceFormat wgpu.TextureFormat
	surfaceSize   [2]uint32

	// frameTexture holds the acquired surface image between AcquireFrame and
	// Present.
	frameTexture *texture
	frameSurface *wgpu.Texture

	caps gpu.Caps

	// quadBuffer is the shared vertex buffer every pass draw rewrites.
	quadBuffer *wgpu.Buffer

	pipelines map[pipelineKey]*pipelineEntry

	forceFallbackAdapter bool
	vsync                bool
	surfaceDescriptor    *wgpu.SurfaceDescriptor
}

var _ Device = (*device)(nil)

func (d *device) Caps() gpu.Caps {
	return d.caps
}

func (d *device) ConfigureSurface(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil {
		return errors.New("device has no presentation surface")
	}

	capabilities := d.surface.GetCapabilities(d.adapter)
	d.surfaceFormat = capabilities.Formats[0]

	presentMode := wgpu.PresentModeImmediate
	if d.vsync {
		presentMode = wgpu.PresentModeFifo
	}

	d.surface.Configure(d.adapter, d.wgpuDevice, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	d.surfaceSize = [2]uint32{uint32(width), uint32(height)}
	return nil
}

func (d *device) AcquireFrame() (gpu.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil {
		return nil, errors.New("device has no presentation surface")
	}
	if d.frameSurface != nil {
		return nil, errors.New("previous frame surface not yet presented")
	}

	surfaceTexture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return nil, fmt.Errorf("unable to acquire surface texture: %w", err)
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, fmt.Errorf("unable to view surface texture: %w", err)
	}

	d.frameSurface = surfaceTexture
	d.frameTexture = &texture{
		view:       view,
		wgpuFormat: d.surfaceFormat,
		desc: gpu.TextureDesc{
			Width:        d.surfaceSize[0],
			Height:       d.surfaceSize[1],
			Format:       gpu.FormatBGRA8,
			RenderTarget: true,
			Label:        "surface",
		},
		presentation: true,
	}
	return d.frameTexture, nil
}

func (d *device) Present() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameSurface == nil {
		return
	}

	d.surface.Present()

	d.frameTexture.view.Release()
	d.frameSurface.Release()
	d.frameTexture = nil
	d.frameSurface = nil
}

func (d *device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, entry := range d.pipelines {
		entry.release()
	}
	d.pipelines = nil

	if d.quadBuffer != nil {
		d.quadBuffer.Release()
		d.quadBuffer = nil
	}
	if d.frameTexture != nil {
		d.frameTexture.view.Release()
		d.frameSurface.Release()
		d.frameTexture = nil
		d.frameSurface = nil
	}
	if d.surface != nil {
		d.surface.Release()
		d.surface = nil
	}
	if d.wgpuDevice != nil {
		d.wgpuDevice.Release()
		d.wgpuDevice = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}
