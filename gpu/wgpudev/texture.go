package wgpudev

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// texture wraps a WebGPU texture and its default view. Presentation targets
// carry only the view; the underlying image belongs to the surface.
type texture struct {
	tex        *wgpu.Texture
	view       *wgpu.TextureView
	wgpuFormat wgpu.TextureFormat
	desc       gpu.TextureDesc

	presentation bool
}

var _ gpu.Texture = (*texture)(nil)

func (t *texture) Size() common.Vec2i {
	return common.Vec2i{X: int32(t.desc.Width), Y: int32(t.desc.Height)}
}

func (t *texture) Format() gpu.TextureFormat {
	return t.desc.Format
}

func (t *texture) Release() {
	if t.presentation {
		// Owned by the surface; released on Present.
		return
	}
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}

// wgpuFormatFor maps a pipeline texture format onto its WebGPU equivalent.
func wgpuFormatFor(f gpu.TextureFormat) (wgpu.TextureFormat, error) {
	switch f {
	case gpu.FormatBGRA8:
		return wgpu.TextureFormatBGRA8Unorm, nil
	case gpu.FormatBGRA8Srgb:
		return wgpu.TextureFormatBGRA8UnormSrgb, nil
	case gpu.FormatRGBA16F:
		return wgpu.TextureFormatRGBA16Float, nil
	case gpu.FormatRGBA32F:
		return wgpu.TextureFormatRGBA32Float, nil
	default:
		return 0, fmt.Errorf("unsupported texture format: %s", f)
	}
}

func (d *device) CreateTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("invalid texture size: %dx%d", desc.Width, desc.Height)
	}
	if desc.Width > d.caps.MaxTextureWidth || desc.Height > d.caps.MaxTextureHeight {
		return nil, fmt.Errorf("texture size %dx%d exceeds device limit %dx%d",
			desc.Width, desc.Height, d.caps.MaxTextureWidth, d.caps.MaxTextureHeight)
	}

	format, err := wgpuFormatFor(desc.Format)
	if err != nil {
		return nil, err
	}

	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst
	if desc.RenderTarget {
		usage |= wgpu.TextureUsageRenderAttachment
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tex, err := d.wgpuDevice.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create texture '%s': %w", desc.Label, err)
	}

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("unable to view texture '%s': %w", desc.Label, err)
	}

	return &texture{tex: tex, view: view, wgpuFormat: format, desc: desc}, nil
}

func (d *device) UploadTexture(tex gpu.Texture, data common.TextureStagingData) error {
	t, ok := tex.(*texture)
	if !ok || t.presentation {
		return errors.New("upload target is not a device texture")
	}
	if t.desc.Format != gpu.FormatBGRA8 && t.desc.Format != gpu.FormatBGRA8Srgb {
		return fmt.Errorf("upload requires an 8-bit format, texture is %s", t.desc.Format)
	}
	if data.Width != t.desc.Width || data.Height != t.desc.Height {
		return fmt.Errorf("staging size %dx%d does not match texture %dx%d",
			data.Width, data.Height, t.desc.Width, t.desc.Height)
	}
	if uint32(len(data.Pixels)) < data.Width*data.Height*4 {
		return errors.New("staging data is shorter than the texture")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  data.Width * 4,
			RowsPerImage: data.Height,
		},
		&wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (d *device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	filter := wgpu.FilterModeNearest
	if desc.Linear {
		filter = wgpu.FilterModeLinear
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Core WebGPU has no border addressing; Caps report it unsupported so
	// callers always request clamp.
	samp, err := d.wgpuDevice.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create sampler: %w", err)
	}
	return &sampler{samp: samp}, nil
}

type sampler struct {
	samp *wgpu.Sampler
}

var _ gpu.Sampler = (*sampler)(nil)

func (s *sampler) Release() {
	if s.samp != nil {
		s.samp.Release()
		s.samp = nil
	}
}

func (d *device) Clear(target gpu.Texture, color common.Vec4f) error {
	t, ok := target.(*texture)
	if !ok || !t.desc.RenderTarget {
		return errors.New("clear target is not a render target")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	encoder, err := d.wgpuDevice.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("unable to create command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       t.view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{
					R: float64(color.X),
					G: float64(color.Y),
					B: float64(color.Z),
					A: float64(color.W),
				},
			},
		},
	})
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("unable to encode clear: %w", err)
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}
