package wgpudev

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// quadByteSize is the vertex buffer footprint of one pass quad: four corners
// of six floats each.
const quadByteSize = 4 * 6 * 4

// pipelineKey identifies a cached render pipeline. A program pair always
// carries the same binding slots, so the pair plus the target format fully
// determines the pipeline.
type pipelineKey struct {
	vertex   *program
	fragment *program
	format   wgpu.TextureFormat
}

// pipelineEntry is one cached pipeline with the bind group layouts needed to
// assemble per-draw bind groups.
type pipelineEntry struct {
	pipeline       *wgpu.RenderPipeline
	pipelineLayout *wgpu.PipelineLayout
	uniformLayout  *wgpu.BindGroupLayout
	resourceLayout *wgpu.BindGroupLayout
}

func (e *pipelineEntry) release() {
	if e.pipeline != nil {
		e.pipeline.Release()
		e.pipeline = nil
	}
	if e.pipelineLayout != nil {
		e.pipelineLayout.Release()
		e.pipelineLayout = nil
	}
	if e.uniformLayout != nil {
		e.uniformLayout.Release()
		e.uniformLayout = nil
	}
	if e.resourceLayout != nil {
		e.resourceLayout.Release()
		e.resourceLayout = nil
	}
}

func (d *device) Draw(op gpu.DrawOp) error {
	target, ok := op.Target.(*texture)
	if !ok || !target.desc.RenderTarget {
		return fmt.Errorf("draw '%s': target is not a render target", op.Label)
	}

	vp, ok := op.VertexProgram.(*program)
	if !ok {
		return fmt.Errorf("draw '%s': vertex program does not belong to this device", op.Label)
	}
	fp, ok := op.FragmentProgram.(*program)
	if !ok {
		return fmt.Errorf("draw '%s': fragment program does not belong to this device", op.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry, err := d.pipelineFor(vp, fp, target.wgpuFormat, op)
	if err != nil {
		return fmt.Errorf("draw '%s': %w", op.Label, err)
	}

	uniformGroup, resourceGroup, err := d.bindGroupsFor(entry, op)
	if err != nil {
		return fmt.Errorf("draw '%s': %w", op.Label, err)
	}
	defer uniformGroup.Release()
	defer resourceGroup.Release()

	d.queue.WriteBuffer(d.quadBuffer, 0, quadBytes(op.Quad))

	encoder, err := d.wgpuDevice.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("draw '%s': unable to create command encoder: %w", op.Label, err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: op.Label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:    target.view,
				LoadOp:  wgpu.LoadOpLoad,
				StoreOp: wgpu.StoreOpStore,
			},
		},
	})
	pass.SetPipeline(entry.pipeline)
	pass.SetBindGroup(0, uniformGroup, nil)
	pass.SetBindGroup(1, resourceGroup, nil)
	pass.SetVertexBuffer(0, d.quadBuffer, 0, wgpu.WholeSize)
	pass.SetViewport(
		op.Viewport.Left, op.Viewport.Top,
		op.Viewport.Width(), op.Viewport.Height(),
		0, 1,
	)
	pass.Draw(4, 1, 0, 0)
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("draw '%s': unable to encode pass: %w", op.Label, err)
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

// pipelineFor retrieves the cached pipeline for the program pair and target
// format, creating it on first use.
func (d *device) pipelineFor(vp, fp *program, format wgpu.TextureFormat, op gpu.DrawOp) (*pipelineEntry, error) {
	key := pipelineKey{vertex: vp, fragment: fp, format: format}
	if entry, ok := d.pipelines[key]; ok {
		return entry, nil
	}

	entry := &pipelineEntry{}
	fail := func(err error) (*pipelineEntry, error) {
		entry.release()
		return nil, err
	}

	uniformEntries := make([]wgpu.BindGroupLayoutEntry, 0, len(op.Uniforms))
	for _, u := range op.Uniforms {
		uniformEntries = append(uniformEntries, wgpu.BindGroupLayoutEntry{
			Binding:    u.Slot,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type: wgpu.BufferBindingTypeUniform,
			},
		})
	}

	resourceEntries := make([]wgpu.BindGroupLayoutEntry, 0, len(op.Textures)+len(op.Samplers))
	for _, t := range op.Textures {
		resourceEntries = append(resourceEntries, wgpu.BindGroupLayoutEntry{
			Binding:    t.Slot,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		})
	}
	for _, s := range op.Samplers {
		resourceEntries = append(resourceEntries, wgpu.BindGroupLayoutEntry{
			Binding:    s.Slot,
			Visibility: wgpu.ShaderStageFragment,
			Sampler: wgpu.SamplerBindingLayout{
				Type: wgpu.SamplerBindingTypeFiltering,
			},
		})
	}

	var err error
	entry.uniformLayout, err = d.wgpuDevice.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: uniformEntries,
	})
	if err != nil {
		return fail(fmt.Errorf("unable to create uniform bind group layout: %w", err))
	}
	entry.resourceLayout, err = d.wgpuDevice.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: resourceEntries,
	})
	if err != nil {
		return fail(fmt.Errorf("unable to create resource bind group layout: %w", err))
	}

	entry.pipelineLayout, err = d.wgpuDevice.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{entry.uniformLayout, entry.resourceLayout},
	})
	if err != nil {
		return fail(fmt.Errorf("unable to create pipeline layout: %w", err))
	}

	entry.pipeline, err = d.wgpuDevice.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Layout: entry.pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vp.module,
			EntryPoint: vp.entryPoint,
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: 6 * 4,
					StepMode:    wgpu.VertexStepModeVertex,
					Attributes: []wgpu.VertexAttribute{
						{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
						{Format: wgpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
						{Format: wgpu.VertexFormatFloat32x2, Offset: 16, ShaderLocation: 2},
					},
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     fp.module,
			EntryPoint: fp.entryPoint,
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleStrip,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fail(fmt.Errorf("unable to create render pipeline: %w", err))
	}

	d.pipelines[key] = entry
	return entry, nil
}

// bindGroupsFor assembles the two per-draw bind groups: constant buffers on
// group 0, textures and samplers on group 1.
func (d *device) bindGroupsFor(entry *pipelineEntry, op gpu.DrawOp) (*wgpu.BindGroup, *wgpu.BindGroup, error) {
	uniformEntries := make([]wgpu.BindGroupEntry, 0, len(op.Uniforms))
	for _, u := range op.Uniforms {
		buf, ok := u.Buffer.(*uniformBuffer)
		if !ok {
			return nil, nil, errors.New("bound buffer does not belong to this device")
		}
		uniformEntries = append(uniformEntries, wgpu.BindGroupEntry{
			Binding: u.Slot,
			Buffer:  buf.buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}

	resourceEntries := make([]wgpu.BindGroupEntry, 0, len(op.Textures)+len(op.Samplers))
	for _, tb := range op.Textures {
		t, ok := tb.Texture.(*texture)
		if !ok {
			return nil, nil, errors.New("bound texture does not belong to this device")
		}
		resourceEntries = append(resourceEntries, wgpu.BindGroupEntry{
			Binding:     tb.Slot,
			TextureView: t.view,
		})
	}
	for _, sb := range op.Samplers {
		s, ok := sb.Sampler.(*sampler)
		if !ok {
			return nil, nil, errors.New("bound sampler does not belong to this device")
		}
		resourceEntries = append(resourceEntries, wgpu.BindGroupEntry{
			Binding: sb.Slot,
			Sampler: s.samp,
		})
	}

	uniformGroup, err := d.wgpuDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  entry.uniformLayout,
		Entries: uniformEntries,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create uniform bind group: %w", err)
	}
	resourceGroup, err := d.wgpuDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  entry.resourceLayout,
		Entries: resourceEntries,
	})
	if err != nil {
		uniformGroup.Release()
		return nil, nil, fmt.Errorf("unable to create resource bind group: %w", err)
	}
	return uniformGroup, resourceGroup, nil
}

// quadBytes flattens the quad corners into the vertex buffer image.
func quadBytes(quad gpu.QuadGeometry) []byte {
	floats := make([]float32, 0, 4*6)
	for _, v := range quad {
		floats = append(floats, v.X, v.Y, v.U0, v.V0, v.U1, v.V1)
	}
	return common.SliceToBytes(floats)
}
