package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/effect/compiler"
	"github.com/Carmen-Shannon/oxy-fx/effect/varstore"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// maxBindGroup bounds the binding groups a pass shader may declare.
const maxBindGroup = 4

// ModernConfig carries everything needed to construct one modern pass.
type ModernConfig struct {
	// Index is the zero-based pass position; PassCount the pipeline length.
	Index     uint32
	PassCount uint32

	// Props are the pass's parsed configuration properties.
	Props Props

	// Storage is the pipeline's shared variable storage.
	Storage *varstore.Storage

	// Vertex and Fragment are the compiled stages with their reflections.
	Vertex       *compiler.Blob
	VertexInfo   *compiler.Reflection
	Fragment     *compiler.Blob
	FragmentInfo *compiler.Reflection

	// CustomTextures is the pipeline's static texture table, keyed by the
	// binding name shaders use.
	CustomTextures map[string]*CustomTexture

	// InputFilters records filter_linear per pass; index r is the filter of
	// the pass consuming grid row r. RowSrgb records sRGB content per grid
	// row.
	InputFilters []bool
	RowSrgb      []bool
}

// constantBlockState is one reflected uniform block: its CPU-side image, the
// gather plan filling it, and the device buffer it uploads to.
type constantBlockState struct {
	name    string
	slot    uint32
	image   []uint32
	gathers gatherSet
	buffer  gpu.UniformBuffer
}

// boundSampler pairs a resolved sampler choice with its device handle.
type boundSampler struct {
	in     samplerInput
	handle gpu.Sampler
}

// modernPass executes one pass on the reflection-driven device generation.
type modernPass struct {
	passBase
	device gpu.ModernDevice

	vertexBlob   *compiler.Blob
	fragmentBlob *compiler.Blob

	vertexProgram   gpu.Program
	fragmentProgram gpu.Program

	blocks   []*constantBlockState
	textures []textureInput
	samplers []boundSampler

	// deviceLost defers program, buffer, and sampler recreation to the next
	// Run after a device reset.
	deviceLost bool
}

var _ Pass = (*modernPass)(nil)

// NewModern constructs a modern pass from two compiled stages: it cross-checks
// the stage signatures, walks the reflections to bind constants, textures,
// and samplers, and creates the device-side stage objects.
//
// Parameters:
//   - device: the modern device
//   - cfg: the pass configuration
//
// Returns:
//   - Pass: the constructed pass
//   - error: an error naming the pass when a shader binding cannot be
//     resolved or the device rejects a stage
func NewModern(device gpu.ModernDevice, cfg ModernConfig) (Pass, error) {
	if err := validateSignatures(cfg.Index, cfg.VertexInfo, cfg.FragmentInfo); err != nil {
		return nil, err
	}
	if len(cfg.VertexInfo.Textures) > 0 {
		return nil, fmt.Errorf("pass %d: vertex shader texture bindings are not supported ('%s')",
			cfg.Index, cfg.VertexInfo.Textures[0].Name)
	}

	p := &modernPass{
		passBase: passBase{
			index:     cfg.Index,
			props:     cfg.Props,
			storage:   cfg.Storage,
			cacheable: true,
			nonPow2:   device.Caps().NonPow2,
		},
		device:       device,
		vertexBlob:   cfg.Vertex,
		fragmentBlob: cfg.Fragment,
	}

	if err := p.bindConstants(cfg); err != nil {
		return nil, err
	}
	if err := p.bindHandles(cfg); err != nil {
		return nil, err
	}

	// An effect pass always reads something; a fragment stage with no
	// texture bindings still implicitly consumes the pass input row.
	if len(p.textures) == 0 {
		p.addUpstreamRef(p.index, 0)
	}

	if err := p.createDeviceObjects(); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

// bindConstants walks both stages' uniform blocks, merging blocks the stages
// share by (group, binding), and builds the gather plan for each.
func (p *modernPass) bindConstants(cfg ModernConfig) error {
	type key struct{ group, binding uint32 }
	seen := make(map[key]string)

	for _, block := range append(append([]compiler.ConstantBlock{}, cfg.VertexInfo.Blocks...), cfg.FragmentInfo.Blocks...) {
		if block.Group >= maxBindGroup {
			return fmt.Errorf("pass %d: shader constant block '%s' uses binding group %d beyond the supported range",
				p.index, block.Name, block.Group)
		}

		k := key{block.Group, block.Binding}
		if prev, ok := seen[k]; ok {
			if prev != block.Name {
				return fmt.Errorf("pass %d: shader constant blocks '%s' and '%s' collide on binding %d",
					p.index, prev, block.Name, block.Binding)
			}
			// Same module global declared by both stages.
			continue
		}
		seen[k] = block.Name

		size := (block.Size + 15) &^ 15
		gathers, err := p.buildBlockGathers(block, 0, size)
		if err != nil {
			return err
		}
		p.blocks = append(p.blocks, &constantBlockState{
			name:    block.Name,
			slot:    block.Binding,
			image:   make([]uint32, size/4),
			gathers: gathers,
		})
	}
	return nil
}

// bindHandles resolves the fragment stage's texture and sampler names.
func (p *modernPass) bindHandles(cfg ModernConfig) error {
	for _, t := range cfg.FragmentInfo.Textures {
		in, err := p.resolveTexture(t, cfg.CustomTextures)
		if err != nil {
			return err
		}
		p.textures = append(p.textures, in)
	}
	for _, s := range cfg.FragmentInfo.Samplers {
		in, err := p.resolveSampler(s, cfg.CustomTextures, cfg.InputFilters, cfg.RowSrgb)
		if err != nil {
			return err
		}
		p.samplers = append(p.samplers, boundSampler{in: in})
	}
	return nil
}

// createDeviceObjects builds the programs, uniform buffers, and samplers.
// Called at construction and again after a device loss.
func (p *modernPass) createDeviceObjects() error {
	var err error
	p.vertexProgram, err = p.device.CreateVertexProgram(
		p.vertexBlob.Code(), p.vertexBlob.EntryPoint, fmt.Sprintf("pass %d vertex", p.index))
	if err != nil {
		return fmt.Errorf("pass %d vertex shader: %w", p.index, err)
	}
	p.fragmentProgram, err = p.device.CreateFragmentProgram(
		p.fragmentBlob.Code(), p.fragmentBlob.EntryPoint, fmt.Sprintf("pass %d fragment", p.index))
	if err != nil {
		return fmt.Errorf("pass %d fragment shader: %w", p.index, err)
	}

	for _, block := range p.blocks {
		block.buffer, err = p.device.CreateUniformBuffer(
			uint32(len(block.image)*4), fmt.Sprintf("pass %d %s", p.index, block.name))
		if err != nil {
			return fmt.Errorf("pass %d: unable to allocate constant buffer '%s': %w", p.index, block.name, err)
		}
	}

	border := p.device.Caps().BorderSampling
	for i := range p.samplers {
		p.samplers[i].handle, err = p.device.CreateSampler(gpu.SamplerDesc{
			Linear: p.samplers[i].in.linear,
			Border: border,
		})
		if err != nil {
			return fmt.Errorf("pass %d: unable to create sampler: %w", p.index, err)
		}
	}
	p.deviceLost = false
	return nil
}

// releaseDeviceObjects drops the programs, buffers, and samplers.
func (p *modernPass) releaseDeviceObjects() {
	if p.vertexProgram != nil {
		p.vertexProgram.Release()
		p.vertexProgram = nil
	}
	if p.fragmentProgram != nil {
		p.fragmentProgram.Release()
		p.fragmentProgram = nil
	}
	for _, block := range p.blocks {
		if block.buffer != nil {
			block.buffer.Release()
			block.buffer = nil
		}
	}
	for i := range p.samplers {
		if p.samplers[i].handle != nil {
			p.samplers[i].handle.Release()
			p.samplers[i].handle = nil
		}
	}
}

// renderSize derives the pass output size from its scaling config and the
// live input and viewport sizes.
func (p *modernPass) renderSize(fs *FrameState) (uint32, uint32) {
	srcW, srcH := uint32(1), uint32(1)
	if int(p.index) < len(fs.Grid) && len(fs.Grid[p.index]) > 0 {
		srcW = fs.Grid[p.index][0].ImageWidth
		srcH = fs.Grid[p.index][0].ImageHeight
	}
	return p.props.ComputeRenderSize(srcW, srcH, fs.ViewportWidth, fs.ViewportHeight)
}

// Run executes the pass into its output ring, or skips it when the cached
// output is still valid.
//
// Parameters:
//   - fs: the shared frame state
//
// Returns:
//   - error: an error naming the pass on allocation or draw failure
func (p *modernPass) Run(fs *FrameState) error {
	outW, outH := p.renderSize(fs)

	if p.cacheable && !p.deviceLost &&
		p.ring[0].Texture != nil &&
		p.ring[0].ImageWidth == outW && p.ring[0].ImageHeight == outH &&
		!p.anyUpstreamInvalidated(fs) {
		p.publish(fs)
		return nil
	}

	if p.deviceLost {
		p.releaseDeviceObjects()
		if err := p.createDeviceObjects(); err != nil {
			return err
		}
	}

	if _, err := p.ensureRing(p.device, outW, outH); err != nil {
		return err
	}
	p.rotateRing()
	// The new frame lands in slot 0; stamp its size in case the recycled
	// texture carried an older logical size.
	p.ring[0].ImageWidth = outW
	p.ring[0].ImageHeight = outH

	p.advanceFrameCounter()
	p.refreshVariables(fs, outW, outH)

	err := p.draw(fs, p.ring[0].Texture, common.Rectf{
		Right:  float32(outW),
		Bottom: float32(outH),
	})
	if err != nil {
		return err
	}

	p.publish(fs)
	row := p.index + 1
	if int(row) < len(fs.Invalidated) {
		fs.Invalidated[row] = true
	}
	return nil
}

// RunFinal executes the pass directly into a presentation target. Used for
// the trailing blit pass that scales to the viewport; it never caches and
// owns no output ring.
//
// Parameters:
//   - fs: the shared frame state
//   - target: the presentation render target
//   - dstRect: the destination rectangle inside the target
//
// Returns:
//   - error: an error naming the pass on draw failure
func (p *modernPass) RunFinal(fs *FrameState, target gpu.Texture, dstRect common.Rectf) error {
	if p.deviceLost {
		p.releaseDeviceObjects()
		if err := p.createDeviceObjects(); err != nil {
			return err
		}
	}

	p.advanceFrameCounter()
	p.refreshVariables(fs, uint32(dstRect.Width()), uint32(dstRect.Height()))
	return p.draw(fs, target, dstRect)
}

// draw gathers constants, resolves input textures, and submits the quad.
func (p *modernPass) draw(fs *FrameState, target gpu.Texture, viewport common.Rectf) error {
	op := gpu.DrawOp{
		Target:          target,
		Viewport:        viewport,
		VertexProgram:   p.vertexProgram,
		FragmentProgram: p.fragmentProgram,
		Label:           fmt.Sprintf("pass %d", p.index),
	}

	for _, block := range p.blocks {
		block.gathers.run(p.storage, block.image)
		if err := p.device.UpdateUniformBuffer(block.buffer, common.SliceToBytes(block.image)); err != nil {
			return fmt.Errorf("pass %d: constant buffer '%s' upload failed: %w", p.index, block.name, err)
		}
		op.Uniforms = append(op.Uniforms, gpu.UniformBinding{Slot: block.slot, Buffer: block.buffer})
	}

	for _, t := range p.textures {
		var tex gpu.Texture
		if t.custom != nil {
			tex = t.custom.Texture
		} else {
			var err error
			tex, err = resolveInput(fs, p.index, t.row, t.element)
			if err != nil {
				return err
			}
		}
		op.Textures = append(op.Textures, gpu.TextureBinding{Slot: t.slot, Texture: tex})
	}
	for _, s := range p.samplers {
		op.Samplers = append(op.Samplers, gpu.SamplerBinding{Slot: s.in.slot, Sampler: s.handle})
	}

	op.Quad = p.inputQuad(fs)

	if err := p.device.Draw(op); err != nil {
		return fmt.Errorf("pass %d: draw failed: %w", p.index, err)
	}
	return nil
}

// inputQuad builds the fullscreen strip with the primary texture coordinates
// scaled to the pass input's image extent inside its physical texture.
func (p *modernPass) inputQuad(fs *FrameState) gpu.QuadGeometry {
	uScale, vScale := float32(1), float32(1)
	if int(p.index) < len(fs.Grid) && len(fs.Grid[p.index]) > 0 {
		spec := fs.Grid[p.index][0]
		if spec.TexWidth > 0 && spec.TexHeight > 0 {
			uScale = float32(spec.ImageWidth) / float32(spec.TexWidth)
			vScale = float32(spec.ImageHeight) / float32(spec.TexHeight)
		}
	}
	return gpu.QuadGeometry{
		{X: -1, Y: 1, U0: 0, V0: 0, U1: 0, V1: 0},
		{X: 1, Y: 1, U0: uScale, V0: 0, U1: 1, V1: 0},
		{X: -1, Y: -1, U0: 0, V0: vScale, U1: 0, V1: 1},
		{X: 1, Y: -1, U0: uScale, V0: vScale, U1: 1, V1: 1},
	}
}

// OnDeviceLost drops the output ring and device objects; the next Run
// recreates everything from the retained blobs.
func (p *modernPass) OnDeviceLost() {
	p.releaseRing()
	p.releaseDeviceObjects()
	p.deviceLost = true
}

// Release frees every resource the pass owns.
func (p *modernPass) Release() {
	p.releaseRing()
	p.releaseDeviceObjects()
}
