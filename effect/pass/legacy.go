package pass

import (
	"fmt"
	"math"
	"sort"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/effect/compiler"
	"github.com/Carmen-Shannon/oxy-fx/effect/varstore"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// LegacyConfig carries everything needed to construct one legacy pass.
type LegacyConfig struct {
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

	// CustomTextures is the pipeline's static texture table.
	CustomTextures map[string]*CustomTexture

	// InputFilters records filter_linear per pass; RowSrgb records sRGB
	// content per grid row.
	InputFilters []bool
	RowSrgb      []bool
}

// regSpan is one contiguous register run uploaded per draw.
type regSpan struct {
	start uint32
	count uint32
}

// legacyPass executes one pass on the register-file device generation.
// Reflected constant blocks are flattened into a single float register file
// shared by both stages; bool members land in a separate bool file the way
// register-file hardware separates them.
type legacyPass struct {
	passBase
	device gpu.LegacyDevice

	vertexWords   []uint32
	fragmentWords []uint32

	vertexProgram   gpu.Program
	fragmentProgram gpu.Program

	// floatFile and boolFile are the gather destinations; floatScratch is the
	// per-draw reinterpretation of the float file.
	floatFile    []uint32
	boolFile     []uint32
	floatScratch []float32
	gathers      gatherSet

	floatSpans []regSpan
	boolSpans  []regSpan

	textures      []textureInput
	samplerStates []gpu.SamplerState
	renderStates  []gpu.RenderState

	deviceLost bool
}

var _ Pass = (*legacyPass)(nil)

// NewLegacy constructs a legacy pass from two compiled stages: it cross-checks
// the stage signatures, lays the reflected constant blocks out into a register
// file, resolves texture stages and their sampler states, and creates the
// device-side programs.
//
// Parameters:
//   - device: the legacy device
//   - cfg: the pass configuration
//
// Returns:
//   - Pass: the constructed pass
//   - error: an error naming the pass when a shader binding cannot be
//     resolved or the device rejects a stage
func NewLegacy(device gpu.LegacyDevice, cfg LegacyConfig) (Pass, error) {
	if err := validateSignatures(cfg.Index, cfg.VertexInfo, cfg.FragmentInfo); err != nil {
		return nil, err
	}
	if len(cfg.VertexInfo.Textures) > 0 {
		return nil, fmt.Errorf("pass %d: vertex shader texture bindings are not supported ('%s')",
			cfg.Index, cfg.VertexInfo.Textures[0].Name)
	}

	p := &legacyPass{
		passBase: passBase{
			index:     cfg.Index,
			props:     cfg.Props,
			storage:   cfg.Storage,
			cacheable: true,
			nonPow2:   device.Caps().NonPow2,
		},
		device:        device,
		vertexWords:   cfg.Vertex.Words(),
		fragmentWords: cfg.Fragment.Words(),
	}

	if err := p.layoutRegisters(cfg); err != nil {
		return nil, err
	}
	if err := p.bindStages(cfg); err != nil {
		return nil, err
	}

	if len(p.textures) == 0 {
		p.addUpstreamRef(p.index, 0)
		p.textures = append(p.textures, textureInput{row: p.index})
		p.addSamplerStates(0, p.props.FilterLinear, false, device.Caps().BorderSampling)
	}

	if p.props.SrgbFramebuffer {
		p.renderStates = append(p.renderStates, gpu.RenderState{State: gpu.RenderSrgbWrite, Value: 1})
	}

	if err := p.createDeviceObjects(); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

// layoutRegisters flattens the merged constant blocks into the float register
// file. Blocks are placed in (group, binding) order, each starting at the
// next free register; members keep their in-block byte offsets. Bool members
// are redirected into the bool file at the register they occupy.
func (p *legacyPass) layoutRegisters(cfg LegacyConfig) error {
	type key struct{ group, binding uint32 }
	merged := make(map[key]compiler.ConstantBlock)
	for _, block := range append(append([]compiler.ConstantBlock{}, cfg.VertexInfo.Blocks...), cfg.FragmentInfo.Blocks...) {
		if block.Group >= maxBindGroup {
			return fmt.Errorf("pass %d: shader constant block '%s' uses binding group %d beyond the supported range",
				p.index, block.Name, block.Group)
		}
		k := key{block.Group, block.Binding}
		if prev, ok := merged[k]; ok {
			if prev.Name != block.Name {
				return fmt.Errorf("pass %d: shader constant blocks '%s' and '%s' collide on binding %d",
					p.index, prev.Name, block.Name, block.Binding)
			}
			continue
		}
		merged[k] = block
	}

	blocks := make([]compiler.ConstantBlock, 0, len(merged))
	for _, block := range merged {
		blocks = append(blocks, block)
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Group != blocks[j].Group {
			return blocks[i].Group < blocks[j].Group
		}
		return blocks[i].Binding < blocks[j].Binding
	})

	totalRegs := uint32(0)
	bases := make([]uint32, len(blocks))
	for i, block := range blocks {
		bases[i] = totalRegs
		totalRegs += (block.Size + 15) / 16
	}

	p.floatFile = make([]uint32, totalRegs*4)
	p.boolFile = make([]uint32, totalRegs)
	p.floatScratch = make([]float32, totalRegs*4)

	for i, block := range blocks {
		g, err := p.buildBlockGathers(block, bases[i]*16, totalRegs*16)
		if err != nil {
			return err
		}
		p.gathers.vecs = append(p.gathers.vecs, g.vecs...)
		p.gathers.floats = append(p.gathers.floats, g.floats...)
		// Bool members move to the bool file, addressed by the register their
		// block slot occupies.
		for _, b := range g.bools {
			p.gathers.bools = append(p.gathers.bools, varstore.ScalarGather{
				DstOffset: (b.DstOffset / 16) * 4,
				SrcOffset: b.SrcOffset,
			})
		}
	}

	if totalRegs > 0 {
		p.floatSpans = []regSpan{{start: 0, count: totalRegs}}
	}
	p.boolSpans = boolRegisterSpans(p.gathers.bools)
	return nil
}

// boolRegisterSpans merges the registers touched by bool gathers into
// contiguous upload runs.
func boolRegisterSpans(gathers []varstore.ScalarGather) []regSpan {
	if len(gathers) == 0 {
		return nil
	}
	regs := make([]uint32, 0, len(gathers))
	for _, g := range gathers {
		regs = append(regs, g.DstOffset/4)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })

	var spans []regSpan
	for _, r := range regs {
		if n := len(spans); n > 0 && spans[n-1].start+spans[n-1].count >= r {
			if r >= spans[n-1].start+spans[n-1].count {
				spans[n-1].count++
			}
			continue
		}
		spans = append(spans, regSpan{start: r, count: 1})
	}
	return spans
}

// bindStages resolves the fragment stage's texture names onto texture stages
// and derives each stage's sampler state list. A sampler reflected at the
// same binding slot as a texture drives that stage's filtering; stages
// without one fall back to the filter of the row they sample.
func (p *legacyPass) bindStages(cfg LegacyConfig) error {
	samplers := make(map[uint32]samplerInput, len(cfg.FragmentInfo.Samplers))
	for _, s := range cfg.FragmentInfo.Samplers {
		in, err := p.resolveSampler(s, cfg.CustomTextures, cfg.InputFilters, cfg.RowSrgb)
		if err != nil {
			return err
		}
		samplers[in.slot] = in
	}

	border := p.device.Caps().BorderSampling
	for _, t := range cfg.FragmentInfo.Textures {
		in, err := p.resolveTexture(t, cfg.CustomTextures)
		if err != nil {
			return err
		}
		p.textures = append(p.textures, in)

		linear, srgb := p.props.FilterLinear, false
		if in.custom != nil {
			linear = in.custom.Linear
		} else if int(in.row) < len(cfg.InputFilters) {
			linear = cfg.InputFilters[in.row]
		}
		if in.custom == nil && int(in.row) < len(cfg.RowSrgb) {
			srgb = cfg.RowSrgb[in.row]
		}
		if s, ok := samplers[in.slot]; ok {
			linear, srgb = s.linear, s.srgb
		}
		p.addSamplerStates(in.slot, linear, srgb, border)
	}
	return nil
}

// addSamplerStates appends the full sampler state list for one texture stage.
func (p *legacyPass) addSamplerStates(stage uint32, linear, srgb, border bool) {
	address := gpu.AddressClamp
	if border {
		address = gpu.AddressBorder
	}
	filter := gpu.FilterPoint
	if linear {
		filter = gpu.FilterLinear
	}
	decode := uint32(0)
	if srgb {
		decode = 1
	}
	p.samplerStates = append(p.samplerStates,
		gpu.SamplerState{Stage: stage, State: gpu.SamplerAddressU, Value: address},
		gpu.SamplerState{Stage: stage, State: gpu.SamplerAddressV, Value: address},
		gpu.SamplerState{Stage: stage, State: gpu.SamplerMagFilter, Value: filter},
		gpu.SamplerState{Stage: stage, State: gpu.SamplerMinFilter, Value: filter},
		gpu.SamplerState{Stage: stage, State: gpu.SamplerMipFilter, Value: gpu.FilterNone},
		gpu.SamplerState{Stage: stage, State: gpu.SamplerSrgbDecode, Value: decode},
	)
}

// createDeviceObjects builds the stage programs. Called at construction and
// again after a device loss.
func (p *legacyPass) createDeviceObjects() error {
	var err error
	p.vertexProgram, err = p.device.CreateVertexProgram(p.vertexWords)
	if err != nil {
		return fmt.Errorf("pass %d vertex shader: %w", p.index, err)
	}
	p.fragmentProgram, err = p.device.CreateFragmentProgram(p.fragmentWords)
	if err != nil {
		return fmt.Errorf("pass %d fragment shader: %w", p.index, err)
	}
	p.deviceLost = false
	return nil
}

func (p *legacyPass) releaseDeviceObjects() {
	if p.vertexProgram != nil {
		p.vertexProgram.Release()
		p.vertexProgram = nil
	}
	if p.fragmentProgram != nil {
		p.fragmentProgram.Release()
		p.fragmentProgram = nil
	}
}

func (p *legacyPass) renderSize(fs *FrameState) (uint32, uint32) {
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
func (p *legacyPass) Run(fs *FrameState) error {
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

// RunFinal executes the pass directly into a presentation target.
//
// Parameters:
//   - fs: the shared frame state
//   - target: the presentation render target
//   - dstRect: the destination rectangle inside the target
//
// Returns:
//   - error: an error naming the pass on draw failure
func (p *legacyPass) RunFinal(fs *FrameState, target gpu.Texture, dstRect common.Rectf) error {
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

// draw gathers the register files, converts the float spans, and submits the
// quad. The same constant spans feed both stages; register-file hardware
// keeps separate files per stage but the reflected layout is shared.
func (p *legacyPass) draw(fs *FrameState, target gpu.Texture, viewport common.Rectf) error {
	p.storage.GatherVecs(p.floatFile, p.gathers.vecs)
	p.storage.GatherFloats(p.floatFile, p.gathers.floats)
	p.storage.GatherBools(p.boolFile, p.gathers.bools)
	for i, w := range p.floatFile {
		p.floatScratch[i] = math.Float32frombits(w)
	}

	op := gpu.LegacyDrawOp{
		Target:          target,
		Viewport:        viewport,
		VertexProgram:   p.vertexProgram,
		FragmentProgram: p.fragmentProgram,
		RenderStates:    p.renderStates,
		SamplerStates:   p.samplerStates,
		Label:           fmt.Sprintf("pass %d", p.index),
	}

	for _, span := range p.floatSpans {
		data := p.floatScratch[span.start*4 : (span.start+span.count)*4]
		op.VertexConstantsF = append(op.VertexConstantsF, gpu.ConstantSpanF{StartRegister: span.start, Data: data})
		op.FragmentConstantsF = append(op.FragmentConstantsF, gpu.ConstantSpanF{StartRegister: span.start, Data: data})
	}
	for _, span := range p.boolSpans {
		data := p.boolFile[span.start : span.start+span.count]
		op.VertexConstantsB = append(op.VertexConstantsB, gpu.ConstantSpanB{StartRegister: span.start, Data: data})
		op.FragmentConstantsB = append(op.FragmentConstantsB, gpu.ConstantSpanB{StartRegister: span.start, Data: data})
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
		op.Textures = append(op.Textures, gpu.StageTexture{Stage: t.slot, Texture: tex})
	}

	op.Quad = p.halfPixelQuad(fs, viewport)

	if err := p.device.Draw(op); err != nil {
		return fmt.Errorf("pass %d: draw failed: %w", p.index, err)
	}
	return nil
}

// halfPixelQuad builds the fullscreen strip with clip positions shifted half
// a pixel so texel centers align with pixel centers on the register-file
// rasterization convention.
func (p *legacyPass) halfPixelQuad(fs *FrameState, viewport common.Rectf) gpu.QuadGeometry {
	dx, dy := float32(0), float32(0)
	if w := viewport.Width(); w > 0 {
		dx = 1 / w
	}
	if h := viewport.Height(); h > 0 {
		dy = 1 / h
	}

	uScale, vScale := float32(1), float32(1)
	if int(p.index) < len(fs.Grid) && len(fs.Grid[p.index]) > 0 {
		spec := fs.Grid[p.index][0]
		if spec.TexWidth > 0 && spec.TexHeight > 0 {
			uScale = float32(spec.ImageWidth) / float32(spec.TexWidth)
			vScale = float32(spec.ImageHeight) / float32(spec.TexHeight)
		}
	}
	return gpu.QuadGeometry{
		{X: -1 - dx, Y: 1 + dy, U0: 0, V0: 0, U1: 0, V1: 0},
		{X: 1 - dx, Y: 1 + dy, U0: uScale, V0: 0, U1: 1, V1: 0},
		{X: -1 - dx, Y: -1 + dy, U0: 0, V0: vScale, U1: 0, V1: 1},
		{X: 1 - dx, Y: -1 + dy, U0: uScale, V0: vScale, U1: 1, V1: 1},
	}
}

// OnDeviceLost drops the output ring and programs; the next Run recreates
// them from the retained word streams.
func (p *legacyPass) OnDeviceLost() {
	p.releaseRing()
	p.releaseDeviceObjects()
	p.deviceLost = true
}

// Release frees every resource the pass owns.
func (p *legacyPass) Release() {
	p.releaseRing()
	p.releaseDeviceObjects()
}

// shaderModel3 reports whether a legacy version word is shader model 3.
func shaderModel3(version uint32) bool {
	return version&0xFFFF >= 0x0300
}

// ValidateLegacyProfiles checks a pass's resolved stage profiles against each
// other and against the device's shader caps. Mixing a shader model 3 stage
// with a lower-model stage is rejected the way register-file drivers reject
// it at link time.
//
// Parameters:
//   - passIndex: the pass carrying the profiles
//   - vs, ps: the resolved stage profiles
//   - caps: the device capability description
//
// Returns:
//   - error: an error naming the pass when the pair is unusable
func ValidateLegacyProfiles(passIndex uint32, vs, ps compiler.Profile, caps gpu.Caps) error {
	if shaderModel3(vs.Version) != shaderModel3(ps.Version) {
		return fmt.Errorf("pass %d has mismatched shaders -- cannot mix shader model 1/2 shaders with shader model 3 shaders", passIndex)
	}
	if vs.Version > caps.MaxVertexVersion {
		return fmt.Errorf("pass %d vertex shader: version is greater than supported by graphics device (%08X > %08X)",
			passIndex, vs.Version, caps.MaxVertexVersion)
	}
	if ps.Version > caps.MaxPixelVersion {
		return fmt.Errorf("pass %d fragment shader: version is greater than supported by graphics device (%08X > %08X)",
			passIndex, ps.Version, caps.MaxPixelVersion)
	}
	return nil
}
