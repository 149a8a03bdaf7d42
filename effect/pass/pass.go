package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/effect/varstore"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// OutputSpec describes one element of the pipeline's texture spec grid: a
// pass output (or source frame) at one history depth. TexWidth/TexHeight are
// the physical texture dimensions, which exceed the image dimensions on
// devices requiring power-of-two textures.
type OutputSpec struct {
	ImageWidth  uint32
	ImageHeight uint32
	TexWidth    uint32
	TexHeight   uint32

	Linear    bool
	Srgb      bool
	Float     bool
	HalfFloat bool

	Texture gpu.Texture
}

// FrameState is the mutable per-frame state the pipeline shares with its
// passes. Row 0 of the grid holds the original source and its history; row
// i+1 holds pass i's output ring. The invalidation table has one entry per
// grid row; entry r marks row r's content as recomputed this frame.
type FrameState struct {
	Grid        [][]OutputSpec
	Invalidated []bool

	ViewportWidth  uint32
	ViewportHeight uint32
}

// CustomTexture is one entry of the pipeline's static texture table.
type CustomTexture struct {
	Texture gpu.Texture
	Linear  bool
}

// Pass is one stage of an effect pipeline. Both executor generations
// implement it; the pipeline drives them uniformly.
type Pass interface {
	// Index retrieves the pass's position in the pipeline.
	//
	// Returns:
	//   - uint32: the zero-based pass index
	Index() uint32

	// Cacheable reports whether the pass output may be reused across frames
	// when none of its inputs changed.
	//
	// Returns:
	//   - bool: true when the output is reusable
	Cacheable() bool

	// HasScalingFactor reports whether the pass config carried any scale_type
	// key, marking its output size as explicitly specified.
	//
	// Returns:
	//   - bool: true when a scale type was configured
	HasScalingFactor() bool

	// Props retrieves the pass's parsed configuration properties.
	//
	// Returns:
	//   - Props: the pass properties
	Props() Props

	// UpstreamRefs retrieves the deduplicated, sorted grid rows the pass's
	// shaders reference. A pass re-runs when any of them is invalidated.
	//
	// Returns:
	//   - []uint32: the referenced grid rows
	UpstreamRefs() []uint32

	// HistoryDepths retrieves the deepest history element the pass references
	// per grid row. The pipeline aggregates these to size output rings and
	// the source history.
	//
	// Returns:
	//   - map[uint32]uint32: max referenced element index per row
	HistoryDepths() map[uint32]uint32

	// ResetVariables finalizes construction once the pipeline knows how much
	// history later passes demand from this pass: it sizes the output ring
	// and resolves the variable offsets the Run path writes each frame.
	//
	// Parameters:
	//   - prevFrames: history elements later passes reference from this pass
	//   - outputFiltered: whether downstream sampling of the output is linear
	ResetVariables(prevFrames uint32, outputFiltered bool)

	// MarkUncacheable forces the pass to re-run every frame.
	MarkUncacheable()

	// Run executes or skips the pass against its own output ring, publishing
	// the result into the frame state grid.
	//
	// Parameters:
	//   - fs: the shared frame state
	//
	// Returns:
	//   - error: an error naming the pass on allocation or draw failure
	Run(fs *FrameState) error

	// RunFinal executes the pass directly into a presentation target instead
	// of its own ring.
	//
	// Parameters:
	//   - fs: the shared frame state
	//   - target: the presentation render target
	//   - dstRect: the destination rectangle inside the target
	//
	// Returns:
	//   - error: an error naming the pass on draw failure
	RunFinal(fs *FrameState, target gpu.Texture, dstRect common.Rectf) error

	// OnDeviceLost releases device-resident resources. The pass recreates
	// them lazily on the next Run.
	OnDeviceLost()

	// Release frees all resources owned by the pass.
	Release()
}

// passBase carries the state and behavior shared by both executors: parsed
// props, the output ring, the frame counter, resolved variable offsets, and
// upstream reference bookkeeping.
type passBase struct {
	index     uint32
	props     Props
	storage   *varstore.Storage
	cacheable bool

	// upstreamRows is sorted and deduplicated; historyDepths records the
	// deepest element referenced per row.
	upstreamRows  []uint32
	historyDepths map[uint32]uint32

	// ring is the output texture ring; slot 0 is the newest frame. Sized by
	// ResetVariables, allocated lazily on first run.
	ring []OutputSpec

	// outputFiltered mirrors how downstream passes sample this output.
	outputFiltered bool

	frameCounter uint32

	// passParams are the resolved scratch offsets for the rows this pass
	// refreshes before drawing; outputSize and frameCounts are its own.
	rowParams   map[uint32]varstore.PassParamOffsets
	outputSize  int32
	frameCounts []int32

	nonPow2 bool
}

func (b *passBase) Index() uint32          { return b.index }
func (b *passBase) Cacheable() bool        { return b.cacheable }
func (b *passBase) HasScalingFactor() bool { return b.props.HasScaling }
func (b *passBase) Props() Props           { return b.props }

func (b *passBase) UpstreamRefs() []uint32 {
	return b.upstreamRows
}

func (b *passBase) HistoryDepths() map[uint32]uint32 {
	return b.historyDepths
}

func (b *passBase) MarkUncacheable() {
	b.cacheable = false
}

// addUpstreamRef records a referenced grid row and history depth, keeping the
// row list sorted and unique.
func (b *passBase) addUpstreamRef(row, element uint32) {
	if b.historyDepths == nil {
		b.historyDepths = make(map[uint32]uint32)
	}
	if element > b.historyDepths[row] {
		b.historyDepths[row] = element
	}

	pos := 0
	for pos < len(b.upstreamRows) && b.upstreamRows[pos] < row {
		pos++
	}
	if pos < len(b.upstreamRows) && b.upstreamRows[pos] == row {
		return
	}
	b.upstreamRows = append(b.upstreamRows, 0)
	copy(b.upstreamRows[pos+1:], b.upstreamRows[pos:])
	b.upstreamRows[pos] = row
}

// ResetVariables sizes the ring and resolves the per-frame variable offsets.
// Pass params for each referenced row are resolved at that row; the output
// size is resolved at the pass's own index and frame counters at the pass's
// output row, one per ring element.
func (b *passBase) ResetVariables(prevFrames uint32, outputFiltered bool) {
	b.releaseRing()
	b.ring = make([]OutputSpec, 1+prevFrames)
	b.outputFiltered = outputFiltered

	b.rowParams = make(map[uint32]varstore.PassParamOffsets, len(b.upstreamRows))
	for _, row := range b.upstreamRows {
		b.rowParams[row] = b.storage.ResolvePassParams(row)
	}

	b.outputSize = b.storage.Offset(varstore.Address{
		Kind:      varstore.KindOutputSize,
		PassIndex: b.index,
	})

	outputRow := b.index + 1
	b.frameCounts = make([]int32, len(b.ring))
	for e := range b.frameCounts {
		b.frameCounts[e] = b.storage.ResolveFrameParams(outputRow, uint32(e)).FrameCount
	}
}

// anyUpstreamInvalidated consults the already-resolved invalidation state of
// all lower-indexed rows.
func (b *passBase) anyUpstreamInvalidated(fs *FrameState) bool {
	for _, row := range b.upstreamRows {
		if int(row) < len(fs.Invalidated) && fs.Invalidated[row] {
			return true
		}
	}
	return false
}

// advanceFrameCounter bumps the per-pass counter, wrapping past the
// configured limit.
func (b *passBase) advanceFrameCounter() {
	if b.frameCounter >= b.props.FrameCountLimit {
		b.frameCounter = 0
		return
	}
	b.frameCounter++
}

// refreshVariables writes the live values of every variable the pass's
// shaders bound: input sizes per referenced row, the pass's own output size,
// and the decrementing frame counters of its output history elements.
func (b *passBase) refreshVariables(fs *FrameState, outW, outH uint32) {
	for _, row := range b.upstreamRows {
		if int(row) >= len(fs.Grid) || len(fs.Grid[row]) == 0 {
			continue
		}
		spec := fs.Grid[row][0]
		params := b.rowParams[row]
		b.storage.SetVector(params.VideoSize, common.Vec4f{
			X: float32(spec.ImageWidth),
			Y: float32(spec.ImageHeight),
		})
		b.storage.SetVector(params.TextureSize, common.Vec4f{
			X: float32(spec.TexWidth),
			Y: float32(spec.TexHeight),
		})
	}

	b.storage.SetVector(b.outputSize, common.Vec4f{
		X: float32(outW),
		Y: float32(outH),
	})

	for e, off := range b.frameCounts {
		count := uint32(0)
		if b.frameCounter > uint32(e) {
			count = b.frameCounter - uint32(e)
		}
		b.storage.SetVector(off, common.Vec4f{X: float32(count)})
	}
}

// rotateRing ages the output history: slot i receives slot i-1's frame and
// the oldest texture is recycled as the buffer for the new slot 0.
func (b *passBase) rotateRing() {
	n := len(b.ring)
	if n < 2 {
		return
	}
	oldest := b.ring[n-1]
	copy(b.ring[1:], b.ring[:n-1])
	b.ring[0] = oldest
}

// physicalSize derives the texture dimensions backing a logical image size.
func (b *passBase) physicalSize(w, h uint32) (uint32, uint32) {
	if b.nonPow2 {
		return w, h
	}
	return common.RoundUpPow2(w), common.RoundUpPow2(h)
}

// outputFormat selects the texture format the pass props request, degrading
// full-float targets on devices that cannot render to them.
func (b *passBase) outputFormat(caps gpu.Caps) gpu.TextureFormat {
	switch {
	case b.props.FloatFramebuffer && b.props.HalfFloatFramebuffer:
		return gpu.FormatRGBA16F
	case b.props.FloatFramebuffer:
		if caps.RGBA32FRenderable {
			return gpu.FormatRGBA32F
		}
		return gpu.FormatRGBA16F
	case b.props.SrgbFramebuffer:
		return gpu.FormatBGRA8Srgb
	default:
		return gpu.FormatBGRA8
	}
}

// ensureRing guarantees the full output ring is allocated at the requested
// render size, dropping and reallocating it when the size changed. Fresh
// targets are cleared so history reads before the ring fills are
// deterministic.
//
// Returns true when the ring was (re)allocated.
func (b *passBase) ensureRing(device gpu.Device, outW, outH uint32) (bool, error) {
	if b.ring[0].Texture != nil && b.ring[0].ImageWidth == outW && b.ring[0].ImageHeight == outH {
		return false, nil
	}

	caps := device.Caps()
	texW, texH := b.physicalSize(outW, outH)
	if texW > caps.MaxTextureWidth || texH > caps.MaxTextureHeight {
		return false, fmt.Errorf("pass %d: unable to allocate %dx%d output texture: exceeds device limit of %dx%d",
			b.index, texW, texH, caps.MaxTextureWidth, caps.MaxTextureHeight)
	}

	b.releaseRing()

	format := b.outputFormat(caps)
	for e := range b.ring {
		tex, err := device.CreateTexture(gpu.TextureDesc{
			Width:        texW,
			Height:       texH,
			Format:       format,
			RenderTarget: true,
			Label:        fmt.Sprintf("pass %d output %d", b.index, e),
		})
		if err != nil {
			b.releaseRing()
			return false, fmt.Errorf("pass %d: unable to allocate %dx%d output texture: %w", b.index, texW, texH, err)
		}
		if err := device.Clear(tex, common.Vec4f{W: 1}); err != nil {
			tex.Release()
			b.releaseRing()
			return false, fmt.Errorf("pass %d: unable to clear %dx%d output texture: %w", b.index, texW, texH, err)
		}

		b.ring[e] = OutputSpec{
			ImageWidth:  outW,
			ImageHeight: outH,
			TexWidth:    texW,
			TexHeight:   texH,
			Linear:      b.outputFiltered,
			Srgb:        b.props.SrgbFramebuffer,
			Float:       b.props.FloatFramebuffer,
			HalfFloat:   b.props.HalfFloatFramebuffer,
			Texture:     tex,
		}
	}
	return true, nil
}

// publish copies the ring into the pass's grid row.
func (b *passBase) publish(fs *FrameState) {
	row := b.index + 1
	if int(row) >= len(fs.Grid) {
		return
	}
	dst := fs.Grid[row]
	for e := range dst {
		if e < len(b.ring) {
			dst[e] = b.ring[e]
		}
	}
}

// resolveInput picks the texture serving a grid reference, walking toward the
// most recent element when the requested history depth is not yet populated.
func resolveInput(fs *FrameState, passIndex, row, element uint32) (gpu.Texture, error) {
	if int(row) >= len(fs.Grid) {
		return nil, fmt.Errorf("pass %d: no output available for pass reference %d", passIndex, row)
	}
	specs := fs.Grid[row]
	e := int(element)
	if e >= len(specs) {
		e = len(specs) - 1
	}
	for ; e >= 0; e-- {
		if specs[e].Texture != nil {
			return specs[e].Texture, nil
		}
	}
	return nil, fmt.Errorf("pass %d: no output available for pass reference %d", passIndex, row)
}

func (b *passBase) releaseRing() {
	seen := make(map[gpu.Texture]bool)
	for e := range b.ring {
		if t := b.ring[e].Texture; t != nil && !seen[t] {
			seen[t] = true
			t.Release()
		}
		b.ring[e] = OutputSpec{}
	}
}
