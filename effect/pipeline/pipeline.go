// Package pipeline assembles and drives multi-pass shader effect pipelines
// parsed from preset configuration files. A pipeline owns an ordered list of
// passes, the texture spec grid exposing every pass's output history to later
// passes, the shared variable storage, and the static custom texture table.
// Each rendered frame the caller supplies the source texture history and
// invokes Run, which executes every pass whose inputs changed and reuses
// cached outputs for the rest; a trailing pass configured with explicit
// scaling renders straight into the presentation target through RunFinal.
//
// GPU timing is observed through asynchronous queries issued once per pass
// and polled across later frames without blocking, so timing values trail the
// frames that produced them.
package pipeline

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/effect/pass"
	"github.com/Carmen-Shannon/oxy-fx/effect/profiler"
	"github.com/Carmen-Shannon/oxy-fx/effect/varstore"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// PassInfo is one entry of the timing report: the measured GPU time of a pass
// together with a description of its current output.
type PassInfo struct {
	// Timing is the pass GPU time in seconds, from the most recently resolved
	// query cycle. The final report entry carries the whole-pipeline total.
	Timing float32

	// OutputWidth and OutputHeight are the pass output image dimensions.
	OutputWidth  uint32
	OutputHeight uint32

	// OutputLinear, OutputFloat, OutputHalfFloat and OutputSrgb describe how
	// the output is sampled and stored.
	OutputLinear    bool
	OutputFloat     bool
	OutputHalfFloat bool
	OutputSrgb      bool

	// Cached reports whether the pass was served from its output cache on the
	// most recent frame.
	Cached bool
}

// Pipeline is a parsed, ready-to-run shader effect. All methods must be
// called from the render thread; the pipeline holds no internal locks.
type Pipeline interface {
	// Run executes every pass except a trailing final-blit pass against the
	// supplied source frame history.
	//
	// Parameters:
	//   - sourceHistory: newest-first source textures; element 0 is the
	//     current frame. GetMaxPrevFrames reports how much history the
	//     pipeline samples.
	//   - texSize: the physical source texture dimensions
	//   - imageSize: the logical source image dimensions
	//   - viewportSize: the output viewport dimensions
	//
	// Returns:
	//   - error: an error naming the failing pass
	Run(sourceHistory []gpu.Texture, texSize, imageSize, viewportSize common.Vec2i) error

	// RunFinal executes the trailing final-blit pass directly into the
	// presentation target. It is a no-op when ContainsFinalBlit is false.
	//
	// Parameters:
	//   - target: the presentation render target
	//   - dstRect: the destination rectangle inside the target
	//   - viewportSize: the output viewport dimensions
	//
	// Returns:
	//   - error: an error naming the failing pass
	RunFinal(target gpu.Texture, dstRect common.Rectf, viewportSize common.Vec2i) error

	// ContainsFinalBlit reports whether the last pass performs the final
	// upscale itself, letting the caller skip a separate blit.
	//
	// Returns:
	//   - bool: true when RunFinal completes presentation
	ContainsFinalBlit() bool

	// IncrementFrame marks the next Run as presenting a new source frame,
	// invalidating the source input and advancing the frame counters.
	IncrementFrame()

	// GetMaxPrevFrames reports how many previous source frames the pipeline
	// samples in addition to the current one.
	//
	// Returns:
	//   - uint32: the source history depth
	GetMaxPrevFrames() uint32

	// GetFinalOutput retrieves the last buffered pipeline output. When the
	// pipeline contains a final blit this is the input to that blit.
	//
	// Returns:
	//   - gpu.Texture: the output texture, nil before the first Run
	//   - uint32: the output image width
	//   - uint32: the output image height
	GetFinalOutput() (gpu.Texture, uint32, uint32)

	// HasTimingInfo reports whether GPU timing queries are active.
	//
	// Returns:
	//   - bool: true when GetPassTimings returns measurements
	HasTimingInfo() bool

	// GetPassTimings retrieves per-pass timing entries plus a final
	// whole-pipeline entry. Unresolved queries leave the previous timing
	// values unchanged; output descriptions are refreshed on every call.
	//
	// Returns:
	//   - []PassInfo: one entry per pass plus the pipeline total
	GetPassTimings() []PassInfo

	// OnDeviceLost releases device-resident resources after a device loss.
	// Subsequent Run calls recreate them lazily.
	OnDeviceLost()

	// Release frees all resources owned by the pipeline.
	Release()
}

type pipeline struct {
	device  gpu.Device
	storage *varstore.Storage
	passes  []pass.Pass
	fs      pass.FrameState

	customTextures map[string]*pass.CustomTexture

	// maxPrevFrames is the source history depth demanded by PREV references;
	// sourceCounts holds the frame counter offset per history element.
	maxPrevFrames uint32
	sourceCounts  []int32
	sourceFrame   uint32
	sourceLimit   uint32
	sourceLinear  bool
	newFrame      bool

	timing *passTimings
	infos  []PassInfo
	stats  profiler.PassStats
}

var _ Pipeline = &pipeline{}

func (p *pipeline) Run(sourceHistory []gpu.Texture, texSize, imageSize, viewportSize common.Vec2i) error {
	if len(p.passes) == 0 {
		return nil
	}
	if len(sourceHistory) == 0 {
		return errors.New("at least one source texture is required")
	}

	for i := range p.fs.Invalidated {
		p.fs.Invalidated[i] = false
	}
	if p.newFrame {
		p.newFrame = false
		p.fs.Invalidated[0] = true
		p.advanceSourceFrame()
	}

	row0 := p.fs.Grid[0]
	for e := range row0 {
		tex := sourceHistory[len(sourceHistory)-1]
		if e < len(sourceHistory) {
			tex = sourceHistory[e]
		}
		row0[e] = pass.OutputSpec{
			ImageWidth:  uint32(imageSize.X),
			ImageHeight: uint32(imageSize.Y),
			TexWidth:    uint32(texSize.X),
			TexHeight:   uint32(texSize.Y),
			Linear:      p.sourceLinear,
			Texture:     tex,
		}
	}

	p.fs.ViewportWidth = uint32(viewportSize.X)
	p.fs.ViewportHeight = uint32(viewportSize.Y)

	p.timing.beginFrame()

	runCount := len(p.passes)
	if p.ContainsFinalBlit() {
		runCount--
	}
	for i := 0; i < runCount; i++ {
		if err := p.passes[i].Run(&p.fs); err != nil {
			return err
		}
		p.timing.stamp(i + 1)
	}

	if !p.ContainsFinalBlit() {
		p.timing.endFrame()
	}
	if p.stats != nil {
		p.pollTimings()
	}
	return nil
}

func (p *pipeline) RunFinal(target gpu.Texture, dstRect common.Rectf, viewportSize common.Vec2i) error {
	if len(p.passes) == 0 || !p.ContainsFinalBlit() {
		return nil
	}

	p.fs.ViewportWidth = uint32(viewportSize.X)
	p.fs.ViewportHeight = uint32(viewportSize.Y)

	last := len(p.passes) - 1
	if err := p.passes[last].RunFinal(&p.fs, target, dstRect); err != nil {
		return err
	}
	p.fs.Invalidated[last+1] = true

	p.timing.stamp(last + 1)
	p.timing.endFrame()
	if p.stats != nil {
		p.pollTimings()
	}
	return nil
}

func (p *pipeline) ContainsFinalBlit() bool {
	return len(p.passes) > 0 && p.passes[len(p.passes)-1].HasScalingFactor()
}

func (p *pipeline) IncrementFrame() {
	p.newFrame = true
}

func (p *pipeline) GetMaxPrevFrames() uint32 {
	return p.maxPrevFrames
}

func (p *pipeline) GetFinalOutput() (gpu.Texture, uint32, uint32) {
	row := len(p.fs.Grid) - 1
	if p.ContainsFinalBlit() && row > 0 {
		row--
	}
	spec := p.fs.Grid[row][0]
	return spec.Texture, spec.ImageWidth, spec.ImageHeight
}

func (p *pipeline) HasTimingInfo() bool {
	return p.timing != nil
}

func (p *pipeline) GetPassTimings() []PassInfo {
	if p.timing == nil {
		return nil
	}
	p.pollTimings()
	p.refreshPassInfo()
	return p.infos
}

func (p *pipeline) OnDeviceLost() {
	for _, ps := range p.passes {
		ps.OnDeviceLost()
	}
	for e := range p.fs.Grid[0] {
		p.fs.Grid[0][e].Texture = nil
	}
	p.timing.onDeviceLost()
}

func (p *pipeline) Release() {
	for _, ps := range p.passes {
		ps.Release()
	}
	p.passes = nil

	for _, ct := range p.customTextures {
		if ct.Texture != nil {
			ct.Texture.Release()
		}
	}
	p.customTextures = nil

	p.timing.release()
	p.timing = nil
}

// advanceSourceFrame bumps the source frame counter, wrapping past the first
// pass's configured limit, and rewrites the counter of every source history
// element. Element e lags the current frame by e, floored at zero.
func (p *pipeline) advanceSourceFrame() {
	if p.sourceFrame >= p.sourceLimit {
		p.sourceFrame = 0
	} else {
		p.sourceFrame++
	}
	for e, off := range p.sourceCounts {
		count := uint32(0)
		if p.sourceFrame > uint32(e) {
			count = p.sourceFrame - uint32(e)
		}
		p.storage.SetVector(off, common.Vec4f{X: float32(count)})
	}
}

// pollTimings advances the query poll state machine and folds a freshly
// resolved cycle into the timing report and the stats accumulator.
func (p *pipeline) pollTimings() {
	if p.timing == nil {
		return
	}
	timings, resolved := p.timing.poll()
	if !resolved {
		return
	}
	for i, t := range timings {
		p.infos[i].Timing = t
	}
	if p.stats != nil {
		p.refreshPassInfo()
		cached := make([]bool, len(timings))
		for i := range p.passes {
			cached[i] = p.infos[i].Cached
		}
		p.stats.Observe(timings, cached)
	}
}

// refreshPassInfo rewrites the output descriptions in the timing report from
// the current texture spec grid.
func (p *pipeline) refreshPassInfo() {
	for i := range p.passes {
		row := p.fs.Grid[i+1]
		if len(row) == 0 {
			continue
		}
		spec := row[0]
		info := &p.infos[i]
		info.OutputWidth = spec.ImageWidth
		info.OutputHeight = spec.ImageHeight
		info.OutputLinear = spec.Linear
		info.OutputFloat = spec.Float
		info.OutputHalfFloat = spec.HalfFloat
		info.OutputSrgb = spec.Srgb
		info.Cached = !p.fs.Invalidated[i+1]
	}
}
