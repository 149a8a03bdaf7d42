package pipeline

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/Carmen-Shannon/oxy-fx/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passthroughSource = `
struct Params {
    video_size: vec4<f32>,
    texture_size: vec4<f32>,
    output_size: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(1) @binding(0) var IN_texture: texture_2d<f32>;
@group(1) @binding(1) var IN_sampler: sampler;

struct VertexOutput {
    @location(0) uv: vec2<f32>,
    @builtin(position) position: vec4<f32>,
}

@vertex
fn main_vertex(@location(0) pos: vec2<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    return VertexOutput(uv, vec4<f32>(pos, 0.0, 1.0));
}

@fragment
fn main_fragment(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return textureSample(IN_texture, IN_sampler, uv) * params.output_size.z;
}
`

const countingSource = `
struct Params {
    video_size: vec4<f32>,
    texture_size: vec4<f32>,
    output_size: vec4<f32>,
    frame_count: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(1) @binding(0) var IN_texture: texture_2d<f32>;
@group(1) @binding(1) var IN_sampler: sampler;

struct VertexOutput {
    @location(0) uv: vec2<f32>,
    @builtin(position) position: vec4<f32>,
}

@vertex
fn main_vertex(@location(0) pos: vec2<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    return VertexOutput(uv, vec4<f32>(pos, 0.0, 1.0));
}

@fragment
fn main_fragment(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    let color = textureSample(IN_texture, IN_sampler, uv);
    return color * params.frame_count.x / params.video_size.x;
}
`

const origSource = `
struct Params {
    video_size: vec4<f32>,
    texture_size: vec4<f32>,
    output_size: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(1) @binding(0) var ORIG_texture: texture_2d<f32>;
@group(1) @binding(1) var ORIG_sampler: sampler;

struct VertexOutput {
    @location(0) uv: vec2<f32>,
    @builtin(position) position: vec4<f32>,
}

@vertex
fn main_vertex(@location(0) pos: vec2<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    return VertexOutput(uv, vec4<f32>(pos, 0.0, 1.0));
}

@fragment
fn main_fragment(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return textureSample(ORIG_texture, ORIG_sampler, uv) / params.video_size.y;
}
`

const prevSource = `
struct Params {
    video_size: vec4<f32>,
    texture_size: vec4<f32>,
    output_size: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(1) @binding(0) var PREV_texture: texture_2d<f32>;
@group(1) @binding(1) var PREV_sampler: sampler;

struct VertexOutput {
    @location(0) uv: vec2<f32>,
    @builtin(position) position: vec4<f32>,
}

@vertex
fn main_vertex(@location(0) pos: vec2<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    return VertexOutput(uv, vec4<f32>(pos, 0.0, 1.0));
}

@fragment
fn main_fragment(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return textureSample(PREV_texture, PREV_sampler, uv) * params.output_size.w;
}
`

// writeEffect lays out a preset and its shader sources in a temp directory.
func writeEffect(t *testing.T, cfg string, shaders map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range shaders {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	path := filepath.Join(dir, "effect.cfg")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func newSourceTexture(t *testing.T, dev gpu.Device, label string) gpu.Texture {
	t.Helper()
	src, err := dev.CreateTexture(gpu.TextureDesc{Width: 64, Height: 48, Label: label})
	require.NoError(t, err)
	return src
}

func runFrame(t *testing.T, p Pipeline, src []gpu.Texture) {
	t.Helper()
	require.NoError(t, p.Run(src,
		common.Vec2i{X: 64, Y: 48},
		common.Vec2i{X: 64, Y: 48},
		common.Vec2i{X: 1920, Y: 1080},
	))
}

func bufferFloat(t *testing.T, buf *gputest.UniformBuffer, byteOffset int) float32 {
	t.Helper()
	require.LessOrEqual(t, byteOffset+4, len(buf.Data))
	return math.Float32frombits(binary.LittleEndian.Uint32(buf.Data[byteOffset:]))
}

func TestParseCustomEffectModernSinglePass(t *testing.T) {
	dev := gputest.NewModernDevice()
	path := writeEffect(t, "shader0 = pass.wgsl\n", map[string]string{"pass.wgsl": passthroughSource})

	p, err := ParseCustomEffectModern(dev, path)
	require.NoError(t, err)
	defer p.Release()

	assert.False(t, p.ContainsFinalBlit(), "a pass without scaling leaves the final upscale to the caller")
	assert.Zero(t, p.GetMaxPrevFrames())
	assert.False(t, p.HasTimingInfo())

	src := newSourceTexture(t, dev, "source")
	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})

	require.Len(t, dev.Draws, 1)
	out, w, h := p.GetFinalOutput()
	require.NotNil(t, out)
	assert.Equal(t, uint32(64), w)
	assert.Equal(t, uint32(48), h)
}

func TestParseCustomEffectModernErrors(t *testing.T) {
	shaders := map[string]string{"pass.wgsl": passthroughSource}

	tests := []struct {
		name string
		cfg  string
		want string
	}{
		{
			name: "no passes",
			cfg:  "",
			want: "custom shader pipeline contains no passes. There should be at least a shader0= property pointing to a .wgsl file for pass 0.",
		},
		{
			name: "zero shader count",
			cfg:  "shaders = 0\n",
			want: "invalid 'shader' value",
		},
		{
			name: "oversized shader count",
			cfg:  "shaders = 101\n",
			want: "invalid 'shader' value",
		},
		{
			name: "missing indexed entry",
			cfg:  "shaders = 2\nshader0 = pass.wgsl\n",
			want: "missing entry 'shader1'",
		},
		{
			name: "missing shader file",
			cfg:  "shader0 = nope.wgsl\n",
			want: "pass 0 vertex shader: cannot find 'nope.wgsl' or a precompiled version",
		},
		{
			name: "texture without path",
			cfg:  "textures = glow\nshader0 = pass.wgsl\n",
			want: "no path specified for texture: glow",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dev := gputest.NewModernDevice()
			path := writeEffect(t, tc.cfg, shaders)
			_, err := ParseCustomEffectModern(dev, path)
			require.Error(t, err)
			assert.EqualError(t, err, tc.want)
		})
	}
}

func TestPipelineCachesQuietFrames(t *testing.T) {
	dev := gputest.NewModernDevice()
	path := writeEffect(t, "shader0 = a.wgsl\nshader1 = b.wgsl\n", map[string]string{
		"a.wgsl": passthroughSource,
		"b.wgsl": passthroughSource,
	})

	p, err := ParseCustomEffectModern(dev, path)
	require.NoError(t, err)
	defer p.Release()

	src := newSourceTexture(t, dev, "source")

	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})
	assert.Len(t, dev.Draws, 2, "a new frame runs every pass")

	runFrame(t, p, []gpu.Texture{src})
	assert.Len(t, dev.Draws, 3, "a quiet frame re-runs only the always-fresh last pass")

	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})
	assert.Len(t, dev.Draws, 5)
}

func TestPipelineForwardInvalidation(t *testing.T) {
	dev := gputest.NewModernDevice()
	path := writeEffect(t, "shader0 = a.wgsl\nshader1 = b.wgsl\nshader2 = c.wgsl\n", map[string]string{
		"a.wgsl": passthroughSource,
		"b.wgsl": origSource,
		"c.wgsl": passthroughSource,
	})

	p, err := ParseCustomEffectModern(dev, path)
	require.NoError(t, err)
	defer p.Release()

	src := newSourceTexture(t, dev, "source")

	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})
	assert.Len(t, dev.Draws, 3)

	// nothing upstream changed, so only the final pass refreshes
	runFrame(t, p, []gpu.Texture{src})
	assert.Len(t, dev.Draws, 4)

	// a new source frame ripples through the whole chain
	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})
	assert.Len(t, dev.Draws, 7)
}

func TestPipelineFinalBlit(t *testing.T) {
	dev := gputest.NewModernDevice()
	path := writeEffect(t, "shader0 = a.wgsl\nscale_type0 = viewport\n", map[string]string{
		"a.wgsl": passthroughSource,
	})

	p, err := ParseCustomEffectModern(dev, path)
	require.NoError(t, err)
	defer p.Release()

	assert.True(t, p.ContainsFinalBlit())

	src := newSourceTexture(t, dev, "source")
	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})
	assert.Empty(t, dev.Draws, "the trailing blit pass must not run during Run")

	target, err := dev.CreateTexture(gpu.TextureDesc{
		Width: 1920, Height: 1080,
		RenderTarget: true,
		Label:        "backbuffer",
	})
	require.NoError(t, err)

	dstRect := common.Rectf{Left: 160, Top: 90, Right: 1760, Bottom: 990}
	require.NoError(t, p.RunFinal(target, dstRect, common.Vec2i{X: 1920, Y: 1080}))

	require.Len(t, dev.Draws, 1)
	assert.Equal(t, target, dev.Draws[0].Target)
	assert.Equal(t, dstRect, dev.Draws[0].Viewport)
}

func TestPipelineSourceFrameCounter(t *testing.T) {
	dev := gputest.NewModernDevice()
	path := writeEffect(t, "shader0 = a.wgsl\nframe_count_mod0 = 4\n", map[string]string{
		"a.wgsl": countingSource,
	})

	p, err := ParseCustomEffectModern(dev, path)
	require.NoError(t, err)
	defer p.Release()

	src := newSourceTexture(t, dev, "source")
	require.Len(t, dev.Buffers, 1)
	buf := dev.Buffers[0]

	// frame_count sits after the three vec4 size members
	want := []float32{1, 2, 3, 0, 1}
	for _, expected := range want {
		p.IncrementFrame()
		runFrame(t, p, []gpu.Texture{src})
		assert.Equal(t, expected, bufferFloat(t, buf, 48))
	}
}

func TestPipelinePrevHistory(t *testing.T) {
	dev := gputest.NewModernDevice()
	path := writeEffect(t, "shader0 = a.wgsl\n", map[string]string{"a.wgsl": prevSource})

	p, err := ParseCustomEffectModern(dev, path)
	require.NoError(t, err)
	defer p.Release()

	assert.Equal(t, uint32(1), p.GetMaxPrevFrames())

	current := newSourceTexture(t, dev, "current")
	previous := newSourceTexture(t, dev, "previous")
	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{current, previous})

	require.Len(t, dev.Draws, 1)
	require.Len(t, dev.Draws[0].Textures, 1)
	assert.Equal(t, previous, dev.Draws[0].Textures[0].Texture)
}

func TestPipelineCustomTexture(t *testing.T) {
	dev := gputest.NewModernDevice()

	// 2x2 BGRA TARGA so the loader can decode it without a registered format
	tga := []byte{
		0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		2, 0, 2, 0, 32, 0x20,
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}

	glowSource := `
struct Params {
    video_size: vec4<f32>,
    texture_size: vec4<f32>,
    output_size: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(1) @binding(0) var IN_texture: texture_2d<f32>;
@group(1) @binding(1) var IN_sampler: sampler;
@group(1) @binding(2) var glow: texture_2d<f32>;

struct VertexOutput {
    @location(0) uv: vec2<f32>,
    @builtin(position) position: vec4<f32>,
}

@vertex
fn main_vertex(@location(0) pos: vec2<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    return VertexOutput(uv, vec4<f32>(pos, 0.0, 1.0));
}

@fragment
fn main_fragment(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    let base = textureSample(IN_texture, IN_sampler, uv);
    let overlay = textureLoad(glow, vec2<i32>(0, 0), 0);
    return base + overlay * params.output_size.z;
}
`

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "glow.tga"), tga, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.wgsl"), []byte(glowSource), 0o644))
	cfgPath := filepath.Join(dir, "effect.cfg")
	require.NoError(t, os.WriteFile(cfgPath, []byte("textures = glow\nglow = glow.tga\nshader0 = a.wgsl\n"), 0o644))

	p, err := ParseCustomEffectModern(dev, cfgPath)
	require.NoError(t, err)
	defer p.Release()

	src := newSourceTexture(t, dev, "source")
	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})

	require.Len(t, dev.Draws, 1)
	require.Len(t, dev.Draws[0].Textures, 2)
	glow, ok := dev.Draws[0].Textures[1].Texture.(*gputest.Texture)
	require.True(t, ok)
	assert.Equal(t, uint32(2), glow.Desc.Width)
}

func TestPipelineTimings(t *testing.T) {
	dev := gputest.NewModernDevice()
	path := writeEffect(t, "shader0 = a.wgsl\nshader1 = b.wgsl\nshader_show_stats = true\n", map[string]string{
		"a.wgsl": passthroughSource,
		"b.wgsl": passthroughSource,
	})

	p, err := ParseCustomEffectModern(dev, path)
	require.NoError(t, err)
	defer p.Release()

	require.True(t, p.HasTimingInfo())

	src := newSourceTexture(t, dev, "source")
	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})

	infos := p.GetPassTimings()
	require.Len(t, infos, 3)

	// the fake clock advances 100 ticks per timestamp at 10 MHz
	perPass := float32(100) / 10_000_000
	assert.InDelta(t, perPass, infos[0].Timing, 1e-9)
	assert.InDelta(t, perPass, infos[1].Timing, 1e-9)
	assert.InDelta(t, 2*perPass, infos[2].Timing, 1e-9)

	assert.Equal(t, uint32(64), infos[0].OutputWidth)
	assert.False(t, infos[0].Cached)
	assert.False(t, infos[1].Cached)

	// quiet frame: the first pass is served from cache
	runFrame(t, p, []gpu.Texture{src})
	infos = p.GetPassTimings()
	assert.True(t, infos[0].Cached)
	assert.False(t, infos[1].Cached)
}

func TestPipelineTimingsResolveAcrossFrames(t *testing.T) {
	dev := gputest.NewModernDevice(gputest.WithPendingPolls(1))
	path := writeEffect(t, "shader0 = a.wgsl\n", map[string]string{"a.wgsl": passthroughSource})

	p, err := ParseCustomEffectModern(dev, path, WithProfiling(true))
	require.NoError(t, err)
	defer p.Release()

	src := newSourceTexture(t, dev, "source")
	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})

	// every query needs one retry, so the first report keeps the old values
	infos := p.GetPassTimings()
	assert.Zero(t, infos[0].Timing)

	for i := 0; i < 4 && infos[0].Timing == 0; i++ {
		infos = p.GetPassTimings()
	}
	assert.InDelta(t, float32(100)/10_000_000, infos[0].Timing, 1e-9)
}

func TestPipelineDeviceLostRecovers(t *testing.T) {
	dev := gputest.NewModernDevice()
	path := writeEffect(t, "shader0 = a.wgsl\n", map[string]string{"a.wgsl": passthroughSource})

	p, err := ParseCustomEffectModern(dev, path)
	require.NoError(t, err)
	defer p.Release()

	src := newSourceTexture(t, dev, "source")
	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})
	require.Len(t, dev.Draws, 1)

	p.OnDeviceLost()
	runFrame(t, p, []gpu.Texture{src})
	assert.Len(t, dev.Draws, 2, "device loss forces the pass to rebuild and re-run")

	out, _, _ := p.GetFinalOutput()
	assert.NotNil(t, out)
}

func TestParseCustomEffectLegacy(t *testing.T) {
	dev := gputest.NewLegacyDevice()
	path := writeEffect(t, "shader0 = pass.wgsl\n", map[string]string{"pass.wgsl": passthroughSource})

	p, err := ParseCustomEffectLegacy(dev, path)
	require.NoError(t, err)
	defer p.Release()

	src := newSourceTexture(t, dev, "source")
	p.IncrementFrame()
	runFrame(t, p, []gpu.Texture{src})

	require.Len(t, dev.Draws, 1)
	require.NotEmpty(t, dev.Draws[0].VertexConstantsF)
	require.NotEmpty(t, dev.Draws[0].FragmentConstantsF)
}

func TestParseCustomEffectLegacyPrecompile(t *testing.T) {
	dev := gputest.NewLegacyDevice()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pass.wgsl"), []byte(passthroughSource), 0o644))
	cfgPath := filepath.Join(dir, "effect.cfg")
	require.NoError(t, os.WriteFile(cfgPath, []byte("shader0 = pass.wgsl\nshader_precompile = true\n"), 0o644))

	p, err := ParseCustomEffectLegacy(dev, cfgPath)
	require.NoError(t, err)
	p.Release()

	for _, name := range []string{"pass.vs.spv", "pass.ps.spv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "precompilation must write %s", name)
	}

	// a second parse without the flag picks the files up
	require.NoError(t, os.WriteFile(cfgPath, []byte("shader0 = pass.wgsl\n"), 0o644))
	p2, err := ParseCustomEffectLegacy(dev, cfgPath)
	require.NoError(t, err)
	p2.Release()
}
