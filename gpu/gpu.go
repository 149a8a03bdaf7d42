// Package gpu defines the opaque device service consumed by the effect
// pipeline. It abstracts two device generations behind small interfaces: a
// modern generation driven by shader reflection, uniform buffers, and bind
// lists, and a legacy generation driven by register-file constant uploads and
// explicit state lists. Implementations live in subpackages; gpu/wgpudev is
// the real WebGPU-backed modern device and gpu/gputest provides deterministic
// in-memory fakes for both generations.
package gpu

// FeatureLevel describes the hardware tier of a modern device, used to select
// default shader profiles when the config does not name one.
type FeatureLevel uint32

const (
	// FeatureLevel9_1 is the lowest supported modern tier.
	FeatureLevel9_1 FeatureLevel = 0x9100

	// FeatureLevel9_3 adds enough instruction room for larger effect passes.
	FeatureLevel9_3 FeatureLevel = 0x9300

	// FeatureLevel10_0 supports the full 4_0 shader profile.
	FeatureLevel10_0 FeatureLevel = 0xA000

	// FeatureLevel11_0 supports the full 5_0 shader profile.
	FeatureLevel11_0 FeatureLevel = 0xB000
)

// Legacy shader version words. Legacy bytecode carries a packed version as its
// first word; the high half selects the stage and the low half encodes
// major.minor.
const (
	VertexVersionBase uint32 = 0xFFFE0000
	PixelVersionBase  uint32 = 0xFFFF0000
)

// VertexVersion packs a legacy vertex shader version word.
//
// Parameters:
//   - major: the major shader version
//   - minor: the minor shader version
//
// Returns:
//   - uint32: the packed version word
func VertexVersion(major, minor uint32) uint32 {
	return VertexVersionBase | major<<8 | minor
}

// PixelVersion packs a legacy pixel shader version word.
//
// Parameters:
//   - major: the major shader version
//   - minor: the minor shader version
//
// Returns:
//   - uint32: the packed version word
func PixelVersion(major, minor uint32) uint32 {
	return PixelVersionBase | major<<8 | minor
}

// Caps describes the device limits and optional features the pipeline adapts
// to. Legacy devices populate the shader version words and register counts;
// modern devices populate the feature level.
type Caps struct {
	// MaxTextureWidth and MaxTextureHeight are the largest texture dimensions
	// the device accepts.
	MaxTextureWidth  uint32
	MaxTextureHeight uint32

	// NonPow2 reports whether textures may have non-power-of-two dimensions.
	NonPow2 bool

	// BorderSampling reports whether samplers support border addressing.
	// Devices without it fall back to clamp addressing.
	BorderSampling bool

	// RGBA32FRenderable reports whether full-float render targets are
	// supported; without it float framebuffers degrade to half-float.
	RGBA32FRenderable bool

	// MinPrecisionVS and MinPrecisionPS report relaxed-precision support per
	// stage on modern devices.
	MinPrecisionVS bool
	MinPrecisionPS bool

	// MaxVertexVersion and MaxPixelVersion are the highest legacy shader
	// version words the device executes.
	MaxVertexVersion uint32
	MaxPixelVersion  uint32

	// PredicationSupported and TempRegisterCount refine legacy pixel profile
	// selection between the 2_0 flavor targets.
	PredicationSupported bool
	TempRegisterCount    uint32

	// FeatureLevel is the modern device tier.
	FeatureLevel FeatureLevel
}

// TextureFormat enumerates the pixel formats the pipeline allocates.
type TextureFormat uint8

const (
	// FormatBGRA8 is the default 8-bit format.
	FormatBGRA8 TextureFormat = iota

	// FormatBGRA8Srgb is the 8-bit format with sRGB sampling and writes.
	FormatBGRA8Srgb

	// FormatRGBA16F is the half-float framebuffer format.
	FormatRGBA16F

	// FormatRGBA32F is the full-float framebuffer format.
	FormatRGBA32F
)

// String returns the format name used in labels and error messages.
//
// Returns:
//   - string: the format name
func (f TextureFormat) String() string {
	switch f {
	case FormatBGRA8:
		return "bgra8"
	case FormatBGRA8Srgb:
		return "bgra8-srgb"
	case FormatRGBA16F:
		return "rgba16f"
	case FormatRGBA32F:
		return "rgba32f"
	default:
		return "unknown"
	}
}

// TextureDesc describes a texture allocation.
type TextureDesc struct {
	Width  uint32
	Height uint32
	Format TextureFormat

	// RenderTarget requests a texture that can be bound as a pass output.
	RenderTarget bool

	// Label names the texture for debugging.
	Label string
}

// SamplerDesc describes a sampler allocation.
type SamplerDesc struct {
	// Linear selects bilinear filtering; false selects point sampling.
	Linear bool

	// Border selects border addressing when the device supports it; false
	// selects clamp-to-edge.
	Border bool
}
