package gpu

import (
	"github.com/Carmen-Shannon/oxy-fx/common"
)

// Texture is an opaque handle to a device texture.
type Texture interface {
	// Size retrieves the texture dimensions in pixels.
	//
	// Returns:
	//   - common.Vec2i: width and height
	Size() common.Vec2i

	// Format retrieves the texture's pixel format.
	//
	// Returns:
	//   - TextureFormat: the format the texture was created with
	Format() TextureFormat

	// Release frees the device resources backing this texture. The handle must
	// not be used afterward.
	Release()
}

// Sampler is an opaque handle to a device sampler.
type Sampler interface {
	// Release frees the device resources backing this sampler.
	Release()
}

// Program is an opaque handle to a compiled device shader stage.
type Program interface {
	// Release frees the device resources backing this program.
	Release()
}

// UniformBuffer is an opaque handle to a device constant buffer.
type UniformBuffer interface {
	// Size retrieves the buffer capacity in bytes.
	//
	// Returns:
	//   - uint32: the capacity the buffer was created with
	Size() uint32

	// Release frees the device resources backing this buffer.
	Release()
}

// QuadVertex is one corner of a pass quad. Positions are in clip space and the
// two texture coordinate sets address the pass input and its physical texture
// respectively.
type QuadVertex struct {
	X, Y   float32
	U0, V0 float32
	U1, V1 float32
}

// QuadGeometry is the four-corner strip every pass draws.
type QuadGeometry [4]QuadVertex

// TextureBinding assigns a texture to a shader slot.
type TextureBinding struct {
	Slot    uint32
	Texture Texture
}

// SamplerBinding assigns a sampler to a shader slot.
type SamplerBinding struct {
	Slot    uint32
	Sampler Sampler
}

// UniformBinding assigns a constant buffer to a shader slot.
type UniformBinding struct {
	Slot   uint32
	Buffer UniformBuffer
}

// ShaderCode carries one compiled stage in both forms a modern device may
// consume: generated bytecode for word-stream APIs and the flattened source
// for devices that compile source modules directly.
type ShaderCode struct {
	// SPIRV is the generated bytecode stream.
	SPIRV []byte

	// WGSL is the flattened source the bytecode was generated from.
	WGSL string
}

// Device is the core service shared by both device generations.
type Device interface {
	// Caps retrieves the device limits and feature support.
	//
	// Returns:
	//   - Caps: the device capability description
	Caps() Caps

	// CreateTexture allocates a texture.
	//
	// Parameters:
	//   - desc: the texture description
	//
	// Returns:
	//   - Texture: the new texture handle
	//   - error: an error if the description exceeds device limits or
	//     allocation fails
	CreateTexture(desc TextureDesc) (Texture, error)

	// UploadTexture replaces the full contents of a texture with staged BGRA
	// pixel data. The staging dimensions must match the texture.
	//
	// Parameters:
	//   - tex: the destination texture
	//   - data: top-down BGRA pixel rows
	//
	// Returns:
	//   - error: an error if the upload fails or dimensions mismatch
	UploadTexture(tex Texture, data common.TextureStagingData) error

	// CreateSampler allocates a sampler.
	//
	// Parameters:
	//   - desc: the sampler description
	//
	// Returns:
	//   - Sampler: the new sampler handle
	//   - error: an error if allocation fails
	CreateSampler(desc SamplerDesc) (Sampler, error)

	// Clear fills a render target texture with a solid color.
	//
	// Parameters:
	//   - target: the texture to clear
	//   - color: the fill color
	//
	// Returns:
	//   - error: an error if the texture is not a render target
	Clear(target Texture, color common.Vec4f) error

	// NewTimestampQuery allocates a GPU timestamp query.
	//
	// Returns:
	//   - TimestampQuery: the query handle
	//   - error: an error if the device does not support timing queries
	NewTimestampQuery() (TimestampQuery, error)

	// NewDisjointQuery allocates a GPU frequency/disjoint query bracketing a
	// frame's timestamp queries.
	//
	// Returns:
	//   - DisjointQuery: the query handle
	//   - error: an error if the device does not support timing queries
	NewDisjointQuery() (DisjointQuery, error)
}

// DrawOp is one fullscreen pass draw on a modern device. All resources are
// bound by slot as reported by shader reflection.
type DrawOp struct {
	// Target is the render target. It must have been created with
	// RenderTarget set, or be the device's presentation target.
	Target Texture

	// Viewport bounds the draw inside the target, in pixels.
	Viewport common.Rectf

	// Quad carries the corner positions and texture coordinates.
	Quad QuadGeometry

	// VertexProgram and FragmentProgram are the pass stages.
	VertexProgram   Program
	FragmentProgram Program

	// Uniforms binds constant buffers by slot, shared across both stages.
	// Empty when neither stage declares constants.
	Uniforms []UniformBinding

	// Textures and Samplers bind fragment stage resources by slot.
	Textures []TextureBinding
	Samplers []SamplerBinding

	// Label names the draw for debugging.
	Label string
}

// ModernDevice is the reflection-driven device generation.
type ModernDevice interface {
	Device

	// CreateVertexProgram builds a vertex stage from compiled shader code.
	//
	// Parameters:
	//   - code: the compiled stage, bytecode plus source
	//   - entryPoint: the entry point name inside the module
	//   - label: a debug label
	//
	// Returns:
	//   - Program: the stage handle
	//   - error: an error if the device rejects the code
	CreateVertexProgram(code ShaderCode, entryPoint, label string) (Program, error)

	// CreateFragmentProgram builds a fragment stage from compiled shader code.
	//
	// Parameters:
	//   - code: the compiled stage, bytecode plus source
	//   - entryPoint: the entry point name inside the module
	//   - label: a debug label
	//
	// Returns:
	//   - Program: the stage handle
	//   - error: an error if the device rejects the code
	CreateFragmentProgram(code ShaderCode, entryPoint, label string) (Program, error)

	// CreateUniformBuffer allocates a constant buffer.
	//
	// Parameters:
	//   - size: capacity in bytes
	//   - label: a debug label
	//
	// Returns:
	//   - UniformBuffer: the buffer handle
	//   - error: an error if allocation fails
	CreateUniformBuffer(size uint32, label string) (UniformBuffer, error)

	// UpdateUniformBuffer replaces a constant buffer's contents. Data shorter
	// than the buffer leaves the tail untouched.
	//
	// Parameters:
	//   - buf: the buffer to update
	//   - data: the new contents
	//
	// Returns:
	//   - error: an error if data exceeds the buffer capacity
	UpdateUniformBuffer(buf UniformBuffer, data []byte) error

	// Draw executes one pass draw.
	//
	// Parameters:
	//   - op: the draw description
	//
	// Returns:
	//   - error: an error if any bound resource is invalid
	Draw(op DrawOp) error
}

// RenderStateID enumerates legacy whole-pipeline states.
type RenderStateID uint32

const (
	// RenderSrgbWrite enables sRGB encoding on writes to the render target.
	RenderSrgbWrite RenderStateID = iota
)

// SamplerStateID enumerates legacy per-stage sampler states.
type SamplerStateID uint32

const (
	SamplerAddressU SamplerStateID = iota
	SamplerAddressV
	SamplerMagFilter
	SamplerMinFilter
	SamplerMipFilter
	SamplerMipLODBias
	SamplerSrgbDecode
	SamplerBorderColor
)

// Legacy sampler state values. Filter values apply to the filter states and
// address values to the address states.
const (
	FilterNone   uint32 = 0
	FilterPoint  uint32 = 1
	FilterLinear uint32 = 2

	AddressClamp  uint32 = 0
	AddressBorder uint32 = 1
)

// RenderState is one legacy render state assignment.
type RenderState struct {
	State RenderStateID
	Value uint32
}

// SamplerState is one legacy sampler state assignment on a texture stage.
type SamplerState struct {
	Stage uint32
	State SamplerStateID
	Value uint32
}

// StageTexture assigns a texture to a legacy stage.
type StageTexture struct {
	Stage   uint32
	Texture Texture
}

// ConstantSpanF is a contiguous float register upload. Each register holds
// four floats.
type ConstantSpanF struct {
	StartRegister uint32
	Data          []float32
}

// ConstantSpanI is a contiguous integer register upload. Each register holds
// four ints.
type ConstantSpanI struct {
	StartRegister uint32
	Data          []int32
}

// ConstantSpanB is a contiguous boolean register upload, one word per
// register.
type ConstantSpanB struct {
	StartRegister uint32
	Data          []uint32
}

// LegacyDrawOp is one fullscreen pass draw on a legacy device: shader pair,
// register uploads, state lists, stage textures, and the quad.
type LegacyDrawOp struct {
	Target   Texture
	Viewport common.Rectf
	Quad     QuadGeometry

	VertexProgram   Program
	FragmentProgram Program

	VertexConstantsF []ConstantSpanF
	VertexConstantsI []ConstantSpanI
	VertexConstantsB []ConstantSpanB

	FragmentConstantsF []ConstantSpanF
	FragmentConstantsI []ConstantSpanI
	FragmentConstantsB []ConstantSpanB

	RenderStates  []RenderState
	SamplerStates []SamplerState
	Textures      []StageTexture

	Label string
}

// LegacyDevice is the register-file device generation.
type LegacyDevice interface {
	Device

	// CreateVertexProgram builds a vertex stage from a compiled word stream.
	// Profile and caps validation happens before the words reach the device.
	//
	// Parameters:
	//   - words: the compiled shader words
	//
	// Returns:
	//   - Program: the stage handle
	//   - error: an error if the device rejects the words
	CreateVertexProgram(words []uint32) (Program, error)

	// CreateFragmentProgram builds a pixel stage from a compiled word stream.
	// Profile and caps validation happens before the words reach the device.
	//
	// Parameters:
	//   - words: the compiled shader words
	//
	// Returns:
	//   - Program: the stage handle
	//   - error: an error if the device rejects the words
	CreateFragmentProgram(words []uint32) (Program, error)

	// Draw executes one pass draw.
	//
	// Parameters:
	//   - op: the draw description
	//
	// Returns:
	//   - error: an error if any bound resource is invalid
	Draw(op LegacyDrawOp) error
}
