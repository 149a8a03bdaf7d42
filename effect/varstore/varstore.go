// Package varstore provides the shared variable storage for a shader effect
// pipeline: a flat float scratch buffer holding the live values of the semantic
// shader variables (sizes, frame counters, projection matrix), addressed by
// (kind, pass, history element). Shaders do not read the scratch buffer
// directly; construction-time Request calls produce gather descriptors that map
// scratch offsets onto each shader's own constant layout, and the per-frame
// Gather calls perform the copies immediately before a shader runs.
package varstore

import (
	"math"

	"github.com/Carmen-Shannon/oxy-fx/common"
)

// Kind identifies one of the semantic shader variables.
type Kind uint8

const (
	// KindModelViewProj is the 4x4 projection matrix applied to the pass quad.
	KindModelViewProj Kind = iota

	// KindVideoSize is the logical image size of the pass input, in pixels.
	KindVideoSize

	// KindTextureSize is the physical texture size of the pass input.
	KindTextureSize

	// KindOutputSize is the render target size of the pass.
	KindOutputSize

	// KindFrameCount is the pass frame counter; the only kind where the
	// history element index is significant.
	KindFrameCount

	// KindFrameDirection is +1 or -1 depending on playback direction.
	KindFrameDirection
)

// Address identifies one allocated variable slot.
type Address struct {
	Kind         Kind
	PassIndex    uint32
	ElementIndex uint32
}

// ScalarGather copies a single 32-bit lane from the scratch buffer into a
// shader constant image. Offsets are in bytes.
type ScalarGather struct {
	DstOffset uint32
	SrcOffset uint32
}

// VecGather copies four 32-bit lanes into a contiguous destination vector.
// Offsets are in bytes; the four source lanes may be scattered.
type VecGather struct {
	DstOffset uint32
	Src       [4]uint32
}

// MatrixGather copies a 4x4 matrix as four row vectors.
type MatrixGather struct {
	Vec [4]VecGather
}

// PassParamOffsets caches the scratch offsets of the per-pass size and
// direction variables. An offset of -1 means the variable was never bound by
// any shader and writes to it are dropped.
type PassParamOffsets struct {
	VideoSize      int32
	TextureSize    int32
	OutputSize     int32
	FrameDirection int32
}

// FrameParamOffsets caches the scratch offset of one history element's frame
// counter.
type FrameParamOffsets struct {
	FrameCount int32
}

// zeroOffset addresses the permanently-zero sentinel vector reserved at the
// start of the scratch buffer. Matrix rows synthesized from vector variables
// alias it instead of allocating storage.
const zeroOffset uint32 = 0

// Storage is the shared variable scratch buffer of one pipeline instance. It is
// owned by the pipeline, passed by reference to every pass, and rebuilt when
// the pipeline is reparsed. Not safe for concurrent use; callers drive it
// from the render thread only.
type Storage struct {
	data    []float32
	offsets map[Address]uint32
}

// New creates an empty Storage with the zero sentinel reserved.
//
// Returns:
//   - *Storage: the new storage instance
func New() *Storage {
	return &Storage{
		data:    make([]float32, 4),
		offsets: make(map[Address]uint32),
	}
}

// AllocateOffset returns the byte offset of the variable at addr, allocating it
// on first request. Allocation is idempotent: the backing buffer grows by
// exactly the variable's size (4 floats, 16 for the projection matrix) the
// first time a unique address is requested and never again.
//
// Parameters:
//   - addr: the variable address
//
// Returns:
//   - uint32: the byte offset of the variable inside the scratch buffer
func (s *Storage) AllocateOffset(addr Address) uint32 {
	if off, ok := s.offsets[addr]; ok {
		return off
	}

	size := 4
	if addr.Kind == KindModelViewProj {
		size = 16
	}

	off := uint32(len(s.data) * 4)
	s.data = append(s.data, make([]float32, size)...)
	s.offsets[addr] = off
	return off
}

// Offset looks up a variable's byte offset without allocating. The element
// index is ignored for every kind except KindFrameCount.
//
// Parameters:
//   - addr: the variable address
//
// Returns:
//   - int32: the byte offset, or -1 when the variable was never allocated
func (s *Storage) Offset(addr Address) int32 {
	if addr.Kind != KindFrameCount {
		addr.ElementIndex = 0
	}
	if off, ok := s.offsets[addr]; ok {
		return int32(off)
	}
	return -1
}

// RequestVector allocates the variable at addr and returns a gather placing its
// four lanes at dstOffset in a shader constant image.
//
// Parameters:
//   - dstOffset: destination byte offset inside the shader's constant image
//   - addr: the variable address
//
// Returns:
//   - VecGather: the gather descriptor
func (s *Storage) RequestVector(dstOffset uint32, addr Address) VecGather {
	off := s.AllocateOffset(addr)
	return VecGather{
		DstOffset: dstOffset,
		Src:       [4]uint32{off, off + 4, off + 8, off + 12},
	}
}

// RequestRowMajorMatrix allocates the variable at addr and returns gathers for
// a 4x4 row-major matrix at dstOffset. For any kind other than the projection
// matrix the variable is a vector coerced into the first row, and rows 1-3
// alias the zero sentinel rather than allocating storage.
//
// Parameters:
//   - dstOffset: destination byte offset inside the shader's constant image
//   - addr: the variable address
//
// Returns:
//   - MatrixGather: the four row gathers
func (s *Storage) RequestRowMajorMatrix(dstOffset uint32, addr Address) MatrixGather {
	var gather MatrixGather

	if addr.Kind != KindModelViewProj {
		gather.Vec[0] = s.RequestVector(dstOffset, addr)
		for i := 1; i < 4; i++ {
			gather.Vec[i] = VecGather{
				DstOffset: dstOffset + uint32(16*i),
				Src:       [4]uint32{zeroOffset, zeroOffset, zeroOffset, zeroOffset},
			}
		}
		return gather
	}

	off := s.AllocateOffset(addr)
	for i := uint32(0); i < 4; i++ {
		gather.Vec[i] = VecGather{
			DstOffset: dstOffset + 16*i,
			Src: [4]uint32{
				off + 4*(i*4+0),
				off + 4*(i*4+1),
				off + 4*(i*4+2),
				off + 4*(i*4+3),
			},
		}
	}
	return gather
}

// RequestColumnMajorMatrix is RequestRowMajorMatrix with the source lanes
// transposed, for shaders declaring column-major constant layouts.
//
// Parameters:
//   - dstOffset: destination byte offset inside the shader's constant image
//   - addr: the variable address
//
// Returns:
//   - MatrixGather: the four column gathers
func (s *Storage) RequestColumnMajorMatrix(dstOffset uint32, addr Address) MatrixGather {
	rm := s.RequestRowMajorMatrix(dstOffset, addr)

	var gather MatrixGather
	for i := uint32(0); i < 4; i++ {
		gather.Vec[i] = VecGather{
			DstOffset: dstOffset + 16*i,
			Src: [4]uint32{
				rm.Vec[0].Src[i],
				rm.Vec[1].Src[i],
				rm.Vec[2].Src[i],
				rm.Vec[3].Src[i],
			},
		}
	}
	return gather
}

// ResolvePassParams looks up the per-pass size and direction variable offsets.
//
// Parameters:
//   - passIndex: the grid row whose parameters are being resolved
//
// Returns:
//   - PassParamOffsets: offsets, -1 for unbound variables
func (s *Storage) ResolvePassParams(passIndex uint32) PassParamOffsets {
	return PassParamOffsets{
		VideoSize:      s.Offset(Address{KindVideoSize, passIndex, 0}),
		TextureSize:    s.Offset(Address{KindTextureSize, passIndex, 0}),
		OutputSize:     s.Offset(Address{KindOutputSize, passIndex, 0}),
		FrameDirection: s.Offset(Address{KindFrameDirection, passIndex, 0}),
	}
}

// ResolveFrameParams looks up one history element's frame counter offset.
//
// Parameters:
//   - passIndex: the grid row
//   - frameIndex: the history element
//
// Returns:
//   - FrameParamOffsets: the offset, -1 when unbound
func (s *Storage) ResolveFrameParams(passIndex, frameIndex uint32) FrameParamOffsets {
	return FrameParamOffsets{
		FrameCount: s.Offset(Address{KindFrameCount, passIndex, frameIndex}),
	}
}

// SetVector writes a vector value at a resolved offset. Negative offsets
// (unbound variables) are ignored.
//
// Parameters:
//   - offset: byte offset from Offset/ResolvePassParams, or -1
//   - v: the value to store
func (s *Storage) SetVector(offset int32, v common.Vec4f) {
	if offset < 0 {
		return
	}
	i := offset / 4
	s.data[i] = v.X
	s.data[i+1] = v.Y
	s.data[i+2] = v.Z
	s.data[i+3] = v.W
}

// SetMatrix writes a 4x4 matrix value at a resolved offset. Negative offsets
// are ignored.
//
// Parameters:
//   - offset: byte offset of the matrix variable, or -1
//   - m: the 16 matrix values in storage order
func (s *Storage) SetMatrix(offset int32, m [16]float32) {
	if offset < 0 {
		return
	}
	copy(s.data[offset/4:], m[:])
}

// GatherBools copies scalar variables into dst as 0/1 words, one per gather.
//
// Parameters:
//   - dst: the shader constant image
//   - gathers: the scalar gather list built at construction
func (s *Storage) GatherBools(dst []uint32, gathers []ScalarGather) {
	for _, g := range gathers {
		v := uint32(0)
		if s.data[g.SrcOffset/4] != 0 {
			v = 1
		}
		dst[g.DstOffset/4] = v
	}
}

// GatherFloats copies scalar variables into dst bit-for-bit.
//
// Parameters:
//   - dst: the shader constant image
//   - gathers: the scalar gather list built at construction
func (s *Storage) GatherFloats(dst []uint32, gathers []ScalarGather) {
	for _, g := range gathers {
		dst[g.DstOffset/4] = math.Float32bits(s.data[g.SrcOffset/4])
	}
}

// GatherVecs copies four-lane variables into dst bit-for-bit.
//
// Parameters:
//   - dst: the shader constant image
//   - gathers: the vector gather list built at construction
func (s *Storage) GatherVecs(dst []uint32, gathers []VecGather) {
	for _, g := range gathers {
		di := g.DstOffset / 4
		for i, src := range g.Src {
			dst[di+uint32(i)] = math.Float32bits(s.data[src/4])
		}
	}
}

// Len reports the current scratch buffer length in floats, including the zero
// sentinel.
//
// Returns:
//   - int: the backing buffer length in floats
func (s *Storage) Len() int {
	return len(s.data)
}
