package varstore

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateOffsetIdempotent(t *testing.T) {
	s := New()
	require.Equal(t, 4, s.Len(), "new storage carries only the zero sentinel")

	addr := Address{KindVideoSize, 2, 0}
	first := s.AllocateOffset(addr)
	assert.Equal(t, uint32(16), first, "first allocation lands after the sentinel")
	assert.Equal(t, 8, s.Len())

	second := s.AllocateOffset(addr)
	assert.Equal(t, first, second)
	assert.Equal(t, 8, s.Len(), "repeat allocation must not grow the buffer")

	mvp := s.AllocateOffset(Address{KindModelViewProj, 0, 0})
	assert.Equal(t, uint32(32), mvp)
	assert.Equal(t, 24, s.Len(), "matrix variables get 16 floats")
}

func TestOffsetLookup(t *testing.T) {
	s := New()
	assert.Equal(t, int32(-1), s.Offset(Address{KindOutputSize, 0, 0}))

	off := s.AllocateOffset(Address{KindOutputSize, 1, 0})
	assert.Equal(t, int32(off), s.Offset(Address{KindOutputSize, 1, 0}))

	// Element indices collapse to 0 for everything except the frame counter.
	assert.Equal(t, int32(off), s.Offset(Address{KindOutputSize, 1, 3}))

	fc0 := s.AllocateOffset(Address{KindFrameCount, 1, 0})
	fc2 := s.AllocateOffset(Address{KindFrameCount, 1, 2})
	assert.NotEqual(t, fc0, fc2)
	assert.Equal(t, int32(fc2), s.Offset(Address{KindFrameCount, 1, 2}))
}

func TestRequestVector(t *testing.T) {
	s := New()
	g := s.RequestVector(48, Address{KindTextureSize, 0, 0})
	assert.Equal(t, uint32(48), g.DstOffset)
	assert.Equal(t, [4]uint32{16, 20, 24, 28}, g.Src)

	again := s.RequestVector(96, Address{KindTextureSize, 0, 0})
	assert.Equal(t, g.Src, again.Src, "same variable feeds both destinations")
}

func TestRequestRowMajorMatrixAliasesZeroRows(t *testing.T) {
	s := New()
	g := s.RequestRowMajorMatrix(0, Address{KindVideoSize, 0, 0})

	assert.Equal(t, [4]uint32{16, 20, 24, 28}, g.Vec[0].Src)
	for i := 1; i < 4; i++ {
		assert.Equal(t, uint32(16*i), g.Vec[i].DstOffset)
		assert.Equal(t, [4]uint32{0, 0, 0, 0}, g.Vec[i].Src,
			"vector variables coerced to matrices pad with the zero sentinel")
	}
	assert.Equal(t, 8, s.Len(), "zero rows must not allocate storage")
}

func TestRequestRowMajorMatrixMVP(t *testing.T) {
	s := New()
	g := s.RequestRowMajorMatrix(64, Address{KindModelViewProj, 0, 0})

	for i := uint32(0); i < 4; i++ {
		assert.Equal(t, 64+16*i, g.Vec[i].DstOffset)
		for j := uint32(0); j < 4; j++ {
			assert.Equal(t, 16+4*(i*4+j), g.Vec[i].Src[j])
		}
	}
}

func TestRequestColumnMajorMatrixTransposes(t *testing.T) {
	s := New()
	rm := s.RequestRowMajorMatrix(0, Address{KindModelViewProj, 0, 0})
	cm := s.RequestColumnMajorMatrix(0, Address{KindModelViewProj, 0, 0})

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.Equal(t, rm.Vec[j].Src[i], cm.Vec[i].Src[j])
		}
	}
}

func TestSetAndGather(t *testing.T) {
	s := New()
	vecAddr := Address{KindVideoSize, 0, 0}
	g := s.RequestVector(0, vecAddr)

	s.SetVector(s.Offset(vecAddr), common.Vec4f{X: 640, Y: 480, Z: 0, W: 1})

	dst := make([]uint32, 4)
	s.GatherVecs(dst, []VecGather{g})
	assert.Equal(t, float32(640), math.Float32frombits(dst[0]))
	assert.Equal(t, float32(480), math.Float32frombits(dst[1]))
	assert.Equal(t, float32(0), math.Float32frombits(dst[2]))
	assert.Equal(t, float32(1), math.Float32frombits(dst[3]))
}

func TestSetIgnoresUnboundOffsets(t *testing.T) {
	s := New()
	assert.NotPanics(t, func() {
		s.SetVector(-1, common.Vec4f{X: 1})
		s.SetMatrix(-1, [16]float32{1})
	})
	assert.Equal(t, 4, s.Len())
}

func TestSetMatrix(t *testing.T) {
	s := New()
	addr := Address{KindModelViewProj, 0, 0}
	g := s.RequestRowMajorMatrix(0, addr)

	var m [16]float32
	for i := range m {
		m[i] = float32(i + 1)
	}
	s.SetMatrix(s.Offset(addr), m)

	dst := make([]uint32, 16)
	s.GatherVecs(dst, g.Vec[:])
	for i := range m {
		assert.Equal(t, m[i], math.Float32frombits(dst[uint32(i)]))
	}
}

func TestGatherScalars(t *testing.T) {
	s := New()
	addr := Address{KindFrameDirection, 3, 0}
	off := s.AllocateOffset(addr)
	s.SetVector(int32(off), common.Vec4f{X: -1, Y: 0, Z: 2.5, W: 0})

	bools := []ScalarGather{
		{DstOffset: 0, SrcOffset: off},
		{DstOffset: 4, SrcOffset: off + 4},
	}
	dst := []uint32{99, 99, 99}
	s.GatherBools(dst, bools)
	assert.Equal(t, uint32(1), dst[0], "nonzero gathers as true")
	assert.Equal(t, uint32(0), dst[1], "zero gathers as false")
	assert.Equal(t, uint32(99), dst[2], "untouched lanes keep their value")

	floats := []ScalarGather{{DstOffset: 8, SrcOffset: off + 8}}
	s.GatherFloats(dst, floats)
	assert.Equal(t, float32(2.5), math.Float32frombits(dst[2]))
}

func TestResolveParamOffsets(t *testing.T) {
	s := New()
	s.RequestVector(0, Address{KindVideoSize, 1, 0})
	s.RequestVector(16, Address{KindFrameCount, 1, 2})

	pass := s.ResolvePassParams(1)
	assert.Equal(t, int32(16), pass.VideoSize)
	assert.Equal(t, int32(-1), pass.TextureSize)
	assert.Equal(t, int32(-1), pass.OutputSize)
	assert.Equal(t, int32(-1), pass.FrameDirection)

	assert.Equal(t, int32(32), s.ResolveFrameParams(1, 2).FrameCount)
	assert.Equal(t, int32(-1), s.ResolveFrameParams(1, 0).FrameCount)
	assert.Equal(t, int32(-1), s.ResolveFrameParams(0, 2).FrameCount)
}
