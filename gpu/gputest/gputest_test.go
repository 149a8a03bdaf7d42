package gputest

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spirvWords(n int) []uint32 {
	words := make([]uint32, n)
	words[0] = bytecodeMagic
	words[1] = 0x00010300
	return words
}

func TestCreateTextureLimits(t *testing.T) {
	d := NewModernDevice(WithCaps(gpu.Caps{MaxTextureWidth: 256, MaxTextureHeight: 256, NonPow2: true}))

	_, err := d.CreateTexture(gpu.TextureDesc{Width: 512, Height: 64, Label: "wide"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds device limits")

	tex, err := d.CreateTexture(gpu.TextureDesc{Width: 256, Height: 256})
	require.NoError(t, err)
	assert.Equal(t, common.Vec2i{X: 256, Y: 256}, tex.Size())
	assert.Len(t, d.Textures, 1)
}

func TestCreateTexturePow2Enforcement(t *testing.T) {
	d := NewLegacyDevice(WithCaps(gpu.Caps{MaxTextureWidth: 1024, MaxTextureHeight: 1024}))

	_, err := d.CreateTexture(gpu.TextureDesc{Width: 100, Height: 64})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power-of-two")

	_, err = d.CreateTexture(gpu.TextureDesc{Width: 128, Height: 64})
	require.NoError(t, err)
}

func TestUploadTextureValidatesSize(t *testing.T) {
	d := NewModernDevice()
	tex, err := d.CreateTexture(gpu.TextureDesc{Width: 2, Height: 2})
	require.NoError(t, err)

	err = d.UploadTexture(tex, common.TextureStagingData{Pixels: make([]byte, 16), Width: 4, Height: 1})
	require.Error(t, err)

	require.NoError(t, d.UploadTexture(tex, common.TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2}))
	assert.Equal(t, 1, tex.(*Texture).Uploads)
}

func TestClearRequiresRenderTarget(t *testing.T) {
	d := NewModernDevice()
	plain, err := d.CreateTexture(gpu.TextureDesc{Width: 4, Height: 4})
	require.NoError(t, err)
	rt, err := d.CreateTexture(gpu.TextureDesc{Width: 4, Height: 4, RenderTarget: true})
	require.NoError(t, err)

	require.Error(t, d.Clear(plain, common.Vec4f{}))
	require.NoError(t, d.Clear(rt, common.Vec4f{X: 1}))
	require.Len(t, d.Clears, 1)
	assert.Equal(t, float32(1), d.Clears[0].Color.X)
}

func TestModernDrawValidation(t *testing.T) {
	d := NewModernDevice()
	rt, err := d.CreateTexture(gpu.TextureDesc{Width: 4, Height: 4, RenderTarget: true})
	require.NoError(t, err)

	code := gpu.ShaderCode{SPIRV: common.SliceToBytes(spirvWords(8))}
	vp, err := d.CreateVertexProgram(code, "main_vertex", "vs")
	require.NoError(t, err)
	fp, err := d.CreateFragmentProgram(code, "main_fragment", "ps")
	require.NoError(t, err)

	err = d.Draw(gpu.DrawOp{Target: rt, VertexProgram: fp, FragmentProgram: fp})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fragment program")

	bindings := []gpu.TextureBinding{{Slot: 0, Texture: rt}}
	require.NoError(t, d.Draw(gpu.DrawOp{
		Target:          rt,
		VertexProgram:   vp,
		FragmentProgram: fp,
		Textures:        bindings,
	}))

	// The record is isolated from later caller mutation.
	bindings[0].Slot = 9
	assert.Equal(t, uint32(0), d.Draws[0].Textures[0].Slot)
}

func TestModernProgramValidation(t *testing.T) {
	d := NewModernDevice()

	_, err := d.CreateVertexProgram(gpu.ShaderCode{SPIRV: []byte{1, 2, 3}}, "main_vertex", "vs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid shader bytecode")

	_, err = d.CreateVertexProgram(gpu.ShaderCode{SPIRV: common.SliceToBytes(spirvWords(8))}, "", "vs")
	require.Error(t, err)
}

func TestUniformBufferUpdate(t *testing.T) {
	d := NewModernDevice()
	buf, err := d.CreateUniformBuffer(16, "params")
	require.NoError(t, err)

	require.Error(t, d.UpdateUniformBuffer(buf, make([]byte, 32)))

	require.NoError(t, d.UpdateUniformBuffer(buf, []byte{1, 2, 3, 4}))
	fake := buf.(*UniformBuffer)
	assert.Equal(t, 1, fake.Updates)
	assert.Equal(t, byte(2), fake.Data[1])
}

func TestLegacyDrawCopiesSpans(t *testing.T) {
	d := NewLegacyDevice()
	rt, err := d.CreateTexture(gpu.TextureDesc{Width: 4, Height: 4, RenderTarget: true})
	require.NoError(t, err)

	vp, err := d.CreateVertexProgram(spirvWords(8))
	require.NoError(t, err)
	fp, err := d.CreateFragmentProgram(spirvWords(8))
	require.NoError(t, err)

	scratch := []float32{1, 2, 3, 4}
	require.NoError(t, d.Draw(gpu.LegacyDrawOp{
		Target:          rt,
		VertexProgram:   vp,
		FragmentProgram: fp,
		FragmentConstantsF: []gpu.ConstantSpanF{
			{StartRegister: 2, Data: scratch},
		},
	}))

	scratch[0] = 99
	assert.Equal(t, float32(1), d.Draws[0].FragmentConstantsF[0].Data[0])
}

func TestLegacyProgramValidation(t *testing.T) {
	d := NewLegacyDevice()

	_, err := d.CreateVertexProgram([]uint32{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid shader word stream")
}

func TestQueryClock(t *testing.T) {
	d := NewModernDevice(WithQueryStep(250), WithQueryFrequency(1000))

	dq, err := d.NewDisjointQuery()
	require.NoError(t, err)
	q1, err := d.NewTimestampQuery()
	require.NoError(t, err)
	q2, err := d.NewTimestampQuery()
	require.NoError(t, err)

	dq.Begin()
	q1.Issue()
	q2.Issue()
	dq.End()

	t1, ok := q1.Poll()
	require.True(t, ok)
	t2, ok := q2.Poll()
	require.True(t, ok)
	assert.Equal(t, uint64(250), t2-t1)

	freq, disjoint, ok := dq.Poll()
	require.True(t, ok)
	assert.False(t, disjoint)
	assert.Equal(t, uint64(1000), freq)
}

func TestQueryPendingPolls(t *testing.T) {
	d := NewModernDevice(WithPendingPolls(2))

	q, err := d.NewTimestampQuery()
	require.NoError(t, err)
	q.Issue()

	_, ok := q.Poll()
	assert.False(t, ok)
	_, ok = q.Poll()
	assert.False(t, ok)
	_, ok = q.Poll()
	assert.True(t, ok)
}

func TestWithoutTiming(t *testing.T) {
	d := NewLegacyDevice(WithoutTiming())

	_, err := d.NewTimestampQuery()
	require.Error(t, err)
	_, err = d.NewDisjointQuery()
	require.Error(t, err)
}
