package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/naga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passSource = `
struct Params {
    video_size: vec4<f32>,
    texture_size: vec4<f32>,
    output_size: vec4<f32>,
    frame_count: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var in_texture: texture_2d<f32>;
@group(0) @binding(2) var in_sampler: sampler;

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
    let color = textureSample(in_texture, in_sampler, uv);
    return params.video_size.x * color;
}
`

func writeShader(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestCompileProducesBytecode(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "pass.wgsl", passSource)
	c := NewCompiler()

	profile, err := ParseModernProfile(StageFragment, "5_0")
	require.NoError(t, err)

	blob, err := c.Compile(path, "main_fragment", profile)
	require.NoError(t, err)
	require.NotEmpty(t, blob.SPIRV)

	words := blob.Words()
	assert.Equal(t, uint32(0x07230203), words[0])
	assert.Empty(t, blob.HLSL, "modern profiles skip translation")
	assert.Equal(t, "main_fragment", blob.EntryPoint)
	assert.Contains(t, blob.Source, "textureSample")
}

func TestCompileLegacyProfileTranslates(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "pass.wgsl", passSource)
	c := NewCompiler()

	profile, err := ParseLegacyProfile(StageVertex, "3_0")
	require.NoError(t, err)

	blob, err := c.Compile(path, "main_vertex", profile)
	require.NoError(t, err)
	assert.NotEmpty(t, blob.SPIRV)
	assert.NotEmpty(t, blob.HLSL, "legacy profiles carry the translated source")
}

func TestCompileEntryPointErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "pass.wgsl", passSource)
	c := NewCompiler()

	modernVS, err := ParseModernProfile(StageVertex, "4_0")
	require.NoError(t, err)

	_, err = c.Compile(path, "main_missing", modernVS)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry point 'main_missing' not found")

	_, err = c.Compile(path, "main_fragment", modernVS)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry point 'main_fragment' is not a vertex shader")
}

func TestCompileDiagnosticIsSingleLine(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "broken.wgsl", "@fragment fn main_fragment( -> {")
	c := NewCompiler()

	profile, err := ParseModernProfile(StageFragment, "5_0")
	require.NoError(t, err)

	_, err = c.Compile(path, "main_fragment", profile)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "\n", "diagnostics reduce to one line")
}

func TestCompileMissingFile(t *testing.T) {
	c := NewCompiler()
	profile, err := ParseModernProfile(StageFragment, "5_0")
	require.NoError(t, err)

	_, err = c.Compile(filepath.Join(t.TempDir(), "absent.wgsl"), "main_fragment", profile)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReflectFragment(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "pass.wgsl", passSource)
	c := NewCompiler()

	profile, err := ParseModernProfile(StageFragment, "5_0")
	require.NoError(t, err)
	blob, err := c.Compile(path, "main_fragment", profile)
	require.NoError(t, err)

	refl, err := c.Reflect(blob)
	require.NoError(t, err)

	require.Len(t, refl.Blocks, 1)
	block := refl.Blocks[0]
	assert.Equal(t, "params", block.Name)
	assert.Equal(t, uint32(0), block.Group)
	assert.Equal(t, uint32(0), block.Binding)
	assert.Equal(t, uint32(64), block.Size)
	require.Len(t, block.Members, 4)
	assert.Equal(t, "video_size", block.Members[0].Name)
	assert.Equal(t, uint32(0), block.Members[0].ByteOffset)
	assert.Equal(t, uint32(16), block.Members[1].ByteOffset)
	assert.Equal(t, uint32(48), block.Members[3].ByteOffset)
	assert.Equal(t, uint8(1), block.Members[0].Rows)
	assert.Equal(t, uint8(4), block.Members[0].Columns)
	assert.False(t, block.Members[0].IsMatrix())

	require.Len(t, refl.Textures, 1)
	assert.Equal(t, "in_texture", refl.Textures[0].Name)
	assert.Equal(t, uint32(1), refl.Textures[0].Binding)

	require.Len(t, refl.Samplers, 1)
	assert.Equal(t, "in_sampler", refl.Samplers[0].Name)
	assert.Equal(t, uint32(2), refl.Samplers[0].Binding)

	require.Len(t, refl.Inputs, 1)
	assert.Equal(t, int32(0), refl.Inputs[0].Location)
	assert.Equal(t, uint8(0x3), refl.Inputs[0].ComponentMask)

	require.Len(t, refl.Outputs, 1)
	assert.Equal(t, int32(0), refl.Outputs[0].Location)
	assert.Equal(t, uint8(0xF), refl.Outputs[0].ComponentMask)
}

func TestReflectVertexSignature(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "pass.wgsl", passSource)
	c := NewCompiler()

	profile, err := ParseModernProfile(StageVertex, "5_0")
	require.NoError(t, err)
	blob, err := c.Compile(path, "main_vertex", profile)
	require.NoError(t, err)

	refl, err := c.Reflect(blob)
	require.NoError(t, err)

	require.Len(t, refl.Inputs, 2)
	assert.Equal(t, "pos", refl.Inputs[0].Name)
	assert.Equal(t, int32(0), refl.Inputs[0].Location)
	assert.Equal(t, "uv", refl.Inputs[1].Name)
	assert.Equal(t, int32(1), refl.Inputs[1].Location)

	require.Len(t, refl.Outputs, 2)
	assert.Equal(t, "uv", refl.Outputs[0].Name)
	assert.Equal(t, int32(0), refl.Outputs[0].Location)
	assert.False(t, refl.Outputs[0].Builtin)
	assert.True(t, refl.Outputs[1].Builtin)
	assert.Equal(t, int32(-1), refl.Outputs[1].Location)
}

func TestReflectMatrixShape(t *testing.T) {
	source := `
struct Params {
    modelViewProj: mat4x4<f32>,
    video_size: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;

@vertex
fn main_vertex(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}
`
	ast, err := naga.Parse(source)
	require.NoError(t, err)
	module, err := naga.LowerWithSource(ast, source)
	require.NoError(t, err)

	refl, err := reflectModule(module, "main_vertex")
	require.NoError(t, err)

	require.Len(t, refl.Blocks, 1)
	require.Len(t, refl.Blocks[0].Members, 2)
	mvp := refl.Blocks[0].Members[0]
	assert.Equal(t, "modelViewProj", mvp.Name)
	assert.True(t, mvp.IsMatrix())
	assert.Equal(t, uint8(4), mvp.Rows)
	assert.Equal(t, uint8(4), mvp.Columns)
	assert.Equal(t, uint32(64), refl.Blocks[0].Members[1].ByteOffset)
}

func TestReflectWithoutModule(t *testing.T) {
	c := NewCompiler()
	_, err := c.Reflect(&Blob{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reflect shader")
}

func TestExtractDiagnostic(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "error line wins over earlier lines",
			text: "warning: something\nstage.wgsl(12): error X3000: syntax error\nmore context",
			want: "stage.wgsl(12): error X3000: syntax error",
		},
		{
			name: "error at line start",
			text: "error: expected expression\nsecond line",
			want: "error: expected expression",
		},
		{
			name: "embedded word does not match",
			text: "terrors abound\nplain text",
			want: "terrors abound",
		},
		{
			name: "first line fallback",
			text: "something failed\nsecond line",
			want: "something failed",
		},
		{
			name: "empty text",
			text: "",
			want: "unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractDiagnostic(errors.New(tt.text)))
		})
	}
}

func TestCompileAllOrdersResults(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "pass.wgsl", passSource)
	c := NewCompiler()

	vs, err := ParseModernProfile(StageVertex, "5_0")
	require.NoError(t, err)
	fs, err := ParseModernProfile(StageFragment, "5_0")
	require.NoError(t, err)

	blobs, err := CompileAll(c, []CompileJob{
		{Path: path, EntryPoint: "main_vertex", Profile: vs, Tag: "pass 0 vertex shader"},
		{Path: path, EntryPoint: "main_fragment", Profile: fs, Tag: "pass 0 fragment shader"},
	}, 2)
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	assert.Equal(t, "main_vertex", blobs[0].EntryPoint)
	assert.Equal(t, "main_fragment", blobs[1].EntryPoint)
}

func TestCompileAllTagsErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeShader(t, dir, "pass.wgsl", passSource)
	bad := writeShader(t, dir, "broken.wgsl", "@fragment fn main_fragment( -> {")
	c := NewCompiler()

	vs, err := ParseModernProfile(StageVertex, "5_0")
	require.NoError(t, err)
	fs, err := ParseModernProfile(StageFragment, "5_0")
	require.NoError(t, err)

	_, err = CompileAll(c, []CompileJob{
		{Path: good, EntryPoint: "main_vertex", Profile: vs, Tag: "pass 0 vertex shader"},
		{Path: bad, EntryPoint: "main_fragment", Profile: fs, Tag: "pass 1 fragment shader"},
	}, 2)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "pass 1 fragment shader: "))
}

func TestCompileAllEmpty(t *testing.T) {
	blobs, err := CompileAll(NewCompiler(), nil, 4)
	require.NoError(t, err)
	assert.Nil(t, blobs)
}
