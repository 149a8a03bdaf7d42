package compiler

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLegacyProfile(t *testing.T) {
	tests := []struct {
		name        string
		stage       Stage
		value       string
		wantName    string
		wantVersion uint32
	}{
		{"pixel 2_0", StageFragment, "2_0", "ps_2_0", gpu.PixelVersion(2, 0)},
		{"pixel 2_a", StageFragment, "2_a", "ps_2_a", gpu.PixelVersion(2, 0)},
		{"pixel 2_b", StageFragment, "2_b", "ps_2_b", gpu.PixelVersion(2, 0)},
		{"pixel 3_0", StageFragment, "3_0", "ps_3_0", gpu.PixelVersion(3, 0)},
		{"vertex 2_0", StageVertex, "2_0", "vs_2_0", gpu.VertexVersion(2, 0)},
		{"vertex coerces 2_a", StageVertex, "2_a", "vs_2_0", gpu.VertexVersion(2, 0)},
		{"vertex coerces 2_b", StageVertex, "2_b", "vs_2_0", gpu.VertexVersion(2, 0)},
		{"vertex 3_0", StageVertex, "3_0", "vs_3_0", gpu.VertexVersion(3, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseLegacyProfile(tt.stage, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name)
			assert.Equal(t, tt.wantVersion, p.Version)
			assert.True(t, p.Legacy)
			assert.Equal(t, tt.stage, p.Stage)
			assert.Zero(t, p.Level)
		})
	}
}

func TestParseLegacyProfileUnrecognized(t *testing.T) {
	_, err := ParseLegacyProfile(StageFragment, "9_9")
	require.Error(t, err)
	assert.EqualError(t, err, "unrecognized shader profile 'ps_9_9'")

	_, err = ParseLegacyProfile(StageVertex, "4_0")
	require.Error(t, err)
	assert.EqualError(t, err, "unrecognized shader profile 'vs_4_0'")
}

func TestDefaultLegacyProfile(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		caps  gpu.Caps
		want  string
	}{
		{
			name:  "vertex 3_0",
			stage: StageVertex,
			caps:  gpu.Caps{MaxVertexVersion: gpu.VertexVersion(3, 0)},
			want:  "3_0",
		},
		{
			name:  "vertex falls back to 2_0",
			stage: StageVertex,
			caps:  gpu.Caps{MaxVertexVersion: gpu.VertexVersion(1, 1)},
			want:  "2_0",
		},
		{
			name:  "pixel 3_0",
			stage: StageFragment,
			caps:  gpu.Caps{MaxPixelVersion: gpu.PixelVersion(3, 0)},
			want:  "3_0",
		},
		{
			name:  "pixel 2_a needs predication and temps",
			stage: StageFragment,
			caps: gpu.Caps{
				MaxPixelVersion:      gpu.PixelVersion(2, 0),
				PredicationSupported: true,
				TempRegisterCount:    22,
			},
			want: "2_a",
		},
		{
			name:  "pixel 2_b needs temps only",
			stage: StageFragment,
			caps: gpu.Caps{
				MaxPixelVersion:   gpu.PixelVersion(2, 0),
				TempRegisterCount: 32,
			},
			want: "2_b",
		},
		{
			name:  "pixel plain 2_0",
			stage: StageFragment,
			caps: gpu.Caps{
				MaxPixelVersion:   gpu.PixelVersion(2, 0),
				TempRegisterCount: 12,
			},
			want: "2_0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultLegacyProfile(tt.stage, tt.caps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultLegacyProfileNoPixelShaders(t *testing.T) {
	_, err := DefaultLegacyProfile(StageFragment, gpu.Caps{})
	require.Error(t, err)
	assert.EqualError(t, err, "graphics device does not support pixel shaders")
}

func TestParseModernProfile(t *testing.T) {
	tests := []struct {
		value string
		level gpu.FeatureLevel
	}{
		{"5_0", gpu.FeatureLevel11_0},
		{"4_0", gpu.FeatureLevel10_0},
		{"4_0_level_9_3", gpu.FeatureLevel9_3},
		{"4_0_level_9_1", gpu.FeatureLevel9_1},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			p, err := ParseModernProfile(StageFragment, tt.value)
			require.NoError(t, err)
			assert.Equal(t, "ps_"+tt.value, p.Name)
			assert.Equal(t, tt.level, p.Level)
			assert.False(t, p.Legacy)
			assert.Zero(t, p.Version)
		})
	}

	_, err := ParseModernProfile(StageVertex, "2_0")
	require.Error(t, err)
	assert.EqualError(t, err, "unrecognized shader profile 'vs_2_0'")
}

func TestDefaultModernProfile(t *testing.T) {
	assert.Equal(t, "5_0", DefaultModernProfile(gpu.Caps{FeatureLevel: gpu.FeatureLevel11_0}))
	assert.Equal(t, "4_0", DefaultModernProfile(gpu.Caps{FeatureLevel: gpu.FeatureLevel10_0}))
	assert.Equal(t, "4_0_level_9_3", DefaultModernProfile(gpu.Caps{FeatureLevel: gpu.FeatureLevel9_3}))
	assert.Equal(t, "4_0_level_9_1", DefaultModernProfile(gpu.Caps{FeatureLevel: gpu.FeatureLevel9_1}))
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, "vertex", StageVertex.String())
	assert.Equal(t, "fragment", StageFragment.String())
	assert.Equal(t, "main_vertex", StageVertex.EntryPoint())
	assert.Equal(t, "main_fragment", StageFragment.EntryPoint())
}
