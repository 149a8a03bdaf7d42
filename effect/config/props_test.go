package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name string
		base string
		idx  int32
	}{
		{"shader0", "shader", 0},
		{"shader17", "shader", 17},
		{"scale_type_x3", "scale_type_x", 3},
		{"shader_profile_d3d11", "shader_profile_d3d", 11},
		{"shader_profile_d3d9_2", "shader_profile_d3d9_", 2},
		{"plain", "plain", NoIndex},
		{"12345", "12345", NoIndex},
		{"k99999999999", "k99999999999", NoIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := KeyOf(tt.name)
			assert.Equal(t, tt.base, k.Base)
			assert.Equal(t, tt.idx, k.Index)
			assert.Equal(t, tt.name, k.Name())
		})
	}
}

func TestBool(t *testing.T) {
	props, err := Parse(strings.NewReader("a=true\nb=false\nc=0\nd=1\ne=anything"))
	require.NoError(t, err)

	assert.True(t, props.Bool(KeyOf("a"), false))
	assert.False(t, props.Bool(KeyOf("b"), true))
	assert.False(t, props.Bool(KeyOf("c"), true))
	assert.True(t, props.Bool(KeyOf("d"), false))
	assert.True(t, props.Bool(KeyOf("e"), false))
	assert.True(t, props.Bool(KeyOf("missing"), true))
	assert.False(t, props.Bool(KeyOf("missing"), false))
}

func TestInt(t *testing.T) {
	props, err := Parse(strings.NewReader("count=42\nneg=-7\nbad=12abc"))
	require.NoError(t, err)

	v, ok, err := props.Int(KeyOf("count"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(42), v)

	v, ok, err = props.Int(KeyOf("neg"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(-7), v)

	_, _, err = props.Int(KeyOf("bad"))
	require.Error(t, err)
	assert.Equal(t, "expected integer for 'bad'", err.Error())

	_, ok, err = props.Int(KeyOf("absent"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountIndexed(t *testing.T) {
	props, err := Parse(strings.NewReader("shader0=a\nshader1=b\nshader2=c\nshader4=gap"))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), props.CountIndexed("shader"))
}

func TestUnusedKeys(t *testing.T) {
	props, err := Parse(strings.NewReader("used=1\nignored=2\nalso_skipped=3"))
	require.NoError(t, err)

	_, _ = props.Value("used")
	assert.ElementsMatch(t, []string{"ignored", "also_skipped"}, props.UnusedKeys())

	_, _ = props.Value("ignored")
	_, _ = props.Value("also_skipped")
	assert.Empty(t, props.UnusedKeys())
}
