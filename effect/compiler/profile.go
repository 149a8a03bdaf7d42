// profile.go maps config-level shader profile names onto device requirements.
// Legacy profiles carry packed version words matched against the device's
// register-file shader caps; modern profiles carry the minimum feature level.
// When a config names no profile, defaults are derived from device caps the
// same way for every pass.
package compiler

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/gogpu/naga/hlsl"
)

// Stage identifies which half of a pass a shader implements.
type Stage uint8

const (
	// StageVertex is the pass vertex stage, entry point main_vertex.
	StageVertex Stage = iota

	// StageFragment is the pass fragment stage, entry point main_fragment.
	StageFragment
)

// String returns the stage name used in error messages.
//
// Returns:
//   - string: "vertex" or "fragment"
func (s Stage) String() string {
	if s == StageVertex {
		return "vertex"
	}
	return "fragment"
}

// EntryPoint returns the conventional entry point name for the stage.
//
// Returns:
//   - string: "main_vertex" or "main_fragment"
func (s Stage) EntryPoint() string {
	if s == StageVertex {
		return "main_vertex"
	}
	return "main_fragment"
}

// prefix returns the profile name prefix for the stage.
func (s Stage) prefix() string {
	if s == StageVertex {
		return "vs_"
	}
	return "ps_"
}

// Profile is a resolved shader profile: the config-level name plus the device
// requirement it implies.
type Profile struct {
	// Stage is the shader stage the profile applies to.
	Stage Stage

	// Name is the full profile name, e.g. "vs_2_0" or "ps_4_0_level_9_3".
	Name string

	// Legacy reports whether this is a register-file generation profile.
	Legacy bool

	// Version is the packed legacy version word. Zero for modern profiles.
	Version uint32

	// Level is the minimum modern feature level. Zero for legacy profiles.
	Level gpu.FeatureLevel
}

// ShaderModel returns the HLSL shader model used when translating the pass
// source for this profile. The translator's floor is SM 5.0, so every profile
// maps there; the profile's own version word still gates device validation.
//
// Returns:
//   - hlsl.ShaderModel: the translation target
func (p Profile) ShaderModel() hlsl.ShaderModel {
	return hlsl.ShaderModel5_0
}

// ParseLegacyProfile resolves a config profile value for a legacy device
// stage. Vertex shaders silently coerce the pixel-only 2_a and 2_b flavors
// down to 2_0.
//
// Parameters:
//   - stage: the shader stage
//   - value: the config value, e.g. "2_0" or "3_0"
//
// Returns:
//   - Profile: the resolved profile
//   - error: an error if the value is not a legacy profile name
func ParseLegacyProfile(stage Stage, value string) (Profile, error) {
	base := gpu.PixelVersionBase
	if stage == StageVertex {
		base = gpu.VertexVersionBase
		if value == "2_a" || value == "2_b" {
			value = "2_0"
		}
	}

	var version uint32
	switch value {
	case "2_0", "2_a", "2_b":
		version = base | 0x0200
	case "3_0":
		version = base | 0x0300
	default:
		return Profile{}, fmt.Errorf("unrecognized shader profile '%s%s'", stage.prefix(), value)
	}

	return Profile{
		Stage:   stage,
		Name:    stage.prefix() + value,
		Legacy:  true,
		Version: version,
	}, nil
}

// DefaultLegacyProfile selects the legacy profile value for a stage from
// device caps when the config names none. Pixel selection prefers the vendor
// flavor targets when the device advertises predication or extra temporary
// registers.
//
// Parameters:
//   - stage: the shader stage
//   - caps: the device capability description
//
// Returns:
//   - string: the profile value, e.g. "3_0"
//   - error: an error if the device supports no pixel shaders at all
func DefaultLegacyProfile(stage Stage, caps gpu.Caps) (string, error) {
	if stage == StageVertex {
		if caps.MaxVertexVersion >= gpu.VertexVersion(3, 0) {
			return "3_0", nil
		}
		return "2_0", nil
	}

	switch {
	case caps.MaxPixelVersion >= gpu.PixelVersion(3, 0):
		return "3_0", nil
	case caps.MaxPixelVersion >= gpu.PixelVersion(2, 0):
		if caps.PredicationSupported && caps.TempRegisterCount >= 22 {
			return "2_a", nil
		}
		if caps.TempRegisterCount >= 32 {
			return "2_b", nil
		}
		return "2_0", nil
	default:
		return "", fmt.Errorf("graphics device does not support pixel shaders")
	}
}

// ParseModernProfile resolves a config profile value for a modern device
// stage.
//
// Parameters:
//   - stage: the shader stage
//   - value: the config value, e.g. "5_0" or "4_0_level_9_3"
//
// Returns:
//   - Profile: the resolved profile
//   - error: an error if the value is not a modern profile name
func ParseModernProfile(stage Stage, value string) (Profile, error) {
	var level gpu.FeatureLevel
	switch value {
	case "5_0":
		level = gpu.FeatureLevel11_0
	case "4_0":
		level = gpu.FeatureLevel10_0
	case "4_0_level_9_3":
		level = gpu.FeatureLevel9_3
	case "4_0_level_9_1":
		level = gpu.FeatureLevel9_1
	default:
		return Profile{}, fmt.Errorf("unrecognized shader profile '%s%s'", stage.prefix(), value)
	}

	return Profile{
		Stage: stage,
		Name:  stage.prefix() + value,
		Level: level,
	}, nil
}

// DefaultModernProfile selects the modern profile value from the device's
// feature level when the config names none.
//
// Parameters:
//   - caps: the device capability description
//
// Returns:
//   - string: the profile value, e.g. "5_0"
func DefaultModernProfile(caps gpu.Caps) string {
	switch {
	case caps.FeatureLevel >= gpu.FeatureLevel11_0:
		return "5_0"
	case caps.FeatureLevel >= gpu.FeatureLevel10_0:
		return "4_0"
	case caps.FeatureLevel >= gpu.FeatureLevel9_3:
		return "4_0_level_9_3"
	default:
		return "4_0_level_9_1"
	}
}
