// Package pass implements one stage of a custom effect pipeline: shader
// compilation results wired to frame references and semantic variables via
// reflection, an output texture ring serving history lookups, and the
// per-frame decision of whether the stage must re-execute or can reuse its
// cached output. Two executors share the common property and sizing logic: a
// modern one driving reflection-bound uniform buffers, and a legacy one
// driving a register-file device generation.
package pass

import (
	"fmt"
	"strconv"

	"github.com/Carmen-Shannon/oxy-fx/effect/config"
	"github.com/chewxy/math32"
)

// ScaleType selects how one axis of a pass's render size is derived.
type ScaleType uint8

const (
	// ScaleSource scales the pass input size by the factor.
	ScaleSource ScaleType = iota

	// ScaleViewport scales the viewport size by the factor.
	ScaleViewport

	// ScaleAbsolute uses the factor directly as a pixel size.
	ScaleAbsolute
)

// NoFrameCountLimit is the frame counter limit when frame_count_mod is unset.
const NoFrameCountLimit uint32 = 0xFFFFFFFF

// Props are the per-pass configuration properties shared by both executors.
// All keys carry the pass index as a numeric suffix in the config file.
type Props struct {
	// Index is the pass index the properties were parsed for.
	Index uint32

	// ScaleTypeX/Y and ScaleFactorX/Y define the render size per axis.
	ScaleTypeX   ScaleType
	ScaleTypeY   ScaleType
	ScaleFactorX float32
	ScaleFactorY float32

	// HasScaling reports whether any scale_type key was present. The pipeline
	// uses it to detect a trailing pass that performs the final upscale.
	HasScaling bool

	// FrameCountLimit is the inclusive frame counter wrap point,
	// frame_count_mod - 1, or NoFrameCountLimit when unset.
	FrameCountLimit uint32

	// SrgbFramebuffer, FloatFramebuffer, and HalfFloatFramebuffer select the
	// output texture format.
	SrgbFramebuffer      bool
	FloatFramebuffer     bool
	HalfFloatFramebuffer bool

	// FilterLinear selects bilinear sampling of the pass input.
	FilterLinear bool
}

// ParseProps reads the indexed property family of one pass.
//
// Parameters:
//   - props: the parsed effect file
//   - passIndex: the pass the keys are suffixed with
//
// Returns:
//   - Props: the parsed properties
//   - error: an error naming the pass and field on any invalid value
func ParseProps(props *config.Properties, passIndex uint32) (Props, error) {
	p := Props{
		Index:           passIndex,
		FrameCountLimit: NoFrameCountLimit,
		ScaleFactorX:    1,
		ScaleFactorY:    1,
	}

	both, hasBoth, err := parseScaleType(props, "scale_type", passIndex)
	if err != nil {
		return Props{}, err
	}
	tx, hasX, err := parseScaleType(props, "scale_type_x", passIndex)
	if err != nil {
		return Props{}, err
	}
	ty, hasY, err := parseScaleType(props, "scale_type_y", passIndex)
	if err != nil {
		return Props{}, err
	}

	p.HasScaling = hasBoth || hasX || hasY
	if hasBoth {
		p.ScaleTypeX, p.ScaleTypeY = both, both
	}
	if hasX {
		p.ScaleTypeX = tx
	}
	if hasY {
		p.ScaleTypeY = ty
	}

	fb, hasFB, err := parseScaleFactor(props, "scale", passIndex)
	if err != nil {
		return Props{}, err
	}
	fx, hasFX, err := parseScaleFactor(props, "scale_x", passIndex)
	if err != nil {
		return Props{}, err
	}
	fy, hasFY, err := parseScaleFactor(props, "scale_y", passIndex)
	if err != nil {
		return Props{}, err
	}

	if hasFB && !hasFX && !hasFY && p.ScaleTypeX != p.ScaleTypeY {
		return Props{}, fmt.Errorf("pass %d: can't use a single scale factor with mixed scale types", passIndex)
	}

	// An axis with a scale type but no factor reverts to source scaling.
	switch {
	case hasFX:
		p.ScaleFactorX = fx
	case hasFB:
		p.ScaleFactorX = fb
	default:
		p.ScaleTypeX = ScaleSource
	}
	switch {
	case hasFY:
		p.ScaleFactorY = fy
	case hasFB:
		p.ScaleFactorY = fb
	default:
		p.ScaleTypeY = ScaleSource
	}

	if v, ok := props.ValueKey(config.IndexedKey("frame_count_mod", passIndex)); ok {
		mod, err := strconv.ParseUint(v, 10, 32)
		if err != nil || mod == 0 {
			return Props{}, fmt.Errorf("pass %d has invalid frame_count_mod value: %s", passIndex, v)
		}
		p.FrameCountLimit = uint32(mod) - 1
	}

	p.SrgbFramebuffer = props.Bool(config.IndexedKey("srgb_framebuffer", passIndex), false)
	p.FloatFramebuffer = props.Bool(config.IndexedKey("float_framebuffer", passIndex), false)
	if p.SrgbFramebuffer && p.FloatFramebuffer {
		return Props{}, fmt.Errorf("pass %d: cannot request a floating-point sRGB framebuffer", passIndex)
	}
	if p.FloatFramebuffer {
		p.HalfFloatFramebuffer = props.Bool(config.IndexedKey("halffloat_framebuffer", passIndex), false)
	}

	p.FilterLinear = props.Bool(config.IndexedKey("filter_linear", passIndex), true)

	return p, nil
}

// ComputeRenderSize derives the pass render size. Each axis is computed
// independently from its scale type and clamped so a degenerate factor never
// produces an empty texture.
//
// Parameters:
//   - srcWidth, srcHeight: the pass input image size
//   - vpWidth, vpHeight: the viewport size
//
// Returns:
//   - uint32: the render width
//   - uint32: the render height
func (p Props) ComputeRenderSize(srcWidth, srcHeight, vpWidth, vpHeight uint32) (uint32, uint32) {
	w := scaleAxis(p.ScaleTypeX, p.ScaleFactorX, srcWidth, vpWidth)
	h := scaleAxis(p.ScaleTypeY, p.ScaleFactorY, srcHeight, vpHeight)
	return w, h
}

func scaleAxis(t ScaleType, factor float32, src, vp uint32) uint32 {
	var v float32
	switch t {
	case ScaleViewport:
		v = math32.Round(float32(vp) * factor)
	case ScaleAbsolute:
		v = math32.Round(factor)
	default:
		v = math32.Round(float32(src) * factor)
	}
	if v < 1 {
		return 1
	}
	return uint32(v)
}

func parseScaleType(props *config.Properties, base string, passIndex uint32) (ScaleType, bool, error) {
	v, ok := props.ValueKey(config.IndexedKey(base, passIndex))
	if !ok {
		return ScaleSource, false, nil
	}
	switch v {
	case "source":
		return ScaleSource, true, nil
	case "viewport":
		return ScaleViewport, true, nil
	case "absolute":
		return ScaleAbsolute, true, nil
	default:
		return 0, false, fmt.Errorf("pass %d has invalid scale mode: \"%s\"", passIndex, v)
	}
}

func parseScaleFactor(props *config.Properties, base string, passIndex uint32) (float32, bool, error) {
	v, ok := props.ValueKey(config.IndexedKey(base, passIndex))
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil || f <= 0 || f >= 16384 {
		return 0, false, fmt.Errorf("pass %d has invalid scale factor: %s", passIndex, v)
	}
	return float32(f), true, nil
}
