// bindings.go wires shader reflection output to the effect's semantic
// vocabulary. Constant block members are matched by name against the fixed
// variable set and turned into gather descriptors; texture and sampler names
// resolve through the frame reference grammar, the custom texture table, or
// the slot-0 input fallback that keeps implicit single-texture shaders
// working.
package pass

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/effect/compiler"
	"github.com/Carmen-Shannon/oxy-fx/effect/frameref"
	"github.com/Carmen-Shannon/oxy-fx/effect/varstore"
	"github.com/gogpu/naga/ir"
)

// Reserved constant block member names.
const (
	memberVideoSize      = "video_size"
	memberTextureSize    = "texture_size"
	memberOutputSize     = "output_size"
	memberFrameCount     = "frame_count"
	memberFrameDirection = "frame_direction"
	memberModelViewProj  = "modelViewProj"
)

// gatherSet is the per-frame copy plan for one constant image.
type gatherSet struct {
	vecs   []varstore.VecGather
	floats []varstore.ScalarGather
	bools  []varstore.ScalarGather
}

// run performs the copies against one constant image.
func (g *gatherSet) run(s *varstore.Storage, image []uint32) {
	s.GatherVecs(image, g.vecs)
	s.GatherFloats(image, g.floats)
	s.GatherBools(image, g.bools)
}

// textureInput is one resolved texture binding: either a grid reference or a
// custom texture.
type textureInput struct {
	slot    uint32
	name    string
	row     uint32
	element uint32
	custom  *CustomTexture
}

// samplerInput is one resolved sampler binding with its filtering choice and
// the sRGB flag of the content it samples.
type samplerInput struct {
	slot   uint32
	linear bool
	srgb   bool
}

// blockFrameRow maps a constant block name onto the grid row and history
// element its size members describe. The reserved names orig, input, and
// prev select the source, the pass input, and the source's previous frame;
// a block named as a frame reference selects that reference; anything else
// defaults to the pass input.
func blockFrameRow(name string, passIndex uint32) (uint32, uint32) {
	switch strings.ToLower(name) {
	case "orig":
		return 0, 0
	case "prev":
		return 0, 1
	case "input":
		return passIndex, 0
	}
	if ref, err := frameref.Parse(name, passIndex); err == nil && ref.Valid {
		return ref.PassIndex, ref.ElementIndex
	}
	return passIndex, 0
}

// memberBytes is the byte span of a member shape.
func memberBytes(m compiler.ConstantMember) uint32 {
	if m.IsMatrix() {
		return uint32(m.Rows) * uint32(m.Columns) * 4
	}
	return uint32(m.Columns) * 4
}

// buildBlockGathers matches one constant block's members against the semantic
// variable vocabulary and produces the gather plan copying their live values
// into the block's constant image. dstBase offsets the block inside a larger
// image for register-file layouts. Binding frame_count anywhere makes the
// pass uncacheable.
func (b *passBase) buildBlockGathers(block compiler.ConstantBlock, dstBase, imageBytes uint32) (gatherSet, error) {
	var g gatherSet
	row, element := blockFrameRow(block.Name, b.index)

	for _, m := range block.Members {
		if m.Rows == 0 {
			// Array and nested struct members are outside the upload
			// vocabulary; they keep their zero defaults.
			continue
		}

		dst := dstBase + m.ByteOffset
		matched := true

		switch m.Name {
		case memberVideoSize:
			g.appendSized(b.storage, dst, m, varstore.Address{Kind: varstore.KindVideoSize, PassIndex: row})
			b.addUpstreamRef(row, element)
		case memberTextureSize:
			g.appendSized(b.storage, dst, m, varstore.Address{Kind: varstore.KindTextureSize, PassIndex: row})
			b.addUpstreamRef(row, element)
		case memberOutputSize:
			g.appendSized(b.storage, dst, m, varstore.Address{Kind: varstore.KindOutputSize, PassIndex: b.index})
		case memberFrameCount:
			g.floats = append(g.floats, varstore.ScalarGather{
				DstOffset: dst,
				SrcOffset: b.storage.AllocateOffset(varstore.Address{
					Kind:         varstore.KindFrameCount,
					PassIndex:    row,
					ElementIndex: element,
				}),
			})
			b.addUpstreamRef(row, element)
			b.cacheable = false
		case memberFrameDirection:
			addr := varstore.Address{Kind: varstore.KindFrameDirection, PassIndex: row}
			if m.Kind == ir.ScalarBool {
				g.bools = append(g.bools, varstore.ScalarGather{DstOffset: dst, SrcOffset: b.storage.AllocateOffset(addr)})
			} else {
				g.floats = append(g.floats, varstore.ScalarGather{DstOffset: dst, SrcOffset: b.storage.AllocateOffset(addr)})
			}
		case memberModelViewProj:
			if !m.IsMatrix() {
				return gatherSet{}, fmt.Errorf("pass %d: shader constant '%s' must be a matrix", b.index, m.Name)
			}
			mat := b.storage.RequestColumnMajorMatrix(dst, varstore.Address{Kind: varstore.KindModelViewProj})
			g.vecs = append(g.vecs, mat.Vec[:]...)
		default:
			matched = false
		}

		if matched && dst+memberBytes(m) > imageBytes {
			return gatherSet{}, fmt.Errorf("pass %d: internal error - vector gather out of bounds", b.index)
		}
	}

	return g, nil
}

// appendSized gathers a size-style variable into a scalar, vec2, or vec4
// member shape.
func (g *gatherSet) appendSized(s *varstore.Storage, dst uint32, m compiler.ConstantMember, addr varstore.Address) {
	switch {
	case m.Columns >= 4:
		g.vecs = append(g.vecs, s.RequestVector(dst, addr))
	case m.Columns >= 2:
		off := s.AllocateOffset(addr)
		g.floats = append(g.floats,
			varstore.ScalarGather{DstOffset: dst, SrcOffset: off},
			varstore.ScalarGather{DstOffset: dst + 4, SrcOffset: off + 4},
		)
	default:
		g.floats = append(g.floats, varstore.ScalarGather{DstOffset: dst, SrcOffset: s.AllocateOffset(addr)})
	}
}

// resolveTexture classifies a bound texture name: frame reference suffix
// first, then the custom texture table, then the slot-0 input fallback.
// Frame references (and the fallback) are recorded as upstream dependencies.
func (b *passBase) resolveTexture(t compiler.BoundTexture, customs map[string]*CustomTexture) (textureInput, error) {
	name := strings.TrimSuffix(t.Name, "_texture")

	ref, err := frameref.Parse(name, b.index)
	if err != nil {
		return textureInput{}, err
	}
	if ref.Valid {
		b.addUpstreamRef(ref.PassIndex, ref.ElementIndex)
		return textureInput{slot: t.Binding, name: t.Name, row: ref.PassIndex, element: ref.ElementIndex}, nil
	}

	if custom, ok := customs[t.Name]; ok {
		return textureInput{slot: t.Binding, name: t.Name, custom: custom}, nil
	}

	if t.Binding == 0 {
		// Shaders sampling a single unnamed texture implicitly read the pass
		// input.
		b.addUpstreamRef(b.index, 0)
		return textureInput{slot: t.Binding, name: t.Name, row: b.index}, nil
	}

	return textureInput{}, fmt.Errorf("pass %d: unable to bind fragment shader texture '%s'", b.index, t.Name)
}

// resolveSampler classifies a bound sampler name the same way textures are
// classified, but resolves straight to a filtering choice: grid rows sample
// with the filter of the pass consuming that row, custom textures with their
// configured filter. Samplers do not create upstream dependencies.
func (b *passBase) resolveSampler(s compiler.BoundSampler, customs map[string]*CustomTexture, inputFilters, rowSrgb []bool) (samplerInput, error) {
	name := strings.TrimSuffix(s.Name, "_sampler")

	ref, err := frameref.Parse(name, b.index)
	if err != nil {
		return samplerInput{}, err
	}
	if !ref.Valid {
		if custom, ok := customs[s.Name]; ok {
			return samplerInput{slot: s.Binding, linear: custom.Linear}, nil
		}
		if s.Binding != 0 {
			return samplerInput{}, fmt.Errorf("pass %d: unable to bind fragment shader sampler '%s'", b.index, s.Name)
		}
		ref = frameref.Ref{Valid: true, PassIndex: b.index}
	}

	in := samplerInput{slot: s.Binding, linear: b.props.FilterLinear}
	if int(ref.PassIndex) < len(inputFilters) {
		in.linear = inputFilters[ref.PassIndex]
	}
	if int(ref.PassIndex) < len(rowSrgb) {
		in.srgb = rowSrgb[ref.PassIndex]
	}
	return in, nil
}

// validateSignatures cross-checks a vertex stage's outputs against the
// fragment stage's inputs: same location-bound parameters at each ordinal,
// case-insensitive names, and the fragment stage must not read components the
// vertex stage does not write.
func validateSignatures(passIndex uint32, vs, ps *compiler.Reflection) error {
	vsOut := locationParams(vs.Outputs)
	psIn := locationParams(ps.Inputs)

	if len(vsOut) != len(psIn) {
		return fmt.Errorf("pass %d has incompatible vertex and fragment shaders: signature element counts differ", passIndex)
	}
	for i := range psIn {
		v, p := vsOut[i], psIn[i]
		if !strings.EqualFold(v.Name, p.Name) || v.Location != p.Location {
			return fmt.Errorf("pass %d has incompatible vertex and fragment shaders: mismatch at signature element %d", passIndex, i)
		}
		if p.ComponentMask&^v.ComponentMask != 0 {
			return fmt.Errorf("pass %d has incompatible vertex and fragment shaders: fragment shader reads components the vertex shader does not write at '%s'", passIndex, p.Name)
		}
	}
	return nil
}

func locationParams(params []compiler.IOParam) []compiler.IOParam {
	out := make([]compiler.IOParam, 0, len(params))
	for _, p := range params {
		if !p.Builtin {
			out = append(out, p)
		}
	}
	return out
}
