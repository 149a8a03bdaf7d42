package gputest

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// LegacyDevice is the register-file fake. Constant spans are deep-copied on
// draw because callers reuse and rewrite their upload lists between frames.
type LegacyDevice struct {
	device

	// Programs records creations in order.
	Programs []*Program

	// Draws records every Draw call with constant spans, state lists, and
	// texture stages copied.
	Draws []gpu.LegacyDrawOp
}

var _ gpu.LegacyDevice = &LegacyDevice{}

func (d *LegacyDevice) CreateVertexProgram(words []uint32) (gpu.Program, error) {
	return d.createProgram(true, words)
}

func (d *LegacyDevice) CreateFragmentProgram(words []uint32) (gpu.Program, error) {
	return d.createProgram(false, words)
}

func (d *LegacyDevice) createProgram(vertex bool, words []uint32) (gpu.Program, error) {
	if len(words) < 5 || words[0] != bytecodeMagic {
		return nil, fmt.Errorf("invalid shader word stream")
	}

	p := &Program{
		Vertex: vertex,
		Words:  append([]uint32(nil), words...),
	}
	d.Programs = append(d.Programs, p)
	return p, nil
}

func (d *LegacyDevice) Draw(op gpu.LegacyDrawOp) error {
	if err := d.checkTarget(op.Target); err != nil {
		return err
	}
	if err := checkStagePair(op.VertexProgram, op.FragmentProgram); err != nil {
		return err
	}
	for _, st := range op.Textures {
		if err := d.checkBoundTexture(st.Texture); err != nil {
			return err
		}
	}

	op.VertexConstantsF = copySpansF(op.VertexConstantsF)
	op.VertexConstantsI = copySpansI(op.VertexConstantsI)
	op.VertexConstantsB = copySpansB(op.VertexConstantsB)
	op.FragmentConstantsF = copySpansF(op.FragmentConstantsF)
	op.FragmentConstantsI = copySpansI(op.FragmentConstantsI)
	op.FragmentConstantsB = copySpansB(op.FragmentConstantsB)
	op.RenderStates = append([]gpu.RenderState(nil), op.RenderStates...)
	op.SamplerStates = append([]gpu.SamplerState(nil), op.SamplerStates...)
	op.Textures = append([]gpu.StageTexture(nil), op.Textures...)

	d.Draws = append(d.Draws, op)
	return nil
}

func copySpansF(spans []gpu.ConstantSpanF) []gpu.ConstantSpanF {
	out := make([]gpu.ConstantSpanF, len(spans))
	for i, s := range spans {
		out[i] = gpu.ConstantSpanF{
			StartRegister: s.StartRegister,
			Data:          append([]float32(nil), s.Data...),
		}
	}
	return out
}

func copySpansI(spans []gpu.ConstantSpanI) []gpu.ConstantSpanI {
	out := make([]gpu.ConstantSpanI, len(spans))
	for i, s := range spans {
		out[i] = gpu.ConstantSpanI{
			StartRegister: s.StartRegister,
			Data:          append([]int32(nil), s.Data...),
		}
	}
	return out
}

func copySpansB(spans []gpu.ConstantSpanB) []gpu.ConstantSpanB {
	out := make([]gpu.ConstantSpanB, len(spans))
	for i, s := range spans {
		out[i] = gpu.ConstantSpanB{
			StartRegister: s.StartRegister,
			Data:          append([]uint32(nil), s.Data...),
		}
	}
	return out
}
