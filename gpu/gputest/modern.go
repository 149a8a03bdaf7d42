package gputest

import (
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// bytecodeMagic is the module magic the fakes require in word 0, matching
// what the compiler emits.
const bytecodeMagic uint32 = 0x07230203

// ModernDevice is the reflection-driven fake. It validates draw preconditions
// and records every program, buffer, and draw.
type ModernDevice struct {
	device

	// Programs and Buffers record creations in order.
	Programs []*Program
	Buffers  []*UniformBuffer

	// Draws records every Draw call with its binding lists copied, so later
	// mutation by the caller does not change the record.
	Draws []gpu.DrawOp
}

var _ gpu.ModernDevice = &ModernDevice{}

func (d *ModernDevice) CreateVertexProgram(code gpu.ShaderCode, entryPoint, label string) (gpu.Program, error) {
	return d.createProgram(true, code, entryPoint, label)
}

func (d *ModernDevice) CreateFragmentProgram(code gpu.ShaderCode, entryPoint, label string) (gpu.Program, error) {
	return d.createProgram(false, code, entryPoint, label)
}

func (d *ModernDevice) createProgram(vertex bool, code gpu.ShaderCode, entryPoint, label string) (gpu.Program, error) {
	if len(code.SPIRV) < 20 || binary.LittleEndian.Uint32(code.SPIRV) != bytecodeMagic {
		return nil, fmt.Errorf("invalid shader bytecode for %q", label)
	}
	if entryPoint == "" {
		return nil, fmt.Errorf("missing entry point for %q", label)
	}

	p := &Program{
		Vertex:     vertex,
		Code:       append([]byte(nil), code.SPIRV...),
		EntryPoint: entryPoint,
		Label:      label,
	}
	d.Programs = append(d.Programs, p)
	return p, nil
}

func (d *ModernDevice) CreateUniformBuffer(size uint32, label string) (gpu.UniformBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("uniform buffer %q has zero size", label)
	}

	b := &UniformBuffer{Data: make([]byte, size), Label: label}
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

func (d *ModernDevice) UpdateUniformBuffer(buf gpu.UniformBuffer, data []byte) error {
	b, ok := buf.(*UniformBuffer)
	if !ok {
		return fmt.Errorf("foreign uniform buffer handle")
	}
	if len(data) > len(b.Data) {
		return fmt.Errorf("uniform data of %d bytes exceeds buffer capacity %d", len(data), len(b.Data))
	}

	copy(b.Data, data)
	b.Updates++
	return nil
}

func (d *ModernDevice) Draw(op gpu.DrawOp) error {
	if err := d.checkTarget(op.Target); err != nil {
		return err
	}
	if err := checkStagePair(op.VertexProgram, op.FragmentProgram); err != nil {
		return err
	}
	for _, tb := range op.Textures {
		if err := d.checkBoundTexture(tb.Texture); err != nil {
			return err
		}
	}
	for _, sb := range op.Samplers {
		if sb.Sampler == nil {
			return fmt.Errorf("nil sampler bound at slot %d", sb.Slot)
		}
	}

	op.Textures = append([]gpu.TextureBinding(nil), op.Textures...)
	op.Samplers = append([]gpu.SamplerBinding(nil), op.Samplers...)
	d.Draws = append(d.Draws, op)
	return nil
}

func (d *device) checkTarget(target gpu.Texture) error {
	t, ok := target.(*Texture)
	if !ok {
		return fmt.Errorf("draw requires a render target")
	}
	if !t.Desc.RenderTarget {
		return fmt.Errorf("draw target %q is not a render target", t.Desc.Label)
	}
	if t.Released {
		return fmt.Errorf("draw target %q was released", t.Desc.Label)
	}
	return nil
}

func (d *device) checkBoundTexture(tex gpu.Texture) error {
	t, ok := tex.(*Texture)
	if !ok {
		return fmt.Errorf("nil texture bound to draw")
	}
	if t.Released {
		return fmt.Errorf("bound texture %q was released", t.Desc.Label)
	}
	return nil
}

// checkStagePair validates that both stages are present and bound to the
// stage they were created for.
func checkStagePair(vp, fp gpu.Program) error {
	v, ok := vp.(*Program)
	if !ok {
		return fmt.Errorf("draw requires a vertex stage")
	}
	f, ok := fp.(*Program)
	if !ok {
		return fmt.Errorf("draw requires a fragment stage")
	}
	if !v.Vertex {
		return fmt.Errorf("vertex stage bound with a fragment program")
	}
	if f.Vertex {
		return fmt.Errorf("fragment stage bound with a vertex program")
	}
	if v.Released || f.Released {
		return fmt.Errorf("draw uses a released program")
	}
	return nil
}
