// reflection.go extracts binding and signature information from compiled
// modules. The pass executors walk constant block members to wire frame
// references and semantic variables, walk textures and samplers to build bind
// lists, and compare entry point signatures to validate that a vertex stage
// feeds its fragment stage.
package compiler

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/gogpu/naga/ir"
)

// ConstantMember is one member of a reflected constant block.
type ConstantMember struct {
	// Name is the member's declared name.
	Name string

	// ByteOffset is the member's offset inside the block.
	ByteOffset uint32

	// Kind is the member's scalar kind.
	Kind ir.ScalarKind

	// Rows and Columns describe the member's shape: scalars are 1x1, vectors
	// are 1xN, matrices are RxC. Both are zero for shapes the pipeline does
	// not upload (arrays, nested structs).
	Rows    uint8
	Columns uint8
}

// IsMatrix reports whether the member is a matrix shape.
//
// Returns:
//   - bool: true when the member has more than one row and column
func (m ConstantMember) IsMatrix() bool {
	return m.Rows > 1 && m.Columns > 1
}

// ConstantBlock is a reflected uniform block.
type ConstantBlock struct {
	// Name is the block's variable name, falling back to its type name.
	Name string

	// Group and Binding locate the block.
	Group   uint32
	Binding uint32

	// Size is the block span in bytes.
	Size uint32

	// Members lists the block's members in declaration order.
	Members []ConstantMember
}

// BoundTexture is a reflected texture binding.
type BoundTexture struct {
	Name         string
	Group        uint32
	Binding      uint32
	Dim          ir.ImageDimension
	Multisampled bool
}

// BoundSampler is a reflected sampler binding.
type BoundSampler struct {
	Name       string
	Group      uint32
	Binding    uint32
	Comparison bool
}

// IOParam is one entry point input or output parameter.
type IOParam struct {
	// Name is the parameter's declared name. May be empty for bare results.
	Name string

	// Location is the interstage location, or -1 for builtins.
	Location int32

	// Builtin reports whether the parameter is builtin-bound.
	Builtin bool

	// ComponentMask marks the components the parameter carries, one bit per
	// lane starting at x.
	ComponentMask uint8
}

// Reflection describes a compiled blob's bindings and entry point signature.
type Reflection struct {
	// Blocks lists the module's uniform blocks.
	Blocks []ConstantBlock

	// Textures and Samplers list the module's handle bindings.
	Textures []BoundTexture
	Samplers []BoundSampler

	// Inputs and Outputs list the entry point's signature.
	Inputs  []IOParam
	Outputs []IOParam
}

// reflectModule walks the module's globals and the named entry point's
// signature.
func reflectModule(m *ir.Module, entryPoint string) (*Reflection, error) {
	r := &Reflection{}

	for _, gv := range m.GlobalVariables {
		if gv.Binding == nil {
			continue
		}

		switch t := resolveInner(m, gv.Type).(type) {
		case ir.StructType:
			if gv.Space != ir.SpaceUniform {
				continue
			}
			block := ConstantBlock{
				Name:    common.Coalesce(gv.Name, m.Types[gv.Type].Name),
				Group:   gv.Binding.Group,
				Binding: gv.Binding.Binding,
				Size:    t.Span,
			}
			for _, member := range t.Members {
				kind, rows, cols := classifyShape(m, member.Type)
				block.Members = append(block.Members, ConstantMember{
					Name:       member.Name,
					ByteOffset: member.Offset,
					Kind:       kind,
					Rows:       rows,
					Columns:    cols,
				})
			}
			r.Blocks = append(r.Blocks, block)

		case ir.ImageType:
			r.Textures = append(r.Textures, BoundTexture{
				Name:         gv.Name,
				Group:        gv.Binding.Group,
				Binding:      gv.Binding.Binding,
				Dim:          t.Dim,
				Multisampled: t.Multisampled,
			})

		case ir.SamplerType:
			r.Samplers = append(r.Samplers, BoundSampler{
				Name:       gv.Name,
				Group:      gv.Binding.Group,
				Binding:    gv.Binding.Binding,
				Comparison: t.Comparison,
			})
		}
	}

	ep := findEntryPoint(m, entryPoint)
	if ep == nil {
		return nil, fmt.Errorf("cannot reflect shader: entry point '%s' missing", entryPoint)
	}
	fn := &m.Functions[ep.Function]

	for _, arg := range fn.Arguments {
		r.Inputs = append(r.Inputs, ioParams(m, arg.Name, arg.Type, arg.Binding)...)
	}
	if fn.Result != nil {
		r.Outputs = append(r.Outputs, ioParams(m, "", fn.Result.Type, fn.Result.Binding)...)
	}

	return r, nil
}

// ioParams flattens one signature slot into parameters. A slot is either
// directly bound or a struct whose members carry the bindings.
func ioParams(m *ir.Module, name string, t ir.TypeHandle, binding *ir.Binding) []IOParam {
	if binding != nil {
		return []IOParam{makeIOParam(m, name, t, *binding)}
	}

	st, ok := resolveInner(m, t).(ir.StructType)
	if !ok {
		return nil
	}

	params := make([]IOParam, 0, len(st.Members))
	for _, member := range st.Members {
		if member.Binding == nil {
			continue
		}
		params = append(params, makeIOParam(m, member.Name, member.Type, *member.Binding))
	}
	return params
}

func makeIOParam(m *ir.Module, name string, t ir.TypeHandle, binding ir.Binding) IOParam {
	p := IOParam{
		Name:          name,
		Location:      -1,
		ComponentMask: componentMask(m, t),
	}
	switch b := binding.(type) {
	case ir.LocationBinding:
		p.Location = int32(b.Location)
	case ir.BuiltinBinding:
		p.Builtin = true
	}
	return p
}

// resolveInner follows a type handle to its inner kind.
func resolveInner(m *ir.Module, t ir.TypeHandle) ir.TypeInner {
	return m.Types[t].Inner
}

// classifyShape reduces a member type to scalar kind and shape. Shapes the
// pipeline does not upload report zero rows and columns.
func classifyShape(m *ir.Module, t ir.TypeHandle) (ir.ScalarKind, uint8, uint8) {
	switch inner := resolveInner(m, t).(type) {
	case ir.ScalarType:
		return inner.Kind, 1, 1
	case ir.VectorType:
		return inner.Scalar.Kind, 1, uint8(inner.Size)
	case ir.MatrixType:
		return inner.Scalar.Kind, uint8(inner.Rows), uint8(inner.Columns)
	default:
		return ir.ScalarFloat, 0, 0
	}
}

// componentMask reports the lanes a signature parameter carries, one bit per
// component starting at x.
func componentMask(m *ir.Module, t ir.TypeHandle) uint8 {
	switch inner := resolveInner(m, t).(type) {
	case ir.ScalarType:
		return 0x1
	case ir.VectorType:
		return uint8(1<<uint(inner.Size)) - 1
	default:
		return 0xF
	}
}

