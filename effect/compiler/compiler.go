// Package compiler adapts the naga WGSL compiler to the effect pipeline. It
// flattens include annotations, compiles pass sources to SPIR-V, translates
// legacy-profile passes to HLSL for diagnostic parity with register-file
// toolchains, and exposes the compiled module's reflection data: constant
// blocks, bound textures and samplers, and entry point signatures. Passes use
// the reflection to wire frame references and semantic variables without any
// manual binding tables.
package compiler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// Blob is the output of one stage compile: generated bytecode plus the source
// and module it came from.
type Blob struct {
	// SPIRV is the generated bytecode.
	SPIRV []byte

	// Source is the flattened WGSL after include processing.
	Source string

	// Path is the root source file the blob was compiled from.
	Path string

	// EntryPoint is the entry point the blob was compiled for.
	EntryPoint string

	// Profile is the profile the blob was compiled against.
	Profile Profile

	// HLSL is the translated source for legacy profiles, empty otherwise.
	HLSL string

	module *ir.Module
}

// Code packages the blob for modern device program creation.
//
// Returns:
//   - gpu.ShaderCode: the bytecode and flattened source
func (b *Blob) Code() gpu.ShaderCode {
	return gpu.ShaderCode{SPIRV: b.SPIRV, WGSL: b.Source}
}

// Words reinterprets the blob's bytecode as a little-endian word stream for
// word-oriented device APIs.
//
// Returns:
//   - []uint32: the bytecode words
func (b *Blob) Words() []uint32 {
	words := make([]uint32, len(b.SPIRV)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b.SPIRV[i*4:])
	}
	return words
}

// compiler is the implementation of the Compiler interface.
type compiler struct {
	inc          IncludeProcessor
	spirvVersion spirv.Version
	debug        bool
}

// Compiler compiles effect pass sources and reflects the results.
type Compiler interface {
	// Compile flattens the source file's includes, compiles it to SPIR-V, and
	// for legacy profiles also translates it to HLSL. Compile diagnostics are
	// reduced to a single error line the way shader toolchains report them.
	//
	// Parameters:
	//   - path: the root WGSL source file
	//   - entryPoint: the entry point to compile for
	//   - profile: the resolved shader profile
	//
	// Returns:
	//   - *Blob: the compiled blob
	//   - error: a single-line diagnostic on failure
	Compile(path, entryPoint string, profile Profile) (*Blob, error)

	// Reflect extracts binding and signature information from a compiled blob.
	//
	// Parameters:
	//   - blob: a blob produced by Compile
	//
	// Returns:
	//   - *Reflection: the blob's binding and signature description
	//   - error: an error if the blob carries no module
	Reflect(blob *Blob) (*Reflection, error)
}

var _ Compiler = &compiler{}

func (c *compiler) Compile(path, entryPoint string, profile Profile) (*Blob, error) {
	source, err := c.inc.Process(path)
	if err != nil {
		return nil, err
	}

	ast, err := naga.Parse(source)
	if err != nil {
		return nil, errors.New(extractDiagnostic(err))
	}

	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, errors.New(extractDiagnostic(err))
	}

	validationErrors, err := naga.Validate(module)
	if err != nil {
		return nil, errors.New(extractDiagnostic(err))
	}
	if len(validationErrors) > 0 {
		return nil, errors.New(extractDiagnostic(&validationErrors[0]))
	}

	if ep := findEntryPoint(module, entryPoint); ep == nil {
		return nil, fmt.Errorf("entry point '%s' not found in '%s'", entryPoint, path)
	} else if ep.Stage != stageToIR(profile.Stage) {
		return nil, fmt.Errorf("entry point '%s' is not a %s shader", entryPoint, profile.Stage)
	}

	code, err := naga.GenerateSPIRV(module, spirv.Options{
		Version: c.spirvVersion,
		Debug:   c.debug,
	})
	if err != nil {
		return nil, errors.New(extractDiagnostic(err))
	}

	blob := &Blob{
		SPIRV:      code,
		Source:     source,
		Path:       path,
		EntryPoint: entryPoint,
		Profile:    profile,
		module:     module,
	}

	if profile.Legacy {
		opts := hlsl.DefaultOptions()
		opts.ShaderModel = profile.ShaderModel()
		opts.EntryPoint = entryPoint
		translated, _, err := hlsl.Compile(module, opts)
		if err != nil {
			return nil, errors.New(extractDiagnostic(err))
		}
		blob.HLSL = translated
	}

	return blob, nil
}

func (c *compiler) Reflect(blob *Blob) (*Reflection, error) {
	if blob == nil || blob.module == nil {
		return nil, fmt.Errorf("cannot reflect shader: blob carries no module")
	}
	return reflectModule(blob.module, blob.EntryPoint)
}

// findEntryPoint locates a module entry point by name.
func findEntryPoint(m *ir.Module, name string) *ir.EntryPoint {
	for i := range m.EntryPoints {
		if m.EntryPoints[i].Name == name {
			return &m.EntryPoints[i]
		}
	}
	return nil
}

// stageToIR maps a profile stage onto the IR stage enum.
func stageToIR(s Stage) ir.ShaderStage {
	if s == StageVertex {
		return ir.StageVertex
	}
	return ir.StageFragment
}

// extractDiagnostic reduces multi-line compiler output to the single most
// useful line: the first line carrying an error token, else the first line of
// the raw text.
func extractDiagnostic(err error) string {
	text := err.Error()

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		pos := strings.Index(line, "error")
		if pos == 0 || (pos > 0 && line[pos-1] == ' ') {
			return line
		}
	}

	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	if text == "" {
		return "unknown error"
	}
	return text
}
