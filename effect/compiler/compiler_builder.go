package compiler

import "github.com/gogpu/naga/spirv"

// CompilerOption is a functional option used to configure a Compiler during
// construction.
type CompilerOption func(*compiler)

// WithIncludeProcessor replaces the compiler's include processor.
//
// Parameters:
//   - p: the include processor to use
//
// Returns:
//   - CompilerOption: a function that sets the include processor
func WithIncludeProcessor(p IncludeProcessor) CompilerOption {
	return func(c *compiler) {
		c.inc = p
	}
}

// WithDebugInfo toggles debug information in generated bytecode.
//
// Parameters:
//   - enabled: whether to emit debug names and line info
//
// Returns:
//   - CompilerOption: a function that sets the debug flag
func WithDebugInfo(enabled bool) CompilerOption {
	return func(c *compiler) {
		c.debug = enabled
	}
}

// WithSPIRVVersion overrides the generated SPIR-V version.
//
// Parameters:
//   - v: the target version
//
// Returns:
//   - CompilerOption: a function that sets the target version
func WithSPIRVVersion(v spirv.Version) CompilerOption {
	return func(c *compiler) {
		c.spirvVersion = v
	}
}

// NewCompiler creates a Compiler with default include processing and SPIR-V
// 1.3 output.
//
// Parameters:
//   - opts: optional configuration overrides
//
// Returns:
//   - Compiler: a ready-to-use compiler instance
func NewCompiler(opts ...CompilerOption) Compiler {
	c := &compiler{
		inc:          NewIncludeProcessor(),
		spirvVersion: spirv.Version1_3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
