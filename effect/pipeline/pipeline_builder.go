package pipeline

import (
	"github.com/Carmen-Shannon/oxy-fx/effect/compiler"
)

// ParseOption is a functional option for configuring pipeline construction.
type ParseOption func(*parseOptions)

type parseOptions struct {
	profiling      bool
	compileWorkers int
	comp           compiler.Compiler
}

func applyParseOptions(opts []ParseOption) parseOptions {
	o := parseOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.comp == nil {
		o.comp = compiler.NewCompiler()
	}
	return o
}

// WithProfiling forces GPU pass timing on regardless of the preset's
// shader_show_stats setting.
//
// Parameters:
//   - enabled: whether to activate timing queries
//
// Returns:
//   - ParseOption: the option to apply
func WithProfiling(enabled bool) ParseOption {
	return func(o *parseOptions) {
		o.profiling = enabled
	}
}

// WithCompileWorkers bounds the worker pool compiling the preset's shader
// stages. Zero or negative selects one worker per spare CPU.
//
// Parameters:
//   - count: the pool size
//
// Returns:
//   - ParseOption: the option to apply
func WithCompileWorkers(count int) ParseOption {
	return func(o *parseOptions) {
		o.compileWorkers = count
	}
}

// WithCompiler substitutes the shader compiler used during construction.
//
// Parameters:
//   - c: the compiler instance
//
// Returns:
//   - ParseOption: the option to apply
func WithCompiler(c compiler.Compiler) ParseOption {
	return func(o *parseOptions) {
		if c != nil {
			o.comp = c
		}
	}
}
