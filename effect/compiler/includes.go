// includes.go implements the WGSL include pre-processor for effect shaders.
// Effect passes share helper code through single-line //@oxy:include comments;
// the processor splices the named files in place before the source reaches the
// shader compiler. Paths resolve relative to the directory of the including
// file, so shared headers can sit next to the pass that pulls them in.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// includePrefix is the marker that identifies an effect annotation within a
// WGSL comment line.
const includePrefix = "@oxy:"

const (
	// defaultMaxIncludeSize caps each spliced file.
	defaultMaxIncludeSize = 0xFFFFFF

	// defaultMaxIncludeDepth bounds nesting and breaks include cycles.
	defaultMaxIncludeDepth = 16
)

// includeProcessor is the implementation of the IncludeProcessor interface.
type includeProcessor struct {
	maxFileSize int64
	maxDepth    int
}

// IncludeProcessor expands //@oxy:include annotations in a WGSL source file,
// producing a single flattened source string ready for compilation.
type IncludeProcessor interface {
	// Process reads the file at path and recursively splices every
	// //@oxy:include annotation with the contents of the referenced file.
	// Include paths resolve relative to the directory of the file containing
	// the annotation.
	//
	// Parameters:
	//   - path: the root WGSL source file
	//
	// Returns:
	//   - string: the flattened source
	//   - error: an error if the root file cannot be read, an annotation is
	//     malformed, or an included file is missing, oversized, or nested too
	//     deeply
	Process(path string) (string, error)
}

var _ IncludeProcessor = &includeProcessor{}

// IncludeOption is a functional option used to configure an IncludeProcessor
// during construction.
type IncludeOption func(*includeProcessor)

// WithMaxIncludeSize overrides the per-file size cap for included files.
//
// Parameters:
//   - size: the maximum included file size in bytes
//
// Returns:
//   - IncludeOption: a function that sets the size cap
func WithMaxIncludeSize(size int64) IncludeOption {
	return func(p *includeProcessor) {
		p.maxFileSize = size
	}
}

// WithMaxIncludeDepth overrides the include nesting limit.
//
// Parameters:
//   - depth: the maximum include nesting depth
//
// Returns:
//   - IncludeOption: a function that sets the depth limit
func WithMaxIncludeDepth(depth int) IncludeOption {
	return func(p *includeProcessor) {
		p.maxDepth = depth
	}
}

// NewIncludeProcessor creates an IncludeProcessor with the default size and
// depth limits applied.
//
// Parameters:
//   - opts: optional configuration overrides
//
// Returns:
//   - IncludeProcessor: a ready-to-use processor instance
func NewIncludeProcessor(opts ...IncludeOption) IncludeProcessor {
	p := &includeProcessor{
		maxFileSize: defaultMaxIncludeSize,
		maxDepth:    defaultMaxIncludeDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *includeProcessor) Process(path string) (string, error) {
	return p.expand(path, 0)
}

// expand reads one file and splices its includes. depth counts how many
// include levels lead to this file; the root file is depth 0 and is not
// subject to the per-file size cap.
func (p *includeProcessor) expand(path string, depth int) (string, error) {
	if depth > p.maxDepth {
		return "", fmt.Errorf("include depth limit exceeded at %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if depth > 0 && int64(len(data)) > p.maxFileSize {
		return "", fmt.Errorf("include file %q exceeds the maximum include size", path)
	}

	base := filepath.Dir(path)
	lines := strings.Split(string(data), "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		name, ok, err := parseIncludeAnnotation(line, i+1)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		if !ok {
			out = append(out, line)
			continue
		}

		incPath := filepath.Join(base, filepath.FromSlash(name))
		sub, err := p.expand(incPath, depth+1)
		if err != nil {
			return "", fmt.Errorf("%s line %d: cannot include %q: %w", path, i+1, name, err)
		}
		out = append(out, sub)
	}

	return strings.Join(out, "\n"), nil
}

// parseIncludeAnnotation attempts to parse a single source line as an
// @oxy:include annotation. Returns ok=false with no error for lines that do
// not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - string: the include path argument
//   - bool: true if the line is an include annotation
//   - error: a descriptive error if the annotation is malformed
func parseIncludeAnnotation(line string, lineNum int) (string, bool, error) {
	trimmed := strings.TrimSpace(line)
	_, after, ok := strings.Cut(trimmed, includePrefix)
	if !ok {
		return "", false, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return "", false, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch args[0] {
	case "include":
		if len(args) != 2 {
			return "", false, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		name := strings.Trim(args[1], `"`)
		if name == "" {
			return "", false, fmt.Errorf("line %d: empty path in @oxy include annotation", lineNum)
		}
		return name, true, nil
	default:
		return "", false, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
