package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// whitespace is the trim cut-set applied to lines, keys, and unquoted values.
const whitespace = " \r\n\t\v"

// Parse reads the property language from r. Each non-blank, non-comment line is
// `key=value` or `key="quoted value"`; `#` and `//` start comment lines, and an
// unquoted value is terminated by `#`. The first malformed line aborts the parse
// with an error carrying its 1-based line number.
//
// Parameters:
//   - r: the config text source
//
// Returns:
//   - *Properties: the parsed property bag
//   - error: a parse error naming the offending line, or a read error
func Parse(r io.Reader) (*Properties, error) {
	props := &Properties{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := parseLine(props, scanner.Text()); err != nil {
			return nil, fmt.Errorf("parse error at line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse error at line %d: %w", lineNo+1, err)
	}
	return props, nil
}

// ParseFile opens and parses a config file from disk.
//
// Parameters:
//   - path: the config file path
//
// Returns:
//   - *Properties: the parsed property bag
//   - error: a parse error or file access error
func ParseFile(path string) (*Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func parseLine(props *Properties, raw string) error {
	s := strings.Trim(raw, whitespace)
	if s == "" || s[0] == '#' || strings.HasPrefix(s, "//") {
		return nil
	}

	// The key ends at the first '=' or comment character, whichever comes first.
	sep := strings.IndexAny(s, "#=")
	if sep < 0 || s[sep] == '#' {
		return fmt.Errorf("expected '=' after key")
	}

	key := strings.TrimRight(s[:sep], whitespace)
	if key == "" {
		return fmt.Errorf("expected key")
	}

	rest := strings.TrimLeft(s[sep+1:], whitespace)
	if rest == "" || rest[0] == '#' {
		return fmt.Errorf("expected value")
	}

	var value string
	if rest[0] == '"' {
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			return fmt.Errorf("missing '\"' at end of value string")
		}
		value = rest[1 : 1+end]

		residue := strings.TrimLeft(rest[2+end:], whitespace)
		if residue != "" && residue[0] != '#' && !strings.HasPrefix(residue, "//") {
			return fmt.Errorf("expected end of line")
		}
	} else {
		if hash := strings.IndexByte(rest, '#'); hash >= 0 {
			rest = rest[:hash]
		}
		value = strings.TrimRight(rest, whitespace)
	}

	if !props.add(key, value) {
		return fmt.Errorf("duplicate key '%s'", key)
	}
	return nil
}
