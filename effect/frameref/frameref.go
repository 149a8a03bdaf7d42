// Package frameref resolves the reserved shader parameter names (IN, ORIG,
// PREVn, PASSn, PASSPREVn) into references to a pass output and a history
// depth, relative to the pass whose shader is being processed.
package frameref

import (
	"fmt"
	"strconv"
)

// Ref is a resolved frame reference. PassIndex addresses a row of the pipeline's
// texture spec grid (0 = original source, i+1 = pass i output in pipeline terms;
// here it is the pass-relative row used by the resolver). ElementIndex selects a
// history depth within that row, 0 being the most recent frame.
type Ref struct {
	Valid        bool
	PassIndex    uint32
	ElementIndex uint32
}

// Parse resolves a shader parameter or texture name into a frame reference.
// It is pure and total: unrecognized names return an invalid Ref with no error
// so the caller can fall back to custom-texture or unbound handling. Recognized
// names with out-of-range indices, or references to passes at or after the
// current one, return an error naming the pass and the parameter.
//
// Resolution rules:
//   - IN          -> (currentPassIndex, 0), the pass's own input
//   - ORIG        -> (0, 0), the original source
//   - PREV        -> (0, 1); PREVn with n in [1,6] -> (0, n+1)
//   - PASSPREV    -> (currentPassIndex-1, 0); PASSPREVn -> (currentPassIndex-(n+1), 0)
//   - PASSn       -> (n, 0) with 1 <= n < currentPassIndex
//
// A single leading '$' is stripped before matching, so constant-table style
// names like $ORIG resolve the same as ORIG.
//
// Parameters:
//   - name: the parameter or texture name to resolve
//   - currentPassIndex: the index of the pass whose shader is being processed
//
// Returns:
//   - Ref: the resolved reference, or an invalid Ref for non-reference names
//   - error: non-nil only for recognized reference names with invalid indices
func Parse(name string, currentPassIndex uint32) (Ref, error) {
	if name == "" {
		return Ref{}, nil
	}
	if name[0] == '$' {
		name = name[1:]
	}

	if name == "IN" {
		return Ref{Valid: true, PassIndex: currentPassIndex}, nil
	}
	if len(name) < 4 {
		return Ref{}, nil
	}
	if name == "ORIG" {
		return Ref{Valid: true}, nil
	}

	base, index, hasIndex, ok := splitTrailingIndex(name)
	if !ok {
		return Ref{}, nil
	}

	switch base {
	case "PREV":
		if hasIndex && (index < 1 || index > 6) {
			return Ref{}, refError(currentPassIndex, base)
		}
		return Ref{Valid: true, PassIndex: 0, ElementIndex: index + 1}, nil

	case "PASSPREV":
		// PASSPREV is one pass behind IN, PASSPREV1 two passes behind, etc.
		if (hasIndex && index == 0) || index >= currentPassIndex {
			return Ref{}, refError(currentPassIndex, base)
		}
		return Ref{Valid: true, PassIndex: currentPassIndex - (index + 1)}, nil

	case "PASS":
		if !hasIndex || index < 1 || index+1 > currentPassIndex {
			return Ref{}, refError(currentPassIndex, base)
		}
		return Ref{Valid: true, PassIndex: index}, nil
	}

	return Ref{}, nil
}

func refError(currentPassIndex uint32, name string) error {
	return fmt.Errorf("invalid reference from pass %d to parameter '%s'", currentPassIndex, name)
}

// splitTrailingIndex separates a trailing decimal suffix from name. A suffix
// that overflows uint32 makes the whole name unresolvable (ok = false) rather
// than an error, matching the treatment of unrecognized names.
func splitTrailingIndex(name string) (base string, index uint32, hasIndex, ok bool) {
	digits := 0
	for digits < len(name) {
		c := name[len(name)-1-digits]
		if c < '0' || c > '9' {
			break
		}
		digits++
	}
	if digits == 0 {
		return name, 0, false, true
	}

	v, err := strconv.ParseUint(name[len(name)-digits:], 10, 32)
	if err != nil {
		return "", 0, false, false
	}
	return name[:len(name)-digits], uint32(v), true, true
}
