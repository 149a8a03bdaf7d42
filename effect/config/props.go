// Package config implements the line-oriented key=value property language used
// by custom effect files. Keys carry an optional trailing numeric suffix which is
// split off so that families like shader0, shader1, ... can be addressed by a
// shared base name and an index.
package config

import (
	"fmt"
	"sort"
	"strconv"
)

// NoIndex is the Key.Index value for keys without a numeric suffix.
const NoIndex int32 = -1

// Key addresses one property: a base name plus an optional numeric suffix index.
// A key parsed from "shader_profile_d3d11" has base "shader_profile_d3d" and
// index 11; a key with no trailing digits has Index == NoIndex.
type Key struct {
	Base  string
	Index int32
}

// KeyOf splits a raw key name into its base name and trailing numeric index.
// The suffix is the longest run of trailing decimal digits. If the digits do
// not fit in an int32, or the whole name is digits, the name is returned intact
// with no index.
//
// Parameters:
//   - name: the raw key name as written in the config file
//
// Returns:
//   - Key: the split key
func KeyOf(name string) Key {
	digits := 0
	for digits < len(name) {
		c := name[len(name)-1-digits]
		if c < '0' || c > '9' {
			break
		}
		digits++
	}
	if digits == 0 || digits == len(name) {
		return Key{Base: name, Index: NoIndex}
	}
	idx, err := strconv.ParseInt(name[len(name)-digits:], 10, 32)
	if err != nil {
		return Key{Base: name, Index: NoIndex}
	}
	return Key{Base: name[:len(name)-digits], Index: int32(idx)}
}

// IndexedKey builds a Key from an already-split base name and index.
//
// Parameters:
//   - base: the key base name
//   - index: the numeric suffix
//
// Returns:
//   - Key: the combined key
func IndexedKey(base string, index uint32) Key {
	return Key{Base: base, Index: int32(index)}
}

// Name renders the key back to its raw config-file spelling.
//
// Returns:
//   - string: base name with the numeric suffix appended when present
func (k Key) Name() string {
	if k.Index == NoIndex {
		return k.Base
	}
	return k.Base + strconv.FormatInt(int64(k.Index), 10)
}

type propEntry struct {
	value string
	raw   string
	used  bool
}

// Properties is the parsed property bag of one effect file. Keys are unique;
// lookups record usage so that never-consulted keys can be reported after
// pipeline construction.
type Properties struct {
	entries map[Key]*propEntry
}

// Value looks up a property by raw key name, splitting the numeric suffix the
// same way the parser did.
//
// Parameters:
//   - name: the raw key name
//
// Returns:
//   - string: the property value
//   - bool: true if the key is present
func (p *Properties) Value(name string) (string, bool) {
	return p.ValueKey(KeyOf(name))
}

// ValueKey looks up a property by pre-split key.
//
// Parameters:
//   - key: the split key to look up
//
// Returns:
//   - string: the property value
//   - bool: true if the key is present
func (p *Properties) ValueKey(key Key) (string, bool) {
	e, ok := p.entries[key]
	if !ok {
		return "", false
	}
	e.used = true
	return e.value, true
}

// Has reports whether a key is present without affecting usage tracking beyond
// the lookup itself.
//
// Parameters:
//   - key: the split key to test
//
// Returns:
//   - bool: true if the key is present
func (p *Properties) Has(key Key) bool {
	_, ok := p.ValueKey(key)
	return ok
}

// Bool reads a boolean property. A present value is false only when it is
// exactly "false" or "0"; anything else is true.
//
// Parameters:
//   - key: the split key to look up
//   - defaultValue: the result when the key is absent
//
// Returns:
//   - bool: the parsed value or the default
func (p *Properties) Bool(key Key, defaultValue bool) bool {
	v, ok := p.ValueKey(key)
	if !ok {
		return defaultValue
	}
	return v != "false" && v != "0"
}

// Int reads an integer property. An absent key is not an error.
//
// Parameters:
//   - key: the split key to look up
//
// Returns:
//   - int32: the parsed value when present and well-formed
//   - bool: true if the key was present
//   - error: non-nil when the key is present but not an integer
func (p *Properties) Int(key Key) (int32, bool, error) {
	v, ok := p.ValueKey(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("expected integer for '%s'", key.Name())
	}
	return int32(n), true, nil
}

// CountIndexed returns how many consecutive keys base0, base1, ... are present,
// starting from index 0.
//
// Parameters:
//   - base: the key base name
//
// Returns:
//   - uint32: the count of consecutive indexed keys
func (p *Properties) CountIndexed(base string) uint32 {
	var n uint32
	for p.Has(IndexedKey(base, n)) {
		n++
	}
	return n
}

// UnusedKeys returns the raw names of all keys never consulted through any
// lookup, sorted for stable logging.
//
// Returns:
//   - []string: raw key names, or nil when every key was used
func (p *Properties) UnusedKeys() []string {
	var names []string
	for _, e := range p.entries {
		if !e.used {
			names = append(names, e.raw)
		}
	}
	sort.Strings(names)
	return names
}

func (p *Properties) add(rawName, value string) bool {
	key := KeyOf(rawName)
	if _, exists := p.entries[key]; exists {
		return false
	}
	if p.entries == nil {
		p.entries = make(map[Key]*propEntry)
	}
	p.entries[key] = &propEntry{value: value, raw: rawName}
	return true
}
