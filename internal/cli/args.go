// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits command arguments into flags and positionals. It accepts
// --flag value, --flag=value, -f value and bare boolean flags. A lone "-"
// is a value (stdin) after a flag and a positional elsewhere.
//
// A flag followed by a non-flag argument takes it as its value unless the
// flag was declared boolean, so "--json show" keeps "show" positional.
type ArgParser struct {
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw. boolNames lists flags that never take a value.
func NewArgParser(raw []string, boolNames ...string) *ArgParser {
	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
		raw:       raw,
	}
	isBool := make(map[string]bool, len(boolNames))
	for _, n := range boolNames {
		isBool[strings.TrimLeft(n, "-")] = true
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch {
		case hasValue && isBool[name]:
			b, err := ParseBoolString(value)
			p.boolFlags[name] = err == nil && b
		case hasValue:
			p.flags[name] = value
		case isBool[name]:
			p.boolFlags[name] = true
		case i+1 < len(raw) && (raw[i+1] == "-" || !strings.HasPrefix(raw[i+1], "-")):
			p.flags[name] = raw[i+1]
			i++
		default:
			p.boolFlags[name] = true
		}
	}
	return p
}

// Subcommand returns the first positional argument.
func (p *ArgParser) Subcommand() string {
	return p.Positional(0)
}

// Flag returns the value of a string flag, trying each name in turn.
func (p *ArgParser) Flag(names ...string) string {
	for _, n := range names {
		if v, ok := p.flags[strings.TrimLeft(n, "-")]; ok {
			return v
		}
	}
	return ""
}

// FlagOrDefault returns the flag value or def if it is unset.
func (p *ArgParser) FlagOrDefault(name, def string) string {
	if v := p.Flag(name); v != "" {
		return v
	}
	return def
}

// FlagInt returns the flag as an integer.
func (p *ArgParser) FlagInt(name string) (int, error) {
	v := p.Flag(name)
	if v == "" {
		return 0, fmt.Errorf("flag %s not found", name)
	}
	return strconv.Atoi(v)
}

// BoolFlag reports whether any of the named boolean flags is set.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, n := range names {
		if p.boolFlags[strings.TrimLeft(n, "-")] {
			return true
		}
	}
	return false
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns the positional arguments from index on.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return []string{}
	}
	return p.positional[index:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// HasFlag reports whether the flag was given in either form.
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, s := p.flags[name]
	_, b := p.boolFlags[name]
	return s || b
}

// Raw returns the unparsed arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// =============================================================================
// HELPERS
// =============================================================================

// ParseIntWithValidation parses a positive integer.
func ParseIntWithValidation(s string, fieldName string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", fieldName)
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", fieldName, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", fieldName, val)
	}
	return val, nil
}

// ParseBoolString accepts true/false, yes/no, y/n, 1/0 and on/off.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// JoinPositionalArgs joins the positionals from startIndex with spaces.
func JoinPositionalArgs(parser *ArgParser, startIndex int) string {
	return strings.Join(parser.PositionalFrom(startIndex), " ")
}
