// Copyright 2025 Binaek Sarkar
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package condition implements the Condition Compiler: lowering
// the three structured-condition shapes (all/any/not) into a single
// flat expression string the interpreter consumes.
package condition

import (
	"fmt"
	"strings"

	"github.com/ruleforge/ruleforge/xerr"
)

// Raw is the parsed-YAML shape of a condition: either a string, or a
// mapping over the combinator keys all/any/not.
type Raw struct {
	// String holds a flat condition string (mutually exclusive with Map).
	String string
	// Map holds combinator keys -> sub-conditions (mutually exclusive
	// with String). Recognized keys: "all", "any" (each a list), "not"
	// (a single condition). Any other key is rejected. Multiple sibling
	// combinators lower to the and of each.
	Map map[string]any
}

// IsString reports whether r is a flat string condition.
func (r Raw) IsString() bool { return r.Map == nil }

// Compile lowers a Raw condition tree into a single expression string
// as follows:
//
//	all: [c1, c2, ...] -> "(c1) and (c2) and ..."
//	any: [c1, c2, ...] -> "(c1) or (c2) or ..."
//	not: c             -> "not (c)"
//	{sibling keys}     -> and of each lowered child
func Compile(r Raw) (string, error) {
	if r.IsString() {
		s := strings.TrimSpace(r.String)
		if s == "" {
			return "", xerr.ErrCompilation("empty condition string")
		}
		return s, nil
	}

	if len(r.Map) == 0 {
		return "", xerr.ErrCompilation("empty combinator body")
	}
	for k := range r.Map {
		if k != "all" && k != "any" && k != "not" {
			return "", xerr.ErrCompilation("unknown combinator key %q", k)
		}
	}

	// Fixed all/any/not iteration order so the lowered expression (and
	// therefore the parse cache key) is stable across runs. A mapping
	// with more than one sibling combinator lowers to the and of each.
	var parts []string
	if all, ok := r.Map["all"]; ok {
		part, err := compileList(all, " and ")
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if anyC, ok := r.Map["any"]; ok {
		part, err := compileList(anyC, " or ")
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if not, ok := r.Map["not"]; ok {
		child, err := compileChild(not)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("not (%s)", child))
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	wrapped := make([]string, len(parts))
	for i, p := range parts {
		wrapped[i] = "(" + p + ")"
	}
	return strings.Join(wrapped, " and "), nil
}

func compileList(raw any, joiner string) (string, error) {
	list, ok := raw.([]any)
	if !ok {
		return "", xerr.ErrCompilation("all/any must be a list of conditions")
	}
	if len(list) == 0 {
		return "", xerr.ErrCompilation("empty combinator body")
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		child, err := compileChild(item)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("(%s)", child))
	}
	return strings.Join(parts, joiner), nil
}

// compileChild lowers a single child, which may itself be a flat
// string or a nested mapping (recursive all/any/not).
func compileChild(item any) (string, error) {
	switch t := item.(type) {
	case string:
		return Compile(Raw{String: t})
	case map[string]any:
		return Compile(Raw{Map: t})
	case Raw:
		return Compile(t)
	default:
		return "", xerr.ErrCompilation("unsupported condition node of type %T", item)
	}
}
