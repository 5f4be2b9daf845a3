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


// Package value implements the tagged Value union: Null, Bool, Int,
// Float, String, List, and Mapping, with numeric promotion, equality,
// ordering, and truthiness.
package value

import (
	"fmt"
	"sort"

	"golang.org/x/exp/constraints"
)

// Kind tags the dynamic type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is the dynamic value type flowing through expressions and facts.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func List(vs []Value) Value      { return Value{kind: KindList, list: vs} }
func Mapping(m map[string]Value) Value {
	return Value{kind: KindMapping, m: m}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)              { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)          { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)          { return v.s, v.kind == KindString }
func (v Value) AsList() ([]Value, bool)           { return v.list, v.kind == KindList }
func (v Value) AsMapping() (map[string]Value, bool) { return v.m, v.kind == KindMapping }

// IsNumeric reports whether v is an Int or Float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// Float64 promotes an Int or Float Value to float64. Panics are avoided by
// callers checking IsNumeric first; non-numeric input returns 0.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	default:
		return 0
	}
}

// Truthy coerces v to a bool: Null/0/""/empty list/empty mapping are
// false; everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindList:
		return len(v.list) > 0
	case KindMapping:
		return len(v.m) > 0
	default:
		return false
	}
}

// Equal compares a and b with numeric promotion across Int/Float,
// lexical string comparison, Null equal only to Null, and structural
// equality for List/Mapping.
func Equal(a, b Value) bool {
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == KindNull && b.kind == KindNull
	}
	if a.IsNumeric() && b.IsNumeric() {
		return a.Float64() == b.Float64()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ErrUnorderable is returned by Compare when the two values' type classes
// cannot be ordered against each other.
type ErrUnorderable struct{ A, B Kind }

func (e ErrUnorderable) Error() string {
	return fmt.Sprintf("cannot order %s against %s", e.A, e.B)
}

// Compare returns -1/0/1 for a<b, a==b, a>b. Numeric types promote
// against each other; strings compare lexically; any other pairing
// (including against Null, List, or Mapping) is an ErrUnorderable.
func Compare(a, b Value) (int, error) {
	if a.IsNumeric() && b.IsNumeric() {
		af, bf := a.Float64(), b.Float64()
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if a.kind == KindString && b.kind == KindString {
		switch {
		case a.s < b.s:
			return -1, nil
		case a.s > b.s:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, ErrUnorderable{A: a.kind, B: b.kind}
}

// SortedKeys returns a Mapping's keys in deterministic order, used by
// trace rendering and the verdict diff.
func SortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindList:
		out := "["
		for i, e := range v.list {
			if i > 0 {
				out += ", "
			}
			out += e.String()
		}
		return out + "]"
	case KindMapping:
		out := "{"
		for i, k := range SortedKeys(v.m) {
			if i > 0 {
				out += ", "
			}
			out += k + ": " + v.m[k].String()
		}
		return out + "}"
	default:
		return "<invalid>"
	}
}

// Native converts a Value to the nearest Go "any" representation, for
// handing values to the fact map, templates, and function registry.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Native()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Native()
		}
		return out
	default:
		return nil
	}
}

// FromNative builds a Value from a Go "any" as produced by a fact source
// (YAML/JSON decode, a struct converted via fatih/structs, etc).
func FromNative(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case float32:
		return Float(float64(t))
	case string:
		return String(t)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromNative(e)
		}
		return List(out)
	case []Value:
		return List(t)
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromNative(e)
		}
		return Mapping(out)
	case map[string]Value:
		return Mapping(t)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// promote is a generic numeric coercion helper used by built-in functions
// that accept both integer and floating-point arguments uniformly.
func promote[T constraints.Integer | constraints.Float](v Value) T {
	return T(v.Float64())
}

// PromoteInt and PromoteFloat specialize promote for the two numeric
// generic families the registry's built-ins operate over.
func PromoteInt(v Value) int64     { return promote[int64](v) }
func PromoteFloat(v Value) float64 { return promote[float64](v) }
