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


package registry

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ruleforge/ruleforge/value"
)

// builtins is the always-present tier. Each validates its own arity.
var builtins = map[string]Function{
	"len":        builtinLen,
	"sum":        builtinSum,
	"abs":        builtinAbs,
	"min":        builtinMin,
	"max":        builtinMax,
	"round":      builtinRound,
	"floor":      builtinFloor,
	"ceil":       builtinCeil,
	"startswith": builtinStartsWith,
	"endswith":   builtinEndsWith,
	"contains":   builtinContains,
	"upper":      builtinUpper,
	"lower":      builtinLower,
	"trim":       builtinTrim,
	"concat":     builtinConcat,

	"semver_compare":   builtinSemverCompare,
	"semver_satisfies": builtinSemverSatisfies,
}

func arityError(name string, want, got int) error {
	return fmt.Errorf("%s requires %d argument(s), got %d", name, want, got)
}

func builtinLen(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), arityError("len", 1, len(args))
	}
	switch args[0].Kind() {
	case value.KindString:
		s, _ := args[0].AsString()
		return value.Int(int64(len(s))), nil
	case value.KindList:
		l, _ := args[0].AsList()
		return value.Int(int64(len(l))), nil
	case value.KindMapping:
		m, _ := args[0].AsMapping()
		return value.Int(int64(len(m))), nil
	default:
		return value.Int(0), nil
	}
}

func builtinSum(_ context.Context, args []value.Value) (value.Value, error) {
	var items []value.Value
	if len(args) == 1 && args[0].Kind() == value.KindList {
		items, _ = args[0].AsList()
	} else {
		items = args
	}
	var total float64
	allInt := true
	for _, it := range items {
		if !it.IsNumeric() {
			return value.Null(), fmt.Errorf("sum: non-numeric element %s", it)
		}
		if it.Kind() != value.KindInt {
			allInt = false
		}
		total += it.Float64()
	}
	if allInt {
		return value.Int(int64(total)), nil
	}
	return value.Float(total), nil
}

func builtinAbs(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 || !args[0].IsNumeric() {
		return value.Null(), arityError("abs", 1, len(args))
	}
	if args[0].Kind() == value.KindInt {
		i, _ := args[0].AsInt()
		if i < 0 {
			i = -i
		}
		return value.Int(i), nil
	}
	return value.Float(math.Abs(args[0].Float64())), nil
}

func builtinMin(_ context.Context, args []value.Value) (value.Value, error) {
	return numericFold("min", args, func(a, b float64) bool { return a < b })
}

func builtinMax(_ context.Context, args []value.Value) (value.Value, error) {
	return numericFold("max", args, func(a, b float64) bool { return a > b })
}

func numericFold(name string, args []value.Value, better func(a, b float64) bool) (value.Value, error) {
	items := args
	if len(args) == 1 && args[0].Kind() == value.KindList {
		items, _ = args[0].AsList()
	}
	if len(items) == 0 {
		return value.Null(), fmt.Errorf("%s requires at least 1 argument", name)
	}
	best := items[0]
	for _, it := range items[1:] {
		if !it.IsNumeric() || !best.IsNumeric() {
			return value.Null(), fmt.Errorf("%s: non-numeric element", name)
		}
		if better(it.Float64(), best.Float64()) {
			best = it
		}
	}
	return best, nil
}

func builtinRound(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 || !args[0].IsNumeric() {
		return value.Null(), arityError("round", 1, len(args))
	}
	return value.Int(int64(math.Round(args[0].Float64()))), nil
}

func builtinFloor(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 || !args[0].IsNumeric() {
		return value.Null(), arityError("floor", 1, len(args))
	}
	return value.Int(int64(math.Floor(args[0].Float64()))), nil
}

func builtinCeil(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 || !args[0].IsNumeric() {
		return value.Null(), arityError("ceil", 1, len(args))
	}
	return value.Int(int64(math.Ceil(args[0].Float64()))), nil
}

func builtinStartsWith(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Null(), arityError("startswith", 2, len(args))
	}
	s, _ := args[0].AsString()
	prefix, _ := args[1].AsString()
	return value.Bool(strings.HasPrefix(s, prefix)), nil
}

func builtinEndsWith(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Null(), arityError("endswith", 2, len(args))
	}
	s, _ := args[0].AsString()
	suffix, _ := args[1].AsString()
	return value.Bool(strings.HasSuffix(s, suffix)), nil
}

func builtinContains(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Null(), arityError("contains", 2, len(args))
	}
	switch args[0].Kind() {
	case value.KindString:
		s, _ := args[0].AsString()
		needle, _ := args[1].AsString()
		return value.Bool(strings.Contains(s, needle)), nil
	case value.KindList:
		l, _ := args[0].AsList()
		for _, e := range l {
			if value.Equal(e, args[1]) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	default:
		return value.Bool(false), nil
	}
}

func builtinUpper(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), arityError("upper", 1, len(args))
	}
	s, _ := args[0].AsString()
	return value.String(strings.ToUpper(s)), nil
}

func builtinLower(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), arityError("lower", 1, len(args))
	}
	s, _ := args[0].AsString()
	return value.String(strings.ToLower(s)), nil
}

func builtinTrim(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), arityError("trim", 1, len(args))
	}
	s, _ := args[0].AsString()
	return value.String(strings.TrimSpace(s)), nil
}

func builtinConcat(_ context.Context, args []value.Value) (value.Value, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(a.String())
	}
	return value.String(sb.String()), nil
}

// builtinSemverCompare and builtinSemverSatisfies expose semantic
// version comparison to rule conditions.
func builtinSemverCompare(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Null(), arityError("semver_compare", 2, len(args))
	}
	as, _ := args[0].AsString()
	bs, _ := args[1].AsString()
	a, err := semver.NewVersion(as)
	if err != nil {
		return value.Null(), fmt.Errorf("semver_compare: %w", err)
	}
	b, err := semver.NewVersion(bs)
	if err != nil {
		return value.Null(), fmt.Errorf("semver_compare: %w", err)
	}
	return value.Int(int64(a.Compare(b))), nil
}

func builtinSemverSatisfies(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Null(), arityError("semver_satisfies", 2, len(args))
	}
	vs, _ := args[0].AsString()
	cs, _ := args[1].AsString()
	v, err := semver.NewVersion(vs)
	if err != nil {
		return value.Null(), fmt.Errorf("semver_satisfies: %w", err)
	}
	c, err := semver.NewConstraint(cs)
	if err != nil {
		return value.Null(), fmt.Errorf("semver_satisfies: %w", err)
	}
	return value.Bool(c.Check(v)), nil
}
