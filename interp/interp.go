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


// Package interp implements the interpreter: recursive evaluation of a
// restricted expression AST against a fact mapping, a memoized parse
// cache, and safety bounds on expression length, recursion depth, and
// wall-clock time.
package interp

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/binaek/perch"
	"github.com/ruleforge/ruleforge/ast"
	"github.com/ruleforge/ruleforge/registry"
	"github.com/ruleforge/ruleforge/trace"
	"github.com/ruleforge/ruleforge/value"
	"github.com/ruleforge/ruleforge/xerr"
)

// Facts is the read surface the interpreter evaluates expressions
// against; execctx.Context satisfies it.
type Facts interface {
	GetFact(name string) (value.Value, bool)
}

// Limits bounds a single evaluate call.
type Limits struct {
	MaxExpressionLength int
	MaxRecursionDepth   int
	MaxEvaluationTime   time.Duration
	MaxPowExponent      float64
}

// DefaultLimits mirrors the engine's default EngineLimits.
var DefaultLimits = Limits{
	MaxExpressionLength: 4096,
	MaxRecursionDepth:   64,
	MaxEvaluationTime:   2 * time.Second,
	MaxPowExponent:      1024,
}

// Interp evaluates parsed expressions. It is engine-scoped and safe
// for concurrent use: the only mutable state is the parse cache, which
// perch itself synchronizes.
type Interp struct {
	registry *registry.Registry
	limits   Limits
	cache    *perch.Perch[ast.Expression]
}

// New builds an Interp with a parse cache bounded to cacheEntries
// cached ASTs; perch preallocates its slot table, so the capacity is
// an entry count, not a byte budget.
func New(reg *registry.Registry, limits Limits, cacheEntries int) *Interp {
	if cacheEntries <= 0 {
		cacheEntries = 1024
	}
	return &Interp{
		registry: reg,
		limits:   limits,
		cache:    perch.New[ast.Expression](cacheEntries),
	}
}

// Parse returns the cached AST for source, parsing it on a cache miss.
// The parser builds only the whitelisted node types, so no separate
// whitelist pass runs before an AST is cached.
func (ip *Interp) Parse(ctx context.Context, source string) (ast.Expression, error) {
	if len(source) > ip.limits.MaxExpressionLength {
		return nil, xerr.ErrSecurity("expression length %d exceeds max %d", len(source), ip.limits.MaxExpressionLength)
	}
	expr, _, err := ip.cache.Get(ctx, source, 365*24*time.Hour, func(_ context.Context, src string) (ast.Expression, error) {
		e, err := ast.ParseExpression(src)
		if err != nil {
			return nil, xerr.ErrParse(src, err)
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return expr, nil
}

// Result is what Evaluate returns: the value plus every field name
// actually read (short-circuited branches contribute nothing).
type Result struct {
	Value      value.Value
	FieldReads map[string]value.Value
	Missing    map[string]bool
}

func newResult() *Result {
	return &Result{FieldReads: map[string]value.Value{}, Missing: map[string]bool{}}
}

func (r *Result) merge(o *Result) {
	for k, v := range o.FieldReads {
		r.FieldReads[k] = v
	}
	for k := range o.Missing {
		r.Missing[k] = true
	}
}

type evalState struct {
	ctx      context.Context
	facts    Facts
	deadline time.Time
}

// Evaluate runs expr against facts and returns its value plus the set
// of fields read while computing it.
func (ip *Interp) Evaluate(ctx context.Context, expr ast.Expression, facts Facts) (*Result, error) {
	res, _, err := ip.evaluateTraced(ctx, expr, facts, false)
	return res, err
}

// EvaluateWithTrace is like Evaluate but also returns the step tree.
func (ip *Interp) EvaluateWithTrace(ctx context.Context, expr ast.Expression, facts Facts) (*Result, *trace.Node, error) {
	return ip.evaluateTraced(ctx, expr, facts, true)
}

// EvaluateBool evaluates expr and coerces the result to a bool via
// truthiness.
func (ip *Interp) EvaluateBool(ctx context.Context, expr ast.Expression, facts Facts) (bool, *Result, error) {
	res, err := ip.Evaluate(ctx, expr, facts)
	if err != nil {
		return false, res, err
	}
	return res.Value.Truthy(), res, nil
}

func (ip *Interp) evaluateTraced(ctx context.Context, expr ast.Expression, facts Facts, withTrace bool) (*Result, *trace.Node, error) {
	deadline := time.Now().Add(ip.limits.MaxEvaluationTime)
	st := &evalState{ctx: ctx, facts: facts, deadline: deadline}
	v, reads, missing, root, err := ip.eval(st, expr, 0, withTrace)
	r := newResult()
	r.Value = v
	for k, val := range reads {
		r.FieldReads[k] = val
	}
	for k := range missing {
		r.Missing[k] = true
	}
	return r, root, err
}

func (ip *Interp) checkBounds(st *evalState, depth int) error {
	if depth > ip.limits.MaxRecursionDepth {
		return xerr.ErrSecurity("recursion depth %d exceeds max %d", depth, ip.limits.MaxRecursionDepth)
	}
	if err := st.ctx.Err(); err != nil {
		return xerr.ErrCancelled("")
	}
	if time.Now().After(st.deadline) {
		return xerr.ErrSecurity("evaluation exceeded max wall-clock time %s", ip.limits.MaxEvaluationTime)
	}
	return nil
}

// eval is the recursive core. It returns the value, the field reads
// observed (name -> value for present fields), the missing-field
// names observed, an optional step node (non-nil only when withTrace),
// and an error.
func (ip *Interp) eval(st *evalState, e ast.Expression, depth int, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	if err := ip.checkBounds(st, depth); err != nil {
		return value.Null(), nil, nil, nil, err
	}

	switch n := e.(type) {
	case *ast.Literal:
		return ip.evalLiteral(n, withTrace)
	case *ast.Name:
		return ip.evalName(st, n, withTrace)
	case *ast.UnaryOp:
		return ip.evalUnary(st, n, depth, withTrace)
	case *ast.BinOp:
		return ip.evalBinOp(st, n, depth, withTrace)
	case *ast.BoolOp:
		return ip.evalBoolOp(st, n, depth, withTrace)
	case *ast.Compare:
		return ip.evalCompare(st, n, depth, withTrace)
	case *ast.Call:
		return ip.evalCall(st, n, depth, withTrace)
	case *ast.List:
		return ip.evalList(st, n, depth, withTrace)
	case *ast.Subscript:
		return ip.evalSubscript(st, n, depth, withTrace)
	case *ast.IfExp:
		return ip.evalIfExp(st, n, depth, withTrace)
	default:
		return value.Null(), nil, nil, nil, xerr.ErrSecurity("unsupported AST node %T", e)
	}
}

func stepFor(withTrace bool, kind, op string, n ast.Node, meta map[string]any) (*trace.Node, trace.DoneFn) {
	if !withTrace {
		return nil, func() {}
	}
	return trace.New(kind, op, n, meta)
}

func (ip *Interp) evalLiteral(n *ast.Literal, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	step, done := stepFor(withTrace, "literal", "", n, nil)
	done()
	if step != nil {
		step.SetResult(n.Value.Native())
	}
	return n.Value, nil, nil, step, nil
}

func (ip *Interp) evalName(st *evalState, n *ast.Name, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	step, done := stepFor(withTrace, "identifier", n.Identifier, n, nil)
	v, ok := st.facts.GetFact(n.Identifier)
	done()
	reads := map[string]value.Value{}
	missing := map[string]bool{}
	if !ok {
		missing[n.Identifier] = true
		if step != nil {
			step.SetResult(nil)
			step.Meta = map[string]any{"missing": true}
		}
		return value.Null(), reads, missing, step, nil
	}
	reads[n.Identifier] = v
	if step != nil {
		step.SetResult(v.Native())
	}
	return v, reads, missing, step, nil
}

func mergeMaps(dst map[string]value.Value, src map[string]value.Value) map[string]value.Value {
	if dst == nil {
		dst = map[string]value.Value{}
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func mergeBools(dst map[string]bool, src map[string]bool) map[string]bool {
	if dst == nil {
		dst = map[string]bool{}
	}
	for k := range src {
		dst[k] = true
	}
	return dst
}

func (ip *Interp) evalUnary(st *evalState, n *ast.UnaryOp, depth int, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	step, done := stepFor(withTrace, "unary", unaryOpName(n.Op), n, nil)
	v, reads, missing, child, err := ip.eval(st, n.Operand, depth+1, withTrace)
	if step != nil {
		step.Attach(child)
	}
	done()
	if err != nil {
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}

	var result value.Value
	switch n.Op {
	case ast.UnaryNot:
		result = value.Bool(!v.Truthy())
	case ast.UnaryPlus:
		if !v.IsNumeric() {
			err = xerr.ErrEvaluation(n.String(), "unary + requires a numeric operand")
		} else {
			result = v
		}
	case ast.UnaryMinus:
		if !v.IsNumeric() {
			err = xerr.ErrEvaluation(n.String(), "unary - requires a numeric operand")
		} else if v.Kind() == value.KindInt {
			i, _ := v.AsInt()
			result = value.Int(-i)
		} else {
			fv, _ := v.AsFloat()
			result = value.Float(-fv)
		}
	default:
		err = xerr.ErrEvaluation(n.String(), "unsupported unary operator")
	}
	if err != nil && step != nil {
		step.SetErr(err)
	}
	if step != nil && err == nil {
		step.SetResult(result.Native())
	}
	return result, reads, missing, step, err
}

func unaryOpName(op ast.UnaryOperator) string {
	switch op {
	case ast.UnaryNot:
		return "not"
	case ast.UnaryPlus:
		return "+"
	case ast.UnaryMinus:
		return "-"
	default:
		return "?"
	}
}

func (ip *Interp) evalBinOp(st *evalState, n *ast.BinOp, depth int, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	step, done := stepFor(withTrace, "infix", binOpName(n.Op), n, nil)
	lv, lreads, lmissing, lstep, err := ip.eval(st, n.Left, depth+1, withTrace)
	if err != nil {
		if step != nil {
			step.Attach(lstep)
			step.SetErr(err)
		}
		done()
		return value.Null(), lreads, lmissing, step, err
	}
	rv, rreads, rmissing, rstep, err := ip.eval(st, n.Right, depth+1, withTrace)
	reads := mergeMaps(lreads, rreads)
	missing := mergeBools(lmissing, rmissing)
	if step != nil {
		step.Attach(lstep, rstep)
	}
	done()
	if err != nil {
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}

	result, err := applyBinOp(n.Op, lv, rv, ip.limits.MaxPowExponent)
	if err != nil {
		err = xerr.ErrEvaluation(n.String(), err.Error())
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}
	if step != nil {
		step.SetResult(result.Native())
	}
	return result, reads, missing, step, nil
}

func binOpName(op ast.BinOperator) string {
	switch op {
	case ast.BinAdd:
		return "+"
	case ast.BinSub:
		return "-"
	case ast.BinMul:
		return "*"
	case ast.BinDiv:
		return "/"
	case ast.BinMod:
		return "%"
	case ast.BinPow:
		return "**"
	default:
		return "?"
	}
}

func applyBinOp(op ast.BinOperator, l, r value.Value, maxPow float64) (value.Value, error) {
	switch op {
	case ast.BinAdd:
		if l.Kind() == value.KindString && r.Kind() == value.KindString {
			ls, _ := l.AsString()
			rs, _ := r.AsString()
			return value.String(ls + rs), nil
		}
		if l.Kind() == value.KindList && r.Kind() == value.KindList {
			ll, _ := l.AsList()
			rl, _ := r.AsList()
			return value.List(append(append([]value.Value{}, ll...), rl...)), nil
		}
		return numericBinOp(l, r, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	case ast.BinSub:
		return numericBinOp(l, r, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	case ast.BinMul:
		return numericBinOp(l, r, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	case ast.BinDiv:
		if !l.IsNumeric() || !r.IsNumeric() {
			return value.Null(), xerr.ErrEvaluation("/", "division requires numeric operands")
		}
		if r.Float64() == 0 {
			return value.Null(), xerr.ErrEvaluation("/", "division by zero")
		}
		return value.Float(l.Float64() / r.Float64()), nil
	case ast.BinMod:
		if !l.IsNumeric() || !r.IsNumeric() {
			return value.Null(), xerr.ErrEvaluation("%", "modulo requires numeric operands")
		}
		if r.Float64() == 0 {
			return value.Null(), xerr.ErrEvaluation("%", "modulo by zero")
		}
		if l.Kind() == value.KindInt && r.Kind() == value.KindInt {
			li, _ := l.AsInt()
			ri, _ := r.AsInt()
			return value.Int(li % ri), nil
		}
		return value.Float(math.Mod(l.Float64(), r.Float64())), nil
	case ast.BinPow:
		if !l.IsNumeric() || !r.IsNumeric() {
			return value.Null(), xerr.ErrEvaluation("**", "exponentiation requires numeric operands")
		}
		if math.Abs(r.Float64()) > maxPow {
			return value.Null(), xerr.ErrEvaluation("**", "exponent magnitude exceeds configured bound")
		}
		return value.Float(math.Pow(l.Float64(), r.Float64())), nil
	default:
		return value.Null(), xerr.ErrEvaluation("?", "unsupported binary operator")
	}
}

func numericBinOp(l, r value.Value, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) (value.Value, error) {
	if !l.IsNumeric() || !r.IsNumeric() {
		return value.Null(), xerr.ErrEvaluation("", "arithmetic requires numeric operands")
	}
	if l.Kind() == value.KindInt && r.Kind() == value.KindInt {
		li, _ := l.AsInt()
		ri, _ := r.AsInt()
		return value.Int(intOp(li, ri)), nil
	}
	return value.Float(floatOp(l.Float64(), r.Float64())), nil
}

func (ip *Interp) evalBoolOp(st *evalState, n *ast.BoolOp, depth int, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	opName := "and"
	if n.Op == ast.BoolOr {
		opName = "or"
	}
	step, done := stepFor(withTrace, "infix", opName, n, nil)

	reads := map[string]value.Value{}
	missing := map[string]bool{}
	var last value.Value = value.Bool(n.Op == ast.BoolAnd)
	for _, v := range n.Values {
		val, r, m, child, err := ip.eval(st, v, depth+1, withTrace)
		reads = mergeMaps(reads, r)
		missing = mergeBools(missing, m)
		if step != nil {
			step.Attach(child)
		}
		if err != nil {
			done()
			if step != nil {
				step.SetErr(err)
			}
			return value.Null(), reads, missing, step, err
		}
		last = val
		if n.Op == ast.BoolAnd && !val.Truthy() {
			break
		}
		if n.Op == ast.BoolOr && val.Truthy() {
			break
		}
	}
	done()
	if step != nil {
		step.SetResult(last.Native())
	}
	return last, reads, missing, step, nil
}

func (ip *Interp) evalCompare(st *evalState, n *ast.Compare, depth int, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	step, done := stepFor(withTrace, "compare", "", n, nil)

	reads := map[string]value.Value{}
	missing := map[string]bool{}
	left, r, m, lchild, err := ip.eval(st, n.Left, depth+1, withTrace)
	reads = mergeMaps(reads, r)
	missing = mergeBools(missing, m)
	if step != nil {
		step.Attach(lchild)
	}
	if err != nil {
		done()
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}

	result := true
	for i, op := range n.Ops {
		right, r, m, rchild, err := ip.eval(st, n.Comparators[i], depth+1, withTrace)
		reads = mergeMaps(reads, r)
		missing = mergeBools(missing, m)
		if step != nil {
			step.Attach(rchild)
		}
		if err != nil {
			done()
			if step != nil {
				step.SetErr(err)
			}
			return value.Null(), reads, missing, step, err
		}

		ok, cerr := applyCompareOp(op, left, right)
		if cerr != nil {
			done()
			cerr = xerr.ErrEvaluation(n.String(), cerr.Error())
			if step != nil {
				step.SetErr(cerr)
			}
			return value.Null(), reads, missing, step, cerr
		}
		if !ok {
			result = false
			break
		}
		left = right
	}
	done()
	if step != nil {
		step.SetResult(result)
	}
	return value.Bool(result), reads, missing, step, nil
}

func applyCompareOp(op ast.CompareOperator, l, r value.Value) (bool, error) {
	switch op {
	case ast.CmpEq:
		return value.Equal(l, r), nil
	case ast.CmpNe:
		return !value.Equal(l, r), nil
	case ast.CmpLt, ast.CmpLe, ast.CmpGt, ast.CmpGe:
		c, err := value.Compare(l, r)
		if err != nil {
			return false, err
		}
		switch op {
		case ast.CmpLt:
			return c < 0, nil
		case ast.CmpLe:
			return c <= 0, nil
		case ast.CmpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case ast.CmpIn, ast.CmpNotIn:
		found, err := containerHas(r, l)
		if err != nil {
			return false, err
		}
		if op == ast.CmpNotIn {
			return !found, nil
		}
		return found, nil
	case ast.CmpIs:
		return sameNullity(l, r), nil
	case ast.CmpIsNot:
		return !sameNullity(l, r), nil
	default:
		return false, xerr.ErrEvaluation("", "unsupported compare operator")
	}
}

func sameNullity(l, r value.Value) bool {
	return (l.Kind() == value.KindNull) == (r.Kind() == value.KindNull)
}

func containerHas(container, needle value.Value) (bool, error) {
	switch container.Kind() {
	case value.KindList:
		list, _ := container.AsList()
		for _, el := range list {
			if value.Equal(el, needle) {
				return true, nil
			}
		}
		return false, nil
	case value.KindString:
		if needle.Kind() != value.KindString {
			return false, xerr.ErrEvaluation("in", "'in' on a string requires a string needle")
		}
		cs, _ := container.AsString()
		ns, _ := needle.AsString()
		return strings.Contains(cs, ns), nil
	case value.KindMapping:
		if needle.Kind() != value.KindString {
			return false, xerr.ErrEvaluation("in", "'in' on a mapping requires a string key")
		}
		m, _ := container.AsMapping()
		ns, _ := needle.AsString()
		_, ok := m[ns]
		return ok, nil
	default:
		return false, xerr.ErrEvaluation("in", "'in'/'not in' requires a container (list/string/mapping) right-hand side")
	}
}

func (ip *Interp) evalCall(st *evalState, n *ast.Call, depth int, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	step, done := stepFor(withTrace, "call", n.Name, n, nil)

	reads := map[string]value.Value{}
	missing := map[string]bool{}
	args := make([]value.Value, 0, len(n.Args))
	children := make([]*trace.Node, 0, len(n.Args))
	for _, a := range n.Args {
		v, r, m, child, err := ip.eval(st, a, depth+1, withTrace)
		reads = mergeMaps(reads, r)
		missing = mergeBools(missing, m)
		children = append(children, child)
		if err != nil {
			if step != nil {
				step.Attach(children...)
				step.SetErr(err)
			}
			done()
			return value.Null(), reads, missing, step, err
		}
		args = append(args, v)
	}
	if step != nil {
		step.Attach(children...)
	}

	if !ip.registry.Has(n.Name) {
		done()
		err := xerr.ErrEvaluation(n.String(), "unknown function %q", n.Name)
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}

	callCtx, cancel := context.WithDeadline(st.ctx, st.deadline)
	result, err := ip.registry.Call(callCtx, n.Name, args)
	cancel()
	done()
	if err != nil {
		if time.Now().After(st.deadline) {
			err = xerr.ErrSecurity("evaluation exceeded max wall-clock time %s", ip.limits.MaxEvaluationTime)
		}
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}
	if step != nil {
		step.SetResult(result.Native())
	}
	return result, reads, missing, step, nil
}

func (ip *Interp) evalList(st *evalState, n *ast.List, depth int, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	step, done := stepFor(withTrace, "block", "list", n, nil)
	reads := map[string]value.Value{}
	missing := map[string]bool{}
	elems := make([]value.Value, 0, len(n.Elements))
	children := make([]*trace.Node, 0, len(n.Elements))
	for _, el := range n.Elements {
		v, r, m, child, err := ip.eval(st, el, depth+1, withTrace)
		reads = mergeMaps(reads, r)
		missing = mergeBools(missing, m)
		children = append(children, child)
		if err != nil {
			if step != nil {
				step.Attach(children...)
				step.SetErr(err)
			}
			done()
			return value.Null(), reads, missing, step, err
		}
		elems = append(elems, v)
	}
	if step != nil {
		step.Attach(children...)
	}
	done()
	result := value.List(elems)
	if step != nil {
		step.SetResult(result.Native())
	}
	return result, reads, missing, step, nil
}

func (ip *Interp) evalSubscript(st *evalState, n *ast.Subscript, depth int, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	step, done := stepFor(withTrace, "index", "", n, nil)

	container, r1, m1, c1, err := ip.eval(st, n.Value, depth+1, withTrace)
	reads := mergeMaps(nil, r1)
	missing := mergeBools(nil, m1)
	if step != nil {
		step.Attach(c1)
	}
	if err != nil {
		done()
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}

	idx, r2, m2, c2, err := ip.eval(st, n.Index, depth+1, withTrace)
	reads = mergeMaps(reads, r2)
	missing = mergeBools(missing, m2)
	if step != nil {
		step.Attach(c2)
	}
	if err != nil {
		done()
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}

	result, serr := applySubscript(container, idx)
	done()
	if serr != nil {
		serr = xerr.ErrEvaluation(n.String(), serr.Error())
		if step != nil {
			step.SetErr(serr)
		}
		return value.Null(), reads, missing, step, serr
	}
	if step != nil {
		step.SetResult(result.Native())
	}
	return result, reads, missing, step, nil
}

func applySubscript(container, idx value.Value) (value.Value, error) {
	switch container.Kind() {
	case value.KindList:
		list, _ := container.AsList()
		if idx.Kind() != value.KindInt {
			return value.Null(), xerr.ErrEvaluation("", "list subscript requires an integer index")
		}
		idxInt, _ := idx.AsInt()
		i := int(idxInt)
		if i < 0 {
			i += len(list)
		}
		if i < 0 || i >= len(list) {
			return value.Null(), xerr.ErrEvaluation("", "list index %d out of range", idxInt)
		}
		return list[i], nil
	case value.KindString:
		s, _ := container.AsString()
		if idx.Kind() != value.KindInt {
			return value.Null(), xerr.ErrEvaluation("", "string subscript requires an integer index")
		}
		idxInt, _ := idx.AsInt()
		i := int(idxInt)
		if i < 0 {
			i += len(s)
		}
		if i < 0 || i >= len(s) {
			return value.Null(), xerr.ErrEvaluation("", "string index %d out of range", idxInt)
		}
		return value.String(string(s[i])), nil
	case value.KindMapping:
		if idx.Kind() != value.KindString {
			return value.Null(), xerr.ErrEvaluation("", "mapping subscript requires a string key")
		}
		m, _ := container.AsMapping()
		key, _ := idx.AsString()
		v, ok := m[key]
		if !ok {
			return value.Null(), xerr.ErrEvaluation("", "mapping key %q not found", key)
		}
		return v, nil
	default:
		return value.Null(), xerr.ErrEvaluation("", "subscript requires a list, string, or mapping")
	}
}

func (ip *Interp) evalIfExp(st *evalState, n *ast.IfExp, depth int, withTrace bool) (value.Value, map[string]value.Value, map[string]bool, *trace.Node, error) {
	step, done := stepFor(withTrace, "ternary", "", n, nil)

	test, r, m, tchild, err := ip.eval(st, n.Test, depth+1, withTrace)
	reads := mergeMaps(nil, r)
	missing := mergeBools(nil, m)
	if step != nil {
		step.Attach(tchild)
	}
	if err != nil {
		done()
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}

	branch := n.OrElse
	if test.Truthy() {
		branch = n.Body
	}
	v, r2, m2, bchild, err := ip.eval(st, branch, depth+1, withTrace)
	reads = mergeMaps(reads, r2)
	missing = mergeBools(missing, m2)
	if step != nil {
		step.Attach(bchild)
	}
	done()
	if err != nil {
		if step != nil {
			step.SetErr(err)
		}
		return value.Null(), reads, missing, step, err
	}
	if step != nil {
		step.SetResult(v.Native())
	}
	return v, reads, missing, step, nil
}
