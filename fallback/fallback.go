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


// Package fallback implements the hybrid evaluator: it tries
// structured evaluation first and only delegates to an oracle
// capability when the structured path cannot produce a typed answer,
// then coerces the oracle's raw text into the condition's declared
// return type.
package fallback

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ruleforge/ruleforge/interp"
	"github.com/ruleforge/ruleforge/oracle"
	"github.com/ruleforge/ruleforge/value"
	"github.com/ruleforge/ruleforge/xerr"
)

// ReturnType names the typed shape a condition or derived fact expects
// back from the oracle when structured evaluation fails.
type ReturnType string

const (
	ReturnBool   ReturnType = "bool"
	ReturnInt    ReturnType = "int"
	ReturnFloat  ReturnType = "float"
	ReturnString ReturnType = "string"
)

// Method records which path produced the final value.
type Method string

const (
	MethodStructured Method = "structured"
	MethodOracle     Method = "oracle"
	MethodDefault    Method = "default"
)

// Result is the outcome of one Prompt call.
type Result struct {
	Value           value.Value
	MethodUsed      Method
	StructuredErr   error
	OracleErr       error
	OracleRationale string
	Elapsed         time.Duration
}

const maxPromptLength = 8192
const maxResponseLength = 4096

// Stats accumulates fallback usage for one engine, across every run.
type Stats struct {
	total      int64
	structured int64
	oracled    int64
	failed     int64
}

func (s *Stats) Snapshot() (total, structured, oracled, failed int64) {
	return atomic.LoadInt64(&s.total), atomic.LoadInt64(&s.structured), atomic.LoadInt64(&s.oracled), atomic.LoadInt64(&s.failed)
}

// Evaluator wraps an interpreter and an oracle capability, enforcing a
// per-run cost ceiling on oracle delegation.
type Evaluator struct {
	interp     *interp.Interp
	oracle     oracle.Oracle
	maxTokens  int
	costCeil   float64
	stats      Stats
}

func New(ip *interp.Interp, o oracle.Oracle, maxTokens int, costCeiling float64) *Evaluator {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &Evaluator{interp: ip, oracle: o, maxTokens: maxTokens, costCeil: costCeiling}
}

func (e *Evaluator) Stats() *Stats { return &e.stats }

// Prompt evaluates conditionSrc, falling back to the oracle when
// structured evaluation fails. spentCost is the run's running oracle
// spend so far; Prompt will refuse to call the oracle once spentCost
// has reached the evaluator's cost ceiling, instead returning the
// return type's zero value with an OracleError recorded on the result.
func (e *Evaluator) Prompt(ctx context.Context, conditionSrc string, rt ReturnType, facts interp.Facts, contextFacts map[string]value.Value, ruleID string, spentCost *float64) (*Result, error) {
	start := time.Now()
	atomic.AddInt64(&e.stats.total, 1)

	structuredVal, structuredRes, structuredErr := e.tryStructured(ctx, conditionSrc, rt, facts)
	if structuredErr == nil {
		atomic.AddInt64(&e.stats.structured, 1)
		return &Result{Value: structuredVal, MethodUsed: MethodStructured, Elapsed: time.Since(start)}, nil
	}

	if e.oracle == nil {
		atomic.AddInt64(&e.stats.failed, 1)
		return &Result{Value: zeroFor(rt), MethodUsed: MethodDefault, StructuredErr: structuredErr, Elapsed: time.Since(start)}, nil
	}
	if e.costCeil > 0 && spentCost != nil && *spentCost >= e.costCeil {
		atomic.AddInt64(&e.stats.failed, 1)
		return &Result{
			Value:         zeroFor(rt),
			MethodUsed:    MethodDefault,
			StructuredErr: structuredErr,
			OracleErr:     xerr.ErrOracle("oracle cost ceiling %g reached (spent %g)", e.costCeil, *spentCost),
			Elapsed:       time.Since(start),
		}, nil
	}

	prompt := buildPrompt(conditionSrc, rt, contextFacts, missingFieldNames(structuredRes, contextFacts), structuredErr)
	text, cost, _, oErr := e.oracle.Complete(ctx, prompt, e.maxTokens, 0, 10*time.Second)
	if spentCost != nil {
		*spentCost += cost
	}
	if oErr != nil {
		atomic.AddInt64(&e.stats.failed, 1)
		return &Result{
			Value:         zeroFor(rt),
			MethodUsed:    MethodDefault,
			StructuredErr: structuredErr,
			OracleErr:     xerr.ErrOracle("%s", oErr.Error()),
			Elapsed:       time.Since(start),
		}, nil
	}

	text = sanitizeResponse(text)
	atomic.AddInt64(&e.stats.oracled, 1)
	return &Result{
		Value:           coerce(text, rt),
		MethodUsed:      MethodOracle,
		StructuredErr:   structuredErr,
		OracleRationale: text,
		Elapsed:         time.Since(start),
	}, nil
}

// tryStructured returns the partial interpretation result alongside
// any error: even a failed evaluation carries the field reads and
// missing-field set observed before the failure, which the enhanced
// oracle prompt lists.
func (e *Evaluator) tryStructured(ctx context.Context, src string, rt ReturnType, facts interp.Facts) (value.Value, *interp.Result, error) {
	expr, err := e.interp.Parse(ctx, src)
	if err != nil {
		return value.Null(), nil, err
	}
	res, err := e.interp.Evaluate(ctx, expr, facts)
	if err != nil {
		return value.Null(), res, err
	}
	return coerceValue(res.Value, rt), res, nil
}

// missingFieldNames merges the fields the interpreter observed as
// missing with context facts that are present but null, sorted for a
// deterministic prompt.
func missingFieldNames(res *interp.Result, contextFacts map[string]value.Value) []string {
	seen := map[string]bool{}
	if res != nil {
		for name := range res.Missing {
			seen[name] = true
		}
	}
	for name, v := range contextFacts {
		if v.IsNull() {
			seen[name] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// coerceValue converts a structured result into the requested return
// type: truthiness for bool, numeric promotion for int/float,
// stringification for string.
func coerceValue(v value.Value, rt ReturnType) value.Value {
	switch rt {
	case ReturnBool:
		return value.Bool(v.Truthy())
	case ReturnInt:
		if v.IsNumeric() {
			return value.Int(int64(math.Trunc(v.Float64())))
		}
		return value.Int(0)
	case ReturnFloat:
		if v.IsNumeric() {
			return value.Float(v.Float64())
		}
		return value.Float(0)
	default:
		return value.String(v.String())
	}
}

func buildPrompt(conditionSrc string, rt ReturnType, facts map[string]value.Value, missing []string, cause error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Condition: %s\n", sanitizeCondition(conditionSrc))
	fmt.Fprintf(&b, "Structured evaluation failed: %s\n", cause.Error())
	if len(facts) > 0 {
		b.WriteString("Known facts:\n")
		for _, k := range value.SortedKeys(facts) {
			fmt.Fprintf(&b, "  %s = %s\n", k, facts[k].String())
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "Missing or null fields: %s\n", strings.Join(missing, ", "))
	}
	fmt.Fprintf(&b, "Answer with only a %s value, no explanation.\n", rt)
	return SanitizePrompt(b.String())
}

// sanitizeCondition strips characters commonly used in prompt
// injection attempts (newline-delimited role markers) before the
// condition text is embedded in an oracle prompt.
func sanitizeCondition(src string) string {
	src = strings.ReplaceAll(src, "\n", " ")
	src = strings.ReplaceAll(src, "```", "'''")
	if len(src) > 2048 {
		src = src[:2048]
	}
	return src
}

func sanitizeResponse(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxResponseLength {
		text = text[:maxResponseLength]
	}
	return text
}

func zeroFor(rt ReturnType) value.Value {
	switch rt {
	case ReturnBool:
		return value.Bool(false)
	case ReturnInt:
		return value.Int(0)
	case ReturnFloat:
		return value.Float(0)
	default:
		return value.String("")
	}
}

var truthyWords = map[string]bool{
	"true": true, "yes": true, "1": true, "on": true,
	"positive": true, "correct": true, "approve": true, "approved": true,
}
var falsyWords = map[string]bool{
	"false": true, "no": true, "0": true, "off": true,
	"negative": true, "incorrect": true, "reject": true, "rejected": true,
}

func coerce(text string, rt ReturnType) value.Value {
	switch rt {
	case ReturnBool:
		w := strings.ToLower(strings.TrimSpace(text))
		if truthyWords[w] {
			return value.Bool(true)
		}
		if falsyWords[w] {
			return value.Bool(false)
		}
		return value.Bool(false)
	case ReturnInt:
		if n, ok := firstNumber(text); ok {
			return value.Int(int64(math.Trunc(n)))
		}
		return value.Int(0)
	case ReturnFloat:
		if n, ok := firstNumber(text); ok {
			return value.Float(n)
		}
		return value.Float(0)
	default:
		return value.String(text)
	}
}

func firstNumber(text string) (float64, bool) {
	start := -1
	for i, r := range text {
		isDigit := r >= '0' && r <= '9'
		isSign := (r == '-' || r == '+') && start == -1
		isDot := r == '.'
		if isDigit || isSign || isDot {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			break
		}
	}
	if start == -1 {
		return 0, false
	}
	end := len(text)
	for i := start; i < len(text); i++ {
		r := text[i]
		if !(r >= '0' && r <= '9' || r == '.' || r == '-' || r == '+') {
			end = i
			break
		}
	}
	n, err := strconv.ParseFloat(text[start:end], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
