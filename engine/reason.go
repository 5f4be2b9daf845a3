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

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruleforge/ruleforge/execctx"
	"github.com/ruleforge/ruleforge/fallback"
	"github.com/ruleforge/ruleforge/rule"
	"github.com/ruleforge/ruleforge/scheduler"
	"github.com/ruleforge/ruleforge/trace"
	"github.com/ruleforge/ruleforge/value"
	"github.com/ruleforge/ruleforge/xerr"
)

// Reason runs one reasoning pass over facts: schedule the loaded rule
// set, evaluate each rule's condition in order, apply actions for the
// ones that fire, run any rules named by a fired rule's triggers in
// their own priority/dependency order once, and diff the resulting
// facts into a verdict.
func (e *Engine) Reason(ctx context.Context, facts map[string]value.Value) (*ExecutionResult, error) {
	start := time.Now()

	e.mu.RLock()
	rules := make([]*rule.Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	order := e.scheduleFor(rules)

	ec := execctx.New(facts)
	recorder := trace.NewRecorder(e.trace)
	var runSpent float64

	byID := make(map[string]*rule.Rule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}

	for _, r := range order.Rules {
		if ctx.Err() != nil {
			break
		}
		if err := e.evalRule(ctx, ec, r, recorder, &runSpent); err != nil {
			return nil, err
		}
	}

	if ctx.Err() == nil {
		// One bounded extra pass: rules named by a fired rule's triggers
		// run once more, in their own priority/dependency order. Rules
		// that already fired are not re-run, and triggers of rules fired
		// during this pass are not expanded further.
		fired := make(map[string]bool)
		for _, id := range ec.FiredRules() {
			fired[id] = true
		}
		triggerSet := make(map[string]bool)
		for _, id := range ec.FiredRules() {
			r, ok := byID[id]
			if !ok {
				continue
			}
			for _, t := range r.Triggers {
				if !fired[t] {
					triggerSet[t] = true
				}
			}
		}
		if len(triggerSet) > 0 {
			var triggered []*rule.Rule
			for id := range triggerSet {
				if r, ok := byID[id]; ok {
					triggered = append(triggered, r)
				}
			}
			triggerOrder := scheduler.Schedule(triggered, e.extractor, e.reg)
			for _, r := range triggerOrder.Rules {
				if ctx.Err() != nil {
					break
				}
				if err := e.evalRule(ctx, ec, r, recorder, &runSpent); err != nil {
					return nil, err
				}
			}
		}
	}

	total, structured, oracled, failed := e.fb.Stats().Snapshot()
	result := &ExecutionResult{
		RunID:      uuid.NewString(),
		Verdict:    ec.Verdict(),
		FiredRules: ec.FiredRules(),
		ElapsedMs:  float64(time.Since(start).Microseconds()) / 1000.0,
		RuleTraces: recorder.Frames(),
		FallbackStats: FallbackStats{
			Total:      total,
			Structured: structured,
			Oracle:     oracled,
			Failures:   failed,
		},
		recorder: recorder,
	}
	slog.DebugContext(ctx, "reason complete", "run_id", result.RunID, "fired", len(result.FiredRules), "elapsed_ms", result.ElapsedMs)
	return result, nil
}

// ReasonBatch runs Reason once per entry in factsList, in order,
// sharing the engine's cached schedule and cumulative fallback stats.
func (e *Engine) ReasonBatch(ctx context.Context, factsList []map[string]value.Value) ([]*ExecutionResult, error) {
	out := make([]*ExecutionResult, 0, len(factsList))
	for _, f := range factsList {
		res, err := e.Reason(ctx, f)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// evalRule evaluates and, if its condition holds, fires one rule. It
// returns a non-nil error only for a SecurityError, which always
// propagates and terminates the run; every other failure mode is
// captured on the rule's trace frame instead.
func (e *Engine) evalRule(ctx context.Context, ec *execctx.Context, r *rule.Rule, recorder *trace.Recorder, runSpent *float64) error {
	if !r.Enabled {
		return nil
	}

	frame, closeFrame := recorder.Open(r.ID, r.Priority, r.ConditionSrc)
	defer closeFrame()

	if ctx.Err() != nil {
		frame.Outcome = trace.OutcomeErrored
		frame.Cancelled = true
		frame.Err = xerr.ErrCancelled(r.ID).Error()
		return nil
	}

	ec.SetCurrentRule(r.ID)

	var condTrue bool
	var condErr error
	var fieldReads map[string]value.Value
	var missing map[string]bool

	if e.trace >= trace.LevelDebug {
		res, steps, err := e.ip.EvaluateWithTrace(ctx, r.Condition, ec)
		frame.Steps = steps
		condErr = err
		if res != nil {
			fieldReads = res.FieldReads
			missing = res.Missing
			if err == nil {
				condTrue = res.Value.Truthy()
			}
		}
	} else {
		truthy, res, err := e.ip.EvaluateBool(ctx, r.Condition, ec)
		condTrue = truthy
		condErr = err
		if res != nil {
			fieldReads = res.FieldReads
			missing = res.Missing
		}
	}
	recordFieldReads(frame, fieldReads)
	recordMissingFields(frame, missing)

	if condErr != nil {
		switch ce := condErr.(type) {
		case xerr.CancelledError:
			frame.Outcome = trace.OutcomeErrored
			frame.Cancelled = true
			frame.Err = ce.Error()
			return nil
		case xerr.SecurityError:
			frame.Outcome = trace.OutcomeErrored
			frame.Err = ce.Error()
			return ce
		default:
			switch e.strategy {
			case Strict:
				frame.Outcome = trace.OutcomeSkipped
				frame.Err = condErr.Error()
				return nil
			case Auto:
				fbRes, fbErr := e.fb.Prompt(ctx, r.ConditionSrc, fallback.ReturnBool, ec, ec.Snapshot(), r.ID, runSpent)
				if fbErr != nil {
					frame.Outcome = trace.OutcomeErrored
					frame.Err = condErr.Error() + "; " + fbErr.Error()
					return nil
				}
				condTrue, _ = fbRes.Value.AsBool()
				frame.Err = fmt.Sprintf("structured evaluation failed (%s), resolved via %s", condErr, fbRes.MethodUsed)
				if fbRes.OracleErr != nil {
					frame.Err += "; " + fbRes.OracleErr.Error()
				}
			}
		}
	}

	frame.ConditionBool = condTrue
	if !condTrue {
		if frame.Outcome != trace.OutcomeErrored {
			frame.Outcome = trace.OutcomeSkipped
		}
		return nil
	}

	writes := make(map[string]value.Value, len(r.FactOrder)+len(r.ActionOrder))
	order := make([]string, 0, len(r.FactOrder)+len(r.ActionOrder))
	var notes []string

	for _, k := range r.FactOrder {
		v, note, err := e.resolveActionValue(ctx, r.Facts[k], ec)
		if err != nil {
			frame.Outcome = trace.OutcomeErrored
			frame.Err = err.Error()
			return err
		}
		writes[k] = v
		order = append(order, k)
		if note != "" {
			notes = append(notes, note)
		}
	}
	for _, k := range r.ActionOrder {
		v, note, err := e.resolveActionValue(ctx, r.Actions[k], ec)
		if err != nil {
			frame.Outcome = trace.OutcomeErrored
			frame.Err = err.Error()
			return err
		}
		writes[k] = v
		order = append(order, k)
		if note != "" {
			notes = append(notes, note)
		}
	}

	applied := ec.StageActions(writes, order)
	frame.ActionWrites = make([]trace.ActionWrite, 0, len(applied))
	for _, a := range applied {
		frame.ActionWrites = append(frame.ActionWrites, trace.ActionWrite{
			Key:    a.Key,
			Before: a.Before.Native(),
			After:  a.After.Native(),
		})
	}
	if len(notes) > 0 {
		if frame.Err != "" {
			frame.Err += "; "
		}
		frame.Err += strings.Join(notes, "; ")
	}

	frame.Outcome = trace.OutcomeFired
	ec.RuleFired(r.ID)
	return nil
}

func recordMissingFields(frame *trace.RuleFrame, missing map[string]bool) {
	if len(missing) == 0 {
		return
	}
	names := make([]string, 0, len(missing))
	for k := range missing {
		names = append(names, k)
	}
	sort.Strings(names)
	frame.MissingFields = names
}

func recordFieldReads(frame *trace.RuleFrame, reads map[string]value.Value) {
	if len(reads) == 0 {
		return
	}
	frame.FieldReads = make([]trace.FieldRead, 0, len(reads))
	for _, k := range value.SortedKeys(reads) {
		frame.FieldReads = append(frame.FieldReads, trace.FieldRead{Name: k, Value: reads[k].Native()})
	}
}

// resolveActionValue computes the value one action/fact key resolves
// to. An ordinary runtime failure in an expression or template
// fragment does not fail the rule: it degrades to the raw source text
// as a literal and surfaces a note for the trace frame, exactly as a
// malformed template fragment already degrades at construction time in
// rule.ClassifyActionValue. A SecurityError is never degraded: bound
// violations terminate the run no matter where they occur, so it is
// returned for evalRule to propagate.
func (e *Engine) resolveActionValue(ctx context.Context, av rule.ActionValue, ec *execctx.Context) (value.Value, string, error) {
	switch av.Kind {
	case rule.ActionLiteral:
		return av.Literal, "", nil
	case rule.ActionExpression:
		res, err := e.ip.Evaluate(ctx, av.Expression, ec)
		if err != nil {
			if isSecurityErr(err) {
				return value.Null(), "", err
			}
			return value.String(av.Raw), fmt.Sprintf("action expression %q failed: %s (wrote literal)", av.Raw, err), nil
		}
		return res.Value, "", nil
	case rule.ActionTemplate:
		return e.resolveTemplate(ctx, av.Template, ec)
	default:
		return value.Null(), "", nil
	}
}

func (e *Engine) resolveTemplate(ctx context.Context, t *rule.Template, ec *execctx.Context) (value.Value, string, error) {
	if t.Whole {
		frag := t.Fragments[0]
		if !frag.IsExpr {
			return value.String(frag.Literal), "", nil
		}
		res, err := e.ip.Evaluate(ctx, frag.Expression, ec)
		if err != nil {
			if isSecurityErr(err) {
				return value.Null(), "", err
			}
			return value.String(t.Source), fmt.Sprintf("template %q failed: %s (wrote literal)", t.Source, err), nil
		}
		return res.Value, "", nil
	}

	var sb strings.Builder
	var notes []string
	for _, frag := range t.Fragments {
		if !frag.IsExpr {
			sb.WriteString(frag.Literal)
			continue
		}
		res, err := e.ip.Evaluate(ctx, frag.Expression, ec)
		if err != nil {
			if isSecurityErr(err) {
				return value.Null(), "", err
			}
			sb.WriteString(frag.Raw)
			notes = append(notes, fmt.Sprintf("template fragment %q failed: %s", frag.Raw, err))
			continue
		}
		sb.WriteString(res.Value.String())
	}
	return value.String(sb.String()), strings.Join(notes, "; "), nil
}

// isSecurityErr reports whether err is, or unwraps to, a SecurityError.
func isSecurityErr(err error) bool {
	var se xerr.SecurityError
	return errors.As(err, &se)
}
