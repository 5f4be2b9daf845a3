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


// Package engine implements the reasoning engine: rule-set loading,
// scheduling, and the Reason/ReasonBatch orchestration that ties the
// interpreter, execution context, scheduler and fallback evaluator
// together into one reasoning run.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fatih/structs"

	"github.com/ruleforge/ruleforge/config"
	"github.com/ruleforge/ruleforge/execctx"
	"github.com/ruleforge/ruleforge/fallback"
	"github.com/ruleforge/ruleforge/fields"
	"github.com/ruleforge/ruleforge/interp"
	"github.com/ruleforge/ruleforge/loader"
	"github.com/ruleforge/ruleforge/oracle"
	"github.com/ruleforge/ruleforge/registry"
	"github.com/ruleforge/ruleforge/rule"
	"github.com/ruleforge/ruleforge/scheduler"
	"github.com/ruleforge/ruleforge/trace"
	"github.com/ruleforge/ruleforge/validate"
	"github.com/ruleforge/ruleforge/value"
)

// Strategy controls how a rule's condition is handled when structured
// evaluation fails with an EvaluationError or FunctionError.
type Strategy int

const (
	// Strict treats a failed condition as false and records the error
	// on the rule's trace frame; no oracle call is made.
	Strict Strategy = iota
	// Auto delegates the failed condition to the Fallback Evaluator.
	Auto
)

// Engine is the reasoning engine: a loaded rule set plus the
// interpreter, scheduler cache, and fallback evaluator it runs reason()
// and reason_batch() calls through.
type Engine struct {
	mu sync.RWMutex

	reg       *registry.Registry
	extractor *fields.Extractor
	ip        *interp.Interp
	fb        *fallback.Evaluator
	limits    config.EngineLimits
	strategy  Strategy
	trace     trace.Level
	lenient   bool
	oracle    oracle.Oracle

	rules          []*rule.Rule
	version        string
	metadata       map[string]any
	lastLoadErrors []error

	hasOrder    bool
	orderFP     uint64
	cachedOrder scheduler.Order
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithLimits(l config.EngineLimits) Option { return func(e *Engine) { e.limits = l } }

func WithFallbackStrategy(s Strategy) Option { return func(e *Engine) { e.strategy = s } }

func WithTraceLevel(l trace.Level) Option { return func(e *Engine) { e.trace = l } }

func WithOracle(o oracle.Oracle) Option { return func(e *Engine) { e.oracle = o } }

// WithLenientValidation makes LoadRules accumulate semantic errors and
// proceed with the valid subset instead of failing on the first one.
func WithLenientValidation() Option { return func(e *Engine) { e.lenient = true } }

// New constructs an Engine. Construction fails if a built-in function
// name collides with the reserved keyword set, audited once here
// rather than left an implicit invariant.
func New(opts ...Option) (*Engine, error) {
	if err := registry.AuditReservedNames(); err != nil {
		return nil, err
	}

	e := &Engine{
		reg:       registry.New(),
		extractor: fields.New(),
		limits:    config.Default(),
		strategy:  Strict,
		trace:     trace.LevelBasic,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.ip = interp.New(e.reg, interp.Limits{
		MaxExpressionLength: e.limits.MaxExpressionLength,
		MaxRecursionDepth:   e.limits.MaxRecursionDepth,
		MaxEvaluationTime:   e.limits.MaxEvaluationTime,
		MaxPowExponent:      e.limits.MaxPowExponent,
	}, e.limits.ExpressionCacheSize)

	e.fb = fallback.New(e.ip, e.oracle, e.limits.MaxOracleTokens, e.limits.MaxOracleCost)

	slog.Debug("engine constructed", "trace_level", e.trace, "strategy", e.strategy)
	return e, nil
}

// RegisterFunction adds a pure-Go user function to the registry (see
// registry.Register - requires allowUnsafe since Go cannot introspect
// a closure for purity).
func (e *Engine) RegisterFunction(name string, fn registry.Function, allowUnsafe bool) error {
	if err := e.reg.Register(name, fn, allowUnsafe); err != nil {
		return err
	}
	e.invalidateOrder()
	return nil
}

// RegisterJSFunction adds a sandboxed JS user function (registry.RegisterJS).
func (e *Engine) RegisterJSFunction(name, source string) error {
	if err := e.reg.RegisterJS(name, source); err != nil {
		return err
	}
	e.invalidateOrder()
	return nil
}

func (e *Engine) UnregisterFunction(name string) error {
	if err := e.reg.Unregister(name); err != nil {
		return err
	}
	e.invalidateOrder()
	return nil
}

func (e *Engine) invalidateOrder() {
	e.mu.Lock()
	e.hasOrder = false
	e.mu.Unlock()
}

// LoadRulesFromString loads a rule set from a YAML document in memory.
func (e *Engine) LoadRulesFromString(source string) error {
	doc, err := loader.LoadString(source)
	if err != nil {
		return err
	}
	return e.install(doc)
}

// LoadRulesFromFile loads a rule set from a single YAML file.
func (e *Engine) LoadRulesFromFile(path string) error {
	doc, err := loader.LoadFile(path)
	if err != nil {
		return err
	}
	return e.install(doc)
}

// LoadRulesFromDirectory loads and merges every rule file in dir.
func (e *Engine) LoadRulesFromDirectory(dir string) error {
	doc, err := loader.LoadDirectory(dir)
	if err != nil {
		return err
	}
	return e.install(doc)
}

func (e *Engine) install(doc *loader.Document) error {
	mode := validate.Strict
	if e.lenient {
		mode = validate.Lenient
	}
	valid, errs := validate.Rules(doc.Rules, mode)
	if mode == validate.Strict && len(errs) > 0 {
		return errs[0]
	}

	e.mu.Lock()
	e.rules = valid
	e.version = doc.Version
	e.metadata = doc.Metadata
	e.lastLoadErrors = errs
	e.hasOrder = false
	e.mu.Unlock()

	slog.Info("rule set loaded", "version", doc.Version, "rule_count", len(valid), "errors", len(errs))
	return nil
}

// LastLoadErrors returns the semantic errors accumulated by the most
// recent LoadRules* call under lenient validation (always empty under
// the strict default, since strict mode fails the call outright).
func (e *Engine) LastLoadErrors() []error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]error, len(e.lastLoadErrors))
	copy(out, e.lastLoadErrors)
	return out
}

// Version returns the loaded rule document's version string, if any.
func (e *Engine) Version() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// Metadata returns the loaded rule document's metadata mapping.
func (e *Engine) Metadata() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

// Rules returns the currently loaded rule set.
func (e *Engine) Rules() []*rule.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*rule.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// SeekGoal runs the backward-chainer auxiliary over the loaded
// rule set.
func (e *Engine) SeekGoal(goal scheduler.Goal) []*rule.Rule {
	return scheduler.Seek(e.Rules(), goal)
}

// ChainGoal is SeekGoal followed by a bounded trigger-hop walk toward
// rules that could fire a producing rule.
func (e *Engine) ChainGoal(goal scheduler.Goal) []*rule.Rule {
	return scheduler.ChainTriggers(e.Rules(), goal)
}

// AnalyzeRules summarizes the loaded rule set's scheduling shape
// (priority distribution, field read/write counts, dependency edges,
// cycle fallbacks) without executing anything.
func (e *Engine) AnalyzeRules() scheduler.Analysis {
	return scheduler.Analyze(e.Rules(), e.extractor, e.reg)
}

// Prompt evaluates a single ad-hoc condition against facts through the
// hybrid fallback path: structured evaluation first, oracle delegation
// on failure, typed coercion either way. It shares the engine's
// fallback statistics but has its own per-call oracle spend, since
// there is no surrounding run to account against.
func (e *Engine) Prompt(ctx context.Context, conditionText string, rt fallback.ReturnType, facts map[string]value.Value) (*fallback.Result, error) {
	ec := execctx.New(facts)
	var spent float64
	return e.fb.Prompt(ctx, conditionText, rt, ec, ec.Snapshot(), "", &spent)
}

// FactsFromStruct converts a caller's typed Go struct into the
// map[string]value.Value shape Reason expects, via fatih/structs -
// the same struct-to-map coercion the sandboxed JS tier uses when
// values cross the goja boundary.
func FactsFromStruct(s any) map[string]value.Value {
	m := structs.Map(s)
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = value.FromNative(v)
	}
	return out
}

func (e *Engine) scheduleFor(rules []*rule.Rule) scheduler.Order {
	fp, err := scheduler.Fingerprint(rules)
	if err == nil {
		e.mu.RLock()
		if e.hasOrder && e.orderFP == fp {
			order := e.cachedOrder
			e.mu.RUnlock()
			return order
		}
		e.mu.RUnlock()
	}

	order := scheduler.Schedule(rules, e.extractor, e.reg)
	if err == nil {
		e.mu.Lock()
		e.cachedOrder = order
		e.orderFP = fp
		e.hasOrder = true
		e.mu.Unlock()
	}
	return order
}
