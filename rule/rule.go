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


// Package rule implements the Rule Model: an immutable rule
// record and the ActionValue union (literal | template | expression)
// of a rule's action and fact entries.
package rule

import (
	"regexp"
	"strings"

	"github.com/ruleforge/ruleforge/ast"
	"github.com/ruleforge/ruleforge/value"
)

// ActionValueKind tags how an action/fact entry's value should be
// resolved at apply time.
type ActionValueKind int

const (
	ActionLiteral ActionValueKind = iota
	ActionExpression
	ActionTemplate
)

// ActionValue is a single `key: value` action or facts entry.
type ActionValue struct {
	Kind ActionValueKind

	// Literal holds the value when Kind == ActionLiteral.
	Literal value.Value

	// Expression holds the parsed AST when Kind == ActionExpression (the
	// entire value is one expression, e.g. "amount * 2").
	Expression ast.Expression

	// Template holds the original template string plus its extracted
	// `{{ ... }}` fragments when Kind == ActionTemplate.
	Template *Template

	// Raw preserves the original source text for tracing and for the
	// literal-fallback-on-failure behavior below.
	Raw string
}

// Template holds a value containing one or more `{{ expr }}`
// placeholders. If Whole is true the entire value is a single
// template expression, so evaluating it preserves the result's type
// instead of stringifying it.
type Template struct {
	Source    string
	Fragments []TemplateFragment
	Whole     bool
}

// TemplateFragment is either a literal text span or a parsed expression
// extracted from a `{{ ... }}` marker.
type TemplateFragment struct {
	Literal    string
	Expression ast.Expression
	IsExpr     bool
	// Raw preserves `{{ expr }}` verbatim for an expression fragment, so
	// a runtime evaluation failure (as opposed to the parse failure
	// already handled at construction) can fall back to the original
	// text instead of losing the fragment entirely.
	Raw string
}

var templateMarker = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// ClassifyActionValue decides whether raw (decoded from YAML as an
// arbitrary value) should become a literal, a template, or a bare
// expression string, per this detection heuristic: template
// markers, arithmetic/comparison/call syntax, or parenthesization
// indicate an expression; plain sentences are treated as literals to
// avoid false positives.
func ClassifyActionValue(raw any) (ActionValue, error) {
	s, isString := raw.(string)
	if !isString {
		return ActionValue{Kind: ActionLiteral, Literal: value.FromNative(raw), Raw: ""}, nil
	}

	if matches := templateMarker.FindAllStringSubmatchIndex(s, -1); len(matches) > 0 {
		return classifyTemplate(s, matches)
	}

	if looksLikeExpression(s) {
		expr, err := ast.ParseExpression(s)
		if err != nil {
			// A value that merely *looks* like an
			// expression but fails to parse falls back to a literal
			// string rather than failing rule construction.
			return ActionValue{Kind: ActionLiteral, Literal: value.String(s), Raw: s}, nil
		}
		return ActionValue{Kind: ActionExpression, Expression: expr, Raw: s}, nil
	}

	return ActionValue{Kind: ActionLiteral, Literal: value.String(s), Raw: s}, nil
}

func classifyTemplate(s string, matches [][]int) (ActionValue, error) {
	whole := len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s)

	var fragments []TemplateFragment
	pos := 0
	for _, m := range matches {
		if m[0] > pos {
			fragments = append(fragments, TemplateFragment{Literal: s[pos:m[0]]})
		}
		exprSrc := s[m[2]:m[3]]
		expr, err := ast.ParseExpression(exprSrc)
		if err != nil {
			// A malformed template fragment degrades to its literal
			// `{{ ... }}` text rather than failing construction; the
			// parse failure is not kept, so no trace note reports it
			// at apply time.
			fragments = append(fragments, TemplateFragment{Literal: s[m[0]:m[1]]})
		} else {
			fragments = append(fragments, TemplateFragment{Expression: expr, IsExpr: true, Raw: s[m[0]:m[1]]})
		}
		pos = m[1]
	}
	if pos < len(s) {
		fragments = append(fragments, TemplateFragment{Literal: s[pos:]})
	}

	return ActionValue{
		Kind: ActionTemplate,
		Template: &Template{
			Source:    s,
			Fragments: fragments,
			Whole:     whole,
		},
		Raw: s,
	}, nil
}

// looksLikeExpression applies a false-positive-avoiding
// heuristic: only treat a string as an expression if it contains
// operator or call syntax, not merely because it has spaces.
func looksLikeExpression(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	operators := []string{"==", "!=", "<=", ">=", "<", ">", "+", "-", "*", "/", "%", "(", ")", "[", "]"}
	for _, op := range operators {
		if strings.Contains(trimmed, op) {
			return true
		}
	}
	// bare identifiers that are true/false/null are still literals in
	// spirit; everything else without operator syntax is a literal
	// sentence rather than an expression.
	return false
}

// Rule is the immutable rule record.
type Rule struct {
	ID          string
	Priority    int
	Condition   ast.Expression
	ConditionSrc string
	Actions     map[string]ActionValue
	ActionOrder []string // insertion order, actions are applied in this order
	Facts       map[string]ActionValue
	FactOrder   []string
	Triggers    []string
	Tags        []string
	Description string
	Enabled     bool
}

// New constructs an immutable Rule. actionOrder/factOrder preserve the
// insertion order actions/facts appeared in the source document, since
// actions and facts are applied in the order they appeared in the source.
func New(
	id string,
	priority int,
	cond ast.Expression,
	condSrc string,
	actions map[string]ActionValue,
	actionOrder []string,
	facts map[string]ActionValue,
	factOrder []string,
	triggers []string,
	tags []string,
	description string,
	enabled bool,
) *Rule {
	return &Rule{
		ID:           id,
		Priority:     priority,
		Condition:    cond,
		ConditionSrc: condSrc,
		Actions:      actions,
		ActionOrder:  actionOrder,
		Facts:        facts,
		FactOrder:    factOrder,
		Triggers:     triggers,
		Tags:         tags,
		Description:  description,
		Enabled:      enabled,
	}
}

func (r *Rule) String() string { return r.ID }

// WriteSet returns the union of keys written by actions and facts - the
// write set the Scheduler builds dependency edges from.
func (r *Rule) WriteSet() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Actions)+len(r.Facts))
	for k := range r.Actions {
		out[k] = struct{}{}
	}
	for k := range r.Facts {
		out[k] = struct{}{}
	}
	return out
}
