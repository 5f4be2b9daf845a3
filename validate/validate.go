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


// Package validate implements the rule-set validator: a schema layer
// (pre-parse, enforcing the YAML surface shape) and a semantic layer
// (post-parse: unique ids, reserved words, trigger references,
// trigger-graph acyclicity).
package validate

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ruleforge/ruleforge/ast"
	"github.com/ruleforge/ruleforge/dag"
	"github.com/ruleforge/ruleforge/rule"
	"github.com/ruleforge/ruleforge/xerr"
)

//go:embed schema.json
var schemaFS embed.FS

var compiledSchema *gojsonschema.Schema

func init() {
	b, err := schemaFS.ReadFile("schema.json")
	if err != nil {
		panic(fmt.Sprintf("validate: read embedded schema: %v", err))
	}
	loader := gojsonschema.NewSchemaLoader()
	loader.Draft = gojsonschema.Draft7
	compiledSchema, err = loader.Compile(gojsonschema.NewBytesLoader(b))
	if err != nil {
		panic(fmt.Sprintf("validate: compile embedded schema: %v", err))
	}
}

// Strictness controls whether Validate fails on the first error or
// accumulates every error it finds and proceeds with the remaining
// valid rules.
type Strictness int

const (
	Strict Strictness = iota
	Lenient
)

// Schema validates a decoded YAML document (as a generic
// map[string]any, the shape yaml.Unmarshal into `any` produces)
// against the embedded rule-file schema: required top-level `rules`
// list, required per-rule `id` and a condition, allowed optional
// fields, and no unknown keys.
func Schema(doc map[string]any) error {
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshal rule document to JSON")
	}

	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(jsonBytes))
	if err != nil {
		return errors.Wrap(err, "schema validation failed")
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "(root)" {
				field = "root"
			}
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, desc.Description()))
		}
		return xerr.ErrSchema("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// ruleNode adapts *rule.Rule to fmt.Stringer for the generic dag,
// edged by `triggers` rather than field dependencies (the Scheduler
// builds its own separate graph for that).
type ruleNode struct{ *rule.Rule }

func (n ruleNode) String() string { return n.ID }

// Semantic runs the post-parse checks: rule ids unique; no reserved
// keywords as ids or action/fact keys; triggers reference known ids;
// no self-triggering; the triggers graph is acyclic. Returns the
// first error found (Strict semantics; Lenient mode is offered via
// SemanticLenient for callers that want to keep the valid subset).
func Semantic(rules []*rule.Rule) error {
	errs := SemanticLenient(rules)
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Rules applies Strictness to the semantic layer: in Strict mode the
// first error fails the whole set (nil rules, one error); in Lenient
// mode every rule whose id a ValidationError names is dropped and the
// remaining rules are returned alongside the full error list. A
// trigger-cycle error names no single rule, so it drops none of the
// rules in the cycle.
func Rules(rules []*rule.Rule, mode Strictness) ([]*rule.Rule, []error) {
	errs := SemanticLenient(rules)
	if mode == Strict {
		if len(errs) > 0 {
			return nil, errs[:1]
		}
		return rules, nil
	}

	bad := make(map[string]bool, len(errs))
	for _, e := range errs {
		if ve, ok := e.(xerr.ValidationError); ok {
			bad[ve.RuleID] = true
		}
	}
	valid := make([]*rule.Rule, 0, len(rules))
	for _, r := range rules {
		if !bad[r.ID] {
			valid = append(valid, r)
		}
	}
	return valid, errs
}

// SemanticLenient runs every semantic check and returns every error
// found instead of stopping at the first, so a caller can accumulate
// diagnostics and proceed with the rules that passed.
func SemanticLenient(rules []*rule.Rule) []error {
	var errs []error

	seen := make(map[string]bool, len(rules))
	byID := make(map[string]*rule.Rule, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			errs = append(errs, xerr.ErrValidation("", "rule id cannot be empty"))
			continue
		}
		if ast.IsReserved(r.ID) {
			errs = append(errs, xerr.ErrValidation(r.ID, "rule id %q clashes with a reserved keyword", r.ID))
		}
		if seen[r.ID] {
			errs = append(errs, xerr.ErrValidation(r.ID, "duplicate rule id %q", r.ID))
			continue
		}
		seen[r.ID] = true
		byID[r.ID] = r

		for key := range r.Actions {
			if ast.IsReserved(key) {
				errs = append(errs, xerr.ErrValidation(r.ID, "action key %q clashes with a reserved keyword", key))
			}
		}
		for key := range r.Facts {
			if ast.IsReserved(key) {
				errs = append(errs, xerr.ErrValidation(r.ID, "fact key %q clashes with a reserved keyword", key))
			}
		}
	}

	g := dag.New[ruleNode]()
	for _, r := range rules {
		g.AddNode(ruleNode{r})
	}
	for _, r := range rules {
		for _, t := range r.Triggers {
			if t == r.ID {
				errs = append(errs, xerr.ErrValidation(r.ID, "rule cannot trigger itself"))
				continue
			}
			target, ok := byID[t]
			if !ok {
				errs = append(errs, xerr.ErrValidation(r.ID, "triggers unknown rule id %q", t))
				continue
			}
			if err := g.AddEdge(ruleNode{r}, ruleNode{target}); err != nil && !errors.Is(err, dag.ErrSelfLoop) {
				errs = append(errs, xerr.ErrValidation(r.ID, "%s", err.Error()))
			}
		}
	}
	if cycle := g.DetectFirstCycle(); len(cycle) > 0 {
		ids := make([]string, len(cycle))
		for i, n := range cycle {
			ids[i] = n.ID
		}
		errs = append(errs, xerr.ErrValidation("", "cyclic triggers: %s", strings.Join(ids, " -> ")))
	}

	return errs
}
