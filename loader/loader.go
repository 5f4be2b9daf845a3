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

// Package loader ingests the YAML rule file surface from file,
// directory, or in-memory string sources into immutable rule.Rule
// records. It is a thin, separately-testable boundary: the reasoning
// core never parses YAML itself, it only consumes the rule.Rule
// records this package produces.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ruleforge/ruleforge/ast"
	"github.com/ruleforge/ruleforge/condition"
	"github.com/ruleforge/ruleforge/rule"
	"github.com/ruleforge/ruleforge/validate"
	"github.com/ruleforge/ruleforge/xerr"
)

// rawDoc is the top-level YAML document shape.
type rawDoc struct {
	Rules       []rawRule      `yaml:"rules"`
	Version     string         `yaml:"version"`
	Description string         `yaml:"description"`
	Metadata    map[string]any `yaml:"metadata"`
}

// rawRule is a single rule entry as decoded from YAML, before
// condition lowering and action classification. Actions/facts decode
// into yaml.Node so the mapping's source insertion order survives
// (yaml.v3 decodes a plain map in randomized Go map order).
type rawRule struct {
	ID          string    `yaml:"id"`
	Priority    *int      `yaml:"priority"`
	Condition   any       `yaml:"condition"`
	If          any       `yaml:"if"`
	Actions     yaml.Node `yaml:"actions"`
	Then        yaml.Node `yaml:"then"`
	Facts       yaml.Node `yaml:"facts"`
	Triggers    []string  `yaml:"triggers"`
	Tags        []string  `yaml:"tags"`
	Description string    `yaml:"description"`
	Enabled     *bool     `yaml:"enabled"`
}

// Document is the loaded result: the rule set plus the document-level
// metadata fields, for callers that want to surface them.
type Document struct {
	Rules       []*rule.Rule
	Version     string
	Description string
	Metadata    map[string]any
}

// LoadString parses source as a single YAML rule document. Schema
// validation runs against the decoded document before any condition or
// action is compiled, per the validator's two-layer contract:
// schema first, semantics (which requires compiled expressions) second.
func LoadString(source string) (*Document, error) {
	return loadBytes("<string>", []byte(source))
}

// LoadFile reads and parses a single YAML rule file.
func LoadFile(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerr.ErrLoad(path, err)
	}
	return loadBytes(path, b)
}

func loadBytes(source string, b []byte) (*Document, error) {
	// Decode twice: once into a generic map for JSON-schema validation
	// (the shape gojsonschema needs), once into the typed rawDoc used
	// to build rule.Rule records (which keeps actions/facts as
	// yaml.Node to preserve source insertion order).
	var generic map[string]any
	if err := yaml.Unmarshal(b, &generic); err != nil {
		return nil, xerr.ErrLoad(source, err)
	}
	var doc rawDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, xerr.ErrLoad(source, err)
	}
	return build(generic, doc)
}

// LoadDirectory reads every *.yaml/*.yml file in dir (non-recursive,
// sorted for determinism) and merges their rule lists into one
// Document. Document-level metadata (version/description/metadata) is
// taken from the first file that declares it.
func LoadDirectory(dir string) (*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, xerr.ErrLoad(dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, xerr.ErrLoad(dir, errors.New("no .yaml/.yml rule files found"))
	}

	merged := &Document{Metadata: map[string]any{}}
	for _, p := range paths {
		doc, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		merged.Rules = append(merged.Rules, doc.Rules...)
		if merged.Version == "" {
			merged.Version = doc.Version
		}
		if merged.Description == "" {
			merged.Description = doc.Description
		}
		for k, v := range doc.Metadata {
			merged.Metadata[k] = v
		}
	}
	return merged, nil
}

// build performs schema validation (always strict: a malformed
// document fails load unconditionally) and compiles every rule's
// condition/action expressions. Semantic validation (duplicate ids,
// reserved words, trigger acyclicity) is left to the caller via the
// validate package, since only that layer has a strict/lenient policy
// choice.
func build(generic map[string]any, doc rawDoc) (*Document, error) {
	if err := validate.Schema(generic); err != nil {
		return nil, err
	}

	rules := make([]*rule.Rule, 0, len(doc.Rules))
	for _, rr := range doc.Rules {
		r, err := buildRule(rr)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	return &Document{
		Rules:       rules,
		Version:     doc.Version,
		Description: doc.Description,
		Metadata:    doc.Metadata,
	}, nil
}

func buildRule(rr rawRule) (*rule.Rule, error) {
	priority := 0
	if rr.Priority != nil {
		priority = *rr.Priority
	}
	enabled := true
	if rr.Enabled != nil {
		enabled = *rr.Enabled
	}

	condRaw := rr.Condition
	if condRaw == nil {
		condRaw = rr.If
	}
	condSrc, err := condition.Compile(toConditionRaw(condRaw))
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", rr.ID, err)
	}
	condExpr, err := ast.ParseExpression(condSrc)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", rr.ID, xerr.ErrParse(condSrc, err))
	}

	actionsNode := rr.Actions
	if actionsNode.IsZero() {
		actionsNode = rr.Then
	}
	actions, actionOrder, err := buildActionMap(actionsNode)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", rr.ID, err)
	}
	facts, factOrder, err := buildActionMap(rr.Facts)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", rr.ID, err)
	}

	return rule.New(
		rr.ID, priority, condExpr, condSrc,
		actions, actionOrder, facts, factOrder,
		rr.Triggers, rr.Tags, rr.Description, enabled,
	), nil
}

// buildActionMap walks a YAML mapping node's key/value pairs in source
// order, classifying each value as literal, template, or expression.
func buildActionMap(node yaml.Node) (map[string]rule.ActionValue, []string, error) {
	if node.IsZero() {
		return map[string]rule.ActionValue{}, nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, nil, xerr.ErrSchema("actions/facts must be a mapping, got a %s node", nodeKindName(node.Kind))
	}

	out := make(map[string]rule.ActionValue, len(node.Content)/2)
	order := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, nil, xerr.ErrSchema("action/fact key at line %d is not a string", keyNode.Line)
		}
		key := keyNode.Value

		var raw any
		if err := valNode.Decode(&raw); err != nil {
			return nil, nil, xerr.ErrSchema("action/fact %q: %s", key, err)
		}
		av, err := rule.ClassifyActionValue(raw)
		if err != nil {
			return nil, nil, err
		}
		if _, exists := out[key]; exists {
			return nil, nil, xerr.ErrConflict("action/fact key", key)
		}
		out[key] = av
		order = append(order, key)
	}
	return out, order, nil
}

func nodeKindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}

func toConditionRaw(v any) condition.Raw {
	switch t := v.(type) {
	case string:
		return condition.Raw{String: t}
	case map[string]any:
		return condition.Raw{Map: t}
	default:
		return condition.Raw{String: fmt.Sprintf("%v", v)}
	}
}
