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


// Package execctx implements the execution context: original facts,
// enriched facts (where rule writes land), the fired-rule list, and a
// lazily-computed verdict diff.
package execctx

import (
	"sync"

	"github.com/ruleforge/ruleforge/value"
)

// Context is the mutable state threaded through one reasoning run.
type Context struct {
	mu sync.RWMutex

	original map[string]value.Value
	enriched map[string]value.Value

	firedRules     []string
	currentRuleID  string
}

// New clones facts into both original and enriched maps; original is
// never mutated afterward.
func New(facts map[string]value.Value) *Context {
	original := make(map[string]value.Value, len(facts))
	enriched := make(map[string]value.Value, len(facts))
	for k, v := range facts {
		original[k] = v
		enriched[k] = v
	}
	return &Context{original: original, enriched: enriched}
}

// GetFact reads enriched facts. Satisfies interp.Facts.
func (c *Context) GetFact(name string) (value.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.enriched[name]
	return v, ok
}

// SetFact writes enriched facts and returns the previous value (for
// trace action-write before/after reporting).
func (c *Context) SetFact(name string, v value.Value) (value.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, existed := c.enriched[name]
	c.enriched[name] = v
	return prev, existed
}

// SetCurrentRule records the rule currently being evaluated, for
// diagnostics surfaced alongside a cancellation.
func (c *Context) SetCurrentRule(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRuleID = id
}

func (c *Context) CurrentRule() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentRuleID
}

// RuleFired appends id to the fired-rule list.
func (c *Context) RuleFired(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.firedRules = append(c.firedRules, id)
}

func (c *Context) FiredRules() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.firedRules))
	copy(out, c.firedRules)
	return out
}

// Verdict computes the diff of enriched vs. original: every key whose
// value changed or that is newly present.
func (c *Context) Verdict() map[string]value.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]value.Value)
	for k, v := range c.enriched {
		if orig, ok := c.original[k]; !ok || !value.Equal(orig, v) {
			out[k] = v
		}
	}
	return out
}

// Snapshot returns a copy of the enriched facts, for building a
// fallback prompt's context_facts payload without exposing the live map.
func (c *Context) Snapshot() map[string]value.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]value.Value, len(c.enriched))
	for k, v := range c.enriched {
		out[k] = v
	}
	return out
}

// StageActions applies a batch of (key, value) writes atomically: if
// any write's value computation already failed before reaching here
// the caller should not invoke StageActions at all, since partial
// writes from a failed rule must never land - actions are staged by
// the caller and only committed here once every one succeeded.
func (c *Context) StageActions(writes map[string]value.Value, order []string) []ActionWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActionWrite, 0, len(order))
	for _, k := range order {
		v, ok := writes[k]
		if !ok {
			continue
		}
		prev, existed := c.enriched[k]
		c.enriched[k] = v
		out = append(out, ActionWrite{Key: k, Before: prevOrNull(prev, existed), After: v})
	}
	return out
}

// ActionWrite records one committed write for trace reporting.
type ActionWrite struct {
	Key    string
	Before value.Value
	After  value.Value
}

func prevOrNull(v value.Value, existed bool) value.Value {
	if !existed {
		return value.Null()
	}
	return v
}
