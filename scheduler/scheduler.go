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


// Package scheduler implements the Scheduler: priority +
// field-dependency topological sort with cycle tolerance, and a small
// Backward Chainer auxiliary for opt-in goal-seek APIs.
package scheduler

import (
	"sort"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/ruleforge/ruleforge/dag"
	"github.com/ruleforge/ruleforge/fields"
	"github.com/ruleforge/ruleforge/rule"
)

// ruleNode adapts *rule.Rule to fmt.Stringer for the generic dag.
type ruleNode struct {
	*rule.Rule
}

func (n ruleNode) String() string { return n.ID }

// Order is the deterministic execution order produced for one rule set.
type Order struct {
	Rules []*rule.Rule
	// CycleFallback lists rule ids that could not be placed by the
	// dependency topo sort and were instead appended in pure priority
	// order (see the cycle-tolerance fallback below).
	CycleFallback []string
}

// Schedule computes the execution order for rules:
//  1. read set via the Field Extractor, write set via actions/facts keys
//  2. an edge writer -> reader wherever write ∩ read ≠ ∅
//  3. Kahn's algorithm, ties broken by descending priority then id
//  4. any cyclic remainder falls back to pure priority order
func Schedule(rules []*rule.Rule, extractor *fields.Extractor, fns fields.FunctionNamer) Order {
	g := dag.New[ruleNode]()
	byID := make(map[string]*rule.Rule, len(rules))
	writeSets := make(map[string]map[string]struct{}, len(rules))
	readSets := make(map[string]map[string]struct{}, len(rules))

	for _, r := range rules {
		byID[r.ID] = r
		g.AddNode(ruleNode{r})
		writeSets[r.ID] = r.WriteSet()
		reads := map[string]struct{}{}
		if r.Condition != nil {
			for _, f := range extractor.Extract(r.ConditionSrc, r.Condition, fns) {
				reads[f] = struct{}{}
			}
		}
		readSets[r.ID] = reads
	}

	for _, writer := range rules {
		for _, reader := range rules {
			if writer.ID == reader.ID {
				continue
			}
			if intersects(writeSets[writer.ID], readSets[reader.ID]) {
				// AddEdge only errors on a self-loop, already excluded above.
				_ = g.AddEdge(ruleNode{writer}, ruleNode{reader})
			}
		}
	}

	less := func(a, b ruleNode) bool {
		if a.Priority != b.Priority {
			return a.Priority > b.Priority // descending priority
		}
		return a.ID < b.ID // lexicographic tie-break
	}

	ordered, remaining := g.KahnOrder(less)

	out := make([]*rule.Rule, 0, len(rules))
	for _, n := range ordered {
		out = append(out, n.Rule)
	}

	if len(remaining) > 0 {
		// Cycle tolerance: remaining rules run in
		// pure priority order, appended after the resolved prefix.
		rem := make([]*rule.Rule, 0, len(remaining))
		for _, id := range remaining {
			rem = append(rem, byID[id])
		}
		sort.SliceStable(rem, func(i, j int) bool {
			if rem[i].Priority != rem[j].Priority {
				return rem[i].Priority > rem[j].Priority
			}
			return rem[i].ID < rem[j].ID
		})
		out = append(out, rem...)
	}

	return Order{Rules: out, CycleFallback: remaining}
}

func intersects(a, b map[string]struct{}) bool {
	// Iterate the smaller set for efficiency.
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// Fingerprint computes a stable hash of a rule set's shape (ids,
// priorities, condition sources, and write sets) so the engine can
// cache the computed Order per rule-set version, using the
// hashstructure dependency.
func Fingerprint(rules []*rule.Rule) (uint64, error) {
	type shape struct {
		ID        string
		Priority  int
		Condition string
		Writes    []string
		Triggers  []string
	}
	shapes := make([]shape, 0, len(rules))
	for _, r := range rules {
		writes := make([]string, 0, len(r.Actions)+len(r.Facts))
		for k := range r.WriteSet() {
			writes = append(writes, k)
		}
		sort.Strings(writes)
		shapes = append(shapes, shape{
			ID:        r.ID,
			Priority:  r.Priority,
			Condition: r.ConditionSrc,
			Writes:    writes,
			Triggers:  append([]string{}, r.Triggers...),
		})
	}
	sort.Slice(shapes, func(i, j int) bool { return shapes[i].ID < shapes[j].ID })
	return hashstructure.Hash(shapes, hashstructure.FormatV2, nil)
}
