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


package scheduler

import (
	"sort"

	"github.com/ruleforge/ruleforge/rule"
	"github.com/ruleforge/ruleforge/value"
)

// Goal names a field (and optionally an expected value) to seek a
// producing rule for. Goal-seeking is opt-in and separate from the
// forward-chaining Schedule path.
type Goal struct {
	Field    string
	Expected value.Value
	HasValue bool
}

// MaxGoalDepth bounds how many trigger hops the chainer follows when
// a caller asks it to also explain which upstream rule could fire the
// producing rule via triggers (ChainTriggers below); the chainer
// itself (Seek) does not recurse past one write-producer lookup.
const MaxGoalDepth = 32

// Seek returns every rule that can produce goal.Field: a rule whose
// action or fact keys include goal.Field, filtered to rules whose
// corresponding action/fact value is a literal equal to
// goal.Expected when HasValue is set (a templated or expression value
// cannot be checked without evaluating it against facts that don't
// exist yet, so such rules are included unconditionally - the caller
// must still run them to learn the produced value).
func Seek(rules []*rule.Rule, goal Goal) []*rule.Rule {
	var out []*rule.Rule
	for _, r := range rules {
		av, ok := r.Actions[goal.Field]
		if !ok {
			av, ok = r.Facts[goal.Field]
		}
		if !ok {
			continue
		}
		if goal.HasValue && av.Kind == rule.ActionLiteral {
			if !value.Equal(av.Literal, goal.Expected) {
				continue
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ChainTriggers extends Seek with a bounded backward walk over the
// `triggers` relation: for each rule that can produce goal.Field, it
// also collects every rule that (transitively, up to MaxGoalDepth
// hops) names a producer in its own `triggers` list, since firing
// such a rule is another way the producer ends up running. Cycles are
// broken with a visited-set.
func ChainTriggers(rules []*rule.Rule, goal Goal) []*rule.Rule {
	byID := make(map[string]*rule.Rule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}

	producers := Seek(rules, goal)
	visited := make(map[string]bool, len(rules))
	result := make(map[string]*rule.Rule, len(producers))
	for _, p := range producers {
		result[p.ID] = p
		visited[p.ID] = true
	}

	// A rule triggers another by naming it in its own Triggers list;
	// walk backward from each producer to find rules that trigger it,
	// depth-capped and cycle-safe.
	frontier := make([]string, 0, len(producers))
	for _, p := range producers {
		frontier = append(frontier, p.ID)
	}
	for depth := 0; depth < MaxGoalDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, r := range rules {
			for _, id := range frontier {
				if containsTrigger(r.Triggers, id) && !visited[r.ID] {
					visited[r.ID] = true
					result[r.ID] = r
					next = append(next, r.ID)
				}
			}
		}
		frontier = next
	}

	out := make([]*rule.Rule, 0, len(result))
	for _, r := range result {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsTrigger(triggers []string, id string) bool {
	for _, t := range triggers {
		if t == id {
			return true
		}
	}
	return false
}
