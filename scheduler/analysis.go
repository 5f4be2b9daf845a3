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

	"github.com/ruleforge/ruleforge/fields"
	"github.com/ruleforge/ruleforge/rule"
)

// Analysis summarizes a rule set's execution characteristics: how
// priorities are distributed, which fields are read and written most,
// and whether the field-dependency graph forced a cycle fallback.
type Analysis struct {
	TotalRules           int
	PriorityDistribution map[int]int
	FieldReads           map[string]int
	FieldWrites          map[string]int
	DependencyEdges      int
	CycleFallbackRules   []string
	// HotFields lists fields both written by one rule and read by
	// another, sorted by combined reference count; these are the edges
	// that constrain the schedule.
	HotFields []string
}

// Analyze computes an Analysis without executing any rule. It shares
// Schedule's read/write-set derivation so the numbers reflect exactly
// what the scheduler sees.
func Analyze(rules []*rule.Rule, extractor *fields.Extractor, fns fields.FunctionNamer) Analysis {
	a := Analysis{
		TotalRules:           len(rules),
		PriorityDistribution: map[int]int{},
		FieldReads:           map[string]int{},
		FieldWrites:          map[string]int{},
	}

	readSets := make(map[string]map[string]struct{}, len(rules))
	writeSets := make(map[string]map[string]struct{}, len(rules))
	for _, r := range rules {
		a.PriorityDistribution[r.Priority]++

		ws := r.WriteSet()
		writeSets[r.ID] = ws
		for k := range ws {
			a.FieldWrites[k]++
		}

		reads := map[string]struct{}{}
		if r.Condition != nil {
			for _, f := range extractor.Extract(r.ConditionSrc, r.Condition, fns) {
				reads[f] = struct{}{}
				a.FieldReads[f]++
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
				a.DependencyEdges++
			}
		}
	}

	order := Schedule(rules, extractor, fns)
	a.CycleFallbackRules = order.CycleFallback

	hot := map[string]int{}
	for f, w := range a.FieldWrites {
		if r, ok := a.FieldReads[f]; ok {
			hot[f] = w + r
		}
	}
	a.HotFields = make([]string, 0, len(hot))
	for f := range hot {
		a.HotFields = append(a.HotFields, f)
	}
	sort.Slice(a.HotFields, func(i, j int) bool {
		if hot[a.HotFields[i]] != hot[a.HotFields[j]] {
			return hot[a.HotFields[i]] > hot[a.HotFields[j]]
		}
		return a.HotFields[i] < a.HotFields[j]
	})

	return a
}
