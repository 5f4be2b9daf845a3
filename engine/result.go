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
	"github.com/ruleforge/ruleforge/trace"
	"github.com/ruleforge/ruleforge/value"
)

// FallbackStats is a snapshot of cumulative fallback usage across
// every run this Engine has served, taken at the moment the run that
// produced this ExecutionResult finished.
type FallbackStats struct {
	Total      int64
	Structured int64
	Oracle     int64
	Failures   int64
}

// ExecutionResult is what Reason returns: the verdict, the fired-rule
// list, the per-rule trace, and the engine's cumulative fallback usage
// as of the end of the run.
type ExecutionResult struct {
	RunID         string
	Verdict       map[string]value.Value
	FiredRules    []string
	ElapsedMs     float64
	RuleTraces    []*trace.RuleFrame
	FallbackStats FallbackStats

	recorder *trace.Recorder
}

// Explain renders the human-readable trace surface.
func (r *ExecutionResult) Explain() string {
	if r.recorder == nil {
		return ""
	}
	return r.recorder.Explain()
}

// Structured renders the trace as a dictionary indexable by rule id.
func (r *ExecutionResult) Structured() map[string]any {
	if r.recorder == nil {
		return nil
	}
	return r.recorder.Structured()
}
