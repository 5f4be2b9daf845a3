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


package trace

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of a rule's per-run evaluation.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeFired
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFired:
		return "fired"
	case OutcomeErrored:
		return "errored"
	default:
		return "skipped"
	}
}

// FieldRead records one field access during condition evaluation.
type FieldRead struct {
	Name  string
	Value any
}

// ActionWrite records one enriched-fact write during action application.
type ActionWrite struct {
	Key    string
	Before any
	After  any
}

// RuleFrame is one rule's trace frame: the record produced per rule per
// run, gated by Level (Basic records outcome only; Detailed adds field
// reads/writes; Debug attaches the interpreter's step tree).
type RuleFrame struct {
	ID            string
	RuleID        string
	Priority      int
	ConditionSrc  string
	Outcome       Outcome
	ConditionBool bool
	FieldReads    []FieldRead
	MissingFields []string
	ActionWrites  []ActionWrite
	Elapsed       time.Duration
	Err           string
	Cancelled     bool
	Steps         *Node // Debug level only
}

// Recorder accumulates RuleFrames for one run, gated by Level.
type Recorder struct {
	Level  Level
	frames []*RuleFrame
}

func NewRecorder(level Level) *Recorder {
	return &Recorder{Level: level}
}

// Open starts a new frame; Close (via the returned func) appends it.
func (r *Recorder) Open(ruleID string, priority int, conditionSrc string) (*RuleFrame, func()) {
	f := &RuleFrame{ID: uuid.NewString(), RuleID: ruleID, Priority: priority, ConditionSrc: conditionSrc}
	start := time.Now()
	return f, func() {
		f.Elapsed = time.Since(start)
		if r.Level == LevelNone {
			return
		}
		if r.Level < LevelDetailed {
			f.FieldReads = nil
			f.MissingFields = nil
			f.ActionWrites = nil
		}
		if r.Level < LevelDebug {
			f.Steps = nil
		}
		r.frames = append(r.frames, f)
	}
}

func (r *Recorder) Frames() []*RuleFrame { return r.frames }

// Explain renders the human-readable surface: a paragraph per fired
// rule, a terse one-line reason per non-fired rule.
func (r *Recorder) Explain() string {
	var b strings.Builder
	for _, f := range r.frames {
		switch f.Outcome {
		case OutcomeFired:
			fmt.Fprintf(&b, "Rule %q fired (priority %d, condition %q matched in %s).\n",
				f.RuleID, f.Priority, f.ConditionSrc, f.Elapsed)
			for _, w := range f.ActionWrites {
				fmt.Fprintf(&b, "  wrote %s: %v -> %v\n", w.Key, w.Before, w.After)
			}
		case OutcomeErrored:
			reason := f.Err
			if f.Cancelled {
				reason = "run cancelled"
			}
			fmt.Fprintf(&b, "Rule %q errored: %s\n", f.RuleID, reason)
		default:
			fmt.Fprintf(&b, "Rule %q skipped (condition did not match).\n", f.RuleID)
		}
	}
	return b.String()
}

// Structured renders a dictionary indexable by rule id, including the
// critical path for each frame's step tree when present.
func (r *Recorder) Structured() map[string]any {
	out := make(map[string]any, len(r.frames))
	for _, f := range r.frames {
		entry := map[string]any{
			"frame_id":       f.ID,
			"outcome":        f.Outcome.String(),
			"priority":       f.Priority,
			"condition":      f.ConditionSrc,
			"condition_bool": f.ConditionBool,
			"elapsed_ms":     float64(f.Elapsed.Microseconds()) / 1000.0,
		}
		if f.Err != "" {
			entry["error"] = f.Err
		}
		if f.Cancelled {
			entry["cancelled"] = true
		}
		if len(f.FieldReads) > 0 {
			reads := make(map[string]any, len(f.FieldReads))
			for _, fr := range f.FieldReads {
				reads[fr.Name] = fr.Value
			}
			entry["field_reads"] = reads
		}
		if len(f.MissingFields) > 0 {
			entry["missing_fields"] = append([]string{}, f.MissingFields...)
		}
		if len(f.ActionWrites) > 0 {
			writes := make([]map[string]any, 0, len(f.ActionWrites))
			for _, w := range f.ActionWrites {
				writes = append(writes, map[string]any{"key": w.Key, "before": w.Before, "after": w.After})
			}
			entry["action_writes"] = writes
		}
		if f.Steps != nil {
			entry["critical_path"] = renderPath(f.Steps.CriticalPath())
		}
		out[f.RuleID] = entry
	}
	return out
}

func renderPath(nodes []*Node) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, map[string]any{"kind": n.Kind, "op": n.Op, "result": n.Result})
	}
	return out
}

// RuleIDs returns the fired-rule ids sorted by id, for callers that
// want a deterministic listing without holding onto the full Recorder.
func (r *Recorder) RuleIDs() []string {
	ids := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		if f.Outcome == OutcomeFired {
			ids = append(ids, f.RuleID)
		}
	}
	sort.Strings(ids)
	return ids
}
