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


// Package trace implements the trace recorder: a step tree captured
// during expression evaluation plus per-rule trace frames assembled
// into the four trace levels (None, Basic, Detailed, Debug).
package trace

import (
	"fmt"
	"strings"
	"time"

	"github.com/ruleforge/ruleforge/ast"
)

// Level controls how much detail the interpreter records while
// evaluating a rule.
type Level int

const (
	LevelNone Level = iota
	LevelBasic
	LevelDetailed
	LevelDebug
)

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return LevelNone, nil
	case "basic":
		return LevelBasic, nil
	case "detailed":
		return LevelDetailed, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelNone, fmt.Errorf("unknown trace level %q", s)
	}
}

// Node captures a single evaluation step in the decision tree.
type Node struct {
	Kind     string         `json:"kind"`
	Op       string         `json:"op,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
	Node     ast.Node       `json:"-"`
	Meta     map[string]any `json:"meta,omitempty"`
	Children []*Node        `json:"children,omitempty"`
	Result   any            `json:"result,omitempty"`
	Err      string         `json:"err,omitempty"`
}

type DoneFn func()

// New starts a step timer and returns the node plus a DoneFn to stop it.
func New(kind, op string, n ast.Node, meta map[string]any) (*Node, DoneFn) {
	x := &Node{Kind: kind, Op: op, Node: n, Meta: meta}
	start := time.Now()
	return x, func() { x.Duration = time.Since(start) }
}

func Unsupported(n ast.Node) *Node {
	return &Node{Kind: "unsupported", Node: n, Meta: map[string]any{"type": fmt.Sprintf("%T", n)}}
}

// Attach appends children and returns self for chaining.
func (n *Node) Attach(children ...*Node) *Node {
	if len(children) == 0 {
		return n
	}
	n.Children = append(n.Children, children...)
	return n
}

func (n *Node) SetResult(v any) *Node {
	n.Result = v
	return n
}

func (n *Node) SetErr(err error) *Node {
	if err != nil {
		n.Err = err.Error()
	}
	return n
}

// CriticalPath returns the shortest sequence of steps that determined
// n's boolean outcome: for a bool-op node this is the single
// short-circuiting child (or both children if neither short-circuits),
// for any other node it is the full child list in the order evaluated.
func (n *Node) CriticalPath() []*Node {
	if n == nil {
		return nil
	}
	if n.Kind != "infix" || len(n.Children) == 0 {
		return n.Children
	}
	switch n.Op {
	case "and":
		if b, ok := n.Children[0].Result.(bool); ok && !b {
			return n.Children[:1]
		}
	case "or":
		if b, ok := n.Children[0].Result.(bool); ok && b {
			return n.Children[:1]
		}
	}
	return n.Children
}
