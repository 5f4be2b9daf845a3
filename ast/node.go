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


// Package ast defines the closed expression AST node set. Any node
// type not declared here is rejected by the parser and by the
// interpreter's whitelist check, which raises a SecurityError.
package ast

import "github.com/ruleforge/ruleforge/tokens"

// Node is the common interface implemented by every AST node.
type Node interface {
	String() string
	Position() tokens.Pos
}

// Expression is every node kind that can appear in a condition or
// template expression. The node set below is exhaustive and closed -
// any other node kind must be rejected at parse time.
type Expression interface {
	Node
	expressionNode()
}

type baseNode struct {
	Pos tokens.Pos
}

func (b baseNode) Position() tokens.Pos { return b.Pos }
