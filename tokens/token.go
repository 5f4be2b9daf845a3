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

package tokens

import (
	"fmt"
	"slices"
)

// Kind is the lexical category of a token in the expression surface.
type Kind string

const (
	EOF Kind = "EOF"

	// Literals and identifiers
	Ident  Kind = "Ident"
	Int    Kind = "Int"
	Float  Kind = "Float"
	String Kind = "String"

	// Operator lexemes carry the operator text as the token value
	// (`+`, `==`, `**`, ...).
	Op Kind = "Op"

	// Punctuation
	LeftParen    Kind = "LeftParen"
	RightParen   Kind = "RightParen"
	LeftBracket  Kind = "LeftBracket"
	RightBracket Kind = "RightBracket"
	Comma        Kind = "Comma"
	Colon        Kind = "Colon"
)

// Instance is one lexed token: its kind, raw text, and source position.
type Instance struct {
	Kind  Kind
	Value string
	Pos   Pos
}

func New(kind Kind, value string, pos Pos) Instance {
	return Instance{Kind: kind, Value: value, Pos: pos}
}

func EofInstance(pos Pos) Instance {
	return Instance{Kind: EOF, Pos: pos}
}

// IsOfKind reports whether t's kind is any of kinds.
func (t Instance) IsOfKind(kinds ...Kind) bool {
	return slices.Contains(kinds, t.Kind)
}

func (t Instance) String() string {
	if t.Kind == EOF {
		return "<EOF>"
	}
	return fmt.Sprintf("%s(%q)", t.Kind, t.Value)
}
