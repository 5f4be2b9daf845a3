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


package ast

import (
	"fmt"
	"strings"

	"github.com/ruleforge/ruleforge/tokens"
	"github.com/ruleforge/ruleforge/value"
)

// UnaryOperator enumerates the supported unary operators.
type UnaryOperator string

const (
	UnaryNot   UnaryOperator = "not"
	UnaryPlus  UnaryOperator = "+"
	UnaryMinus UnaryOperator = "-"
)

// BinOperator enumerates the supported arithmetic binary operators.
type BinOperator string

const (
	BinAdd BinOperator = "+"
	BinSub BinOperator = "-"
	BinMul BinOperator = "*"
	BinDiv BinOperator = "/"
	BinMod BinOperator = "%"
	BinPow BinOperator = "**"
)

// BoolOperator enumerates the n-ary short-circuit boolean operators.
type BoolOperator string

const (
	BoolAnd BoolOperator = "and"
	BoolOr  BoolOperator = "or"
)

// CompareOperator enumerates the chainable comparison operators.
type CompareOperator string

const (
	CmpEq       CompareOperator = "=="
	CmpNe       CompareOperator = "!="
	CmpLt       CompareOperator = "<"
	CmpLe       CompareOperator = "<="
	CmpGt       CompareOperator = ">"
	CmpGe       CompareOperator = ">="
	CmpIn       CompareOperator = "in"
	CmpNotIn    CompareOperator = "not in"
	CmpIs       CompareOperator = "is"
	CmpIsNot    CompareOperator = "is not"
)

// Literal wraps a constant Value: numbers, strings, null, true/false.
type Literal struct {
	baseNode
	Value value.Value
}

func NewLiteral(v value.Value, pos tokens.Pos) *Literal { return &Literal{baseNode{pos}, v} }
func (l *Literal) String() string                       { return l.Value.String() }
func (l *Literal) expressionNode()                      {}

// Name is a field read.
type Name struct {
	baseNode
	Identifier string
}

func NewName(id string, pos tokens.Pos) *Name { return &Name{baseNode{pos}, id} }
func (n *Name) String() string                { return n.Identifier }
func (n *Name) expressionNode()               {}

// UnaryOp applies a unary operator to a single operand.
type UnaryOp struct {
	baseNode
	Op      UnaryOperator
	Operand Expression
}

func NewUnaryOp(op UnaryOperator, operand Expression, pos tokens.Pos) *UnaryOp {
	return &UnaryOp{baseNode{pos}, op, operand}
}
func (u *UnaryOp) String() string  { return fmt.Sprintf("%s(%s)", u.Op, u.Operand.String()) }
func (u *UnaryOp) expressionNode() {}

// BinOp applies an arithmetic binary operator.
type BinOp struct {
	baseNode
	Op    BinOperator
	Left  Expression
	Right Expression
}

func NewBinOp(op BinOperator, left, right Expression, pos tokens.Pos) *BinOp {
	return &BinOp{baseNode{pos}, op, left, right}
}
func (b *BinOp) String() string  { return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right) }
func (b *BinOp) expressionNode() {}

// BoolOp is the n-ary short-circuit and/or node.
type BoolOp struct {
	baseNode
	Op     BoolOperator
	Values []Expression
}

func NewBoolOp(op BoolOperator, values []Expression, pos tokens.Pos) *BoolOp {
	return &BoolOp{baseNode{pos}, op, values}
}
func (b *BoolOp) String() string {
	parts := make([]string, len(b.Values))
	for i, v := range b.Values {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, " "+string(b.Op)+" ") + ")"
}
func (b *BoolOp) expressionNode() {}

// Compare is a chainable comparison: `a < b <= c` carries
// Ops=[<,<=], Comparators=[b,c].
type Compare struct {
	baseNode
	Left        Expression
	Ops         []CompareOperator
	Comparators []Expression
}

func NewCompare(left Expression, ops []CompareOperator, comparators []Expression, pos tokens.Pos) *Compare {
	return &Compare{baseNode{pos}, left, ops, comparators}
}
func (c *Compare) String() string {
	out := c.Left.String()
	for i, op := range c.Ops {
		out += fmt.Sprintf(" %s %s", op, c.Comparators[i])
	}
	return out
}
func (c *Compare) expressionNode() {}

// Call invokes a registered function by name.
type Call struct {
	baseNode
	Name string
	Args []Expression
}

func NewCall(name string, args []Expression, pos tokens.Pos) *Call {
	return &Call{baseNode{pos}, name, args}
}
func (c *Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}
func (c *Call) expressionNode() {}

// List is a list literal expression.
type List struct {
	baseNode
	Elements []Expression
}

func NewList(elements []Expression, pos tokens.Pos) *List { return &List{baseNode{pos}, elements} }
func (l *List) String() string {
	parts := make([]string, len(l.Elements))
	for i, e := range l.Elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (l *List) expressionNode() {}

// Subscript indexes a List (int index), String (int index), or Mapping
// (string key).
type Subscript struct {
	baseNode
	Value Expression
	Index Expression
}

func NewSubscript(v, idx Expression, pos tokens.Pos) *Subscript {
	return &Subscript{baseNode{pos}, v, idx}
}
func (s *Subscript) String() string  { return fmt.Sprintf("%s[%s]", s.Value, s.Index) }
func (s *Subscript) expressionNode() {}

// IfExp is the ternary `body if test else orelse`.
type IfExp struct {
	baseNode
	Test   Expression
	Body   Expression
	OrElse Expression
}

func NewIfExp(test, body, orelse Expression, pos tokens.Pos) *IfExp {
	return &IfExp{baseNode{pos}, test, body, orelse}
}
func (i *IfExp) String() string  { return fmt.Sprintf("(%s if %s else %s)", i.Body, i.Test, i.OrElse) }
func (i *IfExp) expressionNode() {}

var (
	_ Expression = (*Literal)(nil)
	_ Expression = (*Name)(nil)
	_ Expression = (*UnaryOp)(nil)
	_ Expression = (*BinOp)(nil)
	_ Expression = (*BoolOp)(nil)
	_ Expression = (*Compare)(nil)
	_ Expression = (*Call)(nil)
	_ Expression = (*List)(nil)
	_ Expression = (*Subscript)(nil)
	_ Expression = (*IfExp)(nil)
)
