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

// Reserved is the compile-time constant set of reserved keywords.
// Reserved names cannot be rule ids, fact keys, action keys, or
// registered function names.
var Reserved = map[string]struct{}{
	"true": {}, "false": {}, "null": {}, "True": {}, "False": {}, "Null": {},
	"and": {}, "or": {}, "not": {}, "in": {}, "is": {},
	"if": {}, "else": {},
	"rules": {}, "rule": {}, "condition": {}, "actions": {}, "then": {},
	"facts": {}, "triggers": {}, "tags": {}, "description": {}, "enabled": {},
	"priority": {}, "version": {}, "metadata": {},
}

// IsReserved reports whether name is in the reserved keyword set.
func IsReserved(name string) bool {
	_, ok := Reserved[name]
	return ok
}

// parser is a recursive-descent, precedence-climbing parser over the
// expression surface: ternary > or > and > not > comparison > sum >
// product > unary > power > postfix > primary.
type parser struct {
	toks []tokens.Instance
	pos  int
	src  string
}

// ParseExpression parses source into an Expression AST. It is the sole
// entry point the interpreter's parse cache (interp package) calls
// through; every node produced is one of the whitelisted types in
// nodes.go.
func ParseExpression(source string) (Expression, error) {
	l := newLexer(source)
	var toks []tokens.Instance
	for {
		t, err := l.next()
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", source, err)
		}
		toks = append(toks, t)
		if t.IsOfKind(tokens.EOF) {
			break
		}
	}
	p := &parser{toks: toks, src: source}
	expr, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if !p.cur().IsOfKind(tokens.EOF) {
		return nil, fmt.Errorf("parse %q: unexpected trailing token %q at %s", source, p.cur().Value, p.cur().Pos)
	}
	return expr, nil
}

func (p *parser) cur() tokens.Instance { return p.toks[p.pos] }
func (p *parser) advance() tokens.Instance {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) isIdent(name string) bool {
	return p.cur().IsOfKind(tokens.Ident) && p.cur().Value == name
}

func (p *parser) isOp(op string) bool {
	return p.cur().IsOfKind(tokens.Op) && p.cur().Value == op
}

// parseTernary handles `body if test else orelse`.
func (p *parser) parseTernary() (Expression, error) {
	body, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.isIdent("if") {
		pos := p.advance().Pos
		test, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.isIdent("else") {
			return nil, fmt.Errorf("parse %q: expected 'else' at %s", p.src, p.cur().Pos)
		}
		p.advance()
		orelse, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return NewIfExp(test, body, orelse, pos), nil
	}
	return body, nil
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.isIdent("or") {
		return left, nil
	}
	pos := left.Position()
	values := []Expression{left}
	for p.isIdent("or") {
		p.advance()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		values = append(values, next)
	}
	return NewBoolOp(BoolOr, values, pos), nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.isIdent("and") {
		return left, nil
	}
	pos := left.Position()
	values := []Expression{left}
	for p.isIdent("and") {
		p.advance()
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		values = append(values, next)
	}
	return NewBoolOp(BoolAnd, values, pos), nil
}

func (p *parser) parseNot() (Expression, error) {
	if p.isIdent("not") {
		pos := p.advance().Pos
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NewUnaryOp(UnaryNot, operand, pos), nil
	}
	return p.parseCompare()
}

var compareOps = map[string]CompareOperator{
	"==": CmpEq, "!=": CmpNe, "<": CmpLt, "<=": CmpLe, ">": CmpGt, ">=": CmpGe,
}

// parseCompare parses a chainable comparison: `a < b <= c` lowers to a
// single Compare node carrying the operator/comparator pairs.
func (p *parser) parseCompare() (Expression, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	var ops []CompareOperator
	var comparators []Expression

	for {
		op, ok, err := p.tryCompareOp()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		comparators = append(comparators, right)
	}

	if len(ops) == 0 {
		return left, nil
	}
	return NewCompare(left, ops, comparators, left.Position()), nil
}

func (p *parser) tryCompareOp() (CompareOperator, bool, error) {
	if p.cur().IsOfKind(tokens.Op) {
		if op, ok := compareOps[p.cur().Value]; ok {
			p.advance()
			return op, true, nil
		}
		return "", false, nil
	}
	if p.isIdent("in") {
		p.advance()
		return CmpIn, true, nil
	}
	if p.isIdent("not") {
		save := p.pos
		p.advance()
		if p.isIdent("in") {
			p.advance()
			return CmpNotIn, true, nil
		}
		p.pos = save
		return "", false, nil
	}
	if p.isIdent("is") {
		p.advance()
		if p.isIdent("not") {
			p.advance()
			return CmpIsNot, true, nil
		}
		return CmpIs, true, nil
	}
	return "", false, nil
}

func (p *parser) parseSum() (Expression, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		opTok := p.advance()
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = NewBinOp(BinOperator(opTok.Value), left, right, opTok.Pos)
	}
	return left, nil
}

func (p *parser) parseProduct() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("%") {
		opTok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = NewBinOp(BinOperator(opTok.Value), left, right, opTok.Pos)
	}
	return left, nil
}

func (p *parser) parseUnary() (Expression, error) {
	if p.isOp("-") || p.isOp("+") {
		opTok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return NewUnaryOp(UnaryOperator(opTok.Value), operand, opTok.Pos), nil
	}
	return p.parsePower()
}

// parsePower is right-associative and binds tighter than unary, so that
// `-2**2` parses as `-(2**2)`, matching the Expression surface's
// Python-flavored semantics.
func (p *parser) parsePower() (Expression, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		opTok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return NewBinOp(BinPow, base, right, opTok.Pos), nil
	}
	return base, nil
}

// parsePostfix handles subscription chained onto a primary expression.
func (p *parser) parsePostfix() (Expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur().IsOfKind(tokens.LeftBracket) {
		pos := p.advance().Pos
		idx, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if !p.cur().IsOfKind(tokens.RightBracket) {
			return nil, fmt.Errorf("parse %q: expected ']' at %s", p.src, p.cur().Pos)
		}
		p.advance()
		expr = NewSubscript(expr, idx, pos)
	}
	return expr, nil
}

func (p *parser) parsePrimary() (Expression, error) {
	t := p.cur()
	switch t.Kind {
	case tokens.Int:
		p.advance()
		i, err := parseIntLiteral(t.Value)
		if err != nil {
			return nil, fmt.Errorf("parse %q: bad integer literal %q at %s", p.src, t.Value, t.Pos)
		}
		return NewLiteral(value.Int(i), t.Pos), nil

	case tokens.Float:
		p.advance()
		f, err := parseFloatLiteral(t.Value)
		if err != nil {
			return nil, fmt.Errorf("parse %q: bad float literal %q at %s", p.src, t.Value, t.Pos)
		}
		return NewLiteral(value.Float(f), t.Pos), nil

	case tokens.String:
		p.advance()
		return NewLiteral(value.String(t.Value), t.Pos), nil

	case tokens.LeftBracket:
		pos := p.advance().Pos
		var elems []Expression
		for !p.cur().IsOfKind(tokens.RightBracket) {
			e, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.cur().IsOfKind(tokens.Comma) {
				p.advance()
				continue
			}
			break
		}
		if !p.cur().IsOfKind(tokens.RightBracket) {
			return nil, fmt.Errorf("parse %q: expected ']' at %s", p.src, p.cur().Pos)
		}
		p.advance()
		return NewList(elems, pos), nil

	case tokens.LeftParen:
		p.advance()
		inner, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if !p.cur().IsOfKind(tokens.RightParen) {
			return nil, fmt.Errorf("parse %q: expected ')' at %s", p.src, p.cur().Pos)
		}
		p.advance()
		return inner, nil

	case tokens.Ident:
		return p.parseIdentOrCall()

	default:
		return nil, fmt.Errorf("parse %q: unexpected token %q at %s", p.src, t.Value, t.Pos)
	}
}

func (p *parser) parseIdentOrCall() (Expression, error) {
	t := p.advance()
	switch strings.ToLower(t.Value) {
	case "true":
		return NewLiteral(value.Bool(true), t.Pos), nil
	case "false":
		return NewLiteral(value.Bool(false), t.Pos), nil
	case "null":
		return NewLiteral(value.Null(), t.Pos), nil
	}

	if p.cur().IsOfKind(tokens.LeftParen) {
		p.advance()
		var args []Expression
		for !p.cur().IsOfKind(tokens.RightParen) {
			a, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.cur().IsOfKind(tokens.Comma) {
				p.advance()
				continue
			}
			break
		}
		if !p.cur().IsOfKind(tokens.RightParen) {
			return nil, fmt.Errorf("parse %q: expected ')' at %s", p.src, p.cur().Pos)
		}
		p.advance()
		return NewCall(t.Value, args, t.Pos), nil
	}

	return NewName(t.Value, t.Pos), nil
}
