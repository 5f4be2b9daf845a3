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


// Package xerr implements the error taxonomy: ten
// distinct kinds plus ConflictError, each a struct type constructible
// via an Err* function. ParseError and FunctionError keep their cause
// and unwrap to it; ErrLoad wraps a LoadError with the cause's message
// using github.com/pkg/errors, so the cause value itself is not
// reachable by unwrapping.
package xerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// LoadError - file/source missing, malformed.
type LoadError struct{ Source string }

func (e LoadError) Error() string { return fmt.Sprintf("load error: %s", e.Source) }
func ErrLoad(source string, cause error) error {
	return errors.Wrap(LoadError{Source: source}, cause.Error())
}

// SchemaError - YAML shape violation.
type SchemaError struct{ Detail string }

func (e SchemaError) Error() string { return fmt.Sprintf("schema error: %s", e.Detail) }
func ErrSchema(format string, args ...any) error {
	return SchemaError{Detail: fmt.Sprintf(format, args...)}
}

// ValidationError - semantic rule-set issue.
type ValidationError struct {
	RuleID string
	Detail string
}

func (e ValidationError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("validation error: %s", e.Detail)
	}
	return fmt.Sprintf("validation error: rule %q: %s", e.RuleID, e.Detail)
}
func ErrValidation(ruleID, format string, args ...any) error {
	return ValidationError{RuleID: ruleID, Detail: fmt.Sprintf(format, args...)}
}

// CompilationError - condition compiler rejected a structured condition.
type CompilationError struct{ Detail string }

func (e CompilationError) Error() string { return fmt.Sprintf("compilation error: %s", e.Detail) }
func ErrCompilation(format string, args ...any) error {
	return CompilationError{Detail: fmt.Sprintf(format, args...)}
}

// ParseError - expression text unparseable.
type ParseError struct {
	Expression string
	Cause      error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parse error in %q: %s", e.Expression, e.Cause)
}
func (e ParseError) Unwrap() error { return e.Cause }
func ErrParse(expr string, cause error) error {
	return ParseError{Expression: expr, Cause: cause}
}

// SecurityError - bound violation (length, depth, whitelist, timeout,
// oracle cost ceiling).
type SecurityError struct{ Reason string }

func (e SecurityError) Error() string { return fmt.Sprintf("security error: %s", e.Reason) }
func ErrSecurity(format string, args ...any) error {
	return SecurityError{Reason: fmt.Sprintf(format, args...)}
}

// EvaluationError - well-formed expression fails at runtime.
type EvaluationError struct {
	Expression string
	Detail     string
}

func (e EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error in %q: %s", e.Expression, e.Detail)
}
func ErrEvaluation(expr, format string, args ...any) error {
	return EvaluationError{Expression: expr, Detail: fmt.Sprintf(format, args...)}
}

// FunctionError - user-registered function raised.
type FunctionError struct {
	Function string
	Args     []any
	Cause    error
}

func (e FunctionError) Error() string {
	return fmt.Sprintf("function %q failed with args %v: %s", e.Function, e.Args, e.Cause)
}
func (e FunctionError) Unwrap() error { return e.Cause }
func ErrFunction(name string, args []any, cause error) error {
	return FunctionError{Function: name, Args: args, Cause: cause}
}

// OracleError - oracle transport failure or timeout during fallback.
type OracleError struct{ Detail string }

func (e OracleError) Error() string { return fmt.Sprintf("oracle error: %s", e.Detail) }
func ErrOracle(format string, args ...any) error {
	return OracleError{Detail: fmt.Sprintf(format, args...)}
}

// CancelledError - run was cancelled.
type CancelledError struct{ RuleID string }

func (e CancelledError) Error() string { return fmt.Sprintf("cancelled at rule %q", e.RuleID) }
func ErrCancelled(ruleID string) error { return CancelledError{RuleID: ruleID} }

// ErrConflict mirrors the conflict-style error for duplicate
// identifiers (rule ids, fact keys, action keys).
type ConflictError struct {
	What  string
	Where string
}

func (e ConflictError) Error() string { return fmt.Sprintf("conflict: %s at %s", e.What, e.Where) }
func ErrConflict(what, where string) error {
	return ConflictError{What: what, Where: where}
}
