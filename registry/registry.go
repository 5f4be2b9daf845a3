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


// Package registry implements the Function Registry: built-in
// functions, user-registered functions (a pure-Go lambda tier and a
// sandboxed JS tier backed by goja), identifier legality, and the
// reserved-keyword audit.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruleforge/ruleforge/ast"
	"github.com/ruleforge/ruleforge/value"
	"github.com/ruleforge/ruleforge/xerr"
)

// Function is the calling convention for a built-in or user-registered
// function: built-ins validate their own arity from the arg list.
type Function func(ctx context.Context, args []value.Value) (value.Value, error)

// kind distinguishes how a registered entry is evaluated.
type kind int

const (
	kindBuiltin kind = iota
	kindPureGo
	kindSandboxedJS
)

type entry struct {
	kind kind
	fn   Function
	src  string // JS source, for kindSandboxedJS
}

// Registry holds built-in and user-registered callables behind a
// read-write lock: registration between runs is allowed and must be
// synchronized, but the table is treated as read-only during a run.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	sandbox *sandbox // lazily constructed on first JS registration
}

func New() *Registry {
	r := &Registry{entries: make(map[string]entry)}
	for name, fn := range builtins {
		r.entries[name] = entry{kind: kindBuiltin, fn: fn}
	}
	return r
}

// Has reports whether name is a registered function (built-in or user).
// The field extractor uses this to distinguish a function name from a
// field read.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Register adds a pure-Go user function. Go cannot introspect a
// closure for purity, so registering one requires allowUnsafe=true;
// otherwise use RegisterJS for the sandboxed tier instead.
func (r *Registry) Register(name string, fn Function, allowUnsafe bool) error {
	if err := r.checkName(name); err != nil {
		return err
	}
	if !allowUnsafe {
		return xerr.ErrValidation("", "function %q requires allow_unsafe=true to register a native Go callable (purity cannot be proven); use RegisterJS for a sandboxed tier", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{kind: kindPureGo, fn: fn}
	return nil
}

// RegisterJS registers a sandboxed JS user function. The function body
// is compiled and run inside a pooled goja.Runtime (sandbox.go), bounded
// by the same cancellation/timeout token the interpreter checks at each
// AST node - the safety boundary needed on a platform where Go cannot
// introspect closures for purity.
func (r *Registry) RegisterJS(name, source string) error {
	if err := r.checkName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sandbox == nil {
		r.sandbox = newSandbox()
	}
	r.entries[name] = entry{kind: kindSandboxedJS, src: source}
	return nil
}

// Unregister removes a previously registered function. Built-ins cannot
// be unregistered.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("function %q is not registered", name)
	}
	if e.kind == kindBuiltin {
		return fmt.Errorf("cannot unregister built-in function %q", name)
	}
	delete(r.entries, name)
	return nil
}

// List returns the names of all registered functions, built-in and user.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

func (r *Registry) checkName(name string) error {
	if name == "" {
		return xerr.ErrValidation("", "function name cannot be empty")
	}
	if !isLegalIdentifier(name) {
		return xerr.ErrValidation("", "function name %q is not a legal identifier", name)
	}
	if ast.IsReserved(name) {
		return xerr.ErrValidation("", "function name %q clashes with a reserved keyword", name)
	}
	r.mu.RLock()
	_, exists := r.entries[name]
	r.mu.RUnlock()
	if exists {
		return xerr.ErrConflict("function registration", name)
	}
	return nil
}

func isLegalIdentifier(name string) bool {
	for i, r := range name {
		if i == 0 && !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
		if i > 0 && !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return len(name) > 0
}

// Call invokes a registered function by name. Built-ins and pure-Go
// functions receive args as a single list; the JS tier marshals args
// through the sandbox. A failing user function surfaces as a
// FunctionError with the function name, argument vector, and cause
// attached.
func (r *Registry) Call(ctx context.Context, name string, args []value.Value) (value.Value, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	sb := r.sandbox
	r.mu.RUnlock()

	if !ok {
		return value.Null(), xerr.ErrEvaluation(name, "unknown function %q", name)
	}

	var result value.Value
	var err error
	switch e.kind {
	case kindBuiltin, kindPureGo:
		result, err = e.fn(ctx, args)
	case kindSandboxedJS:
		result, err = sb.run(ctx, e.src, args)
	default:
		return value.Null(), xerr.ErrEvaluation(name, "unregistered function kind")
	}
	if err != nil {
		native := make([]any, len(args))
		for i, a := range args {
			native[i] = a.Native()
		}
		return value.Null(), xerr.ErrFunction(name, native, err)
	}
	return result, nil
}

// AuditReservedNames checks that no built-in function name collides
// with the reserved keyword set. Called from engine.New at
// construction so a naming collision fails fast instead of silently
// shadowing a keyword.
func AuditReservedNames() error {
	for name := range builtins {
		if ast.IsReserved(name) {
			return xerr.ErrValidation("", "built-in function %q collides with a reserved keyword", name)
		}
	}
	return nil
}
