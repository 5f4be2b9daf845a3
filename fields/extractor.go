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


// Package fields implements the Field Extractor: a static walk
// over an expression AST collecting Name identifiers that are neither
// reserved words nor registered function names.
package fields

import (
	"sort"
	"sync"

	"github.com/ruleforge/ruleforge/ast"
)

// FunctionNamer reports whether a name is a registered function, so
// it can be excluded from the field set: a registered function name is
// never treated as a field.
type FunctionNamer interface {
	Has(name string) bool
}

// Extractor caches extraction results per expression source, the way
// parsing itself is cached.
type Extractor struct {
	mu    sync.Mutex
	cache map[string][]string
}

func New() *Extractor {
	return &Extractor{cache: make(map[string][]string)}
}

// Extract returns the sorted, de-duplicated set of field names read by
// expr, given a source string used as the cache key.
func (e *Extractor) Extract(source string, expr ast.Expression, fns FunctionNamer) []string {
	e.mu.Lock()
	if cached, ok := e.cache[source]; ok {
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	seen := map[string]struct{}{}
	walk(expr, fns, seen)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)

	e.mu.Lock()
	e.cache[source] = out
	e.mu.Unlock()
	return out
}

// walk performs a pure static descent; no evaluation occurs.
func walk(e ast.Expression, fns FunctionNamer, seen map[string]struct{}) {
	switch t := e.(type) {
	case nil:
		return
	case *ast.Literal:
		return
	case *ast.Name:
		if ast.IsReserved(t.Identifier) {
			return
		}
		if fns != nil && fns.Has(t.Identifier) {
			return
		}
		seen[t.Identifier] = struct{}{}
	case *ast.UnaryOp:
		walk(t.Operand, fns, seen)
	case *ast.BinOp:
		walk(t.Left, fns, seen)
		walk(t.Right, fns, seen)
	case *ast.BoolOp:
		for _, v := range t.Values {
			walk(v, fns, seen)
		}
	case *ast.Compare:
		walk(t.Left, fns, seen)
		for _, c := range t.Comparators {
			walk(c, fns, seen)
		}
	case *ast.Call:
		// The callee name itself is a function name, not a field; only
		// its arguments may read fields.
		for _, a := range t.Args {
			walk(a, fns, seen)
		}
	case *ast.List:
		for _, el := range t.Elements {
			walk(el, fns, seen)
		}
	case *ast.Subscript:
		walk(t.Value, fns, seen)
		walk(t.Index, fns, seen)
	case *ast.IfExp:
		walk(t.Test, fns, seen)
		walk(t.Body, fns, seen)
		walk(t.OrElse, fns, seen)
	}
}
