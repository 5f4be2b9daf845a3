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


package registry

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/fatih/structs"
	"github.com/jackc/puddle/v2"
	"github.com/ruleforge/ruleforge/value"
)

// sandbox pools goja.Runtime VMs for the registry's sandboxed JS user
// function tier. goja.Runtime is not safe for concurrent use by more
// than one goroutine, and multiple concurrent runs against the same
// engine are permitted, so each run acquires its own VM from the pool.
type sandbox struct {
	pool *puddle.Pool[*goja.Runtime]
}

func newSandbox() *sandbox {
	constructor := func(context.Context) (*goja.Runtime, error) {
		return goja.New(), nil
	}
	destructor := func(*goja.Runtime) {}
	pool, err := puddle.NewPool(&puddle.Config[*goja.Runtime]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     8,
	})
	if err != nil {
		// puddle.NewPool only fails on a malformed Config; MaxSize>0 and
		// non-nil Constructor/Destructor are always supplied above.
		panic(err)
	}
	return &sandbox{pool: pool}
}

// run compiles and executes a JS function body of the form
// `function(args) { ... }` against a pooled VM, honoring ctx
// cancellation via goja's interrupt mechanism.
func (s *sandbox) run(ctx context.Context, source string, args []value.Value) (value.Value, error) {
	res, err := s.pool.Acquire(ctx)
	if err != nil {
		return value.Null(), fmt.Errorf("acquire sandbox VM: %w", err)
	}
	defer res.Release()

	vm := res.Value()
	vm.ClearInterrupt()

	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				vm.Interrupt(ctx.Err())
			case <-done:
			}
		}()
		defer close(done)
	}

	fnVal, err := vm.RunString("(" + source + ")")
	if err != nil {
		return value.Null(), fmt.Errorf("compile sandboxed function: %w", err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return value.Null(), fmt.Errorf("sandboxed source is not a function expression")
	}

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = vm.ToValue(a.Native())
	}

	result, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return value.Null(), err
	}

	exported := result.Export()
	if structs.IsStruct(exported) {
		exported = structs.Map(exported)
	}
	return value.FromNative(exported), nil
}
