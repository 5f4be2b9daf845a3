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


// Package jsoracle implements a goja-scripted oracle.Oracle stand-in
// for development and tests: a user-supplied JS function receives the
// prompt and returns a response without any real model call, so
// fallback-path behavior can be exercised deterministically.
//
// Pooling follows registry/sandbox.go's goja.Runtime-per-call pattern,
// since goja.Runtime is not safe for concurrent use by more than one
// goroutine.
package jsoracle

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/jackc/puddle/v2"

	"github.com/ruleforge/ruleforge/oracle"
)

// Oracle evaluates a JS function of the form `function(prompt) { ... }`
// that returns either a string or an object {text, cost}.
type Oracle struct {
	source string
	pool   *puddle.Pool[*goja.Runtime]
}

func New(source string) (*Oracle, error) {
	constructor := func(context.Context) (*goja.Runtime, error) { return goja.New(), nil }
	destructor := func(*goja.Runtime) {}
	pool, err := puddle.NewPool(&puddle.Config[*goja.Runtime]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     4,
	})
	if err != nil {
		return nil, fmt.Errorf("jsoracle: build VM pool: %w", err)
	}
	return &Oracle{source: source, pool: pool}, nil
}

var _ oracle.Oracle = (*Oracle)(nil)

func (o *Oracle) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (string, float64, time.Duration, error) {
	start := time.Now()
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := o.pool.Acquire(callCtx)
	if err != nil {
		return "", 0, time.Since(start), fmt.Errorf("jsoracle: acquire VM: %w", err)
	}
	defer res.Release()

	vm := res.Value()
	vm.ClearInterrupt()

	done := make(chan struct{})
	go func() {
		select {
		case <-callCtx.Done():
			vm.Interrupt(callCtx.Err())
		case <-done:
		}
	}()
	defer close(done)

	fnVal, err := vm.RunString("(" + o.source + ")")
	if err != nil {
		return "", 0, time.Since(start), fmt.Errorf("jsoracle: compile: %w", err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return "", 0, time.Since(start), fmt.Errorf("jsoracle: source is not a function expression")
	}

	ret, err := fn(goja.Undefined(), vm.ToValue(prompt), vm.ToValue(maxTokens), vm.ToValue(temperature))
	if err != nil {
		return "", 0, time.Since(start), fmt.Errorf("jsoracle: call: %w", err)
	}

	exported := ret.Export()
	latency := time.Since(start)
	switch v := exported.(type) {
	case string:
		return v, 0, latency, nil
	case map[string]interface{}:
		text, _ := v["text"].(string)
		var cost float64
		switch c := v["cost"].(type) {
		case float64:
			cost = c
		case int64:
			cost = float64(c)
		}
		return text, cost, latency, nil
	default:
		return fmt.Sprintf("%v", exported), 0, latency, nil
	}
}
