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


// Package oracle defines the capability interface the fallback
// evaluator delegates to when structured evaluation cannot answer a
// condition: a single Complete call taking a prompt and returning a
// raw text completion plus cost and latency accounting. Transport to
// an actual model is out of scope; jsoracle provides a goja-scripted
// stand-in for development and tests.
package oracle

import (
	"context"
	"time"
)

// Oracle is the capability surface the fallback evaluator calls
// through. Implementations own their own retry/backoff policy; a
// failing call returns a non-nil error and Complete's other return
// values are ignored.
type Oracle interface {
	// Complete sends prompt to the oracle and returns its raw text
	// response, an estimated cost in the oracle's billing unit, and the
	// call's wall-clock latency. timeout bounds the call; maxTokens and
	// temperature are passed through to the oracle as generation
	// parameters.
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (text string, cost float64, latency time.Duration, err error)
}

// Stats accumulates per-engine oracle usage across every fallback
// call, independent of any one run.
type Stats struct {
	Calls        int64
	TotalCost    float64
	TotalLatency time.Duration
	Failures     int64
}
