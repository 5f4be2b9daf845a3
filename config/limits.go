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


// Package config implements EngineLimits, the single consolidated
// bounds value injected at engine construction, plus a TOML file
// loader for it.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// EngineLimits consolidates every security bound and fallback policy
// knob the engine and its interpreter honor.
type EngineLimits struct {
	// MaxExpressionLength bounds a condition/template expression's
	// source length in characters.
	MaxExpressionLength int `toml:"max_expression_length"`

	// MaxRecursionDepth bounds AST evaluation recursion depth.
	MaxRecursionDepth int `toml:"max_recursion_depth"`

	// MaxEvaluationTime bounds wall-clock time per expression
	// evaluation, in milliseconds when read from TOML.
	MaxEvaluationTime time.Duration `toml:"-"`
	MaxEvaluationTimeMS int64 `toml:"max_evaluation_time_ms"`

	// MaxPowExponent caps the magnitude of a `**` exponent.
	MaxPowExponent float64 `toml:"max_pow_exponent"`

	// ExpressionCacheSize bounds the parse cache's capacity, in cached
	// expressions.
	ExpressionCacheSize int `toml:"expression_cache_size"`

	// MaxOracleCost is the per-run ceiling on cumulative oracle spend;
	// zero disables the ceiling.
	MaxOracleCost float64 `toml:"max_oracle_cost"`

	// MaxOracleTokens bounds max_tokens passed to the oracle on a
	// fallback call.
	MaxOracleTokens int `toml:"max_oracle_tokens"`
}

// Default returns the engine's built-in bounds, used whenever no
// limits file is supplied at construction.
func Default() EngineLimits {
	return EngineLimits{
		MaxExpressionLength: 4096,
		MaxRecursionDepth:   64,
		MaxEvaluationTime:   2 * time.Second,
		MaxPowExponent:      1024,
		ExpressionCacheSize: 1024,
		MaxOracleCost:       0,
		MaxOracleTokens:     256,
	}
}

// LoadLimits reads an EngineLimits value from a TOML file at path,
// filling any field the file omits with the built-in default.
func LoadLimits(path string) (EngineLimits, error) {
	limits := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return EngineLimits{}, errors.Wrap(err, "read engine limits file")
	}
	if err := toml.Unmarshal(b, &limits); err != nil {
		return EngineLimits{}, errors.Wrap(err, "parse engine limits file")
	}
	if limits.MaxEvaluationTimeMS > 0 {
		limits.MaxEvaluationTime = time.Duration(limits.MaxEvaluationTimeMS) * time.Millisecond
	}
	return limits, nil
}
