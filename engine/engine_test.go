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

package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ruleforge/ruleforge/config"
	"github.com/ruleforge/ruleforge/fallback"
	"github.com/ruleforge/ruleforge/oracle/jsoracle"
	"github.com/ruleforge/ruleforge/trace"
	"github.com/ruleforge/ruleforge/value"
)

type EngineTestSuite struct {
	suite.Suite
}

func (s *EngineTestSuite) SetupSuite() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(s.T().Output(), nil)))
}

func (s *EngineTestSuite) newEngine(opts ...Option) *Engine {
	e, err := New(opts...)
	s.Require().NoError(err)
	return e
}

func (s *EngineTestSuite) reason(e *Engine, facts map[string]value.Value) *ExecutionResult {
	res, err := e.Reason(context.Background(), facts)
	s.Require().NoError(err)
	return res
}

func intVal(s *EngineTestSuite, v value.Value) int64 {
	i, ok := v.AsInt()
	s.Require().True(ok)
	return i
}

func (s *EngineTestSuite) TestPriorityAndDependencyOrdering() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R1
    priority: 10
    if: "x > 0"
    then:
      y: 1
  - id: R2
    priority: 50
    if: "y == 1"
    then:
      z: 2
`))

	res := s.reason(e, map[string]value.Value{"x": value.Int(1)})
	// R1 fires first despite lower priority because R2 reads y.
	s.Equal([]string{"R1", "R2"}, res.FiredRules)
	s.Len(res.Verdict, 2)
	s.Equal(int64(1), intVal(s, res.Verdict["y"]))
	s.Equal(int64(2), intVal(s, res.Verdict["z"]))
}

func (s *EngineTestSuite) TestStructuredConditionLowering() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if:
      all:
        - any: ["a > 0", "b > 0"]
        - not: "c == 0"
    then:
      ok: true
`))

	res := s.reason(e, map[string]value.Value{
		"a": value.Int(0), "b": value.Int(5), "c": value.Int(1),
	})
	s.Len(res.Verdict, 1)
	s.True(res.Verdict["ok"].Truthy())

	res = s.reason(e, map[string]value.Value{
		"a": value.Int(0), "b": value.Int(0), "c": value.Int(1),
	})
	s.Empty(res.Verdict)
}

func (s *EngineTestSuite) TestStrictMissingField() {
	e := s.newEngine(WithTraceLevel(trace.LevelDetailed))
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "credit_score > 700"
    then:
      tier: premium
`))

	res := s.reason(e, map[string]value.Value{"annual_income": value.Int(80000)})
	s.Empty(res.Verdict)
	s.Empty(res.FiredRules)
	s.Require().Len(res.RuleTraces, 1)
	s.Contains(res.RuleTraces[0].MissingFields, "credit_score")
	s.NotEmpty(res.RuleTraces[0].Err)
}

func (s *EngineTestSuite) TestAutoFallbackWithOracle() {
	stub, err := jsoracle.New(`function(prompt) { return "true"; }`)
	s.Require().NoError(err)

	e := s.newEngine(WithFallbackStrategy(Auto), WithOracle(stub))
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "credit_score > 700"
    then:
      tier: premium
`))

	res := s.reason(e, map[string]value.Value{"annual_income": value.Int(80000)})
	s.Equal([]string{"R"}, res.FiredRules)
	tier, _ := res.Verdict["tier"].AsString()
	s.Equal("premium", tier)
	s.Equal(int64(1), res.FallbackStats.Oracle)
}

func (s *EngineTestSuite) TestShortCircuitWitness() {
	e := s.newEngine(WithTraceLevel(trace.LevelDetailed))
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0 and y / 0 == 1"
    then:
      unreachable: true
`))

	// Left side false: no division error, rule skipped cleanly.
	res := s.reason(e, map[string]value.Value{"x": value.Int(-1), "y": value.Int(0)})
	s.Empty(res.Verdict)
	s.Require().Len(res.RuleTraces, 1)
	s.Empty(res.RuleTraces[0].Err)

	// Left side true: the division error lands on the trace frame.
	res = s.reason(e, map[string]value.Value{"x": value.Int(1), "y": value.Int(0)})
	s.Empty(res.Verdict)
	s.Require().Len(res.RuleTraces, 1)
	s.Contains(res.RuleTraces[0].Err, "division by zero")
}

func (s *EngineTestSuite) TestTemplateActions() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "amount > 0"
    then:
      doubled: "{{ amount * 2 }}"
      label: "amt={{amount}}"
`))

	res := s.reason(e, map[string]value.Value{"amount": value.Int(21)})
	s.Equal(int64(42), intVal(s, res.Verdict["doubled"]))
	label, _ := res.Verdict["label"].AsString()
	s.Equal("amt=21", label)
}

func (s *EngineTestSuite) TestInputFactsNeverMutated() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0"
    then:
      x: 99
      y: 1
`))

	facts := map[string]value.Value{"x": value.Int(1)}
	res := s.reason(e, facts)
	s.Equal(int64(99), intVal(s, res.Verdict["x"]))
	s.Equal(int64(1), intVal(s, facts["x"]))
	s.Len(facts, 1)
}

func (s *EngineTestSuite) TestDeterminismUnderStrict() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: a
    priority: 5
    if: "x > 0"
    then:
      p: 1
  - id: b
    priority: 5
    if: "x > 0"
    then:
      q: 2
  - id: c
    priority: 9
    if: "x > 0"
    then:
      r: 3
`))

	facts := map[string]value.Value{"x": value.Int(1)}
	first := s.reason(e, facts)
	// Higher priority first, then lexicographic id among equals.
	s.Equal([]string{"c", "a", "b"}, first.FiredRules)
	for i := 0; i < 5; i++ {
		again := s.reason(e, facts)
		s.Equal(first.FiredRules, again.FiredRules)
		s.Equal(len(first.Verdict), len(again.Verdict))
	}
}

func (s *EngineTestSuite) TestTriggerCycleRejectedAtLoad() {
	e := s.newEngine()
	err := e.LoadRulesFromString(`
rules:
  - id: a
    if: "x > 0"
    then:
      p: 1
    triggers: [b]
  - id: b
    if: "x > 0"
    then:
      q: 1
    triggers: [a]
`)
	s.Error(err)
}

func (s *EngineTestSuite) TestTriggersRunOneExtraPass() {
	// B runs before A (field-dependency cycle falls back to priority
	// order), so B's condition is false in the main pass. A fires and
	// triggers B, which fires on the extra pass. B's own triggers are
	// not expanded, so C never runs.
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: B
    priority: 100
    if: "y == 1"
    then:
      done: true
    facts:
      x: 1
    triggers: [C]
  - id: A
    priority: 1
    if: "x > 0"
    then:
      y: 1
    triggers: [B]
  - id: C
    priority: 0
    if: "done == true"
    then:
      c: 1
`))

	res := s.reason(e, map[string]value.Value{"x": value.Int(1)})
	s.Equal([]string{"A", "B"}, res.FiredRules)
	s.True(res.Verdict["done"].Truthy())
	s.NotContains(res.Verdict, "c")
}

func (s *EngineTestSuite) TestDisabledRuleSkipped() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0"
    enabled: false
    then:
      y: 1
`))

	res := s.reason(e, map[string]value.Value{"x": value.Int(1)})
	s.Empty(res.FiredRules)
	s.Empty(res.Verdict)
}

func (s *EngineTestSuite) TestVerdictOmitsUnchangedWrites() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0"
    then:
      x: 1
      y: 2
`))

	res := s.reason(e, map[string]value.Value{"x": value.Int(1)})
	s.NotContains(res.Verdict, "x")
	s.Contains(res.Verdict, "y")
}

func (s *EngineTestSuite) TestSecurityBoundFailsTheRun() {
	limits := config.Default()
	limits.MaxRecursionDepth = 3
	e := s.newEngine(WithLimits(limits))
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "1 + 2 + 3 + 4 + 5 + 6 + 7 + 8 > 0"
    then:
      y: 1
`))

	_, err := e.Reason(context.Background(), nil)
	s.Error(err)
}


func (s *EngineTestSuite) TestSecurityBoundInActionFailsTheRun() {
	limits := config.Default()
	limits.MaxRecursionDepth = 3
	e := s.newEngine(WithLimits(limits))
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0"
    then:
      computed: "1 + 2 + 3 + 4 + 5 + 6 + 7 + 8"
`))

	// The bound violation happens while applying the action, not while
	// evaluating the condition; it must still terminate the run rather
	// than degrade to a literal write.
	_, err := e.Reason(context.Background(), map[string]value.Value{"x": value.Int(1)})
	s.Error(err)
}

func (s *EngineTestSuite) TestSecurityBoundInFactsTemplateFailsTheRun() {
	limits := config.Default()
	limits.MaxRecursionDepth = 3
	e := s.newEngine(WithLimits(limits))
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0"
    then:
      y: 1
    facts:
      staged: "{{ 1 + 2 + 3 + 4 + 5 + 6 + 7 + 8 }}"
`))

	_, err := e.Reason(context.Background(), map[string]value.Value{"x": value.Int(1)})
	s.Error(err)
}

func (s *EngineTestSuite) TestCancelledRunReturnsPartialResult() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0"
    then:
      y: 1
`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Reason(ctx, map[string]value.Value{"x": value.Int(1)})
	s.NoError(err)
	s.Empty(res.FiredRules)
}

func (s *EngineTestSuite) TestReasonBatch() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0"
    then:
      y: 1
`))

	results, err := e.ReasonBatch(context.Background(), []map[string]value.Value{
		{"x": value.Int(1)},
		{"x": value.Int(-1)},
	})
	s.NoError(err)
	s.Require().Len(results, 2)
	s.Len(results[0].Verdict, 1)
	s.Empty(results[1].Verdict)
}

func (s *EngineTestSuite) TestLenientValidationKeepsValidRules() {
	e := s.newEngine(WithLenientValidation())
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: good
    if: "x > 0"
    then:
      y: 1
  - id: bad
    if: "x > 0"
    then:
      y: 2
    triggers: [missing_rule]
`))
	s.NotEmpty(e.LastLoadErrors())
	s.Len(e.Rules(), 1)

	res := s.reason(e, map[string]value.Value{"x": value.Int(1)})
	s.Equal([]string{"good"}, res.FiredRules)
}

func (s *EngineTestSuite) TestRegisteredFunctionInCondition() {
	e := s.newEngine()
	s.Require().NoError(e.RegisterJSFunction("triple", "function(n) { return n * 3; }"))
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "triple(x) == 9"
    then:
      y: 1
`))

	res := s.reason(e, map[string]value.Value{"x": value.Int(3)})
	s.Equal([]string{"R"}, res.FiredRules)
}

func (s *EngineTestSuite) TestFailedActionExpressionWritesLiteralAndNotes() {
	e := s.newEngine(WithTraceLevel(trace.LevelDetailed))
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0"
    then:
      ratio: "x / y"
`))

	// y is missing: the expression fails at apply time, the raw text is
	// written instead, and the frame carries a note.
	res := s.reason(e, map[string]value.Value{"x": value.Int(1)})
	raw, _ := res.Verdict["ratio"].AsString()
	s.Equal("x / y", raw)
	s.Require().Len(res.RuleTraces, 1)
	s.Contains(res.RuleTraces[0].Err, "wrote literal")
}

func (s *EngineTestSuite) TestExplainAndStructuredSurfaces() {
	e := s.newEngine(WithTraceLevel(trace.LevelDetailed))
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: fired
    if: "x > 0"
    then:
      y: 1
  - id: skipped
    if: "x > 100"
    then:
      z: 1
`))

	res := s.reason(e, map[string]value.Value{"x": value.Int(1)})
	explained := res.Explain()
	s.Contains(explained, "fired")
	s.Contains(explained, "skipped")

	structured := res.Structured()
	s.Contains(structured, "fired")
	s.Contains(structured, "skipped")
}

func (s *EngineTestSuite) TestFactsFromStruct() {
	type Applicant struct {
		Income int64
		Name   string
	}
	facts := FactsFromStruct(Applicant{Income: 50000, Name: "ada"})
	s.Equal(int64(50000), intVal(s, facts["Income"]))
	name, _ := facts["Name"].AsString()
	s.Equal("ada", name)
}

func (s *EngineTestSuite) TestElapsedAndRunIDPopulated() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R
    if: "x > 0"
    then:
      y: 1
`))

	res := s.reason(e, map[string]value.Value{"x": value.Int(1)})
	s.NotEmpty(res.RunID)
	s.GreaterOrEqual(res.ElapsedMs, 0.0)
}


func (s *EngineTestSuite) TestConcurrentReasonCalls() {
	e := s.newEngine()
	s.Require().NoError(e.LoadRulesFromString(`
rules:
  - id: R1
    if: "x > 0"
    then:
      y: 1
  - id: R2
    if: "y == 1"
    then:
      z: 2
`))

	var wg sync.WaitGroup
	results := make([]*ExecutionResult, 8)
	for i := range results {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			res, err := e.Reason(context.Background(), map[string]value.Value{"x": value.Int(1)})
			if err == nil {
				results[slot] = res
			}
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		s.Require().NotNil(res)
		s.Equal([]string{"R1", "R2"}, res.FiredRules)
		s.Len(res.Verdict, 2)
	}
}


func (s *EngineTestSuite) TestPromptAdHocCondition() {
	e := s.newEngine()
	res, err := e.Prompt(context.Background(), "balance > 100", fallback.ReturnBool,
		map[string]value.Value{"balance": value.Int(250)})
	s.Require().NoError(err)
	s.Equal(fallback.MethodStructured, res.MethodUsed)
	s.True(res.Value.Truthy())

	// Missing field with no oracle configured: typed default.
	res, err = e.Prompt(context.Background(), "balance > 100", fallback.ReturnBool, nil)
	s.Require().NoError(err)
	s.Equal(fallback.MethodDefault, res.MethodUsed)
	s.False(res.Value.Truthy())
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
