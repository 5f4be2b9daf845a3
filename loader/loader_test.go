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

package loader

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ruleforge/ruleforge/rule"
)

type LoaderTestSuite struct {
	suite.Suite
}

func (s *LoaderTestSuite) SetupSuite() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(s.T().Output(), nil)))
}

func (s *LoaderTestSuite) TestLoadStringBasic() {
	doc, err := LoadString(`
rules:
  - id: r1
    priority: 5
    condition: "x > 0"
    actions:
      y: 1
    tags: [billing]
    description: first rule
version: "2.1"
description: demo pack
metadata:
  owner: platform
`)
	s.Require().NoError(err)
	s.Equal("2.1", doc.Version)
	s.Equal("demo pack", doc.Description)
	s.Equal("platform", doc.Metadata["owner"])
	s.Require().Len(doc.Rules, 1)

	r := doc.Rules[0]
	s.Equal("r1", r.ID)
	s.Equal(5, r.Priority)
	s.Equal("x > 0", r.ConditionSrc)
	s.True(r.Enabled)
	s.Equal([]string{"billing"}, r.Tags)
	s.Equal([]string{"y"}, r.ActionOrder)
}

func (s *LoaderTestSuite) TestIfAndThenAliases() {
	doc, err := LoadString(`
rules:
  - id: r1
    if: "x > 0"
    then:
      y: 1
`)
	s.Require().NoError(err)
	s.Require().Len(doc.Rules, 1)
	s.Equal("x > 0", doc.Rules[0].ConditionSrc)
	s.Equal([]string{"y"}, doc.Rules[0].ActionOrder)
}

func (s *LoaderTestSuite) TestActionOrderPreserved() {
	doc, err := LoadString(`
rules:
  - id: r1
    if: "x > 0"
    then:
      zeta: 1
      alpha: 2
      mid: 3
`)
	s.Require().NoError(err)
	s.Equal([]string{"zeta", "alpha", "mid"}, doc.Rules[0].ActionOrder)
}

func (s *LoaderTestSuite) TestStructuredConditionLowered() {
	doc, err := LoadString(`
rules:
  - id: r1
    if:
      all:
        - "a > 0"
        - any: ["b > 0", "c > 0"]
    then:
      y: 1
`)
	s.Require().NoError(err)
	s.Equal("(a > 0) and ((b > 0) or (c > 0))", doc.Rules[0].ConditionSrc)
}

func (s *LoaderTestSuite) TestActionValueClassification() {
	doc, err := LoadString(`
rules:
  - id: r1
    if: "x > 0"
    then:
      literal_note: plain sentence here
      expr: "x * 2"
      tpl: "{{ x * 2 }}"
      number: 42
`)
	s.Require().NoError(err)
	acts := doc.Rules[0].Actions
	s.Equal(rule.ActionLiteral, acts["literal_note"].Kind)
	s.Equal(rule.ActionExpression, acts["expr"].Kind)
	s.Equal(rule.ActionTemplate, acts["tpl"].Kind)
	s.Equal(rule.ActionLiteral, acts["number"].Kind)
	n, _ := acts["number"].Literal.AsInt()
	s.Equal(int64(42), n)
}

func (s *LoaderTestSuite) TestFactsBlockLoaded() {
	doc, err := LoadString(`
rules:
  - id: r1
    if: "x > 0"
    then:
      y: 1
    facts:
      intermediate: 7
`)
	s.Require().NoError(err)
	s.Equal([]string{"intermediate"}, doc.Rules[0].FactOrder)
}

func (s *LoaderTestSuite) TestUnknownRuleKeyRejected() {
	_, err := LoadString(`
rules:
  - id: r1
    if: "x > 0"
    then:
      y: 1
    color: red
`)
	s.Error(err)
}

func (s *LoaderTestSuite) TestMissingActionsRejected() {
	_, err := LoadString(`
rules:
  - id: r1
    if: "x > 0"
`)
	s.Error(err)
}

func (s *LoaderTestSuite) TestMalformedYAMLRejected() {
	_, err := LoadString("rules: [whoops")
	s.Error(err)
}

func (s *LoaderTestSuite) TestUnparseableConditionRejected() {
	_, err := LoadString(`
rules:
  - id: r1
    if: "x >"
    then:
      y: 1
`)
	s.Error(err)
}

func (s *LoaderTestSuite) TestDuplicateActionKeyRejected() {
	_, err := LoadString(`
rules:
  - id: r1
    if: "x > 0"
    then:
      y: 1
      y: 2
`)
	s.Error(err)
}

func (s *LoaderTestSuite) TestLoadFileAndDirectory() {
	dir := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(`
rules:
  - id: r2
    if: "x > 1"
    then:
      z: 1
`), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
rules:
  - id: r1
    if: "x > 0"
    then:
      y: 1
version: "3.0"
`), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not yaml"), 0o644))

	doc, err := LoadFile(filepath.Join(dir, "a.yaml"))
	s.Require().NoError(err)
	s.Len(doc.Rules, 1)

	merged, err := LoadDirectory(dir)
	s.Require().NoError(err)
	s.Require().Len(merged.Rules, 2)
	// Files merge in sorted name order.
	s.Equal("r1", merged.Rules[0].ID)
	s.Equal("r2", merged.Rules[1].ID)
	s.Equal("3.0", merged.Version)
}

func (s *LoaderTestSuite) TestLoadMissingFileErrors() {
	_, err := LoadFile("/nonexistent/rules.yaml")
	s.Error(err)
}

func (s *LoaderTestSuite) TestLoadEmptyDirectoryErrors() {
	_, err := LoadDirectory(s.T().TempDir())
	s.Error(err)
}

func TestLoaderTestSuite(t *testing.T) {
	suite.Run(t, new(LoaderTestSuite))
}
