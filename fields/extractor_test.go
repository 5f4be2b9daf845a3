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

package fields

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ruleforge/ruleforge/ast"
	"github.com/ruleforge/ruleforge/registry"
)

type ExtractorTestSuite struct {
	suite.Suite
}

func (s *ExtractorTestSuite) SetupSuite() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(s.T().Output(), nil)))
}

func (s *ExtractorTestSuite) TestExtractExcludesFunctionsAndReserved() {
	expr, err := ast.ParseExpression("len(items) > 0 and true")
	s.Require().NoError(err)

	e := New()
	fields := e.Extract("len(items) > 0 and true", expr, registry.New())
	s.Equal([]string{"items"}, fields)
}

func (s *ExtractorTestSuite) TestExtractSortedAndDeduped() {
	expr, err := ast.ParseExpression("b > 0 and a > 0 and b < 10")
	s.Require().NoError(err)

	e := New()
	fields := e.Extract("b > 0 and a > 0 and b < 10", expr, nil)
	s.Equal([]string{"a", "b"}, fields)
}

func (s *ExtractorTestSuite) TestExtractIsCached() {
	expr, err := ast.ParseExpression("x > 1")
	s.Require().NoError(err)

	e := New()
	first := e.Extract("x > 1", expr, nil)
	second := e.Extract("x > 1", nil, nil) // cached: expr not needed on the second call
	s.Equal(first, second)
}

func TestExtractorTestSuite(t *testing.T) {
	suite.Run(t, new(ExtractorTestSuite))
}
