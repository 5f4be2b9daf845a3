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

package jsoracle

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type JSOracleTestSuite struct {
	suite.Suite
}

func (s *JSOracleTestSuite) SetupSuite() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(s.T().Output(), nil)))
}

func (s *JSOracleTestSuite) TestStringResponse() {
	o, err := New(`function(prompt) { return "true"; }`)
	s.Require().NoError(err)

	text, cost, latency, err := o.Complete(context.Background(), "is it?", 16, 0, time.Second)
	s.NoError(err)
	s.Equal("true", text)
	s.Zero(cost)
	s.GreaterOrEqual(latency, time.Duration(0))
}

func (s *JSOracleTestSuite) TestObjectResponseCarriesCost() {
	o, err := New(`function(prompt) { return {text: "yes", cost: 0.25}; }`)
	s.Require().NoError(err)

	text, cost, _, err := o.Complete(context.Background(), "is it?", 16, 0, time.Second)
	s.NoError(err)
	s.Equal("yes", text)
	s.InDelta(0.25, cost, 1e-9)
}

func (s *JSOracleTestSuite) TestPromptIsPassedThrough() {
	o, err := New(`function(prompt) { return prompt.indexOf("marker") !== -1 ? "found" : "missing"; }`)
	s.Require().NoError(err)

	text, _, _, err := o.Complete(context.Background(), "some marker here", 16, 0, time.Second)
	s.NoError(err)
	s.Equal("found", text)
}

func (s *JSOracleTestSuite) TestCompileErrorSurfaces() {
	o, err := New(`function(prompt) { syntax error`)
	s.Require().NoError(err)

	_, _, _, err = o.Complete(context.Background(), "x", 16, 0, time.Second)
	s.Error(err)
}

func (s *JSOracleTestSuite) TestNonFunctionSourceErrors() {
	o, err := New(`42`)
	s.Require().NoError(err)

	_, _, _, err = o.Complete(context.Background(), "x", 16, 0, time.Second)
	s.Error(err)
}

func TestJSOracleTestSuite(t *testing.T) {
	suite.Run(t, new(JSOracleTestSuite))
}
