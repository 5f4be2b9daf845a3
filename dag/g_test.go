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

package dag

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
)

type node struct{ id string }

func (n node) String() string { return n.id }

type DagTestSuite struct {
	suite.Suite
}

func (s *DagTestSuite) SetupSuite() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(s.T().Output(), nil)))
}

func (s *DagTestSuite) BeforeTest(suiteName, testName string) {
	slog.InfoContext(s.T().Context(), "BeforeTest", slog.String("test", testName))
}

func (s *DagTestSuite) AfterTest(suiteName, testName string) {
	slog.InfoContext(s.T().Context(), "AfterTest", slog.String("test", testName))
}

func byPriority(priority map[string]int) func(a, b node) bool {
	return func(a, b node) bool {
		if priority[a.id] != priority[b.id] {
			return priority[a.id] > priority[b.id]
		}
		return a.id < b.id
	}
}

func (s *DagTestSuite) TestKahnOrderLinear() {
	g := New[node]()
	a, b, c := node{"a"}, node{"b"}, node{"c"}
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(c)
	s.NoError(g.AddEdge(a, b))
	s.NoError(g.AddEdge(b, c))

	ordered, remaining := g.KahnOrder(byPriority(nil))
	s.Empty(remaining)
	s.Equal([]node{a, b, c}, ordered)
}

func (s *DagTestSuite) TestKahnOrderTieBreak() {
	g := New[node]()
	a, b, c := node{"a"}, node{"b"}, node{"c"}
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(c)

	ordered, remaining := g.KahnOrder(byPriority(map[string]int{"a": 1, "b": 5, "c": 5}))
	s.Empty(remaining)
	// b and c tie on priority but b < c lexicographically; a has lower priority.
	s.Equal([]node{b, c, a}, ordered)
}

func (s *DagTestSuite) TestKahnOrderCycle() {
	g := New[node]()
	a, b := node{"a"}, node{"b"}
	g.AddNode(a)
	g.AddNode(b)
	s.NoError(g.AddEdge(a, b))
	s.NoError(g.AddEdge(b, a))

	ordered, remaining := g.KahnOrder(byPriority(nil))
	s.Empty(ordered)
	s.ElementsMatch([]string{"a", "b"}, remaining)
}

func (s *DagTestSuite) TestAddEdgeSelfLoop() {
	g := New[node]()
	a := node{"a"}
	g.AddNode(a)
	s.ErrorIs(g.AddEdge(a, a), ErrSelfLoop)
}

func (s *DagTestSuite) TestDetectFirstCycleAcyclic() {
	g := New[node]()
	a, b := node{"a"}, node{"b"}
	g.AddNode(a)
	g.AddNode(b)
	s.NoError(g.AddEdge(a, b))
	s.Empty(g.DetectFirstCycle())
}

func (s *DagTestSuite) TestDetectFirstCycleFound() {
	g := New[node]()
	a, b, c := node{"a"}, node{"b"}, node{"c"}
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(c)
	s.NoError(g.AddEdge(a, b))
	s.NoError(g.AddEdge(b, c))
	s.NoError(g.AddEdge(c, a))

	cycle := g.DetectFirstCycle()
	s.NotEmpty(cycle)
	s.Contains(cycle, a)
	s.Contains(cycle, b)
	s.Contains(cycle, c)
}

func TestDagTestSuite(t *testing.T) {
	suite.Run(t, new(DagTestSuite))
}
