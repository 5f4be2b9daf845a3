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

package value

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ValueTestSuite struct {
	suite.Suite
}

func (s *ValueTestSuite) SetupSuite() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(s.T().Output(), nil)))
}

func (s *ValueTestSuite) TestTruthy() {
	s.False(Null().Truthy())
	s.False(Bool(false).Truthy())
	s.True(Bool(true).Truthy())
	s.False(Int(0).Truthy())
	s.True(Int(1).Truthy())
	s.False(Float(0).Truthy())
	s.False(String("").Truthy())
	s.True(String("x").Truthy())
	s.False(List(nil).Truthy())
	s.True(List([]Value{Int(1)}).Truthy())
}

func (s *ValueTestSuite) TestEqualNumericPromotion() {
	s.True(Equal(Int(2), Float(2.0)))
	s.False(Equal(Int(2), Float(2.5)))
	s.True(Equal(Null(), Null()))
	s.False(Equal(Null(), Int(0)))
}

func (s *ValueTestSuite) TestEqualStructural() {
	a := List([]Value{Int(1), String("x")})
	b := List([]Value{Int(1), String("x")})
	c := List([]Value{Int(1), String("y")})
	s.True(Equal(a, b))
	s.False(Equal(a, c))

	m1 := Mapping(map[string]Value{"a": Int(1)})
	m2 := Mapping(map[string]Value{"a": Int(1)})
	m3 := Mapping(map[string]Value{"a": Int(2)})
	s.True(Equal(m1, m2))
	s.False(Equal(m1, m3))
}

func (s *ValueTestSuite) TestCompareNumeric() {
	n, err := Compare(Int(1), Float(2.0))
	s.NoError(err)
	s.Equal(-1, n)

	n, err = Compare(Float(3), Int(3))
	s.NoError(err)
	s.Equal(0, n)
}

func (s *ValueTestSuite) TestCompareStrings() {
	n, err := Compare(String("a"), String("b"))
	s.NoError(err)
	s.Equal(-1, n)
}

func (s *ValueTestSuite) TestCompareUnorderable() {
	_, err := Compare(Null(), Int(1))
	s.Error(err)
	var ue ErrUnorderable
	s.ErrorAs(err, &ue)
}

func (s *ValueTestSuite) TestNativeRoundTrip() {
	orig := map[string]any{"a": int64(1), "b": "two", "c": []any{int64(1), int64(2)}}
	v := FromNative(orig)
	m, ok := v.AsMapping()
	s.True(ok)
	s.Equal(int64(1), m["a"].Native())
	s.Equal("two", m["b"].Native())

	back := v.Native()
	backMap, ok := back.(map[string]any)
	s.True(ok)
	s.Equal("two", backMap["b"])
}

func (s *ValueTestSuite) TestFromNativeValuePassthrough() {
	v := FromNative(Int(5))
	i, ok := v.AsInt()
	s.True(ok)
	s.Equal(int64(5), i)
}

func (s *ValueTestSuite) TestPromote() {
	s.Equal(int64(3), PromoteInt(Float(3.9)))
	s.Equal(4.0, PromoteFloat(Int(4)))
}

func (s *ValueTestSuite) TestString() {
	s.Equal("null", Null().String())
	s.Equal("true", Bool(true).String())
	s.Equal("3", Int(3).String())
	s.Equal("x", String("x").String())
	s.Equal("[1, 2]", List([]Value{Int(1), Int(2)}).String())
}

func TestValueTestSuite(t *testing.T) {
	suite.Run(t, new(ValueTestSuite))
}
