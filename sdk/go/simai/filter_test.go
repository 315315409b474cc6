// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&FilterSuite{})

type FilterSuite struct{}

func (s *FilterSuite) TestEqualities(c *check.C) {
	raw, err := ToRawFilters(Equalities{"production_capacity": "6e34Kg", "name": "paul"})
	c.Assert(err, check.IsNil)
	c.Check(raw, check.DeepEquals, []RawFilter{
		{Field: "name", Operator: OpEQ, Value: "paul"},
		{Field: "production_capacity", Operator: OpEQ, Value: "6e34Kg"},
	})
}

func (s *FilterSuite) TestConditionsKeepOrder(c *check.C) {
	raw, err := ToRawFilters(Conditions{
		{"production_capacity", OpGTE, 10000000000},
		{"name", OpEQ, "paul"},
	})
	c.Assert(err, check.IsNil)
	c.Check(raw, check.DeepEquals, []RawFilter{
		{Field: "production_capacity", Operator: OpGTE, Value: 10000000000},
		{Field: "name", Operator: OpEQ, Value: "paul"},
	})
}

func (s *FilterSuite) TestEqualKeepsInsertionOrder(c *check.C) {
	conds := Equal("state", "successful").Equal("name", "wing").And("size", OpGT, 3)
	raw, err := ToRawFilters(conds)
	c.Assert(err, check.IsNil)
	c.Check(raw, check.DeepEquals, []RawFilter{
		{Field: "state", Operator: OpEQ, Value: "successful"},
		{Field: "name", Operator: OpEQ, Value: "wing"},
		{Field: "size", Operator: OpGT, Value: 3},
	})
	q, err := FilterQuery(raw)
	c.Assert(err, check.IsNil)
	c.Check(q["filter[]"], check.DeepEquals, []string{
		`{"field":"state","operator":"EQ","value":"successful"}`,
		`{"field":"name","operator":"EQ","value":"wing"}`,
		`{"field":"size","operator":"GT","value":3}`,
	})

	// Appending to a shared prefix does not affect other branches.
	base := Equal("state", "successful").Equal("name", "wing")
	a := base.Equal("size", 1)
	b := base.Equal("size", 2)
	c.Check(a[2].Value, check.Equals, 1)
	c.Check(b[2].Value, check.Equals, 2)
	c.Check(base, check.HasLen, 2)
}

func (s *FilterSuite) TestNil(c *check.C) {
	raw, err := ToRawFilters(nil)
	c.Check(err, check.IsNil)
	c.Check(raw, check.IsNil)

	var eq Equalities
	raw, err = ToRawFilters(eq)
	c.Check(err, check.IsNil)
	c.Check(raw, check.HasLen, 0)
}

func (s *FilterSuite) TestInvalid(c *check.C) {
	for _, f := range []Filters{
		Equalities{"": "x"},
		Conditions{{"", OpEQ, "x"}},
		Conditions{{"name", "NE", "x"}},
		Conditions{{"name", "eq", "x"}},
	} {
		_, err := ToRawFilters(f)
		c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true, check.Commentf("%#v => %v", f, err))
	}
}

func (s *FilterSuite) TestParseFilters(c *check.C) {
	for _, trial := range []struct {
		in     string
		expect []RawFilter
	}{
		{`null`, nil},
		{`{"name":"paul"}`, []RawFilter{{"name", OpEQ, "paul"}}},
		{`[["size","IN",[1,2]],["name","LIKE","pa%"]]`, []RawFilter{
			{"size", OpIn, []interface{}{json.Number("1"), json.Number("2")}},
			{"name", OpLike, "pa%"},
		}},
		{`[]`, []RawFilter{}},
	} {
		var v interface{}
		dec := json.NewDecoder(strings.NewReader(trial.in))
		dec.UseNumber()
		c.Assert(dec.Decode(&v), check.IsNil)
		f, err := ParseFilters(v)
		c.Assert(err, check.IsNil, check.Commentf("%s", trial.in))
		raw, err := ToRawFilters(f)
		c.Assert(err, check.IsNil)
		c.Check(raw, check.DeepEquals, trial.expect, check.Commentf("%s", trial.in))
	}
}

func (s *FilterSuite) TestParseFiltersRejectsOtherShapes(c *check.C) {
	for _, in := range []interface{}{
		"name=paul",
		42,
		[]interface{}{"name", "EQ", "paul"},
		[]interface{}{[]interface{}{"name", "EQ"}},
		[]interface{}{[]interface{}{1, "EQ", "paul"}},
		[]interface{}{[]interface{}{"name", 1, "paul"}},
		[]interface{}{[]interface{}{"name", "BOGUS", "paul"}},
	} {
		f, err := ParseFilters(in)
		if err == nil {
			_, err = ToRawFilters(f)
		}
		c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true, check.Commentf("%#v => %v", in, err))
	}
}

func (s *FilterSuite) TestFilterQuery(c *check.C) {
	q, err := FilterQuery([]RawFilter{
		{"name", OpEQ, "paul"},
		{"size", OpGT, 3},
	})
	c.Assert(err, check.IsNil)
	c.Check(q["filter[]"], check.DeepEquals, []string{
		`{"field":"name","operator":"EQ","value":"paul"}`,
		`{"field":"size","operator":"GT","value":3}`,
	})

	_, err = FilterQuery([]RawFilter{{"name", OpEQ, make(chan int)}})
	c.Check(errors.Is(err, ErrInvalidArgument), check.Equals, true)
}

func (s *FilterSuite) TestFilteredURI(c *check.C) {
	uri, err := filteredURI("training-data", nil)
	c.Check(err, check.IsNil)
	c.Check(uri, check.Equals, "training-data")

	uri, err = filteredURI("training-data", Equalities{"name": "a b"})
	c.Assert(err, check.IsNil)
	u, err := url.Parse(uri)
	c.Assert(err, check.IsNil)
	c.Check(u.Path, check.Equals, "training-data")
	c.Check(u.Query()["filter[]"], check.DeepEquals, []string{`{"field":"name","operator":"EQ","value":"a b"}`})
}
