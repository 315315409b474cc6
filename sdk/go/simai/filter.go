// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
)

// An Operator compares a record field to a filter value.
type Operator string

const (
	OpEQ   Operator = "EQ"
	OpLike Operator = "LIKE"
	OpIn   Operator = "IN"
	OpGT   Operator = "GT"
	OpGTE  Operator = "GTE"
	OpLT   Operator = "LT"
	OpLTE  Operator = "LTE"
)

// Valid reports whether op is one of the operators the API accepts.
func (op Operator) Valid() bool {
	switch op {
	case OpEQ, OpLike, OpIn, OpGT, OpGTE, OpLT, OpLTE:
		return true
	}
	return false
}

// Filters restricts the records returned by a list endpoint. It is
// either Equalities or Conditions; all filters are ANDed by the
// server.
type Filters interface {
	rawFilters() ([]RawFilter, error)
}

// Equalities is the simple filter form: each field must equal the
// given value. Fields are sent in ascending name order.
type Equalities map[string]interface{}

// Conditions is the general filter form: an ordered list of
// (field, operator, value) triples.
type Conditions []Condition

// A Condition is one (field, operator, value) triple.
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Equal returns Conditions requiring field to equal value. Unlike
// Equalities, Conditions built with Equal and And are sent in the
// order they were added:
//
//	simai.Equal("state", "successful").Equal("name", "wing")
func Equal(field string, value interface{}) Conditions {
	return Conditions{{Field: field, Operator: OpEQ, Value: value}}
}

// Equal returns conds with an equality condition appended.
func (conds Conditions) Equal(field string, value interface{}) Conditions {
	return conds.And(field, OpEQ, value)
}

// And returns conds with a condition appended.
func (conds Conditions) And(field string, op Operator, value interface{}) Conditions {
	out := make(Conditions, len(conds), len(conds)+1)
	copy(out, conds)
	return append(out, Condition{Field: field, Operator: op, Value: value})
}

// RawFilter is the canonical filter record sent to the server.
type RawFilter struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// ToRawFilters converts either filter form to the canonical list of
// records. A nil Filters yields nil.
func ToRawFilters(filters Filters) ([]RawFilter, error) {
	if filters == nil {
		return nil, nil
	}
	return filters.rawFilters()
}

func (eq Equalities) rawFilters() ([]RawFilter, error) {
	fields := make([]string, 0, len(eq))
	for k := range eq {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	raw := make([]RawFilter, 0, len(eq))
	for _, k := range fields {
		if k == "" {
			return nil, fmt.Errorf("%w: filter with empty field name", ErrInvalidArgument)
		}
		raw = append(raw, RawFilter{Field: k, Operator: OpEQ, Value: eq[k]})
	}
	return raw, nil
}

func (conds Conditions) rawFilters() ([]RawFilter, error) {
	raw := make([]RawFilter, 0, len(conds))
	for i, c := range conds {
		if c.Field == "" {
			return nil, fmt.Errorf("%w: filter %d has empty field name", ErrInvalidArgument, i)
		}
		if !c.Operator.Valid() {
			return nil, fmt.Errorf("%w: filter %d (%q) has unsupported operator %q", ErrInvalidArgument, i, c.Field, c.Operator)
		}
		raw = append(raw, RawFilter{Field: c.Field, Operator: c.Operator, Value: c.Value})
	}
	return raw, nil
}

// ParseFilters converts a dynamically typed value, typically decoded
// from JSON, to Filters. An object becomes Equalities; an array of
// [field, operator, value] arrays becomes Conditions. Any other shape
// is an error. A nil value yields nil.
func ParseFilters(v interface{}) (Filters, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case Filters:
		return v, nil
	case map[string]interface{}:
		return Equalities(v), nil
	case []interface{}:
		conds := make(Conditions, 0, len(v))
		for i, elt := range v {
			triple, ok := elt.([]interface{})
			if !ok || len(triple) != 3 {
				return nil, fmt.Errorf("%w: filter %d: must be a [field, operator, value] triple, got %v", ErrInvalidArgument, i, elt)
			}
			field, ok := triple[0].(string)
			if !ok {
				return nil, fmt.Errorf("%w: filter %d: field must be a string, got %T", ErrInvalidArgument, i, triple[0])
			}
			op, ok := triple[1].(string)
			if !ok {
				return nil, fmt.Errorf("%w: filter %d: operator must be a string, got %T", ErrInvalidArgument, i, triple[1])
			}
			conds = append(conds, Condition{Field: field, Operator: Operator(op), Value: triple[2]})
		}
		return conds, nil
	default:
		return nil, fmt.Errorf("%w: filters must be an object or a list of [field, operator, value] triples, got %T", ErrInvalidArgument, v)
	}
}

// FilterQuery encodes raw filters as repeated "filter[]" query
// parameters, each holding one compact JSON record.
func FilterQuery(raw []RawFilter) (url.Values, error) {
	q := url.Values{}
	for _, f := range raw {
		j, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q: value cannot be encoded: %s", ErrInvalidArgument, f.Field, err)
		}
		q.Add("filter[]", string(j))
	}
	return q, nil
}

// filteredURI returns path with filters appended as a query string.
func filteredURI(path string, filters Filters) (string, error) {
	raw, err := ToRawFilters(filters)
	if err != nil {
		return "", err
	}
	q, err := FilterQuery(raw)
	if err != nil {
		return "", err
	}
	if len(q) == 0 {
		return path, nil
	}
	return path + "?" + q.Encode(), nil
}
