// Package query filters JSON reports with JSONPath expressions.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Query is a compiled JSONPath expression.
type Query struct {
	src  string
	expr jp.Expr
}

// Compile parses a JSONPath such as "$.outcomes[?(@.status == 'failed')].old".
func Compile(src string) (*Query, error) {
	x, err := jp.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", src, err)
	}
	return &Query{src: src, expr: x}, nil
}

func (q *Query) String() string { return q.src }

// Apply evaluates q against v. v may be any value that encodes to JSON;
// it is normalized to the generic map/slice form first so that struct
// json tags are the field names the path sees.
func (q *Query) Apply(v any) ([]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode for query: %w", err)
	}
	doc, err := oj.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse for query: %w", err)
	}
	res := q.expr.Get(doc)
	if res == nil {
		res = []any{}
	}
	return res, nil
}

// Result collapses a match list: one match is returned bare, anything
// else as the list.
func Result(matches []any) any {
	if len(matches) == 1 {
		return matches[0]
	}
	return matches
}
