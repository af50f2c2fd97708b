/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package query

import (
	"strings"

	"github.com/eventflux/eventflux/aggregator"
	"github.com/eventflux/eventflux/expr"
)

// aggregatorNames maps a bare, case-insensitive function name to the
// aggregator it selects; any FuncCall matching one of these is an
// aggregate reference rather than a scalar function call (spec §4.5).
var aggregatorNames = map[string]aggregator.Type{
	"sum":           aggregator.Sum,
	"avg":           aggregator.Avg,
	"count":         aggregator.Count,
	"distinctcount": aggregator.DistinctCount,
	"min":           aggregator.Min,
	"max":           aggregator.Max,
	"minforever":    aggregator.MinForever,
	"maxforever":    aggregator.MaxForever,
}

// extractFunc records one aggregate reference found during a rewrite pass
// and returns the slot index it has been assigned in the selector's shared
// aggregate list.
type extractFunc func(fc expr.FuncCall) (int, error)

// rewriteAggs walks n, replacing every aggregate FuncCall (spec §4.5's
// sum/avg/count/distinctCount/min/max/minForever/maxForever) with a
// Variable referencing a synthetic "__aggN" attribute, so the rest of the
// tree can be compiled by the ordinary expr.Compile against a meta that
// carries the aggregate results alongside the underlying row (see
// compileSelector). Scalar expressions with no aggregate reference are
// returned unchanged.
func rewriteAggs(n expr.Node, extract extractFunc) (expr.Node, error) {
	switch v := n.(type) {
	case expr.Constant, expr.Variable:
		return v, nil
	case expr.Arithmetic:
		left, err := rewriteAggs(v.Left, extract)
		if err != nil {
			return nil, err
		}
		right, err := rewriteAggs(v.Right, extract)
		if err != nil {
			return nil, err
		}
		v.Left, v.Right = left, right
		return v, nil
	case expr.Compare:
		left, err := rewriteAggs(v.Left, extract)
		if err != nil {
			return nil, err
		}
		right, err := rewriteAggs(v.Right, extract)
		if err != nil {
			return nil, err
		}
		v.Left, v.Right = left, right
		return v, nil
	case expr.Logical:
		left, err := rewriteAggs(v.Left, extract)
		if err != nil {
			return nil, err
		}
		right, err := rewriteAggs(v.Right, extract)
		if err != nil {
			return nil, err
		}
		v.Left, v.Right = left, right
		return v, nil
	case expr.Not:
		operand, err := rewriteAggs(v.Operand, extract)
		if err != nil {
			return nil, err
		}
		v.Operand = operand
		return v, nil
	case expr.IsNull:
		operand, err := rewriteAggs(v.Operand, extract)
		if err != nil {
			return nil, err
		}
		v.Operand = operand
		return v, nil
	case expr.InSource:
		operand, err := rewriteAggs(v.Operand, extract)
		if err != nil {
			return nil, err
		}
		v.Operand = operand
		values := make([]expr.Node, len(v.Values))
		for i, val := range v.Values {
			r, err := rewriteAggs(val, extract)
			if err != nil {
				return nil, err
			}
			values[i] = r
		}
		v.Values = values
		return v, nil
	case expr.CaseWhen:
		branches := make([]expr.CaseBranch, len(v.Branches))
		for i, b := range v.Branches {
			cond, err := rewriteAggs(b.Cond, extract)
			if err != nil {
				return nil, err
			}
			then, err := rewriteAggs(b.Then, extract)
			if err != nil {
				return nil, err
			}
			branches[i] = expr.CaseBranch{Cond: cond, Then: then}
		}
		v.Branches = branches
		if v.Else != nil {
			elseN, err := rewriteAggs(v.Else, extract)
			if err != nil {
				return nil, err
			}
			v.Else = elseN
		}
		return v, nil
	case expr.FuncCall:
		if v.Namespace == "" {
			if _, ok := aggregatorNames[strings.ToLower(v.Name)]; ok {
				idx, err := extract(v)
				if err != nil {
					return nil, err
				}
				return expr.Variable{Name: aggSlotName(idx)}, nil
			}
		}
		args := make([]expr.Node, len(v.Args))
		for i, a := range v.Args {
			r, err := rewriteAggs(a, extract)
			if err != nil {
				return nil, err
			}
			args[i] = r
		}
		v.Args = args
		return v, nil
	default:
		return n, nil
	}
}
