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
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// condition wraps an expr-lang/expr program compiled against a plain
// map[string]interface{} environment, the way the teacher's
// condition/condition.go builds its ExprCondition: the WHERE clause
// references a single input stream's raw attribute names directly rather
// than the positionally-resolved two-sided meta the window/pattern/select
// stages use, so a name/value environment is the natural fit and lets the
// filter stage exercise expr-lang/expr's own function/option surface
// instead of duplicating it in the hand-written expr package.
type condition struct {
	program *vm.Program
}

func compileCondition(clause string) (*condition, error) {
	options := []expr.Option{
		expr.Function("like_match", func(params ...any) (any, error) {
			if len(params) != 2 {
				return false, fmt.Errorf("like_match requires 2 parameters")
			}
			text, ok1 := params[0].(string)
			pattern, ok2 := params[1].(string)
			if !ok1 || !ok2 {
				return false, fmt.Errorf("like_match requires string parameters")
			}
			return likeMatch(text, pattern), nil
		}),
		expr.Function("is_null", func(params ...any) (any, error) {
			if len(params) != 1 {
				return false, fmt.Errorf("is_null requires 1 parameter")
			}
			return params[0] == nil, nil
		}),
		expr.Function("is_not_null", func(params ...any) (any, error) {
			if len(params) != 1 {
				return false, fmt.Errorf("is_not_null requires 1 parameter")
			}
			return params[0] != nil, nil
		}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	}
	program, err := expr.Compile(clause, options...)
	if err != nil {
		return nil, fmt.Errorf("query: condition %q: %w", clause, err)
	}
	return &condition{program: program}, nil
}

// Evaluate runs the compiled program against env, treating any runtime
// error (e.g. an undefined-variable comparison) as non-matching rather
// than propagating a panic up the processor chain.
func (c *condition) Evaluate(env map[string]interface{}) bool {
	result, err := expr.Run(c.program, env)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}

func likeMatch(text, pattern string) bool {
	return likeMatchAt(text, pattern, 0, 0)
}

func likeMatchAt(text, pattern string, ti, pi int) bool {
	if pi >= len(pattern) {
		return ti >= len(text)
	}
	switch pattern[pi] {
	case '%':
		for i := ti; i <= len(text); i++ {
			if likeMatchAt(text, pattern, i, pi+1) {
				return true
			}
		}
		return false
	case '_':
		if ti >= len(text) {
			return false
		}
		return likeMatchAt(text, pattern, ti+1, pi+1)
	default:
		if ti >= len(text) || text[ti] != pattern[pi] {
			return false
		}
		return likeMatchAt(text, pattern, ti+1, pi+1)
	}
}
