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

package expr

import (
	"fmt"

	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/functions"
)

// Executor is a compiled, stateless expression tree node. All executors may
// be freely cloned (copied by value/shared pointer) for per-query or
// per-group use, per spec §4.1.
type Executor interface {
	Execute(se *event.StreamEvent) attrvalue.Value
	ReturnType() attrvalue.Type
}

// Compile lowers a parsed Expression AST into an Executor tree, resolving
// every Variable against meta. A nil meta is only valid for expressions
// with no variable references (e.g. constant-folded defaults).
func Compile(n Node, meta *MetaStreamEvent) (Executor, error) {
	switch v := n.(type) {
	case Constant:
		return constantExecutor{value: attrvalue.Of(v.Value)}, nil
	case Variable:
		if meta == nil {
			return nil, fmt.Errorf("variable %q referenced with no input stream in scope", v.Name)
		}
		r, err := meta.resolve(v.Namespace, v.Name)
		if err != nil {
			return nil, err
		}
		return variableExecutor{resolution: r}, nil
	case Arithmetic:
		left, err := Compile(v.Left, meta)
		if err != nil {
			return nil, err
		}
		right, err := Compile(v.Right, meta)
		if err != nil {
			return nil, err
		}
		return arithmeticExecutor{op: v.Op, left: left, right: right}, nil
	case Compare:
		left, err := Compile(v.Left, meta)
		if err != nil {
			return nil, err
		}
		right, err := Compile(v.Right, meta)
		if err != nil {
			return nil, err
		}
		return compareExecutor{op: v.Op, left: left, right: right}, nil
	case Logical:
		left, err := Compile(v.Left, meta)
		if err != nil {
			return nil, err
		}
		right, err := Compile(v.Right, meta)
		if err != nil {
			return nil, err
		}
		return logicalExecutor{op: v.Op, left: left, right: right}, nil
	case Not:
		operand, err := Compile(v.Operand, meta)
		if err != nil {
			return nil, err
		}
		return notExecutor{operand: operand}, nil
	case IsNull:
		operand, err := Compile(v.Operand, meta)
		if err != nil {
			return nil, err
		}
		return isNullExecutor{operand: operand, negate: v.Negate}, nil
	case InSource:
		operand, err := Compile(v.Operand, meta)
		if err != nil {
			return nil, err
		}
		values := make([]Executor, len(v.Values))
		for i, val := range v.Values {
			values[i], err = Compile(val, meta)
			if err != nil {
				return nil, err
			}
		}
		return inExecutor{operand: operand, values: values, negate: v.Negate}, nil
	case FuncCall:
		args := make([]Executor, len(v.Args))
		argTypes := make([]attrvalue.Type, len(v.Args))
		for i, a := range v.Args {
			ex, err := Compile(a, meta)
			if err != nil {
				return nil, err
			}
			args[i] = ex
			argTypes[i] = ex.ReturnType()
		}
		retType, err := functions.ReturnType(v.Namespace, v.Name, argTypes)
		if err != nil {
			return nil, err
		}
		return funcExecutor{namespace: v.Namespace, name: v.Name, args: args, retType: retType}, nil
	case CaseWhen:
		branches := make([]compiledBranch, len(v.Branches))
		for i, b := range v.Branches {
			cond, err := Compile(b.Cond, meta)
			if err != nil {
				return nil, err
			}
			then, err := Compile(b.Then, meta)
			if err != nil {
				return nil, err
			}
			branches[i] = compiledBranch{cond: cond, then: then}
		}
		var elseEx Executor
		if v.Else != nil {
			var err error
			elseEx, err = Compile(v.Else, meta)
			if err != nil {
				return nil, err
			}
		}
		return caseExecutor{branches: branches, elseExec: elseEx}, nil
	default:
		return nil, fmt.Errorf("unsupported expression node %T", n)
	}
}

// CompileString parses and compiles in one step, returning the first parse
// or compile error.
func CompileString(src string, meta *MetaStreamEvent) (Executor, error) {
	n, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Compile(n, meta)
}

// --- constant ---

type constantExecutor struct{ value attrvalue.Value }

func (c constantExecutor) Execute(*event.StreamEvent) attrvalue.Value { return c.value }
func (c constantExecutor) ReturnType() attrvalue.Type                 { return c.value.Kind }

// --- variable ---

type variableExecutor struct{ resolution resolution }

func (v variableExecutor) Execute(se *event.StreamEvent) attrvalue.Value {
	data := se.BeforeWindowData
	if v.resolution.index < 0 || v.resolution.index >= len(data) {
		return attrvalue.Null
	}
	return data[v.resolution.index]
}

func (v variableExecutor) ReturnType() attrvalue.Type { return v.resolution.typ }

// --- arithmetic ---

type arithmeticExecutor struct {
	op          ArithOp
	left, right Executor
}

func (a arithmeticExecutor) ReturnType() attrvalue.Type {
	return attrvalue.Promote(a.left.ReturnType(), a.right.ReturnType())
}

func (a arithmeticExecutor) Execute(se *event.StreamEvent) attrvalue.Value {
	lv := a.left.Execute(se)
	rv := a.right.Execute(se)
	if attrvalue.IsNull(lv) || attrvalue.IsNull(rv) {
		return attrvalue.Null
	}
	resultType := attrvalue.Promote(lv.Kind, rv.Kind)
	lf, lok := attrvalue.AsFloat64(lv)
	rf, rok := attrvalue.AsFloat64(rv)
	if !lok || !rok {
		return attrvalue.Null
	}
	switch a.op {
	case Add:
		return attrvalue.Cast(attrvalue.Of(lf+rf), resultType)
	case Sub:
		return attrvalue.Cast(attrvalue.Of(lf-rf), resultType)
	case Mul:
		return attrvalue.Cast(attrvalue.Of(lf*rf), resultType)
	case Div:
		if rf == 0 {
			// Integer division by zero yields null (spec §4.1); float
			// division follows IEEE-754 (Inf/NaN), matched by plain /.
			if resultType == attrvalue.TypeInt32 || resultType == attrvalue.TypeInt64 {
				return attrvalue.Null
			}
		}
		return attrvalue.Cast(attrvalue.Of(lf/rf), resultType)
	case Mod:
		if rf == 0 {
			return attrvalue.Null
		}
		return attrvalue.Cast(attrvalue.Of(mathMod(lf, rf)), resultType)
	}
	return attrvalue.Null
}

func mathMod(a, b float64) float64 {
	m := a - b*float64(int64(a/b))
	return m
}

// --- compare ---

type compareExecutor struct {
	op          CompareOp
	left, right Executor
}

func (compareExecutor) ReturnType() attrvalue.Type { return attrvalue.TypeBool }

func (c compareExecutor) Execute(se *event.StreamEvent) attrvalue.Value {
	lv := c.left.Execute(se)
	rv := c.right.Execute(se)
	// Three-valued logic: null on either side yields null (spec §4.1).
	if attrvalue.IsNull(lv) || attrvalue.IsNull(rv) {
		return attrvalue.Null
	}
	if c.op == Like {
		text, tok := attrvalue.AsString(lv), true
		pattern := attrvalue.AsString(rv)
		_ = tok
		return attrvalue.Of(likeMatch(text, pattern))
	}
	if lv.Kind == attrvalue.TypeString || rv.Kind == attrvalue.TypeString {
		ls, rs := attrvalue.AsString(lv), attrvalue.AsString(rv)
		return attrvalue.Of(compareOrdered(compareStrings(ls, rs), c.op))
	}
	lf, lok := attrvalue.AsFloat64(lv)
	rf, rok := attrvalue.AsFloat64(rv)
	if !lok || !rok {
		return attrvalue.Null
	}
	var cmp int
	switch {
	case lf < rf:
		cmp = -1
	case lf > rf:
		cmp = 1
	default:
		cmp = 0
	}
	return attrvalue.Of(compareOrdered(cmp, c.op))
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareOrdered(cmp int, op CompareOp) bool {
	switch op {
	case Lt:
		return cmp < 0
	case Le:
		return cmp <= 0
	case Eq:
		return cmp == 0
	case Ne:
		return cmp != 0
	case Ge:
		return cmp >= 0
	case Gt:
		return cmp > 0
	}
	return false
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

// --- logical (three-valued) ---

type logicalExecutor struct {
	op          LogicalOp
	left, right Executor
}

func (logicalExecutor) ReturnType() attrvalue.Type { return attrvalue.TypeBool }

func (l logicalExecutor) Execute(se *event.StreamEvent) attrvalue.Value {
	lv := l.left.Execute(se)
	lb, lok := ternaryBool(lv)
	rv := l.right.Execute(se)
	rb, rok := ternaryBool(rv)

	if l.op == And {
		if lok && !lb {
			return attrvalue.Of(false)
		}
		if rok && !rb {
			return attrvalue.Of(false)
		}
		if lok && rok {
			return attrvalue.Of(lb && rb)
		}
		return attrvalue.Null
	}
	// Or
	if lok && lb {
		return attrvalue.Of(true)
	}
	if rok && rb {
		return attrvalue.Of(true)
	}
	if lok && rok {
		return attrvalue.Of(lb || rb)
	}
	return attrvalue.Null
}

func ternaryBool(v attrvalue.Value) (bool, bool) {
	if attrvalue.IsNull(v) {
		return false, false
	}
	return attrvalue.AsBool(v)
}

// --- not ---

type notExecutor struct{ operand Executor }

func (notExecutor) ReturnType() attrvalue.Type { return attrvalue.TypeBool }

func (n notExecutor) Execute(se *event.StreamEvent) attrvalue.Value {
	v := n.operand.Execute(se)
	b, ok := ternaryBool(v)
	if !ok {
		return attrvalue.Null
	}
	return attrvalue.Of(!b)
}

// --- is null ---

type isNullExecutor struct {
	operand Executor
	negate  bool
}

func (isNullExecutor) ReturnType() attrvalue.Type { return attrvalue.TypeBool }

func (e isNullExecutor) Execute(se *event.StreamEvent) attrvalue.Value {
	isNull := attrvalue.IsNull(e.operand.Execute(se))
	if e.negate {
		return attrvalue.Of(!isNull)
	}
	return attrvalue.Of(isNull)
}

// --- in ---

type inExecutor struct {
	operand Executor
	values  []Executor
	negate  bool
}

func (inExecutor) ReturnType() attrvalue.Type { return attrvalue.TypeBool }

func (e inExecutor) Execute(se *event.StreamEvent) attrvalue.Value {
	v := e.operand.Execute(se)
	if attrvalue.IsNull(v) {
		return attrvalue.Null
	}
	found := false
	for _, cand := range e.values {
		cv := cand.Execute(se)
		if attrvalue.IsNull(cv) {
			continue
		}
		if v.Kind == attrvalue.TypeString || cv.Kind == attrvalue.TypeString {
			if attrvalue.AsString(v) == attrvalue.AsString(cv) {
				found = true
				break
			}
			continue
		}
		vf, _ := attrvalue.AsFloat64(v)
		cf, _ := attrvalue.AsFloat64(cv)
		if vf == cf {
			found = true
			break
		}
	}
	if e.negate {
		found = !found
	}
	return attrvalue.Of(found)
}

// --- function call ---

type funcExecutor struct {
	namespace, name string
	args            []Executor
	retType         attrvalue.Type
}

func (f funcExecutor) ReturnType() attrvalue.Type { return f.retType }

func (f funcExecutor) Execute(se *event.StreamEvent) attrvalue.Value {
	args := make([]attrvalue.Value, len(f.args))
	for i, a := range f.args {
		args[i] = a.Execute(se)
	}
	v, err := functions.Call(f.namespace, f.name, args)
	if err != nil {
		return attrvalue.Null
	}
	return v
}

// --- case/when ---

type compiledBranch struct {
	cond, then Executor
}

type caseExecutor struct {
	branches []compiledBranch
	elseExec Executor
}

func (c caseExecutor) ReturnType() attrvalue.Type {
	if len(c.branches) > 0 {
		return c.branches[0].then.ReturnType()
	}
	return attrvalue.TypeNull
}

func (c caseExecutor) Execute(se *event.StreamEvent) attrvalue.Value {
	for _, b := range c.branches {
		cond := b.cond.Execute(se)
		if ok, valid := ternaryBool(cond); valid && ok {
			return b.then.Execute(se)
		}
	}
	if c.elseExec != nil {
		return c.elseExec.Execute(se)
	}
	return attrvalue.Null
}
