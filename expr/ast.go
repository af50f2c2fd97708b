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

// Package expr implements the Expression AST and the ExpressionExecutor
// compiler described in spec §4.1: constants, variables, arithmetic,
// logical, comparison, is-null, in-source and scalar function call nodes,
// compiled against a MetaStreamEvent into a tree of stateless executors.
package expr

// Node is one Expression AST node, produced by Parse.
type Node interface {
	node()
}

type Constant struct {
	Value interface{} // nil, bool, int64, float64, or string
}

// Variable is an unresolved attribute reference; namespace is the stream
// alias for join/pattern queries ("" when unambiguous).
type Variable struct {
	Namespace string
	Name      string
}

type ArithOp string

const (
	Add ArithOp = "+"
	Sub ArithOp = "-"
	Mul ArithOp = "*"
	Div ArithOp = "/"
	Mod ArithOp = "%"
)

type Arithmetic struct {
	Op          ArithOp
	Left, Right Node
}

type CompareOp string

const (
	Lt  CompareOp = "<"
	Le  CompareOp = "<="
	Eq  CompareOp = "="
	Ne  CompareOp = "!="
	Ge  CompareOp = ">="
	Gt  CompareOp = ">"
	Like CompareOp = "like"
)

type Compare struct {
	Op          CompareOp
	Left, Right Node
}

type LogicalOp string

const (
	And LogicalOp = "and"
	Or  LogicalOp = "or"
)

type Logical struct {
	Op          LogicalOp
	Left, Right Node
}

type Not struct {
	Operand Node
}

type IsNull struct {
	Operand Node
	Negate  bool // IS NOT NULL
}

// InSource tests membership of Operand in a literal list.
type InSource struct {
	Operand Node
	Values  []Node
	Negate  bool
}

// FuncCall is a scalar function invocation, optionally namespaced; the
// parser accepts the dotted form "namespace.name(args...)".
type FuncCall struct {
	Namespace string
	Name      string
	Args      []Node
}

// CaseWhen implements CASE WHEN cond THEN expr ... ELSE expr END, a
// supplemented scalar construct grounded on the teacher's expr/case_expression.go.
type CaseWhen struct {
	Branches []CaseBranch
	Else     Node // nil means NULL
}

type CaseBranch struct {
	Cond Node
	Then Node
}

func (Constant) node()   {}
func (Variable) node()   {}
func (Arithmetic) node() {}
func (Compare) node()    {}
func (Logical) node()    {}
func (Not) node()        {}
func (IsNull) node()     {}
func (InSource) node()   {}
func (FuncCall) node()   {}
func (CaseWhen) node()   {}
