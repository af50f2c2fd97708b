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

package functions

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/eventflux/eventflux/attrvalue"
)

func init() {
	Register(coalesceFn{})
	Register(ifThenElseFn{})
	Register(uuidFn{})
	Register(instanceOfFn{typeName: "Integer", want: attrvalue.TypeInt32})
	Register(instanceOfFn{typeName: "Long", want: attrvalue.TypeInt64})
	Register(instanceOfFn{typeName: "Float", want: attrvalue.TypeFloat32})
	Register(instanceOfFn{typeName: "Double", want: attrvalue.TypeFloat64})
	Register(instanceOfFn{typeName: "Boolean", want: attrvalue.TypeBool})
	Register(instanceOfFn{typeName: "String", want: attrvalue.TypeString})
	Register(mathFn{name: "round", fn: math.Round})
	Register(mathFn{name: "abs", fn: math.Abs})
	Register(mathFn{name: "ceil", fn: math.Ceil})
	Register(mathFn{name: "floor", fn: math.Floor})
	Register(mathFn{name: "sqrt", fn: math.Sqrt})
	Register(upperFn{})
	Register(lowerFn{})
	Register(lengthFn{})
	Register(concatFn{})
}

// coalesce(a, b, ...) returns the first non-null argument.
type coalesceFn struct{}

func (coalesceFn) Name() string      { return "coalesce" }
func (coalesceFn) MinArgs() int      { return 1 }
func (coalesceFn) MaxArgs() int      { return -1 }
func (coalesceFn) ReturnType(t []attrvalue.Type) attrvalue.Type {
	if len(t) > 0 {
		return t[0]
	}
	return attrvalue.TypeNull
}
func (coalesceFn) Call(args []attrvalue.Value) (attrvalue.Value, error) {
	for _, a := range args {
		if !attrvalue.IsNull(a) {
			return a, nil
		}
	}
	return attrvalue.Null, nil
}

// ifThenElse(cond, thenVal, elseVal).
type ifThenElseFn struct{}

func (ifThenElseFn) Name() string { return "ifThenElse" }
func (ifThenElseFn) MinArgs() int { return 3 }
func (ifThenElseFn) MaxArgs() int { return 3 }
func (ifThenElseFn) ReturnType(t []attrvalue.Type) attrvalue.Type {
	if len(t) >= 2 {
		return t[1]
	}
	return attrvalue.TypeNull
}
func (ifThenElseFn) Call(args []attrvalue.Value) (attrvalue.Value, error) {
	cond, ok := attrvalue.AsBool(args[0])
	if !ok {
		return attrvalue.Null, nil
	}
	if cond {
		return args[1], nil
	}
	return args[2], nil
}

// uuid() generates a random identifier string.
type uuidFn struct{}

func (uuidFn) Name() string                                { return "uuid" }
func (uuidFn) MinArgs() int                                 { return 0 }
func (uuidFn) MaxArgs() int                                 { return 0 }
func (uuidFn) ReturnType(t []attrvalue.Type) attrvalue.Type { return attrvalue.TypeString }
func (uuidFn) Call(args []attrvalue.Value) (attrvalue.Value, error) {
	return attrvalue.Of(uuid.NewString()), nil
}

// instanceOf{Type}(value) tests the runtime kind of a value.
type instanceOfFn struct {
	typeName string
	want     attrvalue.Type
}

func (f instanceOfFn) Name() string                                { return "instanceOf" + f.typeName }
func (instanceOfFn) MinArgs() int                                  { return 1 }
func (instanceOfFn) MaxArgs() int                                  { return 1 }
func (instanceOfFn) ReturnType(t []attrvalue.Type) attrvalue.Type { return attrvalue.TypeBool }
func (f instanceOfFn) Call(args []attrvalue.Value) (attrvalue.Value, error) {
	return attrvalue.Of(args[0].Kind == f.want), nil
}

// mathFn wraps a stdlib math.* unary function.
type mathFn struct {
	name string
	fn   func(float64) float64
}

func (f mathFn) Name() string { return f.name }
func (mathFn) MinArgs() int   { return 1 }
func (mathFn) MaxArgs() int   { return 1 }
func (mathFn) ReturnType(t []attrvalue.Type) attrvalue.Type { return attrvalue.TypeFloat64 }
func (f mathFn) Call(args []attrvalue.Value) (attrvalue.Value, error) {
	v, ok := attrvalue.AsFloat64(args[0])
	if !ok {
		return attrvalue.Null, nil
	}
	return attrvalue.Of(f.fn(v)), nil
}

type upperFn struct{}

func (upperFn) Name() string                                { return "upper" }
func (upperFn) MinArgs() int                                 { return 1 }
func (upperFn) MaxArgs() int                                 { return 1 }
func (upperFn) ReturnType(t []attrvalue.Type) attrvalue.Type { return attrvalue.TypeString }
func (upperFn) Call(args []attrvalue.Value) (attrvalue.Value, error) {
	if attrvalue.IsNull(args[0]) {
		return attrvalue.Null, nil
	}
	return attrvalue.Of(strings.ToUpper(attrvalue.AsString(args[0]))), nil
}

type lowerFn struct{}

func (lowerFn) Name() string                                { return "lower" }
func (lowerFn) MinArgs() int                                 { return 1 }
func (lowerFn) MaxArgs() int                                 { return 1 }
func (lowerFn) ReturnType(t []attrvalue.Type) attrvalue.Type { return attrvalue.TypeString }
func (lowerFn) Call(args []attrvalue.Value) (attrvalue.Value, error) {
	if attrvalue.IsNull(args[0]) {
		return attrvalue.Null, nil
	}
	return attrvalue.Of(strings.ToLower(attrvalue.AsString(args[0]))), nil
}

type lengthFn struct{}

func (lengthFn) Name() string                                { return "length" }
func (lengthFn) MinArgs() int                                 { return 1 }
func (lengthFn) MaxArgs() int                                 { return 1 }
func (lengthFn) ReturnType(t []attrvalue.Type) attrvalue.Type { return attrvalue.TypeInt32 }
func (lengthFn) Call(args []attrvalue.Value) (attrvalue.Value, error) {
	if attrvalue.IsNull(args[0]) {
		return attrvalue.Null, nil
	}
	return attrvalue.Of(int32(len(attrvalue.AsString(args[0])))), nil
}

type concatFn struct{}

func (concatFn) Name() string                                { return "concat" }
func (concatFn) MinArgs() int                                 { return 1 }
func (concatFn) MaxArgs() int                                 { return -1 }
func (concatFn) ReturnType(t []attrvalue.Type) attrvalue.Type { return attrvalue.TypeString }
func (concatFn) Call(args []attrvalue.Value) (attrvalue.Value, error) {
	var sb strings.Builder
	for _, a := range args {
		if attrvalue.IsNull(a) {
			continue
		}
		sb.WriteString(attrvalue.AsString(a))
	}
	return attrvalue.Of(sb.String()), nil
}
