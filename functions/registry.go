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

// Package functions implements the scalar function registry from spec
// §4.1: a name (or namespace:name) looked up at compile time, validated
// against an arity, and executed per-event. Grounded on the teacher's
// functions/registry.go Function interface, trimmed to the built-in
// catalog the spec names explicitly.
package functions

import (
	"fmt"
	"strings"
	"sync"

	"github.com/eventflux/eventflux/attrvalue"
)

// Function is a scalar (non-aggregating) function.
type Function interface {
	Name() string
	MinArgs() int
	MaxArgs() int // -1 means unlimited
	// ReturnType infers the result type given argument types, used by
	// ExpressionExecutor.ReturnType() without evaluating the function.
	ReturnType(argTypes []attrvalue.Type) attrvalue.Type
	// Call evaluates the function. attrvalue.Null in args represents NULL.
	Call(args []attrvalue.Value) (attrvalue.Value, error)
}

type registry struct {
	mu  sync.RWMutex
	fns map[string]Function
}

var global = &registry{fns: map[string]Function{}}

func Register(fn Function) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.fns[strings.ToLower(fn.Name())] = fn
}

// Get resolves a possibly-namespaced function name. EventFlux does not
// register namespaced built-ins itself, but user extensions may register
// under "namespace:name"; a namespaced lookup with no such entry falls
// back to the bare name, so "math:round" and "round" can coexist.
func Get(namespace, name string) (Function, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	key := strings.ToLower(name)
	if namespace != "" {
		if fn, ok := global.fns[strings.ToLower(namespace)+":"+key]; ok {
			return fn, true
		}
	}
	fn, ok := global.fns[key]
	return fn, ok
}

func validateArity(fn Function, n int) error {
	if n < fn.MinArgs() {
		return fmt.Errorf("function %s requires at least %d argument(s), got %d", fn.Name(), fn.MinArgs(), n)
	}
	if fn.MaxArgs() >= 0 && n > fn.MaxArgs() {
		return fmt.Errorf("function %s accepts at most %d argument(s), got %d", fn.Name(), fn.MaxArgs(), n)
	}
	return nil
}

// Call resolves and validates a function call in one step, the entry point
// used by the expression executor's FuncCall node.
func Call(namespace, name string, args []attrvalue.Value) (attrvalue.Value, error) {
	fn, ok := Get(namespace, name)
	if !ok {
		qualified := name
		if namespace != "" {
			qualified = namespace + ":" + name
		}
		return attrvalue.Null, fmt.Errorf("unknown function %q", qualified)
	}
	if err := validateArity(fn, len(args)); err != nil {
		return attrvalue.Null, err
	}
	return fn.Call(args)
}

// ReturnType resolves a function's declared return type without calling it.
func ReturnType(namespace, name string, argTypes []attrvalue.Type) (attrvalue.Type, error) {
	fn, ok := Get(namespace, name)
	if !ok {
		return attrvalue.TypeNull, fmt.Errorf("unknown function %q", name)
	}
	return fn.ReturnType(argTypes), nil
}
