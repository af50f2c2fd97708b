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

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
)

// MetaStreamEvent resolves a Variable reference to a positional index and
// type against one or two visible input streams. With two streams (join or
// pattern queries), the right-hand stream's attributes live at
// left_arity + i, per spec §4.1.
type MetaStreamEvent struct {
	Left  *appdef.StreamDefinition
	Right *appdef.StreamDefinition // nil for single-stream queries
	// Aliases maps a query-local stream alias to 0 (left) or 1 (right); empty
	// means no alias was declared and namespace-less lookup must be
	// unambiguous across visible streams.
	Aliases map[string]int
}

func NewMetaStreamEvent(left *appdef.StreamDefinition) *MetaStreamEvent {
	return &MetaStreamEvent{Left: left, Aliases: map[string]int{}}
}

func (m *MetaStreamEvent) WithRight(right *appdef.StreamDefinition) *MetaStreamEvent {
	m.Right = right
	return m
}

// resolution is what Variable compiles down to: a single flat index into
// the (possibly concatenated left+right) BeforeWindowData array.
type resolution struct {
	index int
	typ   attrvalue.Type
}

// leftArity is the stream-positional offset applied to right-hand-side
// attributes (spec §4.1: "right-hand stream's attributes live at
// left_arity + i").
func (m *MetaStreamEvent) leftArity() int {
	if m.Left == nil {
		return 0
	}
	return len(m.Left.Attributes)
}

func (m *MetaStreamEvent) resolve(namespace, name string) (resolution, error) {
	tryLeft := func() (resolution, bool) {
		if m.Left == nil {
			return resolution{}, false
		}
		idx := m.Left.IndexOf(name)
		if idx < 0 {
			return resolution{}, false
		}
		return resolution{index: idx, typ: m.Left.Attributes[idx].Type}, true
	}
	tryRight := func() (resolution, bool) {
		if m.Right == nil {
			return resolution{}, false
		}
		idx := m.Right.IndexOf(name)
		if idx < 0 {
			return resolution{}, false
		}
		return resolution{index: m.leftArity() + idx, typ: m.Right.Attributes[idx].Type}, true
	}

	if namespace != "" {
		if side, ok := m.Aliases[namespace]; ok {
			if side == 0 {
				if r, ok := tryLeft(); ok {
					return r, nil
				}
			} else {
				if r, ok := tryRight(); ok {
					return r, nil
				}
			}
			return resolution{}, fmt.Errorf("unknown attribute %q on stream alias %q", name, namespace)
		}
		return resolution{}, fmt.Errorf("unknown stream alias %q", namespace)
	}

	leftRes, leftOk := tryLeft()
	rightRes, rightOk := tryRight()
	switch {
	case leftOk && rightOk:
		return resolution{}, fmt.Errorf("ambiguous variable reference %q: present in both input streams", name)
	case leftOk:
		return leftRes, nil
	case rightOk:
		return rightRes, nil
	default:
		return resolution{}, fmt.Errorf("unresolved variable reference %q", name)
	}
}
