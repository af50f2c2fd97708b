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

// Package pattern implements spec §4.7: join, sequence/pattern and the
// logical AND/OR/NOT combinators, all built from a shared two-sided
// buffer with side-tagged entry processors (joinSide, logicalSide,
// sequenceFirst/sequenceSecond, notFirst/notAbsent) that
// mutate one interior state under a single lock, mirroring the way the
// teacher's window family (window/sliding_window.go) buffers events
// behind a mutex and emits through a shared observer.
package pattern

import (
	"reflect"
	"sync/atomic"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
)

var anomalies int64

// AnomalyCount reports buffer overflows and other recoverable pattern
// state faults, surfaced through Runtime.Stats() (spec §7 supplemented
// fault-tolerance counters).
func AnomalyCount() int64 { return atomic.LoadInt64(&anomalies) }

func recordAnomaly() { atomic.AddInt64(&anomalies, 1) }

// New builds the pair of side processors (first/left, second/right) for
// an InputSpec, dispatching on Kind the way window.New dispatches on
// WindowKind. left/right are the schemas of the two input streams (right
// is nil for the logical-NOT "absent stream" case, which only ever reads
// the first side).
func New(spec *appdef.InputSpec, left, right *appdef.StreamDefinition, ctx *processor.Context) (first, second processor.Processor, err error) {
	switch spec.Kind {
	case appdef.InputJoin:
		return newJoin(spec, left, right, ctx)
	case appdef.InputPattern, appdef.InputSeq:
		switch spec.Logical {
		case "and", "or":
			return newLogical(spec, left, right, ctx)
		case "not":
			return newLogicalNot(spec, left, ctx)
		default:
			return newSequence(spec, left, right, ctx)
		}
	default:
		return nil, nil, errUnsupportedKind(spec.Kind)
	}
}

func errUnsupportedKind(k appdef.InputKind) error {
	return &unsupportedKindError{kind: k}
}

type unsupportedKindError struct{ kind appdef.InputKind }

func (e *unsupportedKindError) Error() string {
	return "pattern: unsupported input kind " + string(e.kind)
}

// concat builds the flattened BeforeWindowData row expr.Compile's
// two-stream MetaStreamEvent expects: left attributes followed by right
// attributes, nulls standing in for an absent side (spec §4.7 outer
// join/logical-OR padding).
func concat(left, right *event.StreamEvent, leftArity, rightArity int) *event.StreamEvent {
	row := make([]attrvalue.Value, 0, leftArity+rightArity)
	var ts int64
	if left != nil {
		row = append(row, left.BeforeWindowData...)
		ts = left.Timestamp
	} else {
		row = append(row, nullRow(leftArity)...)
	}
	if right != nil {
		row = append(row, right.BeforeWindowData...)
		if right.Timestamp > ts {
			ts = right.Timestamp
		}
	} else {
		row = append(row, nullRow(rightArity)...)
	}
	return &event.StreamEvent{Timestamp: ts, Tag: event.Current, BeforeWindowData: row}
}

func nullRow(n int) []attrvalue.Value {
	row := make([]attrvalue.Value, n)
	for i := range row {
		row[i] = attrvalue.Null
	}
	return row
}

// removeMatching deletes the first buffered event whose row and
// timestamp match se (the corresponding Expired notification from an
// upstream window carries the same payload as the Current arrival it
// retracts), returning the updated slice.
func removeMatching(buf []*event.StreamEvent, se *event.StreamEvent) []*event.StreamEvent {
	for i, existing := range buf {
		if existing.Timestamp == se.Timestamp && reflect.DeepEqual(existing.BeforeWindowData, se.BeforeWindowData) {
			out := make([]*event.StreamEvent, 0, len(buf)-1)
			out = append(out, buf[:i]...)
			out = append(out, buf[i+1:]...)
			return out
		}
	}
	return buf
}
