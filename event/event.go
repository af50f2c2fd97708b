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

// Package event defines the carrier types that flow between processors:
// the external Event and the internal StreamEvent chunk element (spec §3).
package event

import (
	"encoding/json"
	"time"

	"github.com/eventflux/eventflux/attrvalue"
)

// Tag is the complex-event lifecycle marker.
type Tag int

const (
	Current Tag = iota
	Expired
	Reset
	Timer
)

func (t Tag) String() string {
	switch t {
	case Current:
		return "current"
	case Expired:
		return "expired"
	case Reset:
		return "reset"
	case Timer:
		return "timer"
	default:
		return "unknown"
	}
}

// Event is the public ingress/egress carrier: a timestamp plus an ordered
// row of attribute values.
type Event struct {
	Timestamp int64
	Data      []attrvalue.Value
}

// NewEvent builds an Event timestamped with the current wall-clock time
// (epoch ms); callers needing another timestamp set Timestamp directly.
func NewEvent(data ...attrvalue.Value) *Event {
	return &Event{Timestamp: time.Now().UnixMilli(), Data: data}
}

func (e *Event) Clone() *Event {
	data := make([]attrvalue.Value, len(e.Data))
	copy(data, e.Data)
	return &Event{Timestamp: e.Timestamp, Data: data}
}

// StreamEvent is the complex event used internally by the processor chain.
// Operators move events through the chain as chunks (singly linked lists,
// via Next) to amortize per-event dispatch overhead.
type StreamEvent struct {
	Timestamp int64
	Tag       Tag

	// BeforeWindowData holds the attributes as they entered the window.
	BeforeWindowData []attrvalue.Value
	// OnAfterWindowData holds attributes computed by window/aggregation
	// processors (e.g. running aggregate state snapshot for this row).
	OnAfterWindowData []attrvalue.Value
	// OutputData holds the select processor's projected output row.
	OutputData []attrvalue.Value

	// StreamIndex distinguishes the left/right side of a join or pattern;
	// 0 for single-stream queries.
	StreamIndex int

	Next *StreamEvent
}

// FromEvent converts an ingress Event into a Current StreamEvent.
func FromEvent(e *Event) *StreamEvent {
	data := make([]attrvalue.Value, len(e.Data))
	copy(data, e.Data)
	return &StreamEvent{
		Timestamp:        e.Timestamp,
		Tag:              Current,
		BeforeWindowData: data,
	}
}

// ToEvent renders a StreamEvent's output row (falling back to its
// before-window row) as a public Event for sinks/callbacks.
func (se *StreamEvent) ToEvent() *Event {
	data := se.OutputData
	if data == nil {
		data = se.BeforeWindowData
	}
	out := make([]attrvalue.Value, len(data))
	copy(out, data)
	return &Event{Timestamp: se.Timestamp, Data: out}
}

// Clone performs the deep-clone operation called for by spec §9 ("resolve
// by giving the complex-event type an explicit deep-clone operation");
// async junction dispatch clones once per subscriber so that each
// subscriber's chain can freely mutate its local copy (§4.2).
func (se *StreamEvent) Clone() *StreamEvent {
	if se == nil {
		return nil
	}
	clone := &StreamEvent{
		Timestamp:   se.Timestamp,
		Tag:         se.Tag,
		StreamIndex: se.StreamIndex,
	}
	clone.BeforeWindowData = cloneSlice(se.BeforeWindowData)
	clone.OnAfterWindowData = cloneSlice(se.OnAfterWindowData)
	clone.OutputData = cloneSlice(se.OutputData)
	return clone
}

func cloneSlice(s []attrvalue.Value) []attrvalue.Value {
	if s == nil {
		return nil
	}
	out := make([]attrvalue.Value, len(s))
	copy(out, s)
	return out
}

// CloneChunk deep-clones an entire linked chunk, preserving order.
func CloneChunk(head *StreamEvent) *StreamEvent {
	if head == nil {
		return nil
	}
	var chunkHead, chunkTail *StreamEvent
	for cur := head; cur != nil; cur = cur.Next {
		c := cur.Clone()
		if chunkHead == nil {
			chunkHead = c
			chunkTail = c
		} else {
			chunkTail.Next = c
			chunkTail = c
		}
	}
	return chunkHead
}

// Chunk is a convenience builder/iterator for singly linked StreamEvent
// lists passed between processors.
type Chunk struct {
	Head, Tail *StreamEvent
	Len        int
}

func (c *Chunk) Append(se *StreamEvent) {
	if se == nil {
		return
	}
	if c.Head == nil {
		c.Head = se
		c.Tail = se
	} else {
		c.Tail.Next = se
		c.Tail = se
	}
	c.Len++
}

// AppendChunk splices another chunk's events onto the end of this one.
func (c *Chunk) AppendChunk(head *StreamEvent) {
	for cur := head; cur != nil; {
		next := cur.Next
		cur.Next = nil
		c.Append(cur)
		cur = next
	}
}

func (c *Chunk) Each(fn func(*StreamEvent)) {
	for cur := c.Head; cur != nil; cur = cur.Next {
		fn(cur)
	}
}

// wireStreamEvent is StreamEvent minus Next: a standalone buffer entry
// has no successor to carry, and dropping the pointer keeps the
// encoding flat instead of chasing a linked list.
type wireStreamEvent struct {
	Timestamp         int64
	Tag               Tag
	BeforeWindowData  []attrvalue.Value
	OnAfterWindowData []attrvalue.Value
	OutputData        []attrvalue.Value
	StreamIndex       int
}

// EncodeEvents serializes a plain slice of buffered StreamEvents (a
// window's retained rows, a join/pattern side's buffered events, ...)
// for snapshot.StateHolder.SerializeState implementations across the
// window, pattern and query packages.
func EncodeEvents(events []*StreamEvent) ([]byte, error) {
	wire := make([]wireStreamEvent, len(events))
	for i, se := range events {
		wire[i] = wireStreamEvent{
			Timestamp:         se.Timestamp,
			Tag:               se.Tag,
			BeforeWindowData:  se.BeforeWindowData,
			OnAfterWindowData: se.OnAfterWindowData,
			OutputData:        se.OutputData,
			StreamIndex:       se.StreamIndex,
		}
	}
	return json.Marshal(wire)
}

// DecodeEvents is EncodeEvents' inverse, used by
// snapshot.StateHolder.DeserializeState implementations.
func DecodeEvents(data []byte) ([]*StreamEvent, error) {
	var wire []wireStreamEvent
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	events := make([]*StreamEvent, len(wire))
	for i, w := range wire {
		events[i] = &StreamEvent{
			Timestamp:         w.Timestamp,
			Tag:               w.Tag,
			BeforeWindowData:  w.BeforeWindowData,
			OnAfterWindowData: w.OnAfterWindowData,
			OutputData:        w.OutputData,
			StreamIndex:       w.StreamIndex,
		}
	}
	return events, nil
}
