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

// Package processor defines the Processor chain contract (spec §4.3) that
// filter, window, select and the rate limiter all implement, and the
// runtime Context threaded through a query at compile time.
package processor

import (
	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/clock"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/scheduler"
)

// Mode reports how a processor relates incoming chunks to its output,
// mirroring the three processing modes named in spec §4.3.
type Mode int

const (
	// Default processors emit once per incoming chunk (filter, select).
	Default Mode = iota
	// Slide processors may emit more than once per incoming chunk, on
	// their own schedule (time-sliding windows).
	Slide
	// Batch processors buffer and emit only when a batch boundary closes
	// (lengthBatch/timeBatch windows).
	Batch
)

// Context carries the per-query runtime collaborators a processor needs at
// construction time: the application's shared clock/scheduler plus naming
// for diagnostics, mirroring how the teacher threads a
// SelectStreamSqlContext through its window constructors.
type Context struct {
	AppName   string
	QueryName string
	Clock     clock.Source
	Scheduler *scheduler.Scheduler
	// Stream is the input stream definition this side of the chain
	// consumes, used to resolve attribute names (sort keys, external
	// timestamp attributes) to BeforeWindowData indices at compile time.
	Stream *appdef.StreamDefinition
}

// ResolveAttr resolves name against ctx.Stream, defaulting to -1 (meaning
// "not found") when ctx or ctx.Stream is nil so callers can fail fast.
func (ctx *Context) ResolveAttr(name string) int {
	if ctx == nil || ctx.Stream == nil {
		return -1
	}
	return ctx.Stream.IndexOf(name)
}

// ComponentID names a stateful processor's snapshot.StateHolder identity
// as "{query_name}::{local_name}" (spec §4.9), with the consuming
// stream's id folded into local_name so the two sides of a join/pattern
// query — which share QueryName but not Stream — still get distinct ids.
func ComponentID(ctx *Context, kind string) string {
	var queryName, streamID string
	if ctx != nil {
		queryName = ctx.QueryName
		if ctx.Stream != nil {
			streamID = ctx.Stream.Id
		}
	}
	return queryName + "::" + kind + "::" + streamID
}

// Processor is one stage of a query's processing chain (spec §4.3):
// input_junction -> [filter?] -> [window?] -> select -> [rate-limiter?] -> output.
type Processor interface {
	// Process consumes a chunk of events, possibly mutating it, and
	// forwards the result (or a derived chunk) to Next.
	Process(chunk *event.Chunk)
	Next() Processor
	SetNext(next Processor)
	// CloneForNewQueryContext returns an independent copy of this
	// processor (and its fresh descendant chain) for a new query sharing
	// the same compiled definition, per spec §4.3's reuse rule.
	CloneForNewQueryContext(ctx *Context) Processor
	// IsStateful reports whether this processor holds state a snapshot
	// must capture (spec §4.9).
	IsStateful() bool
	ProcessingMode() Mode
}

// Base provides the Next/SetNext bookkeeping shared by every concrete
// processor so each only implements Process, CloneForNewQueryContext,
// IsStateful and ProcessingMode.
type Base struct {
	next Processor
}

func (b *Base) Next() Processor         { return b.next }
func (b *Base) SetNext(next Processor)  { b.next = next }

// Forward is a convenience for the common "pass the chunk on unchanged"
// tail call used by every leaf processor.
func (b *Base) Forward(chunk *event.Chunk) {
	if b.next != nil {
		b.next.Process(chunk)
	}
}
