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

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/clock"
	"github.com/eventflux/eventflux/junction"
	"github.com/eventflux/eventflux/pattern"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/scheduler"
	"github.com/eventflux/eventflux/table"
	"github.com/eventflux/eventflux/window"
)

// Env bundles the application-wide collaborators a query compiles
// against: the declared streams/tables, the junctions already created
// for every stream (query.go never creates a junction itself — that is
// the runtime's job, spec §4.2), the table backends, and the shared
// clock/scheduler (spec §4.8).
type Env struct {
	AppName   string
	Streams   map[string]*appdef.StreamDefinition
	Tables    map[string]*appdef.TableDefinition
	TableData map[string]table.Table
	Junctions map[string]*junction.Junction
	Clock     clock.Source
	Scheduler *scheduler.Scheduler
}

// Entry is one subscription point a compiled query needs wired onto a
// stream's junction.
type Entry struct {
	StreamID string
	Proc     processor.Processor
}

// Compiled is the result of compiling one appdef.Query: one or two entry
// processors to subscribe on their source junction(s), plus the output
// processor at the tail of the chain (exposed so the runtime can attach
// an AddCallback hook, spec §6).
type Compiled struct {
	Query   *appdef.Query
	Entries []Entry
	Output  *outputProcessor
}

// Compile wires one query into a Processor chain rooted at its input
// junction(s): input_junction -> [filter?] -> [window?] ->
// [pattern/join side-entry?] -> select -> [rate-limiter?] -> output
// (spec §4.3).
func Compile(q *appdef.Query, env *Env) (*Compiled, error) {
	switch q.Input.Kind {
	case appdef.InputSingle:
		return compileSingle(q, env)
	case appdef.InputJoin:
		return compileTwoSided(q, env)
	case appdef.InputPattern, appdef.InputSeq:
		return compileTwoSided(q, env)
	default:
		return nil, fmt.Errorf("query: unknown input kind %q", q.Input.Kind)
	}
}

func lookupStream(env *Env, id string) (*appdef.StreamDefinition, error) {
	d, ok := env.Streams[id]
	if !ok {
		return nil, fmt.Errorf("query: unknown stream %q", id)
	}
	return d, nil
}

func compileSingle(q *appdef.Query, env *Env) (*Compiled, error) {
	streamDef, err := lookupStream(env, q.Input.Stream)
	if err != nil {
		return nil, err
	}
	ctx := &processor.Context{AppName: env.AppName, QueryName: q.Name, Clock: env.Clock, Scheduler: env.Scheduler, Stream: streamDef}

	var head, tail processor.Processor
	link := func(p processor.Processor) {
		if head == nil {
			head = p
		} else {
			tail.SetNext(p)
		}
		tail = p
	}

	if q.Filter != "" {
		f, err := newFilterProcessor(q.Filter, streamDef)
		if err != nil {
			return nil, err
		}
		link(f)
	}
	if q.Input.Window != nil {
		w, err := window.New(q.Input.Window, ctx)
		if err != nil {
			return nil, err
		}
		link(w)
	}

	compiled, err := finishChain(q, streamDef, env, link)
	if err != nil {
		return nil, err
	}
	if head == nil {
		head = compiled.Entries[0].Proc
	}
	compiled.Entries = []Entry{{StreamID: q.Input.Stream, Proc: head}}
	return compiled, nil
}

// finishChain appends select -> [rate-limiter?] -> output onto whatever
// filter/window/pattern stages the caller already linked via link, and
// returns the Compiled result. rowDef describes the row shape arriving at
// the select stage. If nothing was linked yet (no filter/window), the
// select processor itself becomes the returned single Entry's Proc; the
// caller is expected to overwrite Entries when it already built one.
func finishChain(q *appdef.Query, rowDef *appdef.StreamDefinition, env *Env, link func(processor.Processor)) (*Compiled, error) {
	cs, err := compileSelector(&q.Selector, rowDef)
	if err != nil {
		return nil, err
	}
	sel := newSelectProcessor(q.Name+"::select", cs, rowDef)
	link(sel)

	if q.RateLimit.Mode != appdef.RateLimitNone {
		link(newRateLimitProcessor(q.RateLimit, env.Scheduler))
	}

	outRowDef := outputRowDef(q.Name+"_out", cs)
	var targetJunction *junction.Junction
	var targetTable table.Table
	switch q.Output.Kind {
	case appdef.ActionInsertStream:
		targetJunction = env.Junctions[q.Output.Target]
	case appdef.ActionInsertTable, appdef.ActionUpdateTable, appdef.ActionDeleteTable:
		targetTable = env.TableData[q.Output.Target]
	}
	out, err := newOutputProcessor(q.Output, outRowDef, targetJunction, targetTable)
	if err != nil {
		return nil, err
	}
	link(out)

	return &Compiled{Query: q, Entries: []Entry{{Proc: sel}}, Output: out}, nil
}

// compileTwoSided handles join/pattern/sequence/logical queries, whose
// input side is two independent entry processors sharing one downstream
// chain (spec §4.7): each side's own filter/window feeds its half of the
// join/pattern state machine, and both halves forward into the very same
// select processor instance.
func compileTwoSided(q *appdef.Query, env *Env) (*Compiled, error) {
	spec := q.Input
	var leftID, rightID string
	switch spec.Kind {
	case appdef.InputJoin:
		leftID, rightID = spec.LeftStream, spec.RightStream
	default:
		leftID, rightID = spec.FirstStream, spec.SecondStream
	}

	leftDef, err := lookupStream(env, leftID)
	if err != nil {
		return nil, err
	}
	var rightDef *appdef.StreamDefinition
	hasRight := rightID != "" && spec.Logical != "not"
	if hasRight {
		rightDef, err = lookupStream(env, rightID)
		if err != nil {
			return nil, err
		}
	}

	leftCtx := &processor.Context{AppName: env.AppName, QueryName: q.Name, Clock: env.Clock, Scheduler: env.Scheduler, Stream: leftDef}
	rightCtx := &processor.Context{AppName: env.AppName, QueryName: q.Name, Clock: env.Clock, Scheduler: env.Scheduler, Stream: rightDef}
	patternCtx := &processor.Context{AppName: env.AppName, QueryName: q.Name, Clock: env.Clock, Scheduler: env.Scheduler}

	firstProc, secondProc, err := pattern.New(&spec, leftDef, rightDef, patternCtx)
	if err != nil {
		return nil, err
	}

	leftHead, leftTail := chainPrefix(q.Filter, leftDef, spec.LeftWindow, leftCtx)
	if leftHead != nil {
		leftTail.SetNext(firstProc)
	} else {
		leftHead = firstProc
	}

	var rightHead processor.Processor
	if hasRight {
		var rightTail processor.Processor
		rightHead, rightTail = chainPrefix(q.Filter, rightDef, spec.RightWindow, rightCtx)
		if rightHead != nil {
			rightTail.SetNext(secondProc)
		} else {
			rightHead = secondProc
		}
	} else if secondProc != nil {
		rightHead = secondProc
	}

	rowDef := appdef.NewStreamDefinition(q.Name + "_row")
	for _, a := range leftDef.Attributes {
		rowDef.WithAttribute(a.Name, a.Type)
	}
	if hasRight {
		for _, a := range rightDef.Attributes {
			rowDef.WithAttribute(a.Name, a.Type)
		}
	}

	var tail processor.Processor
	link := func(p processor.Processor) {
		if tail != nil {
			tail.SetNext(p)
		} else {
			firstProc.SetNext(p)
			if rightHead != nil {
				secondProc.SetNext(p)
			}
		}
		tail = p
	}

	compiled, err := finishChain(q, rowDef, env, link)
	if err != nil {
		return nil, err
	}

	entries := []Entry{{StreamID: leftID, Proc: leftHead}}
	if rightHead != nil {
		entries = append(entries, Entry{StreamID: rightID, Proc: rightHead})
	}
	compiled.Entries = entries
	return compiled, nil
}

// chainPrefix builds the optional filter->window prefix for one side of a
// two-sided query; returns (nil, nil) if neither is configured.
func chainPrefix(filterClause string, streamDef *appdef.StreamDefinition, winDef *appdef.WindowDefinition, ctx *processor.Context) (head, tail processor.Processor) {
	link := func(p processor.Processor) {
		if head == nil {
			head = p
		} else {
			tail.SetNext(p)
		}
		tail = p
	}
	if filterClause != "" {
		f, err := newFilterProcessor(filterClause, streamDef)
		if err == nil {
			link(f)
		}
	}
	if winDef != nil {
		w, err := window.New(winDef, ctx)
		if err == nil {
			link(w)
		}
	}
	return head, tail
}
