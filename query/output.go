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
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/expr"
	"github.com/eventflux/eventflux/junction"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/table"
)

// outputRowDef describes a select processor's OutputData row, built from
// the selector's field aliases so INSERT INTO/UPDATE/DELETE actions can
// resolve column names the same way filter/select do. Every column is
// typed Object since a field's runtime type can vary by group (e.g. a
// CASE expression); callers needing a concrete type cast explicitly.
func outputRowDef(id string, cs *compiledSelector) *appdef.StreamDefinition {
	d := appdef.NewStreamDefinition(id)
	for _, f := range cs.fields {
		d.WithAttribute(f.alias, attrvalue.TypeObject)
	}
	return d
}

// outputProcessor is the terminal stage of the chain (spec §4.4): routes
// a select processor's projected rows to their declared target per
// appdef.OutputAction.
type outputProcessor struct {
	processor.Base
	action appdef.OutputAction

	targetJunction *junction.Junction // insert_stream
	targetTable    table.Table        // insert/update/delete_table
	onExec         expr.Executor      // update/delete match condition, against outRowDef
	setExecs       map[string]expr.Executor
	outRowDef      *appdef.StreamDefinition

	// Callback receives every row this processor emits, regardless of
	// action kind, the supplemented path for Runtime.AddCallback
	// (SPEC_FULL.md §12).
	Callback func(*event.Event)
}

func newOutputProcessor(action appdef.OutputAction, outRowDef *appdef.StreamDefinition, targetJunction *junction.Junction, targetTable table.Table) (*outputProcessor, error) {
	p := &outputProcessor{
		action:         action,
		targetJunction: targetJunction,
		targetTable:    targetTable,
		outRowDef:      outRowDef,
		setExecs:       map[string]expr.Executor{},
	}
	meta := expr.NewMetaStreamEvent(outRowDef)
	if action.OnExpr != "" {
		ex, err := expr.CompileString(action.OnExpr, meta)
		if err != nil {
			return nil, fmt.Errorf("query: output on-clause: %w", err)
		}
		p.onExec = ex
	}
	for col, src := range action.SetExprs {
		ex, err := expr.CompileString(src, meta)
		if err != nil {
			return nil, fmt.Errorf("query: output set %s: %w", col, err)
		}
		p.setExecs[col] = ex
	}
	return p, nil
}

func (p *outputProcessor) Process(chunk *event.Chunk) {
	chunk.Each(func(se *event.StreamEvent) {
		if p.Callback != nil {
			p.Callback(se.ToEvent())
		}
		switch p.action.Kind {
		case appdef.ActionInsertStream:
			if p.targetJunction == nil {
				return
			}
			out := &event.Chunk{}
			ingress := event.FromEvent(se.ToEvent())
			ingress.Tag = se.Tag
			out.Append(ingress)
			p.targetJunction.Publish(out)
		case appdef.ActionInsertTable:
			if p.targetTable == nil {
				return
			}
			p.targetTable.Insert(se.OutputData)
		case appdef.ActionUpdateTable:
			if p.targetTable == nil {
				return
			}
			p.targetTable.Update(p.matches(se), p.apply(se))
		case appdef.ActionDeleteTable:
			if p.targetTable == nil {
				return
			}
			p.targetTable.Delete(p.matches(se))
		case appdef.ActionReturn:
			// Nothing further to route; the callback above already saw it.
		}
	})
	p.Forward(chunk)
}

func (p *outputProcessor) matches(trigger *event.StreamEvent) func([]attrvalue.Value) bool {
	return func(row []attrvalue.Value) bool {
		if p.onExec == nil {
			return true
		}
		probe := &event.StreamEvent{BeforeWindowData: row}
		v := p.onExec.Execute(probe)
		b, ok := attrvalue.AsBool(v)
		return ok && b
	}
}

func (p *outputProcessor) apply(trigger *event.StreamEvent) func([]attrvalue.Value) []attrvalue.Value {
	return func(row []attrvalue.Value) []attrvalue.Value {
		if len(p.setExecs) == 0 {
			return row
		}
		out := make([]attrvalue.Value, len(row))
		copy(out, row)
		probe := &event.StreamEvent{BeforeWindowData: trigger.OutputData}
		for col, ex := range p.setExecs {
			idx := p.outRowDef.IndexOf(col)
			if idx < 0 || idx >= len(out) {
				continue
			}
			out[idx] = ex.Execute(probe)
		}
		return out
	}
}

func (p *outputProcessor) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	clone := *p
	return &clone
}

func (p *outputProcessor) IsStateful() bool              { return false }
func (p *outputProcessor) ProcessingMode() processor.Mode { return processor.Default }
