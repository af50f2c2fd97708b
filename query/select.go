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

// Package query implements the select/group-by/having/order-by/limit
// operator (spec §4.4), the filter and output-action processors that flank
// it, the output rate limiter (spec §4.4), and the compiler that wires one
// appdef.Query into a Processor chain rooted at its input junction(s)
// (spec §4.3): input_junction -> [filter?] -> [window?] ->
// [pattern/join side-entry?] -> select -> [rate-limiter?] -> output.
package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/eventflux/eventflux/aggregator"
	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/expr"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/snapshot"
)

func aggSlotName(i int) string { return fmt.Sprintf("__agg%d", i) }

// aggPlan is one aggregate reference shared across every select field and
// the having clause: argExec extracts the value fed to ProcessAdd/Remove,
// template is cloned fresh per group (spec §4.4 step 2).
type aggPlan struct {
	argExec  expr.Executor
	template aggregator.Aggregator
}

type fieldPlan struct {
	alias string
	exec  expr.Executor
}

type orderPlan struct {
	exec expr.Executor
	desc bool
}

// compiledSelector is the prepared form of an appdef.Selector against a
// fixed input row shape.
type compiledSelector struct {
	aggs      []aggPlan
	groupBy   []expr.Executor
	fields    []fieldPlan
	having    expr.Executor
	orderBy   []orderPlan
	limit     int
	offset    int
}

// compileSelector parses and compiles sel against rowDef, the flat
// attribute shape arriving at the select stage (spec §4.4: for
// single-stream queries this is the stream's own definition; for
// join/pattern/sequence queries it is the concatenated left+right row —
// see compileTwoSided in query.go). Aggregate function calls anywhere in a
// field or the having clause are rewritten to reference a synthetic
// "__aggN" attribute (aggregate_rewrite.go) resolved through a meta whose
// left side is those N aggregate slots and whose right side is rowDef, so
// ordinary variable resolution (expr/meta.go) serves both without any
// change to the expr package itself.
func compileSelector(sel *appdef.Selector, rowDef *appdef.StreamDefinition) (*compiledSelector, error) {
	cs := &compiledSelector{limit: sel.Limit, offset: sel.Offset}

	extract := func(fc expr.FuncCall) (int, error) {
		t, ok := aggregatorNames[strings.ToLower(fc.Name)]
		if !ok {
			return 0, fmt.Errorf("query: unknown aggregate function %q", fc.Name)
		}
		var argExec expr.Executor
		var err error
		if len(fc.Args) == 0 {
			argExec, _ = expr.Compile(expr.Constant{Value: int64(1)}, nil)
		} else {
			argExec, err = expr.Compile(fc.Args[0], expr.NewMetaStreamEvent(rowDef))
			if err != nil {
				return 0, fmt.Errorf("query: aggregate %s argument: %w", fc.Name, err)
			}
		}
		inst, err := aggregator.New(t)
		if err != nil {
			return 0, err
		}
		inst.Init(argExec.ReturnType())
		idx := len(cs.aggs)
		cs.aggs = append(cs.aggs, aggPlan{argExec: argExec, template: inst})
		return idx, nil
	}

	type rewritten struct {
		node  expr.Node
		alias string
	}
	var fieldNodes []rewritten
	for _, f := range sel.Fields {
		root, err := expr.Parse(f.Expr)
		if err != nil {
			return nil, fmt.Errorf("query: select field %q: %w", f.Expr, err)
		}
		rn, err := rewriteAggs(root, extract)
		if err != nil {
			return nil, err
		}
		alias := f.Alias
		if alias == "" {
			alias = f.Expr
		}
		fieldNodes = append(fieldNodes, rewritten{rn, alias})
	}

	var havingNode expr.Node
	if sel.Having != "" {
		root, err := expr.Parse(sel.Having)
		if err != nil {
			return nil, fmt.Errorf("query: having clause: %w", err)
		}
		havingNode, err = rewriteAggs(root, extract)
		if err != nil {
			return nil, err
		}
	}

	type orderNode struct {
		node expr.Node
		desc bool
	}
	var orderNodes []orderNode
	for _, o := range sel.OrderBy {
		root, err := expr.Parse(o.Expr)
		if err != nil {
			return nil, fmt.Errorf("query: order by %q: %w", o.Expr, err)
		}
		rn, err := rewriteAggs(root, extract)
		if err != nil {
			return nil, err
		}
		orderNodes = append(orderNodes, orderNode{rn, o.Desc})
	}

	// Every aggregate reference across fields/having/order-by has now been
	// assigned a slot; build the combined meta once cs.aggs is final.
	aggDef := appdef.NewStreamDefinition("__agg_row")
	for i, a := range cs.aggs {
		aggDef.WithAttribute(aggSlotName(i), a.template.ReturnType())
	}
	combinedMeta := expr.NewMetaStreamEvent(aggDef).WithRight(rowDef)

	for _, fn := range fieldNodes {
		ex, err := expr.Compile(fn.node, combinedMeta)
		if err != nil {
			return nil, fmt.Errorf("query: select field %q: %w", fn.alias, err)
		}
		cs.fields = append(cs.fields, fieldPlan{alias: fn.alias, exec: ex})
	}

	if havingNode != nil {
		ex, err := expr.Compile(havingNode, combinedMeta)
		if err != nil {
			return nil, fmt.Errorf("query: having clause: %w", err)
		}
		cs.having = ex
	}

	for _, on := range orderNodes {
		ex, err := expr.Compile(on.node, combinedMeta)
		if err != nil {
			return nil, err
		}
		cs.orderBy = append(cs.orderBy, orderPlan{exec: ex, desc: on.desc})
	}

	for _, g := range sel.GroupBy {
		root, err := expr.Parse(g)
		if err != nil {
			return nil, fmt.Errorf("query: group by %q: %w", g, err)
		}
		ex, err := expr.Compile(root, expr.NewMetaStreamEvent(rowDef))
		if err != nil {
			return nil, fmt.Errorf("query: group by %q: %w", g, err)
		}
		cs.groupBy = append(cs.groupBy, ex)
	}

	return cs, nil
}

// groupState is one GROUP BY bucket's independent aggregator instances
// (spec §4.4 step 2: "a fresh Aggregator clone per group").
type groupState struct {
	aggs []aggregator.Aggregator
}

func newGroupState(cs *compiledSelector) *groupState {
	g := &groupState{aggs: make([]aggregator.Aggregator, len(cs.aggs))}
	for i, a := range cs.aggs {
		g.aggs[i] = a.template.Clone()
	}
	return g
}

// selectProcessor is the spec §4.4 select/group-by/having/order-by/limit
// stage: one per query, stateful whenever it carries aggregates or a
// GROUP BY (spec §4.9 snapshot scope).
type selectProcessor struct {
	processor.Base
	id     string
	cs     *compiledSelector
	rowDef *appdef.StreamDefinition

	mu     sync.Mutex
	groups map[string]*groupState
	snapshot.FullReplaceChangelog
}

func newSelectProcessor(id string, cs *compiledSelector, rowDef *appdef.StreamDefinition) *selectProcessor {
	p := &selectProcessor{id: id, cs: cs, rowDef: rowDef, groups: map[string]*groupState{}}
	p.Holder = p
	return p
}

func (p *selectProcessor) ComponentID() string                  { return p.id }
func (p *selectProcessor) SchemaVersion() snapshot.SchemaVersion { return snapshot.SchemaVersion{Major: 1} }
func (p *selectProcessor) AccessPattern() snapshot.AccessPattern { return snapshot.Random }

type wireGroupState struct {
	Aggs [][]byte
}

// SerializeState persists every GROUP BY bucket's aggregator accumulators.
// The templates in cs.aggs (types and argument expressions) are rebuilt at
// compile time, so only the per-group running state needs to survive.
func (p *selectProcessor) SerializeState() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	wire := make(map[string]wireGroupState, len(p.groups))
	for key, g := range p.groups {
		aggs := make([][]byte, len(g.aggs))
		for i, a := range g.aggs {
			b, err := a.SerializeState()
			if err != nil {
				return nil, err
			}
			aggs[i] = b
		}
		wire[key] = wireGroupState{Aggs: aggs}
	}
	return json.Marshal(wire)
}

func (p *selectProcessor) DeserializeState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var wire map[string]wireGroupState
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	groups := make(map[string]*groupState, len(wire))
	for key, w := range wire {
		g := newGroupState(p.cs)
		for i, b := range w.Aggs {
			if i >= len(g.aggs) {
				break
			}
			if err := g.aggs[i].DeserializeState(b); err != nil {
				return err
			}
		}
		groups[key] = g
	}
	p.mu.Lock()
	p.groups = groups
	p.mu.Unlock()
	return nil
}

func (p *selectProcessor) EstimateSize() snapshot.SizeEstimate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return snapshot.SizeEstimate{Entries: len(p.groups)}
}

func (p *selectProcessor) groupKey(se *event.StreamEvent) string {
	if len(p.cs.groupBy) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ex := range p.cs.groupBy {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(attrvalue.AsString(ex.Execute(se)))
	}
	return b.String()
}

func (p *selectProcessor) Process(chunk *event.Chunk) {
	out := &event.Chunk{}
	p.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		key := p.groupKey(se)
		g, ok := p.groups[key]
		if !ok {
			g = newGroupState(p.cs)
			p.groups[key] = g
		}

		switch se.Tag {
		case event.Reset:
			for _, a := range g.aggs {
				a.Reset()
			}
			fallthrough
		case event.Current:
			for i, plan := range p.cs.aggs {
				g.aggs[i].ProcessAdd(plan.argExec.Execute(se))
			}
		case event.Expired:
			for i, plan := range p.cs.aggs {
				g.aggs[i].ProcessRemove(plan.argExec.Execute(se))
			}
		default:
			return
		}

		row := p.project(se, g)
		if row == nil {
			return
		}
		row.Tag = se.Tag
		out.Append(row)
	})
	p.mu.Unlock()

	if out.Len == 0 {
		return
	}
	out = p.applyOrderLimit(out)
	if out.Len > 0 {
		p.Forward(out)
	}
}

// project builds the synthetic combined-meta row (aggregate slot results
// ++ the underlying input row), evaluates having, and if it passes
// computes the output row's projected columns. The returned row keeps the
// combined row as its BeforeWindowData so ORDER BY keys, compiled against
// the same combined meta, can be evaluated on it.
func (p *selectProcessor) project(se *event.StreamEvent, g *groupState) *event.StreamEvent {
	combined := se.Clone()
	combined.BeforeWindowData = append(aggResults(g), se.BeforeWindowData...)

	if p.cs.having != nil {
		v := p.cs.having.Execute(combined)
		ok, valid := attrvalue.AsBool(v)
		if !valid || !ok {
			return nil
		}
	}

	out := make([]attrvalue.Value, len(p.cs.fields))
	for i, f := range p.cs.fields {
		out[i] = f.exec.Execute(combined)
	}
	return &event.StreamEvent{Timestamp: se.Timestamp, BeforeWindowData: combined.BeforeWindowData, OutputData: out}
}

func aggResults(g *groupState) []attrvalue.Value {
	out := make([]attrvalue.Value, len(g.aggs))
	for i, a := range g.aggs {
		out[i] = a.Result()
	}
	return out
}

// applyOrderLimit sorts and slices a single emitted chunk per sel's
// ORDER BY/LIMIT/OFFSET. Ordering is scoped to the chunk currently being
// emitted rather than the full query history (spec's order-by is a
// supplemented SQL convenience, not a windowing primitive in its own
// right; a resolved Open Question recorded in DESIGN.md).
func (p *selectProcessor) applyOrderLimit(chunk *event.Chunk) *event.Chunk {
	if len(p.cs.orderBy) == 0 && p.cs.limit == 0 && p.cs.offset == 0 {
		return chunk
	}
	rows := make([]*event.StreamEvent, 0, chunk.Len)
	chunk.Each(func(se *event.StreamEvent) { rows = append(rows, se) })

	if len(p.cs.orderBy) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, ob := range p.cs.orderBy {
				vi, vj := ob.exec.Execute(rows[i]), ob.exec.Execute(rows[j])
				fi, oki := attrvalue.AsFloat64(vi)
				fj, okj := attrvalue.AsFloat64(vj)
				var less, greater bool
				if oki && okj {
					less, greater = fi < fj, fi > fj
				} else {
					si, sj := attrvalue.AsString(vi), attrvalue.AsString(vj)
					less, greater = si < sj, si > sj
				}
				if ob.desc {
					less, greater = greater, less
				}
				if less {
					return true
				}
				if greater {
					return false
				}
			}
			return false
		})
	}

	if p.cs.offset > 0 {
		if p.cs.offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[p.cs.offset:]
		}
	}
	if p.cs.limit > 0 && len(rows) > p.cs.limit {
		rows = rows[:p.cs.limit]
	}

	out := &event.Chunk{}
	for _, r := range rows {
		r.Next = nil
		out.Append(r)
	}
	return out
}

func (p *selectProcessor) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newSelectProcessor(p.id, p.cs, p.rowDef)
}

func (p *selectProcessor) IsStateful() bool { return len(p.cs.aggs) > 0 || len(p.cs.groupBy) > 0 }
func (p *selectProcessor) ProcessingMode() processor.Mode { return processor.Default }
