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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/junction"
	"github.com/eventflux/eventflux/table"
)

func outRowDefFor(cs *compiledSelector) *appdef.StreamDefinition {
	return outputRowDef("out", cs)
}

func TestOutputInsertStreamPublishesToJunction(t *testing.T) {
	stream := tradeStream()
	cs, err := compileSelector(&appdef.Selector{
		Fields: []appdef.SelectField{{Expr: "symbol", Alias: "sym"}},
	}, stream)
	require.NoError(t, err)
	outDef := outRowDefFor(cs)

	j := junction.New("alerts", false, junction.OnErrorLog)
	var received []*event.Chunk
	j.Subscribe(junction.SubscriberFunc(func(c *event.Chunk) { received = append(received, c) }))

	out, err := newOutputProcessor(appdef.OutputAction{Kind: appdef.ActionInsertStream, Target: "alerts"}, outDef, j, nil)
	require.NoError(t, err)

	se := &event.StreamEvent{Timestamp: 1, Tag: event.Current, OutputData: []attrvalue.Value{attrvalue.Of("IBM")}}
	out.Process(chunkOf(se))

	require.Len(t, received, 1)
	var got []*event.StreamEvent
	received[0].Each(func(e *event.StreamEvent) { got = append(got, e) })
	require.Len(t, got, 1)
	assert.Equal(t, "IBM", got[0].BeforeWindowData[0].Raw)
}

func TestOutputInsertTable(t *testing.T) {
	stream := tradeStream()
	cs, err := compileSelector(&appdef.Selector{
		Fields: []appdef.SelectField{{Expr: "symbol", Alias: "sym"}},
	}, stream)
	require.NoError(t, err)
	outDef := outRowDefFor(cs)

	tbl := table.NewMemory(nil)
	out, err := newOutputProcessor(appdef.OutputAction{Kind: appdef.ActionInsertTable, Target: "positions"}, outDef, nil, tbl)
	require.NoError(t, err)

	se := &event.StreamEvent{Timestamp: 1, Tag: event.Current, OutputData: []attrvalue.Value{attrvalue.Of("IBM")}}
	out.Process(chunkOf(se))

	rows := tbl.Find(func([]attrvalue.Value) bool { return true })
	require.Len(t, rows, 1)
	assert.Equal(t, "IBM", rows[0][0].Raw)
}

func TestOutputCallbackAlwaysInvoked(t *testing.T) {
	stream := tradeStream()
	cs, err := compileSelector(&appdef.Selector{
		Fields: []appdef.SelectField{{Expr: "symbol", Alias: "sym"}},
	}, stream)
	require.NoError(t, err)
	outDef := outRowDefFor(cs)

	out, err := newOutputProcessor(appdef.OutputAction{Kind: appdef.ActionReturn}, outDef, nil, nil)
	require.NoError(t, err)

	var seen []string
	out.Callback = func(e *event.Event) {
		seen = append(seen, e.Data[0].Raw.(string))
	}

	se := &event.StreamEvent{Timestamp: 1, Tag: event.Current, OutputData: []attrvalue.Value{attrvalue.Of("IBM")}}
	out.Process(chunkOf(se))

	require.Len(t, seen, 1)
	assert.Equal(t, "IBM", seen[0])
}
