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
	"github.com/eventflux/eventflux/clock"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/junction"
	"github.com/eventflux/eventflux/scheduler"
)

func TestCompileSingleStreamFilterAndSelect(t *testing.T) {
	stream := tradeStream()
	out := junction.New("highValueTrades", false, junction.OnErrorLog)
	var received []*event.StreamEvent
	out.Subscribe(junction.SubscriberFunc(func(c *event.Chunk) {
		c.Each(func(se *event.StreamEvent) { received = append(received, se) })
	}))

	env := &Env{
		AppName:   "test",
		Streams:   map[string]*appdef.StreamDefinition{"trades": stream},
		Junctions: map[string]*junction.Junction{"highValueTrades": out},
		Clock:     clock.System{},
		Scheduler: scheduler.New(clock.System{}),
	}

	q := &appdef.Query{
		Name:   "bigTrades",
		Input:  appdef.InputSpec{Kind: appdef.InputSingle, Stream: "trades"},
		Filter: "price > 10",
		Selector: appdef.Selector{
			Fields: []appdef.SelectField{{Expr: "symbol", Alias: "symbol"}, {Expr: "price", Alias: "price"}},
		},
		Output: appdef.OutputAction{Kind: appdef.ActionInsertStream, Target: "highValueTrades"},
	}

	compiled, err := Compile(q, env)
	require.NoError(t, err)
	require.Len(t, compiled.Entries, 1)
	assert.Equal(t, "trades", compiled.Entries[0].StreamID)

	entry := compiled.Entries[0].Proc
	entry.Process(chunkOf(row(1, "IBM", 15.0, int64(100)), row(2, "IBM", 5.0, int64(10))))

	require.Len(t, received, 1)
	assert.Equal(t, "IBM", received[0].BeforeWindowData[0].Raw)
	assert.Equal(t, 15.0, received[0].BeforeWindowData[1].Raw)
}

func TestCompileSingleStreamAggregateNoFilter(t *testing.T) {
	stream := tradeStream()
	env := &Env{
		AppName: "test",
		Streams: map[string]*appdef.StreamDefinition{"trades": stream},
	}

	q := &appdef.Query{
		Name:  "volumeBySymbol",
		Input: appdef.InputSpec{Kind: appdef.InputSingle, Stream: "trades"},
		Selector: appdef.Selector{
			Fields:  []appdef.SelectField{{Expr: "symbol", Alias: "symbol"}, {Expr: "sum(volume)", Alias: "total"}},
			GroupBy: []string{"symbol"},
		},
		Output: appdef.OutputAction{Kind: appdef.ActionReturn},
	}

	compiled, err := Compile(q, env)
	require.NoError(t, err)
	require.Len(t, compiled.Entries, 1)

	var seen []attrvalue.Value
	compiled.Output.Callback = func(e *event.Event) { seen = e.Data }

	compiled.Entries[0].Proc.Process(chunkOf(row(1, "IBM", 15.0, int64(100)), row(2, "IBM", 16.0, int64(50))))

	require.NotNil(t, seen)
	assert.EqualValues(t, 150, seen[1].Raw)
}
