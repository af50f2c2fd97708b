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
)

func TestSelectProjectsPlainFields(t *testing.T) {
	stream := tradeStream()
	cs, err := compileSelector(&appdef.Selector{
		Fields: []appdef.SelectField{{Expr: "symbol", Alias: "sym"}, {Expr: "price", Alias: "px"}},
	}, stream)
	require.NoError(t, err)
	sel := newSelectProcessor("q::select", cs, stream)
	cap := &capture{}
	sel.SetNext(cap)

	sel.Process(chunkOf(row(1, "IBM", 15.5, int64(100))))

	got := cap.all()
	require.Len(t, got, 1)
	assert.Equal(t, "IBM", got[0].OutputData[0].Raw)
	assert.Equal(t, 15.5, got[0].OutputData[1].Raw)
}

func TestSelectAggregateSum(t *testing.T) {
	stream := tradeStream()
	cs, err := compileSelector(&appdef.Selector{
		Fields: []appdef.SelectField{{Expr: "symbol", Alias: "sym"}, {Expr: "sum(volume)", Alias: "total"}},
		GroupBy: []string{"symbol"},
	}, stream)
	require.NoError(t, err)
	sel := newSelectProcessor("q::select", cs, stream)
	cap := &capture{}
	sel.SetNext(cap)

	sel.Process(chunkOf(
		row(1, "IBM", 15.0, int64(100)),
		row(2, "IBM", 16.0, int64(50)),
		row(3, "GOOG", 100.0, int64(10)),
	))

	got := cap.all()
	require.Len(t, got, 3)
	assert.Equal(t, "IBM", got[0].OutputData[0].Raw)
	assert.EqualValues(t, 100, got[0].OutputData[1].Raw)
	assert.EqualValues(t, 150, got[1].OutputData[1].Raw)
	assert.Equal(t, "GOOG", got[2].OutputData[0].Raw)
	assert.EqualValues(t, 10, got[2].OutputData[1].Raw)
}

func TestSelectHavingFiltersGroups(t *testing.T) {
	stream := tradeStream()
	cs, err := compileSelector(&appdef.Selector{
		Fields:  []appdef.SelectField{{Expr: "symbol", Alias: "sym"}, {Expr: "sum(volume)", Alias: "total"}},
		GroupBy: []string{"symbol"},
		Having:  "sum(volume) > 60",
	}, stream)
	require.NoError(t, err)
	sel := newSelectProcessor("q::select", cs, stream)
	cap := &capture{}
	sel.SetNext(cap)

	sel.Process(chunkOf(
		row(1, "IBM", 15.0, int64(100)),
		row(2, "GOOG", 100.0, int64(10)),
	))

	got := cap.all()
	require.Len(t, got, 1)
	assert.Equal(t, "IBM", got[0].OutputData[0].Raw)
}

func TestSelectOrderByLimit(t *testing.T) {
	stream := tradeStream()
	cs, err := compileSelector(&appdef.Selector{
		Fields:  []appdef.SelectField{{Expr: "symbol", Alias: "sym"}, {Expr: "price", Alias: "px"}},
		OrderBy: []appdef.OrderByItem{{Expr: "price", Desc: true}},
		Limit:   1,
	}, stream)
	require.NoError(t, err)
	sel := newSelectProcessor("q::select", cs, stream)
	cap := &capture{}
	sel.SetNext(cap)

	sel.Process(chunkOf(
		row(1, "IBM", 15.0, int64(100)),
		row(2, "GOOG", 100.0, int64(10)),
	))

	got := cap.all()
	require.Len(t, got, 1)
	assert.Equal(t, "GOOG", got[0].OutputData[0].Raw)
}

func TestSelectCountStar(t *testing.T) {
	stream := tradeStream()
	cs, err := compileSelector(&appdef.Selector{
		Fields: []appdef.SelectField{{Expr: "count()", Alias: "n"}},
	}, stream)
	require.NoError(t, err)
	sel := newSelectProcessor("q::select", cs, stream)
	cap := &capture{}
	sel.SetNext(cap)

	sel.Process(chunkOf(row(1, "IBM", 15.0, int64(100)), row(2, "IBM", 16.0, int64(50))))

	got := cap.all()
	require.Len(t, got, 2)
	assert.EqualValues(t, 2, got[1].OutputData[0].Raw)
}
