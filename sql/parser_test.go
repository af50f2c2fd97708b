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

package sql

import (
	"os"
	"testing"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCreateStream(t *testing.T) {
	app, err := Parse("demo", `CREATE STREAM trades (symbol VARCHAR, price DOUBLE, volume BIGINT);`)
	require.NoError(t, err)

	def, ok := app.Streams["trades"]
	require.True(t, ok)
	require.Len(t, def.Attributes, 3)
	assert.Equal(t, appdef.Attribute{Name: "symbol", Type: attrvalue.TypeString}, def.Attributes[0])
	assert.Equal(t, appdef.Attribute{Name: "price", Type: attrvalue.TypeFloat64}, def.Attributes[1])
	assert.Equal(t, appdef.Attribute{Name: "volume", Type: attrvalue.TypeInt64}, def.Attributes[2])
}

func TestParseCreateTable(t *testing.T) {
	app, err := Parse("demo", `CREATE TABLE positions (symbol VARCHAR, qty INT, avg_price DOUBLE PRECISION);`)
	require.NoError(t, err)

	def, ok := app.Tables["positions"]
	require.True(t, ok)
	require.Len(t, def.Attributes, 3)
	assert.Equal(t, attrvalue.TypeInt32, def.Attributes[1].Type)
	assert.Equal(t, attrvalue.TypeFloat64, def.Attributes[2].Type)
}

func TestParseFilteredSelect(t *testing.T) {
	src := `
		CREATE STREAM trades (symbol VARCHAR, price DOUBLE, volume BIGINT);
		SELECT symbol, price FROM trades WHERE price > 10 AND symbol = 'IBM';
	`
	app, err := Parse("demo", src)
	require.NoError(t, err)
	require.Len(t, app.Queries, 1)

	q := app.Queries[0]
	assert.Equal(t, appdef.InputSingle, q.Input.Kind)
	assert.Equal(t, "trades", q.Input.Stream)
	assert.Equal(t, `price > 10 AND symbol = "IBM"`, q.Filter)
	require.Len(t, q.Selector.Fields, 2)
	assert.Equal(t, "symbol", q.Selector.Fields[0].Expr)
	assert.Equal(t, "price", q.Selector.Fields[1].Expr)
	assert.Equal(t, appdef.ActionReturn, q.Output.Kind)
}

func TestParseGroupByAggregateHaving(t *testing.T) {
	src := `CREATE STREAM trades (symbol VARCHAR, volume BIGINT);
		SELECT symbol, sum(volume) AS total FROM trades
		GROUP BY symbol HAVING sum(volume) > 100 ORDER BY total DESC LIMIT 5 OFFSET 1;`
	app, err := Parse("demo", src)
	require.NoError(t, err)

	q := app.Queries[0]
	assert.Equal(t, []string{"symbol"}, q.Selector.GroupBy)
	assert.Equal(t, `sum(volume) > 100`, q.Selector.Having)
	require.Len(t, q.Selector.OrderBy, 1)
	assert.True(t, q.Selector.OrderBy[0].Desc)
	assert.Equal(t, 5, q.Selector.Limit)
	assert.Equal(t, 1, q.Selector.Offset)
	require.Len(t, q.Selector.Fields, 2)
	assert.Equal(t, "total", q.Selector.Fields[1].Alias)
}

func TestParseJoinQuery(t *testing.T) {
	src := `CREATE STREAM orders (symbol VARCHAR, order_id BIGINT, qty INT);
		CREATE STREAM fills (fill_order_id BIGINT);
		SELECT symbol FROM orders o LEFT JOIN fills f ON order_id = fill_order_id WHERE qty > 0;`
	app, err := Parse("demo", src)
	require.NoError(t, err)

	q := app.Queries[0]
	require.Equal(t, appdef.InputJoin, q.Input.Kind)
	assert.Equal(t, "orders", q.Input.LeftStream)
	assert.Equal(t, "fills", q.Input.RightStream)
	assert.Equal(t, appdef.JoinLeftOuter, q.Input.JoinKind)
	assert.Equal(t, "order_id = fill_order_id", q.Input.OnExpr)
}

func TestParseWindowVariants(t *testing.T) {
	cases := []struct {
		clause string
		want   appdef.WindowDefinition
	}{
		{"TUMBLING(INTERVAL 5 SECOND)", appdef.WindowDefinition{Kind: appdef.WindowTimeBatch, Duration: 5000}},
		{"SLIDING(INTERVAL 10 SECOND, INTERVAL 2 SECOND)", appdef.WindowDefinition{Kind: appdef.WindowTime, Duration: 10000}},
		{"LENGTH(100)", appdef.WindowDefinition{Kind: appdef.WindowLength, Length: 100}},
		{"SESSION(INTERVAL 30 SECOND)", appdef.WindowDefinition{Kind: appdef.WindowSession, Duration: 30000}},
	}
	for _, c := range cases {
		src := "CREATE STREAM trades (symbol VARCHAR); SELECT symbol FROM trades WINDOW " + c.clause + ";"
		app, err := Parse("demo", src)
		require.NoError(t, err, c.clause)
		win := app.Queries[0].Input.Window
		require.NotNil(t, win, c.clause)
		assert.Equal(t, c.want.Kind, win.Kind, c.clause)
		assert.Equal(t, c.want.Duration, win.Duration, c.clause)
		assert.Equal(t, c.want.Length, win.Length, c.clause)
	}
}

func TestParseInsertIntoStream(t *testing.T) {
	src := `
		CREATE STREAM trades (symbol VARCHAR, price DOUBLE, volume BIGINT);
		CREATE STREAM alerts (symbol VARCHAR);
		INSERT INTO alerts SELECT symbol FROM trades WHERE price > 100;
	`
	app, err := Parse("demo", src)
	require.NoError(t, err)
	require.Len(t, app.Queries, 1)
	assert.Equal(t, appdef.ActionInsertStream, app.Queries[0].Output.Kind)
	assert.Equal(t, "alerts", app.Queries[0].Output.Target)
}

func TestParseInsertIntoTable(t *testing.T) {
	src := `
		CREATE STREAM trades (symbol VARCHAR, price DOUBLE, volume BIGINT);
		CREATE TABLE positions (symbol VARCHAR, total BIGINT);
		INSERT INTO positions SELECT symbol, sum(volume) AS total FROM trades GROUP BY symbol;
	`
	app, err := Parse("demo", src)
	require.NoError(t, err)
	assert.Equal(t, appdef.ActionInsertTable, app.Queries[0].Output.Kind)
	assert.Equal(t, "positions", app.Queries[0].Output.Target)
}

func TestParseEnvVarSubstitution(t *testing.T) {
	require.NoError(t, os.Setenv("EVENTFLUX_TEST_THRESHOLD", "42"))
	defer os.Unsetenv("EVENTFLUX_TEST_THRESHOLD")

	src := `CREATE STREAM trades (symbol VARCHAR, price DOUBLE); SELECT symbol FROM trades WHERE price > ${EVENTFLUX_TEST_THRESHOLD};`
	app, err := Parse("demo", src)
	require.NoError(t, err)
	assert.Equal(t, `price > "42"`, app.Queries[0].Filter)
}

func TestParseEnvVarMissingReportsPosition(t *testing.T) {
	_, err := Parse("demo", `SELECT symbol FROM trades WHERE price > ${NOT_SET_EVER};`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_SET_EVER")
	assert.Contains(t, err.Error(), "sql:1:")
}

func TestParseStripsComments(t *testing.T) {
	src := `
		-- a line comment
		CREATE STREAM trades (symbol VARCHAR /* inline */, price DOUBLE);
		SELECT symbol FROM trades; -- trailing
	`
	app, err := Parse("demo", src)
	require.NoError(t, err)
	require.Contains(t, app.Streams, "trades")
	require.Len(t, app.Queries, 1)
}

func TestParseUnknownColumnTypeErrors(t *testing.T) {
	_, err := Parse("demo", `CREATE STREAM bad (x BLOB);`)
	require.Error(t, err)
}

func TestParseRejectsUnknownStream(t *testing.T) {
	_, err := Parse("demo", `SELECT symbol FROM missing;`)
	require.Error(t, err)
}
