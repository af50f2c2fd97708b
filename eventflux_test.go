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

package eventflux

import (
	"sync"
	"testing"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *appdef.Application {
	app, err := sql.Parse("test", src)
	require.NoError(t, err)
	return app
}

func TestCreateRuntimeAndPublishReturnsCallback(t *testing.T) {
	app := mustParse(t, `
		CREATE STREAM trades (symbol VARCHAR, price DOUBLE, volume BIGINT);
		SELECT symbol, price FROM trades WHERE price > 10;
	`)

	rt, err := CreateRuntime(app)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	defer rt.Shutdown()

	var mu sync.Mutex
	var got []*event.Event
	unsubscribe, err := rt.AddCallback("query_1", func(e *event.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	require.NoError(t, err)
	defer unsubscribe()

	handler, err := rt.InputHandler("trades")
	require.NoError(t, err)

	handler.Send(event.NewEvent(attrvalue.Of("IBM"), attrvalue.Of(12.5), attrvalue.Of(int64(100))))
	handler.Send(event.NewEvent(attrvalue.Of("AAPL"), attrvalue.Of(5.0), attrvalue.Of(int64(50))))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, "IBM", attrvalue.AsString(got[0].Data[0]))
}

func TestCreateRuntimeRejectsDoubleStart(t *testing.T) {
	app := mustParse(t, `
		CREATE STREAM trades (symbol VARCHAR, price DOUBLE, volume BIGINT);
		SELECT symbol FROM trades;
	`)
	rt, err := CreateRuntime(app)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	defer rt.Shutdown()
	require.Error(t, rt.Start())
}

func TestAddCallbackUnknownIDFails(t *testing.T) {
	app := mustParse(t, `
		CREATE STREAM trades (symbol VARCHAR);
		SELECT symbol FROM trades;
	`)
	rt, err := CreateRuntime(app)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	defer rt.Shutdown()

	_, err = rt.AddCallback("nope", func(*event.Event) {})
	require.Error(t, err)
}

func TestPersistAndRestoreRoundTrip(t *testing.T) {
	app := mustParse(t, `
		CREATE STREAM trades (symbol VARCHAR, price DOUBLE);
		SELECT symbol FROM trades;
	`)
	rt, err := CreateRuntime(app)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	defer rt.Shutdown()

	revID, err := rt.Persist()
	require.NoError(t, err)
	require.NotEmpty(t, revID)
	require.NoError(t, rt.Restore(revID))
}

// TestPersistAndRestoreCapturesGroupState exercises the StateHolder
// wiring end to end: a GROUP BY query's per-group aggregator accumulator
// must roll back to the persisted count on Restore, not keep whatever
// arrived afterward.
func TestPersistAndRestoreCapturesGroupState(t *testing.T) {
	app := mustParse(t, `
		CREATE STREAM trades (symbol VARCHAR);
		SELECT symbol, count() AS cnt FROM trades GROUP BY symbol;
	`)
	rt, err := CreateRuntime(app)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	defer rt.Shutdown()

	var mu sync.Mutex
	var lastCount int64
	_, err = rt.AddCallback("query_1", func(e *event.Event) {
		mu.Lock()
		defer mu.Unlock()
		n, _ := attrvalue.AsInt64(e.Data[1])
		lastCount = n
	})
	require.NoError(t, err)

	handler, err := rt.InputHandler("trades")
	require.NoError(t, err)
	handler.Send(event.NewEvent(attrvalue.Of("IBM")))
	handler.Send(event.NewEvent(attrvalue.Of("IBM")))

	revID, err := rt.Persist()
	require.NoError(t, err)

	handler.Send(event.NewEvent(attrvalue.Of("IBM")))
	handler.Send(event.NewEvent(attrvalue.Of("IBM")))
	mu.Lock()
	require.Equal(t, int64(4), lastCount)
	mu.Unlock()

	require.NoError(t, rt.Restore(revID))

	handler.Send(event.NewEvent(attrvalue.Of("IBM")))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(3), lastCount)
}

func TestStatsReportsZeroForIdleRuntime(t *testing.T) {
	app := mustParse(t, `
		CREATE STREAM trades (symbol VARCHAR);
		SELECT symbol FROM trades;
	`)
	rt, err := CreateRuntime(app)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	defer rt.Shutdown()

	stats := rt.Stats()
	require.Equal(t, 0, stats.StoredFailures)
}
