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
	"github.com/eventflux/eventflux/processor"
)

type capture struct {
	processor.Base
	chunks []*event.Chunk
}

func (c *capture) Process(chunk *event.Chunk)                                          { c.chunks = append(c.chunks, chunk) }
func (c *capture) CloneForNewQueryContext(ctx *processor.Context) processor.Processor { return c }
func (c *capture) IsStateful() bool                                                    { return false }
func (c *capture) ProcessingMode() processor.Mode                                      { return processor.Default }

func (c *capture) all() []*event.StreamEvent {
	var out []*event.StreamEvent
	for _, ch := range c.chunks {
		ch.Each(func(se *event.StreamEvent) { out = append(out, se) })
	}
	return out
}

func row(ts int64, vals ...interface{}) *event.StreamEvent {
	data := make([]attrvalue.Value, len(vals))
	for i, v := range vals {
		data[i] = attrvalue.Of(v)
	}
	return &event.StreamEvent{Timestamp: ts, Tag: event.Current, BeforeWindowData: data}
}

func expiredRow(src *event.StreamEvent) *event.StreamEvent {
	c := src.Clone()
	c.Tag = event.Expired
	return c
}

func chunkOf(rows ...*event.StreamEvent) *event.Chunk {
	c := &event.Chunk{}
	for _, r := range rows {
		c.Append(r)
	}
	return c
}

func tradeStream() *appdef.StreamDefinition {
	return appdef.NewStreamDefinition("trades").
		WithAttribute("symbol", attrvalue.TypeString).
		WithAttribute("price", attrvalue.TypeFloat64).
		WithAttribute("volume", attrvalue.TypeInt64)
}

func TestFilterPassesMatchingRows(t *testing.T) {
	stream := tradeStream()
	f, err := newFilterProcessor("price > 10", stream)
	require.NoError(t, err)
	cap := &capture{}
	f.SetNext(cap)

	f.Process(chunkOf(row(1, "IBM", 15.0, int64(100)), row(2, "IBM", 5.0, int64(50))))

	got := cap.all()
	require.Len(t, got, 1)
	assert.Equal(t, "IBM", got[0].BeforeWindowData[0].Raw)
	assert.Equal(t, 15.0, got[0].BeforeWindowData[1].Raw)
}

func TestFilterAlwaysPassesExpiredRows(t *testing.T) {
	stream := tradeStream()
	f, err := newFilterProcessor("price > 10", stream)
	require.NoError(t, err)
	cap := &capture{}
	f.SetNext(cap)

	passing := row(1, "IBM", 15.0, int64(100))
	f.Process(chunkOf(expiredRow(passing)))

	got := cap.all()
	require.Len(t, got, 1)
	assert.Equal(t, event.Expired, got[0].Tag)
}

func TestFilterLikeMatch(t *testing.T) {
	stream := tradeStream()
	f, err := newFilterProcessor(`like_match(symbol, "IB%")`, stream)
	require.NoError(t, err)
	cap := &capture{}
	f.SetNext(cap)

	f.Process(chunkOf(row(1, "IBM", 15.0, int64(100)), row(2, "GOOG", 15.0, int64(100))))

	got := cap.all()
	require.Len(t, got, 1)
	assert.Equal(t, "IBM", got[0].BeforeWindowData[0].Raw)
}
