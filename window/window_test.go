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

package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/clock"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/scheduler"
	"github.com/eventflux/eventflux/snapshot"
)

type capture struct {
	processor.Base
	chunks []*event.Chunk
}

func (c *capture) Process(chunk *event.Chunk)  { c.chunks = append(c.chunks, chunk) }
func (c *capture) CloneForNewQueryContext(ctx *processor.Context) processor.Processor { return c }
func (c *capture) IsStateful() bool            { return false }
func (c *capture) ProcessingMode() processor.Mode { return processor.Default }

func se(ts int64, vals ...interface{}) *event.StreamEvent {
	data := make([]attrvalue.Value, len(vals))
	for i, v := range vals {
		data[i] = attrvalue.Of(v)
	}
	return &event.StreamEvent{Timestamp: ts, Tag: event.Current, BeforeWindowData: data}
}

func chunkOf(events ...*event.StreamEvent) *event.Chunk {
	c := &event.Chunk{}
	for _, e := range events {
		c.Append(e)
	}
	return c
}

func newCtx() *processor.Context {
	pb := clock.NewPlayback()
	return &processor.Context{Clock: pb, Scheduler: scheduler.New(pb)}
}

func TestLengthWindowExpiresOldest(t *testing.T) {
	def := &appdef.WindowDefinition{Kind: appdef.WindowLength, Length: 2, ExpiredOutputEnabled: true}
	ctx := newCtx()
	w, err := New(def, ctx)
	require.NoError(t, err)
	var out *event.Chunk
	cap := &capture{}
	w.SetNext(cap)

	w.Process(chunkOf(se(1, 1)))
	w.Process(chunkOf(se(2, 2)))
	w.Process(chunkOf(se(3, 3)))

	require.Len(t, cap.chunks, 3)
	out = cap.chunks[2]
	assert.Equal(t, 2, out.Len)
	assert.Equal(t, event.Expired, out.Head.Tag)
	assert.Equal(t, int64(1), out.Head.Timestamp)
	assert.Equal(t, event.Current, out.Head.Next.Tag)
	assert.Equal(t, int64(3), out.Head.Next.Timestamp)
}

func TestLengthBatchWindowFlushesOnFull(t *testing.T) {
	def := &appdef.WindowDefinition{Kind: appdef.WindowLengthBatch, Length: 2}
	ctx := newCtx()
	w, err := New(def, ctx)
	require.NoError(t, err)
	cap := &capture{}
	w.SetNext(cap)

	w.Process(chunkOf(se(1, 1)))
	assert.Len(t, cap.chunks, 0, "no flush until the batch fills")
	w.Process(chunkOf(se(2, 2)))
	require.Len(t, cap.chunks, 1)
	assert.Equal(t, 2, cap.chunks[0].Len)
}

func TestSessionWindowClosesAfterGap(t *testing.T) {
	def := &appdef.WindowDefinition{Kind: appdef.WindowSession, Duration: 1000}
	pb := clock.NewPlayback()
	ctx := &processor.Context{Clock: pb, Scheduler: scheduler.New(pb)}
	w, err := New(def, ctx)
	require.NoError(t, err)
	cap := &capture{}
	w.SetNext(cap)

	pb.Advance(100)
	w.Process(chunkOf(se(100, "a")))
	pb.Advance(500)
	w.Process(chunkOf(se(500, "a")))
	assert.Len(t, cap.chunks, 0)

	pb.Advance(2000)
	ctx.Scheduler.Tick()
	require.Len(t, cap.chunks, 1)
	assert.Equal(t, 2, cap.chunks[0].Len)
}

func TestSortWindowKeepsTopN(t *testing.T) {
	def := &appdef.WindowDefinition{Kind: appdef.WindowSort, Length: 2, SortAttr: "v", SortDescending: true}
	stream := appdef.NewStreamDefinition("s").WithAttribute("v", attrvalue.TypeFloat64)
	ctx := &processor.Context{Clock: clock.System{}, Scheduler: scheduler.New(clock.System{}), Stream: stream}
	w, err := New(def, ctx)
	require.NoError(t, err)
	cap := &capture{}
	w.SetNext(cap)

	w.Process(chunkOf(se(1, 5.0)))
	w.Process(chunkOf(se(2, 9.0)))
	w.Process(chunkOf(se(3, 1.0)))

	sw := w.(*sortWindow)
	require.Len(t, sw.events, 2)
	assert.Equal(t, 9.0, sw.key(sw.events[0]))
	assert.Equal(t, 5.0, sw.key(sw.events[1]))
}

func TestExternalTimeWindowExpiresByWatermark(t *testing.T) {
	def := &appdef.WindowDefinition{Kind: appdef.WindowExternalTime, Duration: 100, TimestampAttr: "ts", ExpiredOutputEnabled: true}
	stream := appdef.NewStreamDefinition("s").WithAttribute("ts", attrvalue.TypeInt64)
	ctx := &processor.Context{Clock: clock.System{}, Scheduler: scheduler.New(clock.System{}), Stream: stream}
	w, err := New(def, ctx)
	require.NoError(t, err)
	cap := &capture{}
	w.SetNext(cap)

	w.Process(chunkOf(se(0, int64(0))))
	w.Process(chunkOf(se(0, int64(200))))

	require.Len(t, cap.chunks, 2)
	last := cap.chunks[1]
	assert.Equal(t, 2, last.Len)
	assert.Equal(t, event.Expired, last.Head.Tag)
	assert.Equal(t, event.Current, last.Tail.Tag)
}

func TestLengthWindowStateHolderRoundTrip(t *testing.T) {
	def := &appdef.WindowDefinition{Kind: appdef.WindowLength, Length: 2}
	ctx := newCtx()
	w, err := New(def, ctx)
	require.NoError(t, err)
	lw := w.(*lengthWindow)

	w.Process(chunkOf(se(1, 1)))
	w.Process(chunkOf(se(2, 2)))

	holder, ok := w.(snapshot.StateHolder)
	require.True(t, ok, "lengthWindow must implement snapshot.StateHolder")
	assert.Contains(t, holder.ComponentID(), "length")

	data, err := holder.SerializeState()
	require.NoError(t, err)

	// Corrupt the live buffer past what was captured.
	w.Process(chunkOf(se(3, 3)))
	require.Len(t, lw.events, 2)
	assert.Equal(t, int64(3), lw.events[1].Timestamp)

	require.NoError(t, holder.DeserializeState(data))
	require.Len(t, lw.events, 2)
	assert.Equal(t, int64(1), lw.events[0].Timestamp)
	assert.Equal(t, int64(2), lw.events[1].Timestamp)
}

func TestLossyCountingWindowKeepsFrequentItems(t *testing.T) {
	def := &appdef.WindowDefinition{Kind: appdef.WindowLossyCounting, Support: 0.3, Error: 0.5}
	ctx := newCtx()
	w, err := New(def, ctx)
	require.NoError(t, err)
	cap := &capture{}
	w.SetNext(cap)

	for i := 0; i < 4; i++ {
		w.Process(chunkOf(se(int64(i), "hot")))
	}
	w.Process(chunkOf(se(4, "cold")))

	require.NotEmpty(t, cap.chunks)
	last := cap.chunks[len(cap.chunks)-1]
	found := false
	last.Each(func(s *event.StreamEvent) {
		if attrvalue.AsString(s.BeforeWindowData[0]) == "hot" {
			found = true
		}
	})
	assert.True(t, found)
}
