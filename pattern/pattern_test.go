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

package pattern

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
)

type capture struct {
	processor.Base
	chunks []*event.Chunk
}

func (c *capture) Process(chunk *event.Chunk)                                         { c.chunks = append(c.chunks, chunk) }
func (c *capture) CloneForNewQueryContext(ctx *processor.Context) processor.Processor { return c }
func (c *capture) IsStateful() bool                                                   { return false }
func (c *capture) ProcessingMode() processor.Mode                                     { return processor.Default }

func se(ts int64, vals ...interface{}) *event.StreamEvent {
	data := make([]attrvalue.Value, len(vals))
	for i, v := range vals {
		data[i] = attrvalue.Of(v)
	}
	return &event.StreamEvent{Timestamp: ts, Tag: event.Current, BeforeWindowData: data}
}

func expired(src *event.StreamEvent) *event.StreamEvent {
	c := src.Clone()
	c.Tag = event.Expired
	return c
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

func streamOf(names ...string) *appdef.StreamDefinition {
	d := appdef.NewStreamDefinition("s")
	for _, n := range names {
		d.WithAttribute(n, attrvalue.TypeInt32)
	}
	return d
}

func TestInnerJoinEmitsOnlyMatches(t *testing.T) {
	spec := &appdef.InputSpec{Kind: appdef.InputJoin, JoinKind: appdef.JoinInner, OnExpr: "left.id == right.id"}
	left := appdef.NewStreamDefinition("left").WithAttribute("id", attrvalue.TypeInt32)
	right := appdef.NewStreamDefinition("right").WithAttribute("id", attrvalue.TypeInt32)

	leftP, rightP, err := New(spec, left, right, newCtx())
	require.NoError(t, err)
	out := &capture{}
	leftP.SetNext(out)
	rightP.SetNext(out)

	leftP.Process(chunkOf(se(1, 1)))
	assert.Empty(t, out.chunks)

	rightP.Process(chunkOf(se(2, 2)))
	require.Empty(t, out.chunks)

	rightP.Process(chunkOf(se(3, 1)))
	require.Len(t, out.chunks, 1)
	assert.Equal(t, 1, out.chunks[0].Len)
	joined := out.chunks[0].Head
	assert.Equal(t, int32(1), joined.BeforeWindowData[0].Raw)
	assert.Equal(t, int32(1), joined.BeforeWindowData[1].Raw)
}

func TestLeftOuterJoinPadsUnmatchedLeft(t *testing.T) {
	spec := &appdef.InputSpec{Kind: appdef.InputJoin, JoinKind: appdef.JoinLeftOuter, OnExpr: "left.id == right.id"}
	left := streamOf("id")
	right := streamOf("id")

	leftP, rightP, err := New(spec, left, right, newCtx())
	require.NoError(t, err)
	out := &capture{}
	leftP.SetNext(out)
	rightP.SetNext(out)

	leftP.Process(chunkOf(se(1, 99)))
	require.Len(t, out.chunks, 1)
	joined := out.chunks[0].Head
	assert.Equal(t, int32(99), joined.BeforeWindowData[0].Raw)
	assert.True(t, attrvalue.IsNull(joined.BeforeWindowData[1]))

	rightP.Process(chunkOf(se(2, 1)))
	assert.Len(t, out.chunks, 1, "a non-matching right arrival emits nothing on a left-outer join")
}

func TestJoinExpiredRetractsFromBuffer(t *testing.T) {
	spec := &appdef.InputSpec{Kind: appdef.InputJoin, JoinKind: appdef.JoinInner}
	left := streamOf("id")
	right := streamOf("id")
	leftP, rightP, err := New(spec, left, right, newCtx())
	require.NoError(t, err)
	out := &capture{}
	leftP.SetNext(out)
	rightP.SetNext(out)

	leftEvt := se(1, 1)
	leftP.Process(chunkOf(leftEvt))
	leftP.Process(chunkOf(expired(leftEvt)))

	rightP.Process(chunkOf(se(2, 1)))
	assert.Empty(t, out.chunks, "retracted left event must not still match")
}

func TestSequencePatternConsumesPartialOnMatch(t *testing.T) {
	spec := &appdef.InputSpec{Kind: appdef.InputPattern, WithinMillis: 1000}
	first := streamOf("id")
	second := streamOf("id")
	firstP, secondP, err := New(spec, first, second, newCtx())
	require.NoError(t, err)
	out := &capture{}
	firstP.SetNext(out)
	secondP.SetNext(out)

	firstP.Process(chunkOf(se(1, 1)))
	secondP.Process(chunkOf(se(2, 2)))
	require.Len(t, out.chunks, 1)

	secondP.Process(chunkOf(se(3, 3)))
	assert.Len(t, out.chunks, 1, "pattern semantics: each A matches at most one B")
}

func TestSequenceKeepsPartialForMultipleMatches(t *testing.T) {
	spec := &appdef.InputSpec{Kind: appdef.InputSeq, WithinMillis: 1000}
	first := streamOf("id")
	second := streamOf("id")
	firstP, secondP, err := New(spec, first, second, newCtx())
	require.NoError(t, err)
	out := &capture{}
	firstP.SetNext(out)
	secondP.SetNext(out)

	firstP.Process(chunkOf(se(1, 1)))
	secondP.Process(chunkOf(se(2, 2)))
	secondP.Process(chunkOf(se(3, 3)))
	assert.Len(t, out.chunks, 2, "sequence semantics: one A can match many Bs")
}

func TestLogicalAndEmitsCartesianThenDrains(t *testing.T) {
	spec := &appdef.InputSpec{Kind: appdef.InputPattern, Logical: "and"}
	left := streamOf("id")
	right := streamOf("id")
	firstP, secondP, err := New(spec, left, right, newCtx())
	require.NoError(t, err)
	out := &capture{}
	firstP.SetNext(out)
	secondP.SetNext(out)

	firstP.Process(chunkOf(se(1, 1)))
	assert.Empty(t, out.chunks)

	secondP.Process(chunkOf(se(2, 2)))
	require.Len(t, out.chunks, 1)
	assert.Equal(t, 1, out.chunks[0].Len)

	secondP.Process(chunkOf(se(3, 3)))
	assert.Len(t, out.chunks, 1, "buffers drained after the first match")
}

func TestLogicalOrEmitsEachSidePadded(t *testing.T) {
	spec := &appdef.InputSpec{Kind: appdef.InputPattern, Logical: "or"}
	left := streamOf("id")
	right := streamOf("id")
	firstP, secondP, err := New(spec, left, right, newCtx())
	require.NoError(t, err)
	out := &capture{}
	firstP.SetNext(out)
	secondP.SetNext(out)

	firstP.Process(chunkOf(se(1, 1)))
	secondP.Process(chunkOf(se(2, 2)))
	require.Len(t, out.chunks, 2)
	assert.True(t, attrvalue.IsNull(out.chunks[0].Head.BeforeWindowData[1]))
	assert.True(t, attrvalue.IsNull(out.chunks[1].Head.BeforeWindowData[0]))
}

func TestLogicalNotFiresWhenAbsentNeverArrives(t *testing.T) {
	spec := &appdef.InputSpec{Kind: appdef.InputPattern, Logical: "not", WaitMillis: 0}
	left := streamOf("id")
	firstP, _, err := New(spec, left, nil, newCtx())
	require.NoError(t, err)
	out := &capture{}
	firstP.SetNext(out)

	firstP.Process(chunkOf(se(1, 1)))
	require.Len(t, out.chunks, 1)
}

func TestLogicalNotSuppressedWhenAbsentArrivesInTime(t *testing.T) {
	pb := clock.NewPlayback()
	ctx := &processor.Context{Clock: pb, Scheduler: scheduler.New(pb)}
	spec := &appdef.InputSpec{Kind: appdef.InputPattern, Logical: "not", WaitMillis: 1000}
	left := streamOf("id")
	firstP, absentP, err := New(spec, left, nil, ctx)
	require.NoError(t, err)
	out := &capture{}
	firstP.SetNext(out)

	firstP.Process(chunkOf(se(1, 1)))
	absentP.Process(chunkOf(se(2, 1)))
	pb.Advance(1001)
	ctx.Scheduler.Tick()
	assert.Empty(t, out.chunks, "absent stream arrived within the wait window")
}

func TestLogicalNotFiresAfterScheduledWaitElapses(t *testing.T) {
	pb := clock.NewPlayback()
	ctx := &processor.Context{Clock: pb, Scheduler: scheduler.New(pb)}
	spec := &appdef.InputSpec{Kind: appdef.InputPattern, Logical: "not", WaitMillis: 1000}
	left := streamOf("id")
	firstP, _, err := New(spec, left, nil, ctx)
	require.NoError(t, err)
	out := &capture{}
	firstP.SetNext(out)

	firstP.Process(chunkOf(se(1, 1)))
	pb.Advance(1001)
	ctx.Scheduler.Tick()
	require.Len(t, out.chunks, 1, "absent stream never arrived before the wait elapsed")
}
