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
	"encoding/json"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
)

// externalTimeBatchWindow tumbles by def.Duration-sized buckets of the
// def.TimestampAttr watermark rather than wall-clock ticks: every event
// whose external timestamp falls in the current bucket joins the current
// batch; the first event landing in the next bucket closes the batch.
type externalTimeBatchWindow struct {
	processor.Base
	batchState
	def     *appdef.WindowDefinition
	ctx     *processor.Context
	attrIdx int

	bucketStart int64
	haveBucket  bool
}

func newExternalTimeBatchWindow(def *appdef.WindowDefinition, ctx *processor.Context) *externalTimeBatchWindow {
	w := &externalTimeBatchWindow{def: def, ctx: ctx, attrIdx: ctx.ResolveAttr(def.TimestampAttr)}
	w.initState(processor.ComponentID(ctx, "external_time_batch"), w)
	return w
}

// wireExternalTimeBatch additionally carries the bucket boundary the
// embedded batchState's generic wire format doesn't know about, so
// SerializeState/DeserializeState are overridden here rather than left
// to the promoted batchState methods.
type wireExternalTimeBatch struct {
	Current     []byte
	Prev        []byte
	BucketStart int64
	HaveBucket  bool
}

func (w *externalTimeBatchWindow) SerializeState() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, err := event.EncodeEvents(w.current)
	if err != nil {
		return nil, err
	}
	prev, err := event.EncodeEvents(w.prev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireExternalTimeBatch{Current: cur, Prev: prev, BucketStart: w.bucketStart, HaveBucket: w.haveBucket})
}

func (w *externalTimeBatchWindow) DeserializeState(data []byte) error {
	var wr wireExternalTimeBatch
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &wr); err != nil {
		return err
	}
	current, err := event.DecodeEvents(wr.Current)
	if err != nil {
		return err
	}
	prev, err := event.DecodeEvents(wr.Prev)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current, w.prev, w.bucketStart, w.haveBucket = current, prev, wr.BucketStart, wr.HaveBucket
	w.mu.Unlock()
	return nil
}

func (w *externalTimeBatchWindow) tsOf(se *event.StreamEvent) int64 {
	if w.attrIdx < 0 || w.attrIdx >= len(se.BeforeWindowData) {
		return se.Timestamp
	}
	if i, ok := attrvalue.AsInt64(se.BeforeWindowData[w.attrIdx]); ok {
		return i
	}
	return se.Timestamp
}

func (w *externalTimeBatchWindow) Process(chunk *event.Chunk) {
	var out *event.Chunk
	w.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		ts := w.tsOf(se)
		if !w.haveBucket {
			w.bucketStart = ts
			w.haveBucket = true
		}
		if ts-w.bucketStart >= w.def.Duration {
			batch := w.closeBatch()
			out = mergeChunks(out, batch)
			w.bucketStart = ts
		}
		w.current = append(w.current, se)
	})
	w.mu.Unlock()
	if out != nil {
		w.Forward(out)
	}
}

// closeBatch must be called with w.mu held.
func (w *externalTimeBatchWindow) closeBatch() *event.Chunk {
	batch := &event.Chunk{}
	if w.def.ExpiredOutputEnabled {
		for _, p := range w.prev {
			batch.Append(cloneExpired(p))
		}
	}
	for _, c := range w.current {
		batch.Append(c.Clone())
	}
	w.prev = w.current
	w.current = nil
	return batch
}

func (w *externalTimeBatchWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newExternalTimeBatchWindow(w.def, ctx)
}

func (w *externalTimeBatchWindow) IsStateful() bool            { return true }
func (w *externalTimeBatchWindow) ProcessingMode() processor.Mode { return processor.Batch }
