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
	"math"
	"sync"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/snapshot"
)

// lossyCountingWindow implements the Manku-Motwani lossy counting
// algorithm (spec §4.6): events are bucketed in groups of width
// ceil(1/def.Error); every bucket boundary prunes entries whose
// (count + maxError) is at most the current bucket id, and after each
// chunk the last event of every surviving entry whose count reaches
// def.Support * N is re-emitted as a full Current replacement batch
// (the window has no notion of individual event expiry).
type lossyCountingWindow struct {
	processor.Base
	def *appdef.WindowDefinition
	ctx *processor.Context

	id string
	snapshot.FullReplaceChangelog

	mu         sync.Mutex
	bucketSize int64
	n          int64
	bucketID   int64
	counts     map[string]*lcEntry
	last       map[string]*event.StreamEvent
}

type lcEntry struct {
	count    int64
	maxError int64
}

func newLossyCountingWindow(def *appdef.WindowDefinition, ctx *processor.Context) *lossyCountingWindow {
	errRate := def.Error
	if errRate <= 0 {
		errRate = 0.01
	}
	w := &lossyCountingWindow{
		def:        def,
		ctx:        ctx,
		bucketSize: int64(math.Ceil(1 / errRate)),
		bucketID:   1,
		counts:     map[string]*lcEntry{},
		last:       map[string]*event.StreamEvent{},
	}
	w.id = processor.ComponentID(ctx, "lossy_counting")
	w.Holder = w
	return w
}

func (w *lossyCountingWindow) ComponentID() string                  { return w.id }
func (w *lossyCountingWindow) SchemaVersion() snapshot.SchemaVersion { return snapshot.SchemaVersion{Major: 1} }
func (w *lossyCountingWindow) AccessPattern() snapshot.AccessPattern { return snapshot.Random }

type wireLCEntry struct {
	Count    int64
	MaxError int64
}

type wireLossyCounting struct {
	BucketSize int64
	N          int64
	BucketID   int64
	Counts     map[string]wireLCEntry
	Last       map[string][]byte
}

func (w *lossyCountingWindow) SerializeState() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	counts := make(map[string]wireLCEntry, len(w.counts))
	for k, e := range w.counts {
		counts[k] = wireLCEntry{Count: e.count, MaxError: e.maxError}
	}
	last := make(map[string][]byte, len(w.last))
	for k, se := range w.last {
		b, err := event.EncodeEvents([]*event.StreamEvent{se})
		if err != nil {
			return nil, err
		}
		last[k] = b
	}
	return json.Marshal(wireLossyCounting{
		BucketSize: w.bucketSize,
		N:          w.n,
		BucketID:   w.bucketID,
		Counts:     counts,
		Last:       last,
	})
}

func (w *lossyCountingWindow) DeserializeState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var wr wireLossyCounting
	if err := json.Unmarshal(data, &wr); err != nil {
		return err
	}
	counts := make(map[string]*lcEntry, len(wr.Counts))
	for k, e := range wr.Counts {
		counts[k] = &lcEntry{count: e.Count, maxError: e.MaxError}
	}
	last := make(map[string]*event.StreamEvent, len(wr.Last))
	for k, b := range wr.Last {
		events, err := event.DecodeEvents(b)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			last[k] = events[0]
		}
	}
	w.mu.Lock()
	w.bucketSize, w.n, w.bucketID, w.counts, w.last = wr.BucketSize, wr.N, wr.BucketID, counts, last
	w.mu.Unlock()
	return nil
}

func (w *lossyCountingWindow) EstimateSize() snapshot.SizeEstimate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return snapshot.SizeEstimate{Entries: len(w.counts)}
}

func (w *lossyCountingWindow) keyOf(se *event.StreamEvent) string {
	key := ""
	for _, v := range se.BeforeWindowData {
		key += attrvalue.AsString(v) + "\x1f"
	}
	return key
}

func (w *lossyCountingWindow) Process(chunk *event.Chunk) {
	w.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		key := w.keyOf(se)
		e, ok := w.counts[key]
		if !ok {
			e = &lcEntry{maxError: w.bucketID - 1}
			w.counts[key] = e
		}
		e.count++
		w.last[key] = se
		w.n++
		w.bucketID = (w.n + w.bucketSize - 1) / w.bucketSize
		if w.n%w.bucketSize == 0 {
			for k, entry := range w.counts {
				if entry.count+entry.maxError <= w.bucketID {
					delete(w.counts, k)
					delete(w.last, k)
				}
			}
		}
	})

	support := w.def.Support
	if support <= 0 {
		support = 0.01
	}
	threshold := support * float64(w.n)

	out := &event.Chunk{}
	for k, entry := range w.counts {
		if float64(entry.count) >= threshold {
			out.Append(w.last[k].Clone())
		}
	}
	w.mu.Unlock()

	w.Forward(out)
}

func (w *lossyCountingWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newLossyCountingWindow(w.def, ctx)
}

func (w *lossyCountingWindow) IsStateful() bool            { return true }
func (w *lossyCountingWindow) ProcessingMode() processor.Mode { return processor.Batch }
