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
	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
)

// lengthBatchWindow accumulates exactly N events, then emits the previous
// batch as Expired followed by the new batch as Current, only when a
// batch boundary closes (spec §4.6's batch processing mode).
type lengthBatchWindow struct {
	processor.Base
	batchState
	def *appdef.WindowDefinition
	ctx *processor.Context
}

func newLengthBatchWindow(def *appdef.WindowDefinition, ctx *processor.Context) *lengthBatchWindow {
	w := &lengthBatchWindow{def: def, ctx: ctx}
	w.initState(processor.ComponentID(ctx, "length_batch"), w)
	return w
}

func (w *lengthBatchWindow) Process(chunk *event.Chunk) {
	var out *event.Chunk
	w.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		w.current = append(w.current, se)
		if len(w.current) >= w.def.Length {
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
			out = mergeChunks(out, batch)
		}
	})
	w.mu.Unlock()
	if out != nil {
		w.Forward(out)
	}
}

func mergeChunks(into, add *event.Chunk) *event.Chunk {
	if into == nil {
		return add
	}
	into.AppendChunk(add.Head)
	return into
}

func (w *lengthBatchWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newLengthBatchWindow(w.def, ctx)
}

func (w *lengthBatchWindow) IsStateful() bool            { return true }
func (w *lengthBatchWindow) ProcessingMode() processor.Mode { return processor.Batch }
