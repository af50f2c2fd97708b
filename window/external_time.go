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
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
)

// externalTimeWindow is a sliding window whose watermark is the attribute
// named by def.TimestampAttr, not wall-clock time (spec §4.6). Expiry is
// evaluated lazily on each arrival against the highest external
// timestamp seen so far — no scheduler timer is needed since the clock
// only advances when an event says it does, the same rule implemented
// generically by clock.Playback.
type externalTimeWindow struct {
	processor.Base
	buffer
	def      *appdef.WindowDefinition
	ctx      *processor.Context
	attrIdx  int
	watermark int64
}

func newExternalTimeWindow(def *appdef.WindowDefinition, ctx *processor.Context) *externalTimeWindow {
	w := &externalTimeWindow{def: def, ctx: ctx, attrIdx: ctx.ResolveAttr(def.TimestampAttr)}
	w.initState(processor.ComponentID(ctx, "external_time"), w)
	return w
}

func (w *externalTimeWindow) tsOf(se *event.StreamEvent) int64 {
	if w.attrIdx < 0 || w.attrIdx >= len(se.BeforeWindowData) {
		return se.Timestamp
	}
	if i, ok := attrvalue.AsInt64(se.BeforeWindowData[w.attrIdx]); ok {
		return i
	}
	return se.Timestamp
}

func (w *externalTimeWindow) Process(chunk *event.Chunk) {
	out := &event.Chunk{}
	w.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		ts := w.tsOf(se)
		if ts > w.watermark {
			w.watermark = ts
		}
		w.events = append(w.events, se)

		kept := w.events[:0]
		for _, e := range w.events {
			if w.watermark-w.tsOf(e) > w.def.Duration {
				if w.def.ExpiredOutputEnabled {
					out.Append(cloneExpired(e))
				}
				continue
			}
			kept = append(kept, e)
		}
		w.events = kept
		out.Append(se.Clone())
	})
	w.mu.Unlock()
	w.Forward(out)
}

func (w *externalTimeWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newExternalTimeWindow(w.def, ctx)
}

func (w *externalTimeWindow) IsStateful() bool            { return true }
func (w *externalTimeWindow) ProcessingMode() processor.Mode { return processor.Default }
