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

// lengthWindow keeps the last N events; each arrival is Current, and once
// the buffer is full every further arrival expires the oldest event
// (spec §4.6).
type lengthWindow struct {
	processor.Base
	buffer
	def *appdef.WindowDefinition
	ctx *processor.Context
}

func newLengthWindow(def *appdef.WindowDefinition, ctx *processor.Context) *lengthWindow {
	w := &lengthWindow{def: def, ctx: ctx}
	w.initState(processor.ComponentID(ctx, "length"), w)
	return w
}

func (w *lengthWindow) Process(chunk *event.Chunk) {
	out := &event.Chunk{}
	w.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		w.events = append(w.events, se)
		if len(w.events) > w.def.Length {
			expired := w.events[0]
			w.events = w.events[1:]
			if w.def.ExpiredOutputEnabled {
				out.Append(cloneExpired(expired))
			}
		}
		out.Append(se.Clone())
	})
	w.mu.Unlock()
	w.Forward(out)
}

func (w *lengthWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newLengthWindow(w.def, ctx)
}

func (w *lengthWindow) IsStateful() bool            { return true }
func (w *lengthWindow) ProcessingMode() processor.Mode { return processor.Default }
