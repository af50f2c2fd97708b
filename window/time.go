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
	"github.com/eventflux/eventflux/scheduler"
)

// timeWindow is a sliding window: every event stays Current in the output
// for exactly def.Duration ms, then expires on its own schedule rather
// than on the next arrival. Grounded on the teacher's
// window/sliding_window.go, which pairs a mutex-guarded buffer with a
// background timer that fires independently of Add calls; here each
// event gets its own scheduler.NotifyAt deadline instead of one shared
// ticker, since arrivals are not evenly spaced.
type timeWindow struct {
	processor.Base
	buffer
	def *appdef.WindowDefinition
	ctx *processor.Context
}

func newTimeWindow(def *appdef.WindowDefinition, ctx *processor.Context) *timeWindow {
	w := &timeWindow{def: def, ctx: ctx}
	w.initState(processor.ComponentID(ctx, "time"), w)
	return w
}

func (w *timeWindow) Process(chunk *event.Chunk) {
	out := &event.Chunk{}
	chunk.Each(func(se *event.StreamEvent) {
		out.Append(se.Clone())
		w.mu.Lock()
		w.events = append(w.events, se)
		w.mu.Unlock()
		deadline := w.ctx.Clock.Now() + w.def.Duration
		w.ctx.Scheduler.NotifyAt(deadline, scheduler.TargetFunc(func(ts int64) {
			w.expire(se)
		}))
	})
	w.Forward(out)
}

func (w *timeWindow) expire(se *event.StreamEvent) {
	w.mu.Lock()
	for i, e := range w.events {
		if e == se {
			w.events = append(w.events[:i], w.events[i+1:]...)
			break
		}
	}
	w.mu.Unlock()
	if !w.def.ExpiredOutputEnabled {
		return
	}
	out := &event.Chunk{}
	out.Append(cloneExpired(se))
	w.Forward(out)
}

func (w *timeWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newTimeWindow(w.def, ctx)
}

func (w *timeWindow) IsStateful() bool            { return true }
func (w *timeWindow) ProcessingMode() processor.Mode { return processor.Slide }
