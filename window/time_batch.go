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

// timeBatchWindow tumbles every def.Duration ms: all events that arrived
// since the last tick are emitted together as Current, and the previous
// tick's batch is emitted as Expired first. Grounded on the teacher's
// window/session_window.go ticker-driven flush loop, generalized from a
// single time.Ticker goroutine to the shared scheduler so it composes
// with playback-mode clocks.
type timeBatchWindow struct {
	processor.Base
	batchState
	def *appdef.WindowDefinition
	ctx *processor.Context

	cancel scheduler.Cancel
}

func newTimeBatchWindow(def *appdef.WindowDefinition, ctx *processor.Context) *timeBatchWindow {
	w := &timeBatchWindow{def: def, ctx: ctx}
	w.initState(processor.ComponentID(ctx, "time_batch"), w)
	w.cancel = ctx.Scheduler.SchedulePeriodic(def.Duration, scheduler.TargetFunc(func(ts int64) {
		w.flush()
	}), 0)
	return w
}

func (w *timeBatchWindow) Process(chunk *event.Chunk) {
	w.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		w.current = append(w.current, se)
	})
	w.mu.Unlock()
}

func (w *timeBatchWindow) flush() {
	w.mu.Lock()
	current, prev := w.current, w.prev
	w.prev = w.current
	w.current = nil
	w.mu.Unlock()

	if len(current) == 0 && len(prev) == 0 {
		return
	}
	out := &event.Chunk{}
	if w.def.ExpiredOutputEnabled {
		for _, p := range prev {
			out.Append(cloneExpired(p))
		}
	}
	for _, c := range current {
		out.Append(c.Clone())
	}
	w.Forward(out)
}

func (w *timeBatchWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newTimeBatchWindow(w.def, ctx)
}

func (w *timeBatchWindow) IsStateful() bool            { return true }
func (w *timeBatchWindow) ProcessingMode() processor.Mode { return processor.Batch }
