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

// cronWindow batches every event since the previous firing of def.CronExpr,
// the same accumulate-then-flush shape as timeBatchWindow but scheduled
// by scheduler.ScheduleCron instead of a fixed period.
type cronWindow struct {
	processor.Base
	batchState
	def *appdef.WindowDefinition
	ctx *processor.Context
}

func newCronWindow(def *appdef.WindowDefinition, ctx *processor.Context) (*cronWindow, error) {
	w := &cronWindow{def: def, ctx: ctx}
	w.initState(processor.ComponentID(ctx, "cron"), w)
	_, err := ctx.Scheduler.ScheduleCron(def.CronExpr, scheduler.TargetFunc(func(ts int64) {
		w.flush()
	}), 0)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (w *cronWindow) Process(chunk *event.Chunk) {
	w.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		w.current = append(w.current, se)
	})
	w.mu.Unlock()
}

func (w *cronWindow) flush() {
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

func (w *cronWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	clone, err := newCronWindow(w.def, ctx)
	if err != nil {
		// The cron expression was already validated at construction time;
		// this can only fail if the definition was mutated afterward.
		panic(err)
	}
	return clone
}

func (w *cronWindow) IsStateful() bool            { return true }
func (w *cronWindow) ProcessingMode() processor.Mode { return processor.Batch }
