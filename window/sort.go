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
	"sort"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
)

// sortWindow keeps the def.Length "best" events ordered by def.SortAttr
// (ascending unless SortDescending); an arrival that does not make the
// cut is itself immediately expired, and an arrival that displaces a
// kept event expires that event instead.
type sortWindow struct {
	processor.Base
	buffer
	def     *appdef.WindowDefinition
	ctx     *processor.Context
	sortIdx int
}

func newSortWindow(def *appdef.WindowDefinition, ctx *processor.Context) *sortWindow {
	w := &sortWindow{def: def, ctx: ctx, sortIdx: ctx.ResolveAttr(def.SortAttr)}
	w.initState(processor.ComponentID(ctx, "sort"), w)
	return w
}

func (w *sortWindow) key(se *event.StreamEvent) float64 {
	if w.sortIdx < 0 || w.sortIdx >= len(se.BeforeWindowData) {
		return 0
	}
	f, _ := attrvalue.AsFloat64(se.BeforeWindowData[w.sortIdx])
	return f
}

func (w *sortWindow) less(a, b *event.StreamEvent) bool {
	if w.def.SortDescending {
		return w.key(a) > w.key(b)
	}
	return w.key(a) < w.key(b)
}

func (w *sortWindow) Process(chunk *event.Chunk) {
	out := &event.Chunk{}
	w.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		out.Append(se.Clone())
		w.events = append(w.events, se)
		sort.SliceStable(w.events, func(i, j int) bool { return w.less(w.events[i], w.events[j]) })
		if len(w.events) > w.def.Length {
			worst := w.events[len(w.events)-1]
			w.events = w.events[:len(w.events)-1]
			if w.def.ExpiredOutputEnabled {
				out.Append(cloneExpired(worst))
			}
		}
	})
	w.mu.Unlock()
	w.Forward(out)
}

func (w *sortWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newSortWindow(w.def, ctx)
}

func (w *sortWindow) IsStateful() bool            { return true }
func (w *sortWindow) ProcessingMode() processor.Mode { return processor.Default }
