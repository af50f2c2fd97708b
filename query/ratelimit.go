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

package query

import (
	"sync"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/scheduler"
)

// rateLimitProcessor implements spec §4.4's output rate limiter: every-N
// events or every-T-ms or snapshot-every-T-ms, crossed with an {All,
// First, Last} behavior governing which buffered rows survive to emit
// when the limiter opens its gate.
type rateLimitProcessor struct {
	processor.Base
	spec appdef.RateLimitSpec

	mu       sync.Mutex
	buffered []*event.StreamEvent
	sinceN   int
	cancel   scheduler.Cancel
}

func newRateLimitProcessor(spec appdef.RateLimitSpec, sched *scheduler.Scheduler) *rateLimitProcessor {
	p := &rateLimitProcessor{spec: spec}
	if sched != nil && (spec.Mode == appdef.RateLimitEveryMillis || spec.Mode == appdef.RateLimitSnapshotTime) && spec.Millis > 0 {
		p.cancel = sched.SchedulePeriodic(spec.Millis, scheduler.TargetFunc(func(int64) { p.flush() }), 0)
	}
	return p
}

func (p *rateLimitProcessor) Process(chunk *event.Chunk) {
	switch p.spec.Mode {
	case appdef.RateLimitNone:
		p.Forward(chunk)
		return
	case appdef.RateLimitEveryEvents:
		var toEmit *event.Chunk
		p.mu.Lock()
		chunk.Each(func(se *event.StreamEvent) {
			p.buffered = append(p.buffered, se.Clone())
			p.sinceN++
			if p.sinceN >= p.spec.N {
				toEmit = p.drainLocked()
				p.sinceN = 0
			}
		})
		p.mu.Unlock()
		if toEmit != nil && toEmit.Len > 0 {
			p.Forward(toEmit)
		}
	default:
		// Time-driven modes buffer here and flush on the scheduler's
		// periodic callback (flush).
		p.mu.Lock()
		chunk.Each(func(se *event.StreamEvent) { p.buffered = append(p.buffered, se.Clone()) })
		p.mu.Unlock()
	}
}

// drainLocked must be called with mu held; it applies the configured
// behavior to the buffered rows and resets the buffer.
func (p *rateLimitProcessor) drainLocked() *event.Chunk {
	out := &event.Chunk{}
	if len(p.buffered) == 0 {
		return out
	}
	switch p.spec.Behavior {
	case appdef.RateLimitFirst:
		out.Append(p.buffered[0])
	case appdef.RateLimitLast:
		out.Append(p.buffered[len(p.buffered)-1])
	default: // RateLimitAll
		for _, se := range p.buffered {
			se.Next = nil
			out.Append(se)
		}
	}
	p.buffered = nil
	return out
}

func (p *rateLimitProcessor) flush() {
	p.mu.Lock()
	out := p.drainLocked()
	p.mu.Unlock()
	if out.Len > 0 {
		p.Forward(out)
	}
}

func (p *rateLimitProcessor) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	var sched *scheduler.Scheduler
	if ctx != nil {
		sched = ctx.Scheduler
	}
	return newRateLimitProcessor(p.spec, sched)
}

func (p *rateLimitProcessor) IsStateful() bool              { return true }
func (p *rateLimitProcessor) ProcessingMode() processor.Mode { return processor.Batch }
