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

package pattern

import (
	"encoding/json"
	"sync"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/logger"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/scheduler"
	"github.com/eventflux/eventflux/snapshot"
)

// maxPendingPartials bounds unmatched "A arrived, waiting for B" state so
// a stream that never produces B can't grow this buffer unboundedly;
// exceeding it evicts the oldest partial and records an anomaly (spec §7
// supplemented fault counters).
const maxPendingPartials = 100000

// partial is an in-flight "A has arrived, waiting for B" match. firsts
// accumulates more than one First arrival when spec.FirstMax > 1 (the
// count-bound form "A{2,3} -> B").
type partial struct {
	firsts  []*event.StreamEvent
	created int64
	cancel  scheduler.Cancel
}

// seqState is the interior state shared by a sequence/pattern's First and
// Second side processors.
type seqState struct {
	mu       sync.Mutex
	partials []*partial

	leftArity, rightArity int
	withinMillis          int64
	firstMin, firstMax     int
	secondMin, secondMax   int
	consumePartial         bool // Pattern: true (each A matches at most one B); Sequence: false
	ctx                    *processor.Context

	id string
	snapshot.FullReplaceChangelog
}

func (s *seqState) ComponentID() string                  { return s.id }
func (s *seqState) SchemaVersion() snapshot.SchemaVersion { return snapshot.SchemaVersion{Major: 1} }
func (s *seqState) AccessPattern() snapshot.AccessPattern { return snapshot.Sequential }

// wirePartial drops each partial's scheduler timer (cancel) — like
// notState, a restored partial no longer expires on its own; it either
// matches on a subsequent Second arrival or is pruned by the next
// maxPendingPartials eviction.
type wirePartial struct {
	Firsts  []byte
	Created int64
}

func (s *seqState) SerializeState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wire := make([]wirePartial, len(s.partials))
	for i, p := range s.partials {
		b, err := event.EncodeEvents(p.firsts)
		if err != nil {
			return nil, err
		}
		wire[i] = wirePartial{Firsts: b, Created: p.created}
	}
	return json.Marshal(wire)
}

func (s *seqState) DeserializeState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var wire []wirePartial
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	partials := make([]*partial, 0, len(wire))
	for _, w := range wire {
		firsts, err := event.DecodeEvents(w.Firsts)
		if err != nil {
			return err
		}
		partials = append(partials, &partial{firsts: firsts, created: w.Created})
	}
	s.mu.Lock()
	s.partials = partials
	s.mu.Unlock()
	return nil
}

func (s *seqState) EstimateSize() snapshot.SizeEstimate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot.SizeEstimate{Entries: len(s.partials)}
}

func (s *seqState) expire(p *partial) {
	s.mu.Lock()
	for i, existing := range s.partials {
		if existing == p {
			s.partials = append(s.partials[:i], s.partials[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

type sequenceFirst struct {
	processor.Base
	state *seqState
}

func (p *sequenceFirst) Process(chunk *event.Chunk) {
	p.state.mu.Lock()
	max := p.state.firstMax
	if max <= 0 {
		max = 1
	}
	chunk.Each(func(se *event.StreamEvent) {
		if se.Tag != event.Current {
			return
		}
		own := se.Clone()

		if len(p.state.partials) > 0 && max > 1 {
			last := p.state.partials[len(p.state.partials)-1]
			if len(last.firsts) < max {
				last.firsts = append(last.firsts, own)
				return
			}
		}

		part := &partial{firsts: []*event.StreamEvent{own}, created: se.Timestamp}
		if p.state.withinMillis > 0 && p.state.ctx != nil && p.state.ctx.Scheduler != nil {
			deadline := se.Timestamp + p.state.withinMillis
			part.cancel = p.state.ctx.Scheduler.NotifyAt(deadline, scheduler.TargetFunc(func(int64) {
				p.state.expire(part)
			}))
		}
		if len(p.state.partials) >= maxPendingPartials {
			logger.Warn("pattern anomaly: %d pending partials, evicting the oldest", maxPendingPartials)
			recordAnomaly()
			p.state.partials = p.state.partials[1:]
		}
		p.state.partials = append(p.state.partials, part)
	})
	p.state.mu.Unlock()
}

func (p *sequenceFirst) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return &sequenceFirst{state: cloneSeqState(p.state, ctx)}
}
func (p *sequenceFirst) IsStateful() bool              { return true }
func (p *sequenceFirst) ProcessingMode() processor.Mode { return processor.Default }

// StateHolder is delegated to the shared seqState; sequenceFirst and
// sequenceSecond report the same ComponentID, so the wiring pass that
// registers StateHolders dedups by id.
func (p *sequenceFirst) ComponentID() string                  { return p.state.ComponentID() }
func (p *sequenceFirst) SchemaVersion() snapshot.SchemaVersion { return p.state.SchemaVersion() }
func (p *sequenceFirst) SerializeState() ([]byte, error)       { return p.state.SerializeState() }
func (p *sequenceFirst) DeserializeState(data []byte) error    { return p.state.DeserializeState(data) }
func (p *sequenceFirst) EstimateSize() snapshot.SizeEstimate   { return p.state.EstimateSize() }
func (p *sequenceFirst) AccessPattern() snapshot.AccessPattern { return p.state.AccessPattern() }
func (p *sequenceFirst) GetChangelog(since string) (snapshot.ChangeLog, error) {
	return p.state.GetChangelog(since)
}
func (p *sequenceFirst) ApplyChangelog(cl snapshot.ChangeLog) error {
	return p.state.ApplyChangelog(cl)
}

type sequenceSecond struct {
	processor.Base
	state *seqState
}

func (p *sequenceSecond) Process(chunk *event.Chunk) {
	out := &event.Chunk{}
	p.state.mu.Lock()
	min := p.state.firstMin
	if min <= 0 {
		min = 1
	}
	chunk.Each(func(se *event.StreamEvent) {
		if se.Tag != event.Current {
			return
		}
		var consumed []int
		for i, part := range p.state.partials {
			if len(part.firsts) < min {
				continue
			}
			if p.state.withinMillis > 0 && se.Timestamp-part.created > p.state.withinMillis {
				continue
			}
			last := part.firsts[len(part.firsts)-1]
			joined := concat(last, se, p.state.leftArity, p.state.rightArity)
			out.Append(joined)
			if p.state.consumePartial {
				if part.cancel != nil {
					part.cancel()
				}
				consumed = append(consumed, i)
			}
		}
		for i := len(consumed) - 1; i >= 0; i-- {
			idx := consumed[i]
			p.state.partials = append(p.state.partials[:idx], p.state.partials[idx+1:]...)
		}
	})
	p.state.mu.Unlock()

	if out.Len > 0 {
		p.Forward(out)
	}
}

func (p *sequenceSecond) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return &sequenceSecond{state: cloneSeqState(p.state, ctx)}
}
func (p *sequenceSecond) IsStateful() bool              { return true }
func (p *sequenceSecond) ProcessingMode() processor.Mode { return processor.Default }

func (p *sequenceSecond) ComponentID() string                  { return p.state.ComponentID() }
func (p *sequenceSecond) SchemaVersion() snapshot.SchemaVersion { return p.state.SchemaVersion() }
func (p *sequenceSecond) SerializeState() ([]byte, error)       { return p.state.SerializeState() }
func (p *sequenceSecond) DeserializeState(data []byte) error {
	return p.state.DeserializeState(data)
}
func (p *sequenceSecond) EstimateSize() snapshot.SizeEstimate   { return p.state.EstimateSize() }
func (p *sequenceSecond) AccessPattern() snapshot.AccessPattern { return p.state.AccessPattern() }
func (p *sequenceSecond) GetChangelog(since string) (snapshot.ChangeLog, error) {
	return p.state.GetChangelog(since)
}
func (p *sequenceSecond) ApplyChangelog(cl snapshot.ChangeLog) error {
	return p.state.ApplyChangelog(cl)
}

func cloneSeqState(s *seqState, ctx *processor.Context) *seqState {
	clone := &seqState{
		leftArity:      s.leftArity,
		rightArity:     s.rightArity,
		withinMillis:   s.withinMillis,
		firstMin:       s.firstMin,
		firstMax:       s.firstMax,
		secondMin:      s.secondMin,
		secondMax:      s.secondMax,
		consumePartial: s.consumePartial,
		ctx:            ctx,
		id:             processor.ComponentID(ctx, "sequence"),
	}
	clone.Holder = clone
	return clone
}

func newSequence(spec *appdef.InputSpec, left, right *appdef.StreamDefinition, ctx *processor.Context) (processor.Processor, processor.Processor, error) {
	leftArity, rightArity := 0, 0
	if left != nil {
		leftArity = len(left.Attributes)
	}
	if right != nil {
		rightArity = len(right.Attributes)
	}
	state := &seqState{
		leftArity:      leftArity,
		rightArity:     rightArity,
		withinMillis:   spec.WithinMillis,
		firstMin:       spec.FirstMin,
		firstMax:       spec.FirstMax,
		secondMin:      spec.SecondMin,
		secondMax:      spec.SecondMax,
		consumePartial: spec.Kind == appdef.InputPattern,
		ctx:            ctx,
		id:             processor.ComponentID(ctx, "sequence"),
	}
	state.Holder = state
	return &sequenceFirst{state: state}, &sequenceSecond{state: state}, nil
}
