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
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/scheduler"
	"github.com/eventflux/eventflux/snapshot"
)

// notWait is a single armed wait: the first-side event that started the
// clock, cancelled (satisfied) if the absent stream arrives before
// waitMillis elapses.
type notWait struct {
	first     *event.StreamEvent
	armedAt   int64
	satisfied bool
}

// notState implements spec §4.7's AbsentStreamStateElement: arrival at
// First arms a wait (WaitMillis, 0 meaning fire immediately with no real
// wait); if the absent stream's side processor does not mark the wait
// satisfied before the timer fires, emit a synthetic match.
type notState struct {
	mu         sync.Mutex
	pending    []*notWait
	leftArity  int
	waitMillis int64
	ctx        *processor.Context

	id string
	snapshot.FullReplaceChangelog
}

func (s *notState) ComponentID() string                  { return s.id }
func (s *notState) SchemaVersion() snapshot.SchemaVersion { return snapshot.SchemaVersion{Major: 1} }
func (s *notState) AccessPattern() snapshot.AccessPattern { return snapshot.Sequential }

// wireNotWait drops the scheduler timer each pending wait carries — it
// cannot be rearmed from a serialized deadline without rescheduling
// infrastructure this implementation doesn't have, so a restored wait
// stays in pending with no timer and never fires.
type wireNotWait struct {
	First     []byte
	ArmedAt   int64
	Satisfied bool
}

func (s *notState) SerializeState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wire := make([]wireNotWait, len(s.pending))
	for i, w := range s.pending {
		b, err := event.EncodeEvents([]*event.StreamEvent{w.first})
		if err != nil {
			return nil, err
		}
		wire[i] = wireNotWait{First: b, ArmedAt: w.armedAt, Satisfied: w.satisfied}
	}
	return json.Marshal(wire)
}

func (s *notState) DeserializeState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var wire []wireNotWait
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	pending := make([]*notWait, 0, len(wire))
	for _, w := range wire {
		events, err := event.DecodeEvents(w.First)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			continue
		}
		pending = append(pending, &notWait{first: events[0], armedAt: w.ArmedAt, satisfied: w.Satisfied})
	}
	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()
	return nil
}

func (s *notState) EstimateSize() snapshot.SizeEstimate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot.SizeEstimate{Entries: len(s.pending)}
}

type notFirst struct {
	processor.Base
	state *notState
}

func (p *notFirst) Process(chunk *event.Chunk) {
	chunk.Each(func(se *event.StreamEvent) {
		if se.Tag != event.Current {
			return
		}
		own := se.Clone()
		if p.state.waitMillis <= 0 || p.state.ctx == nil || p.state.ctx.Scheduler == nil {
			out := &event.Chunk{}
			out.Append(concat(own, nil, p.state.leftArity, 0))
			p.Forward(out)
			return
		}

		w := &notWait{first: own, armedAt: se.Timestamp}
		p.state.mu.Lock()
		p.state.pending = append(p.state.pending, w)
		p.state.mu.Unlock()

		deadline := se.Timestamp + p.state.waitMillis
		p.state.ctx.Scheduler.NotifyAt(deadline, scheduler.TargetFunc(func(int64) {
			p.state.mu.Lock()
			fire := !w.satisfied
			p.state.removeLocked(w)
			p.state.mu.Unlock()
			if fire {
				out := &event.Chunk{}
				out.Append(concat(w.first, nil, p.state.leftArity, 0))
				p.Forward(out)
			}
		}))
	})
}

func (s *notState) removeLocked(target *notWait) {
	for i, w := range s.pending {
		if w == target {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func (p *notFirst) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	state := &notState{leftArity: p.state.leftArity, waitMillis: p.state.waitMillis, ctx: ctx, id: processor.ComponentID(ctx, "not")}
	state.Holder = state
	return &notFirst{state: state}
}
func (p *notFirst) IsStateful() bool              { return true }
func (p *notFirst) ProcessingMode() processor.Mode { return processor.Default }

func (p *notFirst) ComponentID() string                  { return p.state.ComponentID() }
func (p *notFirst) SchemaVersion() snapshot.SchemaVersion { return p.state.SchemaVersion() }
func (p *notFirst) SerializeState() ([]byte, error)       { return p.state.SerializeState() }
func (p *notFirst) DeserializeState(data []byte) error    { return p.state.DeserializeState(data) }
func (p *notFirst) EstimateSize() snapshot.SizeEstimate   { return p.state.EstimateSize() }
func (p *notFirst) AccessPattern() snapshot.AccessPattern { return p.state.AccessPattern() }
func (p *notFirst) GetChangelog(since string) (snapshot.ChangeLog, error) {
	return p.state.GetChangelog(since)
}
func (p *notFirst) ApplyChangelog(cl snapshot.ChangeLog) error { return p.state.ApplyChangelog(cl) }

// notAbsent is the side processor subscribed to the stream NOT claims is
// absent: any Current arrival within an armed wait's window satisfies it,
// suppressing the synthetic match.
type notAbsent struct {
	processor.Base
	state *notState
}

func (p *notAbsent) Process(chunk *event.Chunk) {
	p.state.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		if se.Tag != event.Current {
			return
		}
		for _, w := range p.state.pending {
			if se.Timestamp-w.armedAt <= p.state.waitMillis {
				w.satisfied = true
			}
		}
	})
	p.state.mu.Unlock()
}

func (p *notAbsent) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return &notAbsent{state: p.state}
}
func (p *notAbsent) IsStateful() bool              { return false }
func (p *notAbsent) ProcessingMode() processor.Mode { return processor.Default }

func newLogicalNot(spec *appdef.InputSpec, left *appdef.StreamDefinition, ctx *processor.Context) (processor.Processor, processor.Processor, error) {
	leftArity := 0
	if left != nil {
		leftArity = len(left.Attributes)
	}
	state := &notState{leftArity: leftArity, waitMillis: spec.WaitMillis, ctx: ctx, id: processor.ComponentID(ctx, "not")}
	state.Holder = state
	return &notFirst{state: state}, &notAbsent{state: state}, nil
}
