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
	"github.com/eventflux/eventflux/snapshot"
)

// logicalState backs both "A and B" and "A or B" (spec §4.7): AND
// buffers each side and emits the Cartesian product once both sides have
// at least one waiting event, then drains both buffers; OR emits each
// arrival immediately, padded with nulls for the absent side.
type logicalState struct {
	mu         sync.Mutex
	first      []*event.StreamEvent
	second     []*event.StreamEvent
	leftArity  int
	rightArity int
	isAnd      bool

	id string
	snapshot.FullReplaceChangelog
}

func (s *logicalState) ComponentID() string                  { return s.id }
func (s *logicalState) SchemaVersion() snapshot.SchemaVersion { return snapshot.SchemaVersion{Major: 1} }
func (s *logicalState) AccessPattern() snapshot.AccessPattern { return snapshot.Sequential }

type wireLogicalState struct {
	First  []byte
	Second []byte
}

func (s *logicalState) SerializeState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	first, err := event.EncodeEvents(s.first)
	if err != nil {
		return nil, err
	}
	second, err := event.EncodeEvents(s.second)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireLogicalState{First: first, Second: second})
}

func (s *logicalState) DeserializeState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var w wireLogicalState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	first, err := event.DecodeEvents(w.First)
	if err != nil {
		return err
	}
	second, err := event.DecodeEvents(w.Second)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.first, s.second = first, second
	s.mu.Unlock()
	return nil
}

func (s *logicalState) EstimateSize() snapshot.SizeEstimate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot.SizeEstimate{Entries: len(s.first) + len(s.second)}
}

type logicalSide struct {
	processor.Base
	state   *logicalState
	isFirst bool
}

func (p *logicalSide) Process(chunk *event.Chunk) {
	out := &event.Chunk{}
	p.state.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		if se.Tag != event.Current {
			return
		}
		own := se.Clone()

		if !p.state.isAnd {
			var joined *event.StreamEvent
			if p.isFirst {
				joined = concat(own, nil, p.state.leftArity, p.state.rightArity)
			} else {
				joined = concat(nil, own, p.state.leftArity, p.state.rightArity)
			}
			out.Append(joined)
			return
		}

		if p.isFirst {
			p.state.first = append(p.state.first, own)
		} else {
			p.state.second = append(p.state.second, own)
		}
		if len(p.state.first) == 0 || len(p.state.second) == 0 {
			return
		}
		for _, f := range p.state.first {
			for _, s := range p.state.second {
				out.Append(concat(f, s, p.state.leftArity, p.state.rightArity))
			}
		}
		p.state.first = nil
		p.state.second = nil
	})
	p.state.mu.Unlock()

	if out.Len > 0 {
		p.Forward(out)
	}
}

func (p *logicalSide) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	state := &logicalState{
		leftArity:  p.state.leftArity,
		rightArity: p.state.rightArity,
		isAnd:      p.state.isAnd,
		id:         processor.ComponentID(ctx, "logical"),
	}
	state.Holder = state
	return &logicalSide{state: state, isFirst: p.isFirst}
}
func (p *logicalSide) IsStateful() bool              { return true }
func (p *logicalSide) ProcessingMode() processor.Mode { return processor.Default }

// StateHolder is delegated to the shared logicalState; both logicalSide
// instances of one combinator report the same ComponentID, so the
// wiring pass that registers StateHolders dedups by id.
func (p *logicalSide) ComponentID() string                  { return p.state.ComponentID() }
func (p *logicalSide) SchemaVersion() snapshot.SchemaVersion { return p.state.SchemaVersion() }
func (p *logicalSide) SerializeState() ([]byte, error)       { return p.state.SerializeState() }
func (p *logicalSide) DeserializeState(data []byte) error    { return p.state.DeserializeState(data) }
func (p *logicalSide) EstimateSize() snapshot.SizeEstimate   { return p.state.EstimateSize() }
func (p *logicalSide) AccessPattern() snapshot.AccessPattern { return p.state.AccessPattern() }
func (p *logicalSide) GetChangelog(since string) (snapshot.ChangeLog, error) {
	return p.state.GetChangelog(since)
}
func (p *logicalSide) ApplyChangelog(cl snapshot.ChangeLog) error {
	return p.state.ApplyChangelog(cl)
}

func newLogical(spec *appdef.InputSpec, left, right *appdef.StreamDefinition, ctx *processor.Context) (processor.Processor, processor.Processor, error) {
	leftArity, rightArity := 0, 0
	if left != nil {
		leftArity = len(left.Attributes)
	}
	if right != nil {
		rightArity = len(right.Attributes)
	}
	state := &logicalState{leftArity: leftArity, rightArity: rightArity, isAnd: spec.Logical == "and", id: processor.ComponentID(ctx, "logical")}
	state.Holder = state
	return &logicalSide{state: state, isFirst: true}, &logicalSide{state: state, isFirst: false}, nil
}
