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
	"github.com/eventflux/eventflux/expr"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/snapshot"
)

// joinState is the interior mutability shared by a join's two side
// processors (spec §4.7: "both share the same internal state via
// interior mutability").
type joinState struct {
	mu    sync.Mutex
	left  []*event.StreamEvent
	right []*event.StreamEvent

	leftArity, rightArity int
	onExec                expr.Executor
	kind                  appdef.JoinKind

	id string
	snapshot.FullReplaceChangelog
}

func (s *joinState) ComponentID() string                  { return s.id }
func (s *joinState) SchemaVersion() snapshot.SchemaVersion { return snapshot.SchemaVersion{Major: 1} }
func (s *joinState) AccessPattern() snapshot.AccessPattern { return snapshot.Sequential }

type wireJoinState struct {
	Left  []byte
	Right []byte
}

func (s *joinState) SerializeState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	left, err := event.EncodeEvents(s.left)
	if err != nil {
		return nil, err
	}
	right, err := event.EncodeEvents(s.right)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireJoinState{Left: left, Right: right})
}

func (s *joinState) DeserializeState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var w wireJoinState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	left, err := event.DecodeEvents(w.Left)
	if err != nil {
		return err
	}
	right, err := event.DecodeEvents(w.Right)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.left, s.right = left, right
	s.mu.Unlock()
	return nil
}

func (s *joinState) EstimateSize() snapshot.SizeEstimate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot.SizeEstimate{Entries: len(s.left) + len(s.right)}
}

func (s *joinState) matches(left, right *event.StreamEvent) bool {
	if s.onExec == nil {
		return true
	}
	row := concat(left, right, s.leftArity, s.rightArity)
	v := s.onExec.Execute(row)
	b, ok := v.Raw.(bool)
	return ok && b
}

func (s *joinState) emitsOnNoMatch(leftSide bool) bool {
	switch s.kind {
	case appdef.JoinFullOuter:
		return true
	case appdef.JoinLeftOuter:
		return leftSide
	case appdef.JoinRightOuter:
		return !leftSide
	default:
		return false
	}
}

type joinSide struct {
	processor.Base
	state  *joinState
	isLeft bool
}

func (p *joinSide) Process(chunk *event.Chunk) {
	out := &event.Chunk{}
	p.state.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		switch se.Tag {
		case event.Expired:
			if p.isLeft {
				p.state.left = removeMatching(p.state.left, se)
			} else {
				p.state.right = removeMatching(p.state.right, se)
			}
			return
		case event.Current, event.Reset:
		default:
			return
		}

		var own *event.StreamEvent
		if p.isLeft {
			own = se.Clone()
			p.state.left = append(p.state.left, own)
		} else {
			own = se.Clone()
			p.state.right = append(p.state.right, own)
		}

		other := p.state.right
		if !p.isLeft {
			other = p.state.left
		}

		matched := false
		for _, o := range other {
			var joined *event.StreamEvent
			if p.isLeft {
				joined = concat(own, o, p.state.leftArity, p.state.rightArity)
			} else {
				joined = concat(o, own, p.state.leftArity, p.state.rightArity)
			}
			var matchesRow bool
			if p.isLeft {
				matchesRow = p.state.matches(own, o)
			} else {
				matchesRow = p.state.matches(o, own)
			}
			if matchesRow {
				matched = true
				out.Append(joined)
			}
		}
		if !matched && p.state.emitsOnNoMatch(p.isLeft) {
			var joined *event.StreamEvent
			if p.isLeft {
				joined = concat(own, nil, p.state.leftArity, p.state.rightArity)
			} else {
				joined = concat(nil, own, p.state.leftArity, p.state.rightArity)
			}
			out.Append(joined)
		}
	})
	p.state.mu.Unlock()

	if out.Len > 0 {
		p.Forward(out)
	}
}

func (p *joinSide) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	state := &joinState{
		leftArity:  p.state.leftArity,
		rightArity: p.state.rightArity,
		onExec:     p.state.onExec,
		kind:       p.state.kind,
		id:         processor.ComponentID(ctx, "join"),
	}
	state.Holder = state
	return &joinSide{state: state, isLeft: p.isLeft}
}

func (p *joinSide) IsStateful() bool          { return true }
func (p *joinSide) ProcessingMode() processor.Mode { return processor.Default }

// StateHolder is delegated to the shared joinState: both joinSide
// instances of one join report the same ComponentID, so the eventflux
// wiring pass that registers StateHolders must dedup by id to avoid
// registering the pair's state twice.
func (p *joinSide) ComponentID() string                    { return p.state.ComponentID() }
func (p *joinSide) SchemaVersion() snapshot.SchemaVersion   { return p.state.SchemaVersion() }
func (p *joinSide) SerializeState() ([]byte, error)         { return p.state.SerializeState() }
func (p *joinSide) DeserializeState(data []byte) error      { return p.state.DeserializeState(data) }
func (p *joinSide) EstimateSize() snapshot.SizeEstimate     { return p.state.EstimateSize() }
func (p *joinSide) AccessPattern() snapshot.AccessPattern   { return p.state.AccessPattern() }
func (p *joinSide) GetChangelog(since string) (snapshot.ChangeLog, error) {
	return p.state.GetChangelog(since)
}
func (p *joinSide) ApplyChangelog(cl snapshot.ChangeLog) error { return p.state.ApplyChangelog(cl) }

func newJoin(spec *appdef.InputSpec, left, right *appdef.StreamDefinition, ctx *processor.Context) (processor.Processor, processor.Processor, error) {
	meta := expr.NewMetaStreamEvent(left)
	if right != nil {
		meta.WithRight(right)
	}
	meta.Aliases["left"] = 0
	meta.Aliases["right"] = 1
	leftArity, rightArity := 0, 0
	if left != nil {
		leftArity = len(left.Attributes)
	}
	if right != nil {
		rightArity = len(right.Attributes)
	}

	var onExec expr.Executor
	if spec.OnExpr != "" {
		var err error
		onExec, err = expr.CompileString(spec.OnExpr, meta)
		if err != nil {
			return nil, nil, err
		}
	}

	state := &joinState{
		leftArity:  leftArity,
		rightArity: rightArity,
		onExec:     onExec,
		kind:       spec.JoinKind,
		id:         processor.ComponentID(ctx, "join"),
	}
	state.Holder = state
	leftSide := &joinSide{state: state, isLeft: true}
	rightSide := &joinSide{state: state, isLeft: false}
	return leftSide, rightSide, nil
}
