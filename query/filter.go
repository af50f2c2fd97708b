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
	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
)

// filterProcessor is the WHERE-clause stage of the chain (spec §4.4),
// applied to one input stream's raw row before it reaches a window or
// pattern/join side-entry. Stateless: every arriving event is evaluated
// independently.
type filterProcessor struct {
	processor.Base
	cond   *condition
	stream *appdef.StreamDefinition
}

func newFilterProcessor(clause string, stream *appdef.StreamDefinition) (*filterProcessor, error) {
	cond, err := compileCondition(clause)
	if err != nil {
		return nil, err
	}
	return &filterProcessor{cond: cond, stream: stream}, nil
}

func (p *filterProcessor) env(se *event.StreamEvent) map[string]interface{} {
	env := make(map[string]interface{}, len(p.stream.Attributes))
	for i, a := range p.stream.Attributes {
		if i < len(se.BeforeWindowData) {
			env[a.Name] = se.BeforeWindowData[i].Raw
		} else {
			env[a.Name] = nil
		}
	}
	return env
}

func (p *filterProcessor) Process(chunk *event.Chunk) {
	out := &event.Chunk{}
	chunk.Each(func(se *event.StreamEvent) {
		if se.Tag == event.Expired || p.cond.Evaluate(p.env(se)) {
			// Expired (retraction) events bypass the filter so a row that
			// passed WHERE on arrival is always correctly retracted later,
			// even if its values changed such that it would no longer
			// match (spec §4.1's three-valued filter only gates Current).
			clone := se.Clone()
			clone.Next = nil
			out.Append(clone)
		}
	})
	if out.Len > 0 {
		p.Forward(out)
	}
}

func (p *filterProcessor) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return &filterProcessor{cond: p.cond, stream: p.stream}
}

func (p *filterProcessor) IsStateful() bool              { return false }
func (p *filterProcessor) ProcessingMode() processor.Mode { return processor.Default }
