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
	"encoding/json"
	"sync"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/scheduler"
	"github.com/eventflux/eventflux/snapshot"
)

// sessionWindow groups events per session key (def.SortAttr doubles as the
// session key attribute when set; empty means one global session) and
// closes a session once def.Duration ms elapse without a new arrival,
// emitting the whole session as Current. Grounded on the teacher's
// window/session_window.go, which tracks lastTime and resets its ticker
// on every Add; here each session reschedules its own close timer via
// the shared scheduler instead of sharing one ticker across all keys.
type sessionWindow struct {
	processor.Base
	def     *appdef.WindowDefinition
	ctx     *processor.Context
	keyIdx  int
	id      string

	mu       sync.Mutex
	sessions map[string]*sessionState
	snapshot.FullReplaceChangelog
}

type sessionState struct {
	events []*event.StreamEvent
	cancel scheduler.Cancel
}

func newSessionWindow(def *appdef.WindowDefinition, ctx *processor.Context) *sessionWindow {
	w := &sessionWindow{def: def, ctx: ctx, keyIdx: ctx.ResolveAttr(def.SortAttr), sessions: map[string]*sessionState{}}
	w.id = processor.ComponentID(ctx, "session")
	w.Holder = w
	return w
}

func (w *sessionWindow) ComponentID() string                    { return w.id }
func (w *sessionWindow) SchemaVersion() snapshot.SchemaVersion   { return snapshot.SchemaVersion{Major: 1} }
func (w *sessionWindow) AccessPattern() snapshot.AccessPattern   { return snapshot.Random }

// SerializeState captures each session's buffered events keyed by session
// key. The in-flight close timer (sessionState.cancel) is not restorable
// and is dropped; a restored session resumes only once a new event for
// that key arrives and reschedules its close.
func (w *sessionWindow) SerializeState() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wire := make(map[string][]byte, len(w.sessions))
	for key, st := range w.sessions {
		b, err := event.EncodeEvents(st.events)
		if err != nil {
			return nil, err
		}
		wire[key] = b
	}
	return json.Marshal(wire)
}

func (w *sessionWindow) DeserializeState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var wire map[string][]byte
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	sessions := make(map[string]*sessionState, len(wire))
	for key, b := range wire {
		events, err := event.DecodeEvents(b)
		if err != nil {
			return err
		}
		sessions[key] = &sessionState{events: events}
	}
	w.mu.Lock()
	w.sessions = sessions
	w.mu.Unlock()
	return nil
}

func (w *sessionWindow) EstimateSize() snapshot.SizeEstimate {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, st := range w.sessions {
		n += len(st.events)
	}
	return snapshot.SizeEstimate{Entries: n}
}

func (w *sessionWindow) keyOf(se *event.StreamEvent) string {
	if w.keyIdx < 0 || w.keyIdx >= len(se.BeforeWindowData) {
		return ""
	}
	return attrvalue.AsString(se.BeforeWindowData[w.keyIdx])
}

func (w *sessionWindow) Process(chunk *event.Chunk) {
	w.mu.Lock()
	chunk.Each(func(se *event.StreamEvent) {
		key := w.keyOf(se)
		st, ok := w.sessions[key]
		if !ok {
			st = &sessionState{}
			w.sessions[key] = st
		} else if st.cancel != nil {
			st.cancel()
		}
		st.events = append(st.events, se)
		st.cancel = w.ctx.Scheduler.NotifyAt(w.ctx.Clock.Now()+w.def.Duration, scheduler.TargetFunc(func(ts int64) {
			w.closeSession(key)
		}))
	})
	w.mu.Unlock()
}

func (w *sessionWindow) closeSession(key string) {
	w.mu.Lock()
	st, ok := w.sessions[key]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.sessions, key)
	w.mu.Unlock()

	out := &event.Chunk{}
	for _, e := range st.events {
		out.Append(e.Clone())
	}
	w.Forward(out)
}

func (w *sessionWindow) CloneForNewQueryContext(ctx *processor.Context) processor.Processor {
	return newSessionWindow(w.def, ctx)
}

func (w *sessionWindow) IsStateful() bool            { return true }
func (w *sessionWindow) ProcessingMode() processor.Mode { return processor.Batch }
