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

// Package window implements the ten window processors of spec §4.6. Each
// kind satisfies processor.Processor structurally: it buffers arriving
// events and, when an arrival evicts an older event from the window,
// emits that Expired departure ahead of the triggering Current arrival
// in the same output chunk (the original insertBeforeCurrent ordering),
// exactly as the teacher's window family buffers rows and emits add/end/
// archive events through an observer (window/sliding_window.go,
// window/session_window.go, window/counting_window.go), generalized from
// float64 samples to full StreamEvent chunks and from an observer struct
// to the shared Processor chain. sortWindow is the exception: it appends
// the Current arrival first and then the event it expires, which may be
// that arrival itself.
package window

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/snapshot"
)

// New constructs the Processor for a window definition, mirroring the
// teacher's factory.CreateWindow switch (window/factory.go).
func New(def *appdef.WindowDefinition, ctx *processor.Context) (processor.Processor, error) {
	switch def.Kind {
	case appdef.WindowLength:
		return newLengthWindow(def, ctx), nil
	case appdef.WindowLengthBatch:
		return newLengthBatchWindow(def, ctx), nil
	case appdef.WindowTime:
		return newTimeWindow(def, ctx), nil
	case appdef.WindowTimeBatch:
		return newTimeBatchWindow(def, ctx), nil
	case appdef.WindowExternalTime:
		return newExternalTimeWindow(def, ctx), nil
	case appdef.WindowExternalTimeBatch:
		return newExternalTimeBatchWindow(def, ctx), nil
	case appdef.WindowLossyCounting:
		return newLossyCountingWindow(def, ctx), nil
	case appdef.WindowCron:
		return newCronWindow(def, ctx)
	case appdef.WindowSession:
		return newSessionWindow(def, ctx), nil
	case appdef.WindowSort:
		return newSortWindow(def, ctx), nil
	default:
		return nil, fmt.Errorf("window: unknown kind %q", def.Kind)
	}
}

// buffer is the shared mutex-guarded event list every window kind buffers
// its contents in, replacing the teacher's circle-queue of float64s
// (utils/queue) with a plain slice of *event.StreamEvent since window
// state here is whole tuples, not single numeric samples. Embedding
// buffer also promotes the snapshot.StateHolder methods below onto the
// four window kinds that keep a flat event list (length, sort, time,
// external_time — spec §4.6's "windows ... register a state holder
// (§4.9)"), once initState has been called to give the holder an id.
type buffer struct {
	mu     sync.Mutex
	events []*event.StreamEvent
	id     string
	snapshot.FullReplaceChangelog
}

// initState must be called once by a window's constructor before the
// embedded buffer is usable as a snapshot.StateHolder: it records the
// component id and points the changelog mixin at holder, normally the
// enclosing window itself so that a kind overriding SerializeState (see
// externalTimeBatchWindow) is changelogged through its own override
// rather than the shared helper's.
func (b *buffer) initState(id string, holder snapshot.StateHolder) {
	b.id = id
	b.Holder = holder
}

func (b *buffer) ComponentID() string { return b.id }

func (b *buffer) SchemaVersion() snapshot.SchemaVersion {
	return snapshot.SchemaVersion{Major: 1}
}

func (b *buffer) SerializeState() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return event.EncodeEvents(b.events)
}

func (b *buffer) DeserializeState(data []byte) error {
	events, err := event.DecodeEvents(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.events = events
	b.mu.Unlock()
	return nil
}

func (b *buffer) EstimateSize() snapshot.SizeEstimate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return snapshot.SizeEstimate{Entries: len(b.events)}
}

func (b *buffer) AccessPattern() snapshot.AccessPattern { return snapshot.Sequential }

// batchState is the shared current/prev event-batch state backing every
// batch-mode window kind (length_batch, time_batch, external_time_batch,
// cron): each tumbles on a different trigger, but all of them hold
// exactly the previous closed batch and the not-yet-closed one at any
// moment, so one StateHolder implementation serves all four the same way
// buffer serves the sliding kinds above.
type batchState struct {
	mu      sync.Mutex
	current []*event.StreamEvent
	prev    []*event.StreamEvent
	id      string
	snapshot.FullReplaceChangelog
}

func (b *batchState) initState(id string, holder snapshot.StateHolder) {
	b.id = id
	b.Holder = holder
}

func (b *batchState) ComponentID() string { return b.id }

func (b *batchState) SchemaVersion() snapshot.SchemaVersion {
	return snapshot.SchemaVersion{Major: 1}
}

type wireBatchState struct {
	Current []byte
	Prev    []byte
}

func (b *batchState) SerializeState() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, err := event.EncodeEvents(b.current)
	if err != nil {
		return nil, err
	}
	prev, err := event.EncodeEvents(b.prev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireBatchState{Current: cur, Prev: prev})
}

func (b *batchState) DeserializeState(data []byte) error {
	var w wireBatchState
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	current, err := event.DecodeEvents(w.Current)
	if err != nil {
		return err
	}
	prev, err := event.DecodeEvents(w.Prev)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.current, b.prev = current, prev
	b.mu.Unlock()
	return nil
}

func (b *batchState) EstimateSize() snapshot.SizeEstimate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return snapshot.SizeEstimate{Entries: len(b.current) + len(b.prev)}
}

func (b *batchState) AccessPattern() snapshot.AccessPattern { return snapshot.Sequential }

func cloneExpired(se *event.StreamEvent) *event.StreamEvent {
	c := se.Clone()
	c.Tag = event.Expired
	c.Next = nil
	return c
}

func appendAll(chunk *event.Chunk, events []*event.StreamEvent) {
	for _, se := range events {
		chunk.Append(se)
	}
}
