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

// Package input implements the ingress path of spec §4.2: a per-stream
// InputHandler hands events to an EntryValve guarded by a ThreadBarrier,
// which publishes onto the stream's junction; the InputDistributor
// multiplexes handlers for an entire application by stream id.
package input

import (
	"fmt"
	"sync"

	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/junction"
)

// ThreadBarrier lets a snapshot pass block new ingress while it drains
// and captures state, without stopping already-admitted events from
// finishing their processing. Implemented as a RWMutex: ordinary Submit
// calls take the read side (many concurrent producers), a snapshot pass
// takes the write side around the window where it must observe a
// quiescent state.
type ThreadBarrier struct {
	mu sync.RWMutex
}

func (b *ThreadBarrier) enter() { b.mu.RLock() }
func (b *ThreadBarrier) exit()  { b.mu.RUnlock() }

// Raise blocks until all in-flight Submits finish and holds off new ones.
func (b *ThreadBarrier) Raise() { b.mu.Lock() }

// Lower resumes ingress after Raise.
func (b *ThreadBarrier) Lower() { b.mu.Unlock() }

// EntryValve is the single gate between a stream's public InputHandler
// and its junction.
type EntryValve struct {
	barrier  ThreadBarrier
	junction *junction.Junction
}

func NewEntryValve(j *junction.Junction) *EntryValve {
	return &EntryValve{junction: j}
}

// Submit converts an ingress Event to a Current StreamEvent chunk and
// publishes it, observing the ThreadBarrier.
func (v *EntryValve) Submit(e *event.Event) {
	v.barrier.enter()
	defer v.barrier.exit()
	chunk := &event.Chunk{}
	chunk.Append(event.FromEvent(e))
	v.junction.Publish(chunk)
}

// Handler is the public per-stream ingress handle spec §6 calls
// create_runtime(...).InputHandler(stream_id).
type Handler struct {
	StreamID string
	valve    *EntryValve
}

func (h *Handler) Send(e *event.Event) { h.valve.Submit(e) }

// Distributor multiplexes InputHandlers for an application by stream id.
type Distributor struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
}

func NewDistributor() *Distributor {
	return &Distributor{handlers: map[string]*Handler{}}
}

// Register wires a stream's junction into the distributor, returning its
// public Handler.
func (d *Distributor) Register(streamID string, j *junction.Junction) *Handler {
	h := &Handler{StreamID: streamID, valve: NewEntryValve(j)}
	d.mu.Lock()
	d.handlers[streamID] = h
	d.mu.Unlock()
	return h
}

func (d *Distributor) Handler(streamID string) (*Handler, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[streamID]
	if !ok {
		return nil, fmt.Errorf("input: unknown stream %q", streamID)
	}
	return h, nil
}

// RaiseAll/LowerAll pause/resume every stream's ingress together, used
// by the snapshot service to reach a quiescent point before capturing
// state (spec §4.9).
func (d *Distributor) RaiseAll() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, h := range d.handlers {
		h.valve.barrier.Raise()
	}
}

func (d *Distributor) LowerAll() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, h := range d.handlers {
		h.valve.barrier.Lower()
	}
}

// TableHandler is the bypass path for queries whose output action
// targets a table directly (spec §4.4): it skips the junction entirely
// and calls the table mutation inline.
type TableHandler struct {
	TableID string
	Insert  func(row []interface{}) error
}

func (h *TableHandler) Send(row []interface{}) error {
	if h.Insert == nil {
		return fmt.Errorf("input: table %q has no insert handler wired", h.TableID)
	}
	return h.Insert(row)
}
