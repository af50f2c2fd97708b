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

// Package junction implements the StreamJunction pub/sub bus of spec
// §4.2: every stream has exactly one junction, queries subscribe their
// processor chain's entry point to it, and publication either iterates
// subscribers inline (sync) or hands the chunk to a bounded worker queue
// per subscriber (async).
package junction

import (
	"fmt"
	"sync"

	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/logger"
)

// OnErrorPolicy controls what happens when a subscriber panics while
// processing a chunk (spec §4.2).
type OnErrorPolicy int

const (
	// OnErrorLog logs the error and drops the chunk for that subscriber.
	OnErrorLog OnErrorPolicy = iota
	// OnErrorStream sends the failed chunk's first event to FaultSink.
	OnErrorStream
	// OnErrorStore records the failure for later inspection (spec §9
	// "on_error policies" — a minimal in-memory store here).
	OnErrorStore
	// OnErrorDrop silently discards the chunk.
	OnErrorDrop
)

// FaultEvent carries the failing event plus diagnostic context to the
// fault stream, the supplemented feature from SPEC_FULL.md §12.
type FaultEvent struct {
	Original *event.Event
	Reason   string
	Stage    string
}

// Subscriber receives chunks published to a junction.
type Subscriber interface {
	Process(chunk *event.Chunk)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(chunk *event.Chunk)

func (f SubscriberFunc) Process(chunk *event.Chunk) { f(chunk) }

// Junction is the single pub/sub point for one stream.
type Junction struct {
	StreamID string
	Async    bool
	OnError  OnErrorPolicy
	// FaultSink receives FaultEvents when OnError is OnErrorStream.
	FaultSink func(FaultEvent)

	mu          sync.RWMutex
	subscribers []*asyncSubscriber
	stored      []storedFailure
	storedMu    sync.Mutex
}

type storedFailure struct {
	reason string
	stage  string
}

type asyncSubscriber struct {
	sub   Subscriber
	queue chan *event.Chunk
	stop  chan struct{}
	wg    sync.WaitGroup
}

// New constructs a junction for a stream. async selects fan-out mode:
// sync iterates subscribers inline on the publisher's goroutine (spec
// §4.2's default); async hands each subscriber a bounded channel serviced
// by its own worker goroutine, decoupling slow subscribers from fast
// producers.
func New(streamID string, async bool, onError OnErrorPolicy) *Junction {
	return &Junction{StreamID: streamID, Async: async, OnError: onError}
}

// Subscribe registers a processor chain's entry point. Returns an
// Unsubscribe func.
func (j *Junction) Subscribe(sub Subscriber) (unsubscribe func()) {
	as := &asyncSubscriber{sub: sub}
	if j.Async {
		as.queue = make(chan *event.Chunk, 1024)
		as.stop = make(chan struct{})
		as.wg.Add(1)
		go j.worker(as)
	}
	j.mu.Lock()
	j.subscribers = append(j.subscribers, as)
	j.mu.Unlock()

	return func() {
		j.mu.Lock()
		for i, s := range j.subscribers {
			if s == as {
				j.subscribers = append(j.subscribers[:i], j.subscribers[i+1:]...)
				break
			}
		}
		j.mu.Unlock()
		if j.Async {
			close(as.stop)
			as.wg.Wait()
		}
	}
}

func (j *Junction) worker(as *asyncSubscriber) {
	defer as.wg.Done()
	for {
		select {
		case chunk := <-as.queue:
			j.dispatch(as.sub, chunk)
		case <-as.stop:
			return
		}
	}
}

// Publish fans a chunk out to every current subscriber. With more than one
// subscriber, each receives its own clone (spec §9's deep-clone-per-
// subscriber rule) since downstream processors may mutate events in place;
// a sole subscriber receives the published chunk itself.
func (j *Junction) Publish(chunk *event.Chunk) {
	j.mu.RLock()
	subs := make([]*asyncSubscriber, len(j.subscribers))
	copy(subs, j.subscribers)
	j.mu.RUnlock()

	for i, as := range subs {
		clone := chunk
		if i > 0 || len(subs) > 1 {
			clone = &event.Chunk{}
			clone.AppendChunk(event.CloneChunk(chunk.Head))
		}
		if j.Async {
			select {
			case as.queue <- clone:
			default:
				logger.Warn("junction %s: subscriber queue full, dropping chunk", j.StreamID)
			}
			continue
		}
		j.dispatch(as.sub, clone)
	}
}

func (j *Junction) dispatch(sub Subscriber, chunk *event.Chunk) {
	defer func() {
		if r := recover(); r != nil {
			j.handleError(chunk, fmt.Sprintf("%v", r))
		}
	}()
	sub.Process(chunk)
}

func (j *Junction) handleError(chunk *event.Chunk, reason string) {
	switch j.OnError {
	case OnErrorStream:
		if j.FaultSink != nil && chunk.Head != nil {
			j.FaultSink(FaultEvent{Original: chunk.Head.ToEvent(), Reason: reason, Stage: j.StreamID})
		}
	case OnErrorStore:
		j.storedMu.Lock()
		j.stored = append(j.stored, storedFailure{reason: reason, stage: j.StreamID})
		j.storedMu.Unlock()
	case OnErrorDrop:
		// nothing to do
	default:
		logger.Error("junction %s: subscriber error: %s", j.StreamID, reason)
	}
}

// StoredFailures returns failures recorded under OnErrorStore.
func (j *Junction) StoredFailures() int {
	j.storedMu.Lock()
	defer j.storedMu.Unlock()
	return len(j.stored)
}

// Shutdown stops every async subscriber's worker goroutine.
func (j *Junction) Shutdown() {
	j.mu.Lock()
	subs := j.subscribers
	j.subscribers = nil
	j.mu.Unlock()
	if !j.Async {
		return
	}
	for _, as := range subs {
		close(as.stop)
		as.wg.Wait()
	}
}
