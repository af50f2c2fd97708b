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

package junction

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/event"
)

func oneEventChunk() *event.Chunk {
	c := &event.Chunk{}
	c.Append(&event.StreamEvent{BeforeWindowData: []attrvalue.Value{attrvalue.Of(1)}})
	return c
}

func TestSyncPublishFansOutToAllSubscribers(t *testing.T) {
	j := New("s", false, OnErrorLog)
	var a, b int32
	j.Subscribe(SubscriberFunc(func(chunk *event.Chunk) { atomic.AddInt32(&a, int32(chunk.Len)) }))
	j.Subscribe(SubscriberFunc(func(chunk *event.Chunk) { atomic.AddInt32(&b, int32(chunk.Len)) }))

	j.Publish(oneEventChunk())

	assert.EqualValues(t, 1, atomic.LoadInt32(&a))
	assert.EqualValues(t, 1, atomic.LoadInt32(&b))
}

func TestAsyncPublishDoesNotBlockProducer(t *testing.T) {
	j := New("s", true, OnErrorLog)
	var wg sync.WaitGroup
	wg.Add(1)
	j.Subscribe(SubscriberFunc(func(chunk *event.Chunk) {
		defer wg.Done()
	}))
	j.Publish(oneEventChunk())

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async subscriber never received the chunk")
	}
	j.Shutdown()
}

func TestOnErrorStreamRedirectsToFaultSink(t *testing.T) {
	j := New("s", false, OnErrorStream)
	var caught FaultEvent
	var mu sync.Mutex
	j.FaultSink = func(f FaultEvent) {
		mu.Lock()
		caught = f
		mu.Unlock()
	}
	j.Subscribe(SubscriberFunc(func(chunk *event.Chunk) { panic("boom") }))

	j.Publish(oneEventChunk())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "boom", caught.Reason)
}

func TestOnErrorStoreRecordsFailure(t *testing.T) {
	j := New("s", false, OnErrorStore)
	j.Subscribe(SubscriberFunc(func(chunk *event.Chunk) { panic("boom") }))
	j.Publish(oneEventChunk())
	assert.Equal(t, 1, j.StoredFailures())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	j := New("s", false, OnErrorLog)
	var count int32
	unsub := j.Subscribe(SubscriberFunc(func(chunk *event.Chunk) { atomic.AddInt32(&count, 1) }))
	j.Publish(oneEventChunk())
	unsub()
	j.Publish(oneEventChunk())
	assert.EqualValues(t, 1, atomic.LoadInt32(&count))
}
