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

package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflux/eventflux/clock"
)

func TestNotifyAtFiresOnce(t *testing.T) {
	pb := clock.NewPlayback()
	s := New(pb)
	defer s.Shutdown()

	var fired int64
	s.NotifyAt(1000, TargetFunc(func(ts int64) { atomic.AddInt64(&fired, 1) }))

	pb.Advance(500)
	s.Tick()
	assert.Equal(t, int64(0), atomic.LoadInt64(&fired))

	pb.Advance(1000)
	s.Tick()
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))

	pb.Advance(2000)
	s.Tick()
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired), "a one-shot timer never fires twice")
}

func TestSchedulePeriodicRespectsLimit(t *testing.T) {
	pb := clock.NewPlayback()
	s := New(pb)
	defer s.Shutdown()

	var fired int64
	s.SchedulePeriodic(100, TargetFunc(func(ts int64) { atomic.AddInt64(&fired, 1) }), 3)

	for i := 1; i <= 5; i++ {
		pb.Advance(int64(i) * 100)
		s.Tick()
	}
	assert.Equal(t, int64(3), atomic.LoadInt64(&fired))
}

func TestCancelStopsFutureFirings(t *testing.T) {
	pb := clock.NewPlayback()
	s := New(pb)
	defer s.Shutdown()

	var fired int64
	cancel := s.SchedulePeriodic(100, TargetFunc(func(ts int64) { atomic.AddInt64(&fired, 1) }), 0)

	pb.Advance(100)
	s.Tick()
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))

	cancel()
	pb.Advance(500)
	s.Tick()
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))
}

func TestScheduleCronInvalidExpression(t *testing.T) {
	s := New(clock.System{})
	defer s.Shutdown()
	_, err := s.ScheduleCron("not a cron", TargetFunc(func(int64) {}), 0)
	require.Error(t, err)
}

func TestScheduleCronFiresOnMatchingMinute(t *testing.T) {
	pb := clock.NewPlayback()
	start := time.Date(2026, 7, 29, 11, 59, 0, 0, time.UTC).UnixMilli()
	pb.Advance(start)
	s := New(pb)
	defer s.Shutdown()

	var fired int64
	_, err := s.ScheduleCron("0 12 * * *", TargetFunc(func(int64) { atomic.AddInt64(&fired, 1) }), 1)
	require.NoError(t, err)

	pb.Advance(time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC).UnixMilli())
	s.Tick()
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))
}

func TestNewScheduler_realClockBackgroundLoopFires(t *testing.T) {
	s := New(clock.System{})
	defer s.Shutdown()

	done := make(chan struct{})
	s.NotifyAt(time.Now().Add(10*time.Millisecond).UnixMilli(), TargetFunc(func(int64) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired on the real background loop")
	}
}
