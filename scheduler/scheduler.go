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

// Package scheduler implements the single logical scheduler of spec §4.8:
// notify_at, schedule_periodic and schedule_cron, driven by one polling
// goroutine that calls due targets inline and a single clock.Source so
// live and playback-mode applications share one code path.
package scheduler

import (
	"sync"
	"time"

	"github.com/eventflux/eventflux/clock"
)

// Target receives a callback when a scheduled deadline elapses.
type Target interface {
	OnTime(ts int64)
}

// TargetFunc adapts a plain function to Target.
type TargetFunc func(ts int64)

func (f TargetFunc) OnTime(ts int64) { f(ts) }

// Cancel stops a single scheduled timer/periodic/cron registration.
type Cancel func()

type pending struct {
	id       int64
	deadline int64
	target   Target
	periodMs int64 // >0 for periodic
	cron     *cronSchedule
	limit    int // 0 means unlimited
	fired    int
	cancelled bool
}

// Scheduler dispatches timed callbacks against an injected clock.Source,
// polling at a short fixed tick rather than one goroutine per timer so the
// same loop drives both live (wall-clock) and playback (event-clock)
// applications (spec §4.8/§9).
type Scheduler struct {
	clock clock.Source

	mu      sync.Mutex
	timers  map[int64]*pending
	nextID  int64

	pollEvery time.Duration
	stop      chan struct{}
	stopped   bool
	wg        sync.WaitGroup
}

// Default pool sizing follows spec §5: a "default" pool whose size is left
// to the Go runtime scheduler (goroutines are cheap; EventFlux does not
// hand-roll an OS thread pool the way a JVM engine would).
func New(clk clock.Source) *Scheduler {
	s := &Scheduler{
		clock:     clk,
		timers:    map[int64]*pending{},
		pollEvery: 5 * time.Millisecond,
		stop:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Tick lets a playback-mode caller force an immediate scan right after
// advancing the event clock, instead of waiting for the next poll.
func (s *Scheduler) Tick() { s.tick() }

func (s *Scheduler) tick() {
	now := s.clock.Now()
	var due []*pending
	s.mu.Lock()
	for id, p := range s.timers {
		if p.cancelled {
			delete(s.timers, id)
			continue
		}
		if p.deadline > now {
			continue
		}
		due = append(due, p)
		p.fired++
		switch {
		case p.cron != nil:
			next, ok := p.cron.next(now)
			if !ok || (p.limit > 0 && p.fired >= p.limit) {
				delete(s.timers, id)
			} else {
				p.deadline = next
			}
		case p.periodMs > 0:
			if p.limit > 0 && p.fired >= p.limit {
				delete(s.timers, id)
			} else {
				p.deadline = now + p.periodMs
			}
		default:
			delete(s.timers, id)
		}
	}
	s.mu.Unlock()

	for _, p := range due {
		p.target.OnTime(now)
	}
}

func (s *Scheduler) register(p *pending) Cancel {
	s.mu.Lock()
	s.nextID++
	p.id = s.nextID
	s.timers[p.id] = p
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if t, ok := s.timers[p.id]; ok {
			t.cancelled = true
		}
		s.mu.Unlock()
	}
}

// NotifyAt schedules a single callback at absolute epoch-ms ts.
func (s *Scheduler) NotifyAt(ts int64, target Target) Cancel {
	return s.register(&pending{deadline: ts, target: target})
}

// SchedulePeriodic schedules a repeating callback every periodMs,
// optionally capped at `limit` firings (0 = unlimited).
func (s *Scheduler) SchedulePeriodic(periodMs int64, target Target, limit int) Cancel {
	return s.register(&pending{
		deadline: s.clock.Now() + periodMs,
		target:   target,
		periodMs: periodMs,
		limit:    limit,
	})
}

// ScheduleCron schedules a callback on every cron tick matching expr,
// optionally capped at `limit` firings.
func (s *Scheduler) ScheduleCron(expr string, target Target, limit int) (Cancel, error) {
	cs, err := parseCron(expr)
	if err != nil {
		return nil, err
	}
	first, ok := cs.next(s.clock.Now())
	if !ok {
		first = s.clock.Now()
	}
	return s.register(&pending{deadline: first, target: target, cron: cs, limit: limit}), nil
}

// Shutdown cancels all scheduled tasks via a shared stop flag and joins the
// polling goroutine (spec §5: "cancels scheduled tasks via a shared stop
// flag observed between sleeps, and joins all workers").
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stop)
	s.wg.Wait()
}
