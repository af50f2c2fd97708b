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

// Package eventflux is the embeddable streaming SQL runtime's public entry
// point (spec §6): CreateRuntime wires a parsed appdef.Application into
// junctions, compiled query chains and an ingress distributor, and Runtime
// exposes Start/Shutdown, per-stream InputHandlers, output callbacks, and
// snapshot persistence.
package eventflux

import (
	"fmt"
	"sync"

	"github.com/eventflux/eventflux/aggregator"
	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/clock"
	"github.com/eventflux/eventflux/event"
	"github.com/eventflux/eventflux/input"
	"github.com/eventflux/eventflux/junction"
	"github.com/eventflux/eventflux/logger"
	"github.com/eventflux/eventflux/pattern"
	"github.com/eventflux/eventflux/processor"
	"github.com/eventflux/eventflux/query"
	"github.com/eventflux/eventflux/scheduler"
	"github.com/eventflux/eventflux/snapshot"
	"github.com/eventflux/eventflux/table"
)

// Config holds the runtime-wide settings an Option mutates before
// CreateRuntime builds its collaborators.
type Config struct {
	// DataDir selects a file-backed snapshot store (snapshot.FileStore);
	// left empty, snapshots live only in memory (snapshot.MemoryStore).
	DataDir string
	// Compress enables snappy compression of persisted snapshots.
	Compress bool
	// AsyncJunctions makes every stream's junction fan out to subscribers
	// on worker goroutines instead of the publishing goroutine.
	AsyncJunctions bool
	// OnJunctionError controls a junction's behavior when a subscriber
	// panics. A full async subscriber queue always drops the chunk with a
	// warning, whatever the policy.
	OnJunctionError junction.OnErrorPolicy
	// Clock overrides the runtime's time source, e.g. clock.NewPlayback()
	// for deterministic tests; defaults to clock.System{}.
	Clock clock.Source
}

// Option configures a Runtime at construction time, following the
// functional-options style of the teacher's streamsql.Option.
type Option func(*Config)

func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

func WithCompression() Option {
	return func(c *Config) { c.Compress = true }
}

func WithAsyncJunctions() Option {
	return func(c *Config) { c.AsyncJunctions = true }
}

func WithJunctionErrorPolicy(p junction.OnErrorPolicy) Option {
	return func(c *Config) { c.OnJunctionError = p }
}

func WithClock(clk clock.Source) Option {
	return func(c *Config) { c.Clock = clk }
}

// Runtime is one running instance of a compiled Application: every
// declared stream's junction, every declared table's backend, every
// query's compiled processor chain subscribed onto its input junction(s),
// and the shared clock/scheduler/snapshot service driving them.
type Runtime struct {
	name string

	clock     clock.Source
	scheduler *scheduler.Scheduler

	junctions   map[string]*junction.Junction
	tables      map[string]table.Table
	distributor *input.Distributor
	compiled    []*query.Compiled
	snapshotSvc *snapshot.Service
	log         logger.Logger

	mu      sync.Mutex
	started bool
}

// CreateRuntime builds a Runtime from a parsed Application (spec §3), the
// same AST produced by sql.Parse or direct programmatic construction. It
// creates one junction per declared stream, one table backend per declared
// table, compiles every query, and wires each query's entry processor(s)
// onto their source junction(s) — but does not start delivering events
// until Start is called.
func CreateRuntime(app *appdef.Application, opts ...Option) (*Runtime, error) {
	cfg := &Config{OnJunctionError: junction.OnErrorLog, Clock: clock.System{}}
	for _, o := range opts {
		o(cfg)
	}

	sched := scheduler.New(cfg.Clock)

	junctions := make(map[string]*junction.Junction, len(app.Streams))
	for id := range app.Streams {
		junctions[id] = junction.New(id, cfg.AsyncJunctions, cfg.OnJunctionError)
	}

	tables := make(map[string]table.Table, len(app.Tables))
	for id, def := range app.Tables {
		tables[id] = table.NewMemory(def)
	}

	dist := input.NewDistributor()
	for id, j := range junctions {
		dist.Register(id, j)
	}

	env := &query.Env{
		AppName:   app.Name,
		Streams:   app.Streams,
		Tables:    app.Tables,
		TableData: tables,
		Junctions: junctions,
		Clock:     cfg.Clock,
		Scheduler: sched,
	}

	compiled := make([]*query.Compiled, 0, len(app.Queries))
	for _, q := range app.Queries {
		c, err := query.Compile(q, env)
		if err != nil {
			return nil, fmt.Errorf("eventflux: compiling query %q: %w", q.Name, err)
		}
		compiled = append(compiled, c)
	}

	var store snapshot.PersistenceStore
	if cfg.DataDir != "" {
		fs, err := snapshot.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("eventflux: opening snapshot store: %w", err)
		}
		store = fs
	} else {
		store = snapshot.NewMemoryStore()
	}

	snapshotSvc := snapshot.New(store, cfg.Compress)
	registerStateHolders(snapshotSvc, compiled, tables)

	return &Runtime{
		name:        app.Name,
		clock:       cfg.Clock,
		scheduler:   sched,
		junctions:   junctions,
		tables:      tables,
		distributor: dist,
		compiled:    compiled,
		snapshotSvc: snapshotSvc,
		log:         logger.GetDefault().Named(app.Name),
	}, nil
}

// registerStateHolders walks every compiled query's processor chain(s),
// registering each stateful stage that implements snapshot.StateHolder so
// Persist/Restore actually capture operator state (spec §4.9). Two-sided
// queries (join/pattern/sequence/logical/not) share one StateHolder
// between their left and right entry chains, so registration dedups by
// ComponentID.
func registerStateHolders(svc *snapshot.Service, compiled []*query.Compiled, tables map[string]table.Table) {
	seen := map[string]bool{}
	register := func(p processor.Processor) {
		if !p.IsStateful() {
			return
		}
		holder, ok := p.(snapshot.StateHolder)
		if !ok {
			return
		}
		id := holder.ComponentID()
		if seen[id] {
			return
		}
		seen[id] = true
		svc.Register(&snapshot.Component{Holder: holder})
	}

	for _, c := range compiled {
		for _, e := range c.Entries {
			for p := e.Proc; p != nil; p = p.Next() {
				register(p)
			}
		}
	}
	for _, t := range tables {
		if holder, ok := t.(snapshot.StateHolder); ok {
			id := holder.ComponentID()
			if !seen[id] {
				seen[id] = true
				svc.Register(&snapshot.Component{Holder: holder})
			}
		}
	}
}

// Start subscribes every compiled query's entry processor(s) onto their
// source junction(s). Events published before Start are lost, matching
// the teacher's model of a pipeline that only runs once wired end to end.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("eventflux: runtime %q already started", r.name)
	}
	for _, c := range r.compiled {
		for _, e := range c.Entries {
			j, ok := r.junctions[e.StreamID]
			if !ok {
				return fmt.Errorf("eventflux: query %q references unknown stream %q", c.Query.Name, e.StreamID)
			}
			j.Subscribe(e.Proc)
		}
	}
	r.started = true
	r.log.Info("started, %d queries over %d streams", len(r.compiled), len(r.junctions))
	return nil
}

// Shutdown stops every junction's async workers and the scheduler's timer
// loop. A Runtime is not reusable after Shutdown.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.junctions {
		j.Shutdown()
	}
	r.scheduler.Shutdown()
	r.started = false
}

// InputHandler returns the public ingress handle for a declared stream
// (spec §6: create_runtime(...).InputHandler(stream_id)).
func (r *Runtime) InputHandler(streamID string) (*input.Handler, error) {
	return r.distributor.Handler(streamID)
}

// AddCallback registers a sink for id, which names either a declared
// stream (the callback fires on every Current event published to that
// stream's junction — including rows a query INSERTs into it) or a query
// whose output action is "return" (the callback fires on every row that
// query emits, via its output processor's Callback hook). The returned
// func unsubscribes a stream-based callback; it is a no-op for a
// query-based one, since outputProcessor has no subscriber list to prune.
func (r *Runtime) AddCallback(id string, cb func(*event.Event)) (func(), error) {
	if j, ok := r.junctions[id]; ok {
		unsubscribe := j.Subscribe(junction.SubscriberFunc(func(c *event.Chunk) {
			c.Each(func(se *event.StreamEvent) {
				if se.Tag == event.Current {
					cb(se.ToEvent())
				}
			})
		}))
		return unsubscribe, nil
	}
	for _, c := range r.compiled {
		if c.Query.Name != id || c.Query.Output.Kind != appdef.ActionReturn {
			continue
		}
		prev := c.Output.Callback
		c.Output.Callback = func(e *event.Event) {
			if prev != nil {
				prev(e)
			}
			cb(e)
		}
		return func() {}, nil
	}
	return nil, fmt.Errorf("eventflux: unknown stream or return-query %q", id)
}

// Persist raises the ingress barrier, serializes every registered
// snapshot.StateHolder, and returns the new revision id (spec §4.9).
func (r *Runtime) Persist() (string, error) {
	rev, err := r.snapshotSvc.Snapshot(r.distributor)
	if err != nil {
		return "", err
	}
	return rev.ID, nil
}

// Restore loads revisionID and feeds it back to every registered
// StateHolder matched by component id.
func (r *Runtime) Restore(revisionID string) error {
	return r.snapshotSvc.Restore(revisionID)
}

// Stats reports the anomaly counters spec §4.9/§12 call for: aggregator
// removes from empty or unseen state, pattern pending-partial buffer
// overflows, plus subscriber failures that junctions recorded under
// OnErrorStore.
type Stats struct {
	AggregatorAnomalies int64
	PatternAnomalies    int64
	StoredFailures      int
}

func (r *Runtime) Stats() Stats {
	var stored int
	for _, j := range r.junctions {
		stored += j.StoredFailures()
	}
	return Stats{
		AggregatorAnomalies: aggregator.AnomalyCount(),
		PatternAnomalies:    pattern.AnomalyCount(),
		StoredFailures:      stored,
	}
}
