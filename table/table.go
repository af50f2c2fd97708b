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

// Package table implements spec §4.4's table backend: an external
// collaborator trait (Non-goal: pluggable storage backends are out of
// scope) with a concrete in-memory default so update/delete/join-against-
// table queries have something to run against.
package table

import (
	"encoding/json"
	"sync"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/snapshot"
)

// Table is the minimal trait a table backend must satisfy.
type Table interface {
	Find(matches func(row []attrvalue.Value) bool) [][]attrvalue.Value
	Insert(row []attrvalue.Value)
	Update(matches func(row []attrvalue.Value) bool, apply func(row []attrvalue.Value) []attrvalue.Value) int
	Delete(matches func(row []attrvalue.Value) bool) int
	Snapshot() [][]attrvalue.Value
	Restore(rows [][]attrvalue.Value)
}

// Memory is the default in-memory Table, grounded on the teacher's
// operator/table_op.go row-slice store, generalized to attrvalue rows
// and the retraction-aware mutation methods the spec's update/delete
// table processors need.
type Memory struct {
	def *appdef.TableDefinition

	mu   sync.RWMutex
	rows [][]attrvalue.Value
	snapshot.FullReplaceChangelog
}

func NewMemory(def *appdef.TableDefinition) *Memory {
	t := &Memory{def: def}
	t.Holder = t
	return t
}

func (t *Memory) ComponentID() string                  { return "table::" + t.def.Id }
func (t *Memory) SchemaVersion() snapshot.SchemaVersion { return snapshot.SchemaVersion{Major: 1} }
func (t *Memory) AccessPattern() snapshot.AccessPattern { return snapshot.Random }

func (t *Memory) SerializeState() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

func (t *Memory) DeserializeState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var rows [][]attrvalue.Value
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	t.Restore(rows)
	return nil
}

func (t *Memory) EstimateSize() snapshot.SizeEstimate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return snapshot.SizeEstimate{Entries: len(t.rows)}
}

func (t *Memory) Find(matches func(row []attrvalue.Value) bool) [][]attrvalue.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out [][]attrvalue.Value
	for _, row := range t.rows {
		if matches(row) {
			out = append(out, cloneRow(row))
		}
	}
	return out
}

func (t *Memory) Insert(row []attrvalue.Value) {
	t.mu.Lock()
	t.rows = append(t.rows, cloneRow(row))
	t.mu.Unlock()
}

func (t *Memory) Update(matches func(row []attrvalue.Value) bool, apply func(row []attrvalue.Value) []attrvalue.Value) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for i, row := range t.rows {
		if matches(row) {
			t.rows[i] = apply(row)
			count++
		}
	}
	return count
}

func (t *Memory) Delete(matches func(row []attrvalue.Value) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.rows[:0]
	deleted := 0
	for _, row := range t.rows {
		if matches(row) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return deleted
}

func (t *Memory) Snapshot() [][]attrvalue.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([][]attrvalue.Value, len(t.rows))
	for i, row := range t.rows {
		out[i] = cloneRow(row)
	}
	return out
}

func (t *Memory) Restore(rows [][]attrvalue.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = make([][]attrvalue.Value, len(rows))
	for i, row := range rows {
		t.rows[i] = cloneRow(row)
	}
}

func cloneRow(row []attrvalue.Value) []attrvalue.Value {
	out := make([]attrvalue.Value, len(row))
	copy(out, row)
	return out
}
