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

package table

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eventflux/eventflux/attrvalue"
)

func row(id string) []attrvalue.Value { return []attrvalue.Value{attrvalue.Of(id)} }

func TestInsertFindUpdateDelete(t *testing.T) {
	tbl := NewMemory(nil)
	tbl.Insert(row("a"))
	tbl.Insert(row("b"))

	byID := func(id string) func([]attrvalue.Value) bool {
		return func(r []attrvalue.Value) bool { return attrvalue.AsString(r[0]) == id }
	}

	found := tbl.Find(byID("a"))
	assert.Len(t, found, 1)

	n := tbl.Update(byID("a"), func(r []attrvalue.Value) []attrvalue.Value { return row("a-updated") })
	assert.Equal(t, 1, n)
	assert.Len(t, tbl.Find(byID("a-updated")), 1)

	n = tbl.Delete(byID("b"))
	assert.Equal(t, 1, n)
	assert.Empty(t, tbl.Find(byID("b")))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	tbl := NewMemory(nil)
	tbl.Insert(row("a"))
	snap := tbl.Snapshot()

	tbl.Insert(row("b"))
	assert.Len(t, tbl.Snapshot(), 2)

	tbl.Restore(snap)
	assert.Len(t, tbl.Snapshot(), 1)
}
