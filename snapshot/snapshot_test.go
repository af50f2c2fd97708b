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

package snapshot

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHolder struct {
	id    string
	value int
	FullReplaceChangelog
}

func newFakeHolder(id string, value int) *fakeHolder {
	h := &fakeHolder{id: id, value: value}
	h.Holder = h
	return h
}

func (h *fakeHolder) ComponentID() string        { return h.id }
func (h *fakeHolder) SchemaVersion() SchemaVersion { return SchemaVersion{Major: 1} }
func (h *fakeHolder) EstimateSize() SizeEstimate  { return SizeEstimate{Bytes: 8, Entries: 1} }
func (h *fakeHolder) AccessPattern() AccessPattern { return Random }
func (h *fakeHolder) SerializeState() ([]byte, error) {
	return []byte(fmt.Sprintf("%d", h.value)), nil
}
func (h *fakeHolder) DeserializeState(data []byte) error {
	_, err := fmt.Sscanf(string(data), "%d", &h.value)
	return err
}

type fakeBarrier struct {
	raised bool
}

func (b *fakeBarrier) RaiseAll() { b.raised = true }
func (b *fakeBarrier) LowerAll() { b.raised = false }

func TestSnapshotRestoreRoundTripWithMemoryStore(t *testing.T) {
	svc := New(NewMemoryStore(), false)
	h1 := newFakeHolder("window.a", 10)
	h2 := newFakeHolder("aggregator.b", 20)
	svc.Register(&Component{Holder: h1})
	svc.Register(&Component{Holder: h2})

	barrier := &fakeBarrier{}
	rev, err := svc.Snapshot(barrier)
	require.NoError(t, err)
	assert.False(t, barrier.raised)
	assert.Equal(t, 2, rev.Entries)

	h1.value = 999
	h2.value = 999

	require.NoError(t, svc.Restore(rev.ID))
	assert.Equal(t, 10, h1.value)
	assert.Equal(t, 20, h2.value)
}

func TestSnapshotCompressesWithSnappy(t *testing.T) {
	svc := New(NewMemoryStore(), true)
	h := newFakeHolder("window.a", 42)
	svc.Register(&Component{Holder: h})

	rev, err := svc.Snapshot(&fakeBarrier{})
	require.NoError(t, err)
	assert.True(t, rev.Compressed)

	h.value = 0
	require.NoError(t, svc.Restore(rev.ID))
	assert.Equal(t, 42, h.value)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save("rev-1", []byte("hello")))
	require.NoError(t, store.Save("rev-2", []byte("world")))

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "rev-2", latest)

	data, err := store.Load("rev-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	latest, err = reopened.Latest()
	require.NoError(t, err)
	assert.Equal(t, "rev-2", latest)
}
