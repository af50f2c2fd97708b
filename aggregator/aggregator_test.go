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

package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflux/eventflux/attrvalue"
)

func TestSumAddRemoveRoundTrip(t *testing.T) {
	agg, err := New(Sum)
	require.NoError(t, err)
	agg.Init(attrvalue.TypeFloat64)

	agg.ProcessAdd(attrvalue.Of(300.0))
	agg.ProcessAdd(attrvalue.Of(400.0))
	agg.ProcessAdd(attrvalue.Of(600.0))
	assert.Equal(t, 1300.0, agg.Result().Raw)

	agg.ProcessRemove(attrvalue.Of(300.0))
	agg.ProcessRemove(attrvalue.Of(400.0))
	agg.ProcessRemove(attrvalue.Of(600.0))
	assert.Equal(t, 0.0, agg.Result().Raw, "sequence followed by its inverse returns to the post-reset value")
}

func TestSumIntegerReturnsLong(t *testing.T) {
	agg, err := New(Sum)
	require.NoError(t, err)
	agg.Init(attrvalue.TypeInt32)
	agg.ProcessAdd(attrvalue.Of(int32(5)))
	assert.Equal(t, attrvalue.TypeInt64, agg.ReturnType())
}

func TestAvgNullWhenEmpty(t *testing.T) {
	agg, _ := New(Avg)
	assert.True(t, attrvalue.IsNull(agg.Result()))
	agg.ProcessAdd(attrvalue.Of(10.0))
	agg.ProcessAdd(attrvalue.Of(20.0))
	assert.Equal(t, 15.0, agg.Result().Raw)
}

func TestCountNeverGoesNegative(t *testing.T) {
	before := AnomalyCount()
	agg, _ := New(Count)
	agg.ProcessRemove(attrvalue.Of(1))
	assert.Equal(t, int64(0), agg.Result().Raw)
	assert.Greater(t, AnomalyCount(), before)
}

func TestDistinctCount(t *testing.T) {
	agg, _ := New(DistinctCount)
	agg.ProcessAdd(attrvalue.Of("a"))
	agg.ProcessAdd(attrvalue.Of("a"))
	agg.ProcessAdd(attrvalue.Of("b"))
	assert.Equal(t, int64(2), agg.Result().Raw)
	agg.ProcessRemove(attrvalue.Of("a"))
	assert.Equal(t, int64(2), agg.Result().Raw)
	agg.ProcessRemove(attrvalue.Of("a"))
	assert.Equal(t, int64(1), agg.Result().Raw)
}

func TestMinMaxRetract(t *testing.T) {
	agg, _ := New(Min)
	agg.Init(attrvalue.TypeFloat64)
	agg.ProcessAdd(attrvalue.Of(5.0))
	agg.ProcessAdd(attrvalue.Of(2.0))
	agg.ProcessAdd(attrvalue.Of(8.0))
	assert.Equal(t, 2.0, agg.Result().Raw)
	agg.ProcessRemove(attrvalue.Of(2.0))
	assert.Equal(t, 5.0, agg.Result().Raw)
}

func TestMaxForeverNeverRetracts(t *testing.T) {
	agg, _ := New(MaxForever)
	agg.Init(attrvalue.TypeFloat64)
	agg.ProcessAdd(attrvalue.Of(5.0))
	agg.ProcessAdd(attrvalue.Of(9.0))
	agg.ProcessRemove(attrvalue.Of(9.0))
	assert.Equal(t, 9.0, agg.Result().Raw)
	agg.ProcessAdd(attrvalue.Of(3.0))
	assert.Equal(t, 9.0, agg.Result().Raw)
}

func TestCloneIsIndependent(t *testing.T) {
	agg, _ := New(Sum)
	agg.Init(attrvalue.TypeFloat64)
	agg.ProcessAdd(attrvalue.Of(1.0))
	clone := agg.Clone()
	clone.ProcessAdd(attrvalue.Of(100.0))
	assert.Equal(t, 1.0, agg.Result().Raw)
	assert.Equal(t, 101.0, clone.Result().Raw)
}
