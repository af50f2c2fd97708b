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

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflux/eventflux/appdef"
)

func TestRateLimitEveryEventsEmitsOnceThresholdReached(t *testing.T) {
	p := newRateLimitProcessor(appdef.RateLimitSpec{Mode: appdef.RateLimitEveryEvents, N: 2, Behavior: appdef.RateLimitAll}, nil)
	cap := &capture{}
	p.SetNext(cap)

	p.Process(chunkOf(row(1, "IBM", 1.0, int64(1))))
	assert.Empty(t, cap.all())

	p.Process(chunkOf(row(2, "IBM", 2.0, int64(1))))
	got := cap.chunks
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Len)
}

func TestRateLimitEveryEventsFirstBehavior(t *testing.T) {
	p := newRateLimitProcessor(appdef.RateLimitSpec{Mode: appdef.RateLimitEveryEvents, N: 3, Behavior: appdef.RateLimitFirst}, nil)
	cap := &capture{}
	p.SetNext(cap)

	p.Process(chunkOf(row(1, "IBM", 1.0, int64(1))))
	p.Process(chunkOf(row(2, "IBM", 2.0, int64(1))))
	p.Process(chunkOf(row(3, "IBM", 3.0, int64(1))))

	got := cap.chunks
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Len)
	assert.Equal(t, "IBM", got[0].Head.BeforeWindowData[0].Raw)
	assert.Equal(t, 1.0, got[0].Head.BeforeWindowData[1].Raw)
}

func TestRateLimitNoneForwardsImmediately(t *testing.T) {
	p := newRateLimitProcessor(appdef.RateLimitSpec{Mode: appdef.RateLimitNone}, nil)
	cap := &capture{}
	p.SetNext(cap)

	p.Process(chunkOf(row(1, "IBM", 1.0, int64(1))))
	got := cap.all()
	require.Len(t, got, 1)
}
