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

// Package aggregator implements the incremental stateful aggregators from
// spec §4.5. The select processor drives them: Current events call
// ProcessAdd, Expired events call ProcessRemove (for windowed non-forever
// aggregators), Reset calls Reset.
package aggregator

import (
	"fmt"
	"sync/atomic"

	"github.com/eventflux/eventflux/attrvalue"
	"github.com/eventflux/eventflux/logger"
)

// Type enumerates the required aggregation algorithms.
type Type string

const (
	Sum           Type = "sum"
	Avg           Type = "avg"
	Count         Type = "count"
	DistinctCount Type = "distinctCount"
	Min           Type = "min"
	Max           Type = "max"
	MinForever    Type = "minForever"
	MaxForever    Type = "maxForever"
)

// Aggregator is the AttributeAggregator contract from spec §4.5.
type Aggregator interface {
	// Init prepares the aggregator for a given input expression type; the
	// mode/expiredOutputEnabled/ctx parameters from the spec are folded
	// into the concrete constructors since EventFlux resolves them at
	// compile time rather than at Init time.
	Init(argType attrvalue.Type)
	ProcessAdd(v attrvalue.Value)
	ProcessRemove(v attrvalue.Value)
	Reset()
	Result() attrvalue.Value
	// ReturnType reports the result type once Init has been called,
	// mirroring the numeric promotion lattice (spec §4.5).
	ReturnType() attrvalue.Type
	// Clone returns a fresh, independently-stateful instance — used per
	// group by the select processor (spec §4.4 step 2).
	Clone() Aggregator
	// SerializeState/DeserializeState persist the running accumulator for
	// snapshot/restore (spec §4.9); ReturnType/argType are recovered via
	// Init before DeserializeState is called.
	SerializeState() ([]byte, error)
	DeserializeState(data []byte) error
}

// anomalies counts invariant violations logged per spec §7/§8 ("remove of
// an unseen key is a no-op with a recorded anomaly"); exposed through
// Runtime.Stats() (SPEC_FULL.md §12).
var anomalies int64

func AnomalyCount() int64 { return atomic.LoadInt64(&anomalies) }

func recordAnomaly(format string, args ...interface{}) {
	atomic.AddInt64(&anomalies, 1)
	logger.Warn("aggregator anomaly: "+format, args...)
}

// New constructs a fresh aggregator instance for the given type.
func New(t Type) (Aggregator, error) {
	switch t {
	case Sum:
		return &sumAgg{}, nil
	case Avg:
		return &avgAgg{}, nil
	case Count:
		return &countAgg{}, nil
	case DistinctCount:
		return &distinctCountAgg{counts: map[string]int{}}, nil
	case Min:
		return &extremumAgg{isMax: false, forever: false, counts: map[string]float64{}}, nil
	case Max:
		return &extremumAgg{isMax: true, forever: false, counts: map[string]float64{}}, nil
	case MinForever:
		return &extremumAgg{isMax: false, forever: true}, nil
	case MaxForever:
		return &extremumAgg{isMax: true, forever: true}, nil
	default:
		return nil, fmt.Errorf("unknown aggregator type %q", t)
	}
}
