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
	"encoding/json"

	"github.com/eventflux/eventflux/attrvalue"
)

// sumAgg: running fp64 accumulator + count; result type is long if the
// input is integer, otherwise double (spec §4.5). Remove decrements.
type sumAgg struct {
	argType attrvalue.Type
	sum     float64
	count   int64
}

func (a *sumAgg) Init(t attrvalue.Type) { a.argType = t }

func (a *sumAgg) ProcessAdd(v attrvalue.Value) {
	f, ok := attrvalue.AsFloat64(v)
	if !ok {
		return
	}
	a.sum += f
	a.count++
}

func (a *sumAgg) ProcessRemove(v attrvalue.Value) {
	if a.count <= 0 {
		recordAnomaly("sum: remove with empty accumulator")
		return
	}
	f, ok := attrvalue.AsFloat64(v)
	if !ok {
		return
	}
	a.sum -= f
	a.count--
	if a.count < 0 {
		a.count = 0
	}
}

func (a *sumAgg) Reset() { a.sum, a.count = 0, 0 }

func (a *sumAgg) ReturnType() attrvalue.Type {
	if a.argType == attrvalue.TypeInt32 || a.argType == attrvalue.TypeInt64 {
		return attrvalue.TypeInt64
	}
	return attrvalue.TypeFloat64
}

func (a *sumAgg) Result() attrvalue.Value {
	return attrvalue.Cast(attrvalue.Of(a.sum), a.ReturnType())
}

func (a *sumAgg) Clone() Aggregator { c := *a; return &c }

type wireSumAgg struct {
	ArgType attrvalue.Type
	Sum     float64
	Count   int64
}

func (a *sumAgg) SerializeState() ([]byte, error) {
	return json.Marshal(wireSumAgg{ArgType: a.argType, Sum: a.sum, Count: a.count})
}

func (a *sumAgg) DeserializeState(data []byte) error {
	var w wireSumAgg
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.argType, a.sum, a.count = w.ArgType, w.Sum, w.Count
	return nil
}

// avgAgg: running sum + count; null when count==0.
type avgAgg struct {
	sum   float64
	count int64
}

func (a *avgAgg) Init(attrvalue.Type) {}

func (a *avgAgg) ProcessAdd(v attrvalue.Value) {
	f, ok := attrvalue.AsFloat64(v)
	if !ok {
		return
	}
	a.sum += f
	a.count++
}

func (a *avgAgg) ProcessRemove(v attrvalue.Value) {
	if a.count <= 0 {
		recordAnomaly("avg: remove with empty accumulator")
		return
	}
	f, ok := attrvalue.AsFloat64(v)
	if !ok {
		return
	}
	a.sum -= f
	a.count--
	if a.count < 0 {
		a.count = 0
	}
}

func (a *avgAgg) Reset() { a.sum, a.count = 0, 0 }

func (a *avgAgg) ReturnType() attrvalue.Type { return attrvalue.TypeFloat64 }

func (a *avgAgg) Result() attrvalue.Value {
	if a.count == 0 {
		return attrvalue.Null
	}
	return attrvalue.Of(a.sum / float64(a.count))
}

func (a *avgAgg) Clone() Aggregator { c := *a; return &c }

type wireAvgAgg struct {
	Sum   float64
	Count int64
}

func (a *avgAgg) SerializeState() ([]byte, error) {
	return json.Marshal(wireAvgAgg{Sum: a.sum, Count: a.count})
}

func (a *avgAgg) DeserializeState(data []byte) error {
	var w wireAvgAgg
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.sum, a.count = w.Sum, w.Count
	return nil
}

// countAgg: integer counter; count(*) and count(expr) both map here, so a
// null argument still increments (the selector decides whether to pass a
// constant for count(*)).
type countAgg struct {
	count int64
}

func (a *countAgg) Init(attrvalue.Type)            {}
func (a *countAgg) ProcessAdd(attrvalue.Value)     { a.count++ }
func (a *countAgg) ProcessRemove(attrvalue.Value) {
	if a.count <= 0 {
		recordAnomaly("count: remove with empty accumulator")
		return
	}
	a.count--
}
func (a *countAgg) Reset()                       { a.count = 0 }
func (a *countAgg) ReturnType() attrvalue.Type   { return attrvalue.TypeInt64 }
func (a *countAgg) Result() attrvalue.Value      { return attrvalue.Of(a.count) }
func (a *countAgg) Clone() Aggregator            { c := *a; return &c }

func (a *countAgg) SerializeState() ([]byte, error) { return json.Marshal(a.count) }
func (a *countAgg) DeserializeState(data []byte) error {
	return json.Unmarshal(data, &a.count)
}

// distinctCountAgg: multiset (map value-string -> refcount); size when asked.
type distinctCountAgg struct {
	counts map[string]int
}

func (a *distinctCountAgg) Init(attrvalue.Type) {}

func (a *distinctCountAgg) ProcessAdd(v attrvalue.Value) {
	if attrvalue.IsNull(v) {
		return
	}
	a.counts[attrvalue.AsString(v)]++
}

func (a *distinctCountAgg) ProcessRemove(v attrvalue.Value) {
	if attrvalue.IsNull(v) {
		return
	}
	key := attrvalue.AsString(v)
	n, ok := a.counts[key]
	if !ok || n <= 0 {
		recordAnomaly("distinctCount: remove of unseen key %q", key)
		return
	}
	if n == 1 {
		delete(a.counts, key)
	} else {
		a.counts[key] = n - 1
	}
}

func (a *distinctCountAgg) Reset() { a.counts = map[string]int{} }

func (a *distinctCountAgg) ReturnType() attrvalue.Type { return attrvalue.TypeInt64 }

func (a *distinctCountAgg) Result() attrvalue.Value { return attrvalue.Of(int64(len(a.counts))) }

func (a *distinctCountAgg) Clone() Aggregator {
	counts := make(map[string]int, len(a.counts))
	for k, v := range a.counts {
		counts[k] = v
	}
	return &distinctCountAgg{counts: counts}
}

func (a *distinctCountAgg) SerializeState() ([]byte, error) { return json.Marshal(a.counts) }
func (a *distinctCountAgg) DeserializeState(data []byte) error {
	counts := map[string]int{}
	if err := json.Unmarshal(data, &counts); err != nil {
		return err
	}
	a.counts = counts
	return nil
}

// extremumAgg implements min/max (retracting, multiset-backed per spec's
// "simple implementations may keep the full multiset" allowance) and
// minForever/maxForever (remove is a no-op, extremum never retracts).
type extremumAgg struct {
	argType attrvalue.Type
	isMax   bool
	forever bool

	// retracting mode
	counts map[string]float64 // allocated by New for min/max; never read or updated
	freq   map[float64]int
	hasVal bool

	// forever mode
	extreme float64
	everSet bool
}

func (a *extremumAgg) Init(t attrvalue.Type) {
	a.argType = t
	if !a.forever && a.freq == nil {
		a.freq = map[float64]int{}
	}
}

func (a *extremumAgg) ProcessAdd(v attrvalue.Value) {
	f, ok := attrvalue.AsFloat64(v)
	if !ok {
		return
	}
	if a.forever {
		if !a.everSet || a.better(f, a.extreme) {
			a.extreme = f
			a.everSet = true
		}
		return
	}
	if a.freq == nil {
		a.freq = map[float64]int{}
	}
	a.freq[f]++
	a.hasVal = true
}

func (a *extremumAgg) ProcessRemove(v attrvalue.Value) {
	if a.forever {
		return // remove is a no-op for *Forever aggregators (spec §4.5).
	}
	f, ok := attrvalue.AsFloat64(v)
	if !ok {
		return
	}
	n, exists := a.freq[f]
	if !exists || n <= 0 {
		recordAnomaly("%s: remove of unseen value", a.name())
		return
	}
	if n == 1 {
		delete(a.freq, f)
	} else {
		a.freq[f] = n - 1
	}
}

func (a *extremumAgg) Reset() {
	a.freq = map[float64]int{}
	a.hasVal = false
	a.everSet = false
}

func (a *extremumAgg) better(candidate, current float64) bool {
	if a.isMax {
		return candidate > current
	}
	return candidate < current
}

func (a *extremumAgg) name() string {
	if a.isMax {
		return "max"
	}
	return "min"
}

func (a *extremumAgg) ReturnType() attrvalue.Type {
	if a.argType == attrvalue.TypeInt32 || a.argType == attrvalue.TypeInt64 {
		return a.argType
	}
	return attrvalue.TypeFloat64
}

func (a *extremumAgg) Result() attrvalue.Value {
	if a.forever {
		if !a.everSet {
			return attrvalue.Null
		}
		return attrvalue.Cast(attrvalue.Of(a.extreme), a.ReturnType())
	}
	if !a.hasVal || len(a.freq) == 0 {
		return attrvalue.Null
	}
	var best float64
	first := true
	for v := range a.freq {
		if first || a.better(v, best) {
			best = v
			first = false
		}
	}
	return attrvalue.Cast(attrvalue.Of(best), a.ReturnType())
}

func (a *extremumAgg) Clone() Aggregator {
	c := &extremumAgg{argType: a.argType, isMax: a.isMax, forever: a.forever}
	if a.freq != nil {
		c.freq = make(map[float64]int, len(a.freq))
		for k, v := range a.freq {
			c.freq[k] = v
		}
	}
	c.hasVal = a.hasVal
	c.extreme = a.extreme
	c.everSet = a.everSet
	return c
}

// wireFreqEntry flattens the freq map to a slice since encoding/json
// rejects float64 map keys.
type wireFreqEntry struct {
	Value float64
	Count int
}

type wireExtremumAgg struct {
	ArgType attrvalue.Type
	IsMax   bool
	Forever bool
	Freq    []wireFreqEntry
	HasVal  bool
	Extreme float64
	EverSet bool
}

func (a *extremumAgg) SerializeState() ([]byte, error) {
	freq := make([]wireFreqEntry, 0, len(a.freq))
	for v, n := range a.freq {
		freq = append(freq, wireFreqEntry{Value: v, Count: n})
	}
	return json.Marshal(wireExtremumAgg{
		ArgType: a.argType,
		IsMax:   a.isMax,
		Forever: a.forever,
		Freq:    freq,
		HasVal:  a.hasVal,
		Extreme: a.extreme,
		EverSet: a.everSet,
	})
}

func (a *extremumAgg) DeserializeState(data []byte) error {
	var w wireExtremumAgg
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	freq := make(map[float64]int, len(w.Freq))
	for _, e := range w.Freq {
		freq[e.Value] = e.Count
	}
	a.argType, a.isMax, a.forever = w.ArgType, w.IsMax, w.Forever
	a.freq, a.hasVal, a.extreme, a.everSet = freq, w.HasVal, w.Extreme, w.EverSet
	return nil
}
