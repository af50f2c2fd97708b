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

// Package attrvalue implements the tagged-union attribute value carried by
// every event, and the numeric promotion lattice used by the expression
// executor and the aggregators.
package attrvalue

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// Type tags the kind of value an attribute holds.
type Type int

const (
	TypeNull Type = iota
	TypeBool
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeObject
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt32:
		return "int"
	case TypeInt64:
		return "long"
	case TypeFloat32:
		return "float"
	case TypeFloat64:
		return "double"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the tagged union AttributeValue described in spec §3. Null is
// represented by Kind == TypeNull with Raw == nil; every other kind stores
// its native Go representation in Raw.
type Value struct {
	Kind Type
	Raw  interface{}
}

// Null is the shared representation of an absent attribute value.
var Null = Value{Kind: TypeNull}

func IsNull(v Value) bool { return v.Kind == TypeNull }

func Of(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case Value:
		return x
	case bool:
		return Value{Kind: TypeBool, Raw: x}
	case int32:
		return Value{Kind: TypeInt32, Raw: x}
	case int:
		return Value{Kind: TypeInt32, Raw: int32(x)}
	case int64:
		return Value{Kind: TypeInt64, Raw: x}
	case float32:
		return Value{Kind: TypeFloat32, Raw: x}
	case float64:
		return Value{Kind: TypeFloat64, Raw: x}
	case string:
		return Value{Kind: TypeString, Raw: x}
	default:
		return Value{Kind: TypeObject, Raw: x}
	}
}

// promotionRank orders the numeric promotion lattice int < long < float < double.
func promotionRank(t Type) int {
	switch t {
	case TypeInt32:
		return 0
	case TypeInt64:
		return 1
	case TypeFloat32:
		return 2
	case TypeFloat64:
		return 3
	default:
		return -1
	}
}

func IsNumeric(t Type) bool { return promotionRank(t) >= 0 }

// Promote returns the wider of two numeric types per the arithmetic
// promotion lattice in spec §4.1.
func Promote(a, b Type) Type {
	ra, rb := promotionRank(a), promotionRank(b)
	if ra < 0 || rb < 0 {
		return TypeFloat64
	}
	if ra >= rb {
		return a
	}
	return b
}

// AsFloat64 coerces a value to float64 for arithmetic, using spf13/cast for
// string/number coercions the way the teacher's cast package does.
func AsFloat64(v Value) (float64, bool) {
	if IsNull(v) {
		return 0, false
	}
	switch v.Kind {
	case TypeBool:
		if v.Raw.(bool) {
			return 1, true
		}
		return 0, true
	case TypeObject:
		f, err := cast.ToFloat64E(v.Raw)
		return f, err == nil
	default:
		f, err := cast.ToFloat64E(v.Raw)
		return f, err == nil
	}
}

// AsInt64 coerces a value to int64.
func AsInt64(v Value) (int64, bool) {
	if IsNull(v) {
		return 0, false
	}
	i, err := cast.ToInt64E(v.Raw)
	return i, err == nil
}

// AsBool coerces a value to bool; used by three-valued logic evaluation.
func AsBool(v Value) (bool, bool) {
	if IsNull(v) {
		return false, false
	}
	b, err := cast.ToBoolE(v.Raw)
	return b, err == nil
}

// AsString renders a value's native representation as a string, used for
// group-by key concatenation (spec §4.4 Select step 2).
func AsString(v Value) string {
	if IsNull(v) {
		return "<null>"
	}
	return cast.ToString(v.Raw)
}

// Cast converts v to the requested numeric type following the promotion
// lattice; used when an arithmetic result type must be materialized back
// into a concrete Value.
func Cast(v Value, to Type) Value {
	if IsNull(v) {
		return Null
	}
	switch to {
	case TypeInt32:
		i, _ := cast.ToInt32E(v.Raw)
		return Value{Kind: TypeInt32, Raw: i}
	case TypeInt64:
		i, _ := cast.ToInt64E(v.Raw)
		return Value{Kind: TypeInt64, Raw: i}
	case TypeFloat32:
		f, _ := cast.ToFloat32E(v.Raw)
		return Value{Kind: TypeFloat32, Raw: f}
	case TypeFloat64:
		f, _ := cast.ToFloat64E(v.Raw)
		return Value{Kind: TypeFloat64, Raw: f}
	case TypeString:
		return Value{Kind: TypeString, Raw: cast.ToString(v.Raw)}
	case TypeBool:
		b, _ := cast.ToBoolE(v.Raw)
		return Value{Kind: TypeBool, Raw: b}
	default:
		return v
	}
}

// GoType guesses the AttributeType a raw Go literal should be treated as,
// used by the SQL front end when it has no declared column type to go on.
func GoType(v interface{}) Type {
	return Of(v).Kind
}

func (v Value) String() string {
	return fmt.Sprintf("%v", v.Raw)
}

// wireValue is Value's JSON-safe shape: Raw travels as whatever the
// encoding/json decoder produces for the dynamic type (float64 for every
// numeric kind, string, bool), reconstituted to its declared native Go
// type on the way back in by MarshalJSON/UnmarshalJSON below. Needed so
// snapshot.StateHolder implementations (window buffers, aggregator
// state, select-stage groups) can serialize a Value through
// encoding/json without losing the int32/int64/float32/float64
// distinction JSON itself doesn't carry.
type wireValue struct {
	Kind Type        `json:"kind"`
	Raw  interface{} `json:"raw,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireValue{Kind: v.Kind, Raw: v.Raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.Kind = w.Kind
	if w.Raw == nil {
		v.Raw = nil
		return nil
	}
	switch w.Kind {
	case TypeInt32:
		f, _ := w.Raw.(float64)
		v.Raw = int32(f)
	case TypeInt64:
		f, _ := w.Raw.(float64)
		v.Raw = int64(f)
	case TypeFloat32:
		f, _ := w.Raw.(float64)
		v.Raw = float32(f)
	case TypeFloat64:
		f, _ := w.Raw.(float64)
		v.Raw = f
	case TypeBool:
		b, _ := w.Raw.(bool)
		v.Raw = b
	case TypeString:
		s, _ := w.Raw.(string)
		v.Raw = s
	default:
		v.Raw = w.Raw
	}
	return nil
}
