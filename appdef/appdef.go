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

// Package appdef holds the declarative schema types described in spec §3:
// StreamDefinition, TableDefinition, WindowDefinition, AggregationDefinition,
// TriggerDefinition and the Application that groups them together with its
// queries. Front-end parsers (out of scope, spec §1/§6) build one of these;
// the runtime only ever consumes it.
package appdef

import (
	"fmt"

	"github.com/eventflux/eventflux/attrvalue"
)

// Attribute is one column of a StreamDefinition.
type Attribute struct {
	Name string
	Type attrvalue.Type
}

// StreamDefinition is {id, ordered attribute list}; names are unique
// within the definition (spec §3 invariant).
type StreamDefinition struct {
	Id         string
	Attributes []Attribute
	// Annotations carries declarative metadata such as @async or @enforce_order.
	Annotations map[string]string
}

func NewStreamDefinition(id string) *StreamDefinition {
	return &StreamDefinition{Id: id, Annotations: map[string]string{}}
}

func (d *StreamDefinition) WithAttribute(name string, t attrvalue.Type) *StreamDefinition {
	d.Attributes = append(d.Attributes, Attribute{Name: name, Type: t})
	return d
}

// IndexOf resolves a variable name to its positional index, or -1.
func (d *StreamDefinition) IndexOf(name string) int {
	for i, a := range d.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

func (d *StreamDefinition) validate() error {
	seen := make(map[string]bool, len(d.Attributes))
	for _, a := range d.Attributes {
		if seen[a.Name] {
			return fmt.Errorf("stream %q: duplicate attribute %q", d.Id, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// TableDefinition declares a named table whose storage is a pluggable
// backend (spec §1 non-goal: backends are an external collaborator trait).
type TableDefinition struct {
	Id          string
	Attributes  []Attribute
	Annotations map[string]string
}

func (d *TableDefinition) IndexOf(name string) int {
	for i, a := range d.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// WindowKind enumerates the supported window processors (spec §4.6).
type WindowKind string

const (
	WindowLength             WindowKind = "length"
	WindowLengthBatch        WindowKind = "lengthBatch"
	WindowTime               WindowKind = "time"
	WindowTimeBatch          WindowKind = "timeBatch"
	WindowExternalTime       WindowKind = "externalTime"
	WindowExternalTimeBatch  WindowKind = "externalTimeBatch"
	WindowLossyCounting      WindowKind = "lossyCounting"
	WindowCron               WindowKind = "cron"
	WindowSession            WindowKind = "session"
	WindowSort               WindowKind = "sort"
)

// WindowDefinition is the declarative shape of a #window(...) clause.
type WindowDefinition struct {
	Kind WindowKind
	// Length is the event count for length/lengthBatch windows.
	Length int
	// Duration is the time span for time/timeBatch/session windows (ms).
	Duration int64
	// TimestampAttr names the external-time attribute for externalTime(Batch).
	TimestampAttr string
	// CronExpr is the schedule for cron windows.
	CronExpr string
	// Support/Error parametrize lossyCounting.
	Support float64
	Error   float64
	// SortAttr/SortDescending parametrize the sort window's comparator.
	SortAttr       string
	SortDescending bool
	// ExpiredOutputEnabled controls whether Expired events are emitted.
	ExpiredOutputEnabled bool
}

// AggregationDefinition declares a named, continuously-maintained
// aggregation table (spec §3); distinct from a query's inline GROUP BY.
type AggregationDefinition struct {
	Id         string
	BaseStream string
	GroupBy    []string
	Window     WindowDefinition
}

// TriggerDefinition declares a periodic/cron synthetic event source used to
// drive time-batch semantics independent of input arrival.
type TriggerDefinition struct {
	Id       string
	Every    int64 // ms; mutually exclusive with Cron
	Cron     string
	StartNow bool
}

// JoinKind enumerates supported join semantics (spec §4.7).
type JoinKind string

const (
	JoinInner      JoinKind = "inner"
	JoinLeftOuter  JoinKind = "left"
	JoinRightOuter JoinKind = "right"
	JoinFullOuter  JoinKind = "full"
)

// InputKind distinguishes the shape of a query's FROM clause.
type InputKind string

const (
	InputSingle  InputKind = "single"
	InputJoin    InputKind = "join"
	InputPattern InputKind = "pattern"
	InputSeq     InputKind = "sequence"
)

// InputSpec describes a query's input side.
type InputSpec struct {
	Kind InputKind

	// Single
	Stream string
	Window *WindowDefinition

	// Join
	LeftStream   string
	LeftWindow   *WindowDefinition
	RightStream  string
	RightWindow  *WindowDefinition
	JoinKind     JoinKind
	OnExpr       string

	// Pattern/Sequence: A -> B [within T]
	FirstStream  string
	SecondStream string
	WithinMillis int64 // 0 means unbounded
	FirstMin     int
	FirstMax     int
	SecondMin    int
	SecondMax    int
	// Logical combinators for pattern "A and B" / "A or B" / "not A for T"
	Logical string // "", "and", "or", "not"
	WaitMillis int64
}

// OutputAction describes a query's INSERT/UPDATE/DELETE target.
type OutputActionKind string

const (
	ActionInsertStream OutputActionKind = "insert_stream"
	ActionInsertTable  OutputActionKind = "insert_table"
	ActionUpdateTable  OutputActionKind = "update_table"
	ActionDeleteTable  OutputActionKind = "delete_table"
	ActionReturn       OutputActionKind = "return"
)

type OutputAction struct {
	Kind   OutputActionKind
	Target string
	// SetExprs maps column -> expression string, used by UPDATE.
	SetExprs map[string]string
	// OnExpr is the match condition used by UPDATE/DELETE.
	OnExpr string
}

// RateLimitMode/Behavior implement spec §4.4's output rate limiter.
type RateLimitMode string

const (
	RateLimitNone         RateLimitMode = ""
	RateLimitEveryEvents  RateLimitMode = "events"
	RateLimitEveryMillis  RateLimitMode = "time"
	RateLimitSnapshotTime RateLimitMode = "snapshot_time"
)

type RateLimitBehavior string

const (
	RateLimitAll   RateLimitBehavior = "all"
	RateLimitFirst RateLimitBehavior = "first"
	RateLimitLast  RateLimitBehavior = "last"
)

type RateLimitSpec struct {
	Mode      RateLimitMode
	N         int
	Millis    int64
	Behavior  RateLimitBehavior
}

// SelectField is one projected output column.
type SelectField struct {
	Expr  string
	Alias string
}

// OrderByItem is one ORDER BY key.
type OrderByItem struct {
	Expr string
	Desc bool
}

// Selector is the projection/group-by/having/order-by/limit clause of a
// query (spec §4.4 Select processor).
type Selector struct {
	Fields  []SelectField
	GroupBy []string
	Having  string
	OrderBy []OrderByItem
	Limit   int // 0 means unbounded
	Offset  int
}

// Query is one continuous query: input -> selector -> output.
type Query struct {
	Name      string
	Input     InputSpec
	Filter    string // WHERE clause, empty means no filter
	Selector  Selector
	Output    OutputAction
	RateLimit RateLimitSpec
	// EnforceOrder requests serialized ingress through the thread barrier
	// for queries whose input spans multiple producer threads (spec §4.2).
	EnforceOrder bool
}

// Partition groups events of one or more base streams by a partition key
// before handing them to per-partition query instances (spec §3, §5).
type Partition struct {
	Name        string
	BaseStream  string
	PartitionBy []string
}

// Application is the root AST produced by a front end (spec §3/§6).
type Application struct {
	Name        string
	Streams     map[string]*StreamDefinition
	Tables      map[string]*TableDefinition
	Windows     map[string]*WindowDefinition
	Aggregations map[string]*AggregationDefinition
	Triggers    map[string]*TriggerDefinition
	Queries     []*Query
	Partitions  map[string]*Partition
	Annotations map[string]string
}

func NewApplication(name string) *Application {
	return &Application{
		Name:         name,
		Streams:      map[string]*StreamDefinition{},
		Tables:       map[string]*TableDefinition{},
		Windows:      map[string]*WindowDefinition{},
		Aggregations: map[string]*AggregationDefinition{},
		Triggers:     map[string]*TriggerDefinition{},
		Partitions:   map[string]*Partition{},
		Annotations:  map[string]string{},
	}
}

func (a *Application) AddStream(d *StreamDefinition) error {
	if _, exists := a.Streams[d.Id]; exists {
		return fmt.Errorf("duplicate stream definition: %q", d.Id)
	}
	if _, exists := a.Tables[d.Id]; exists {
		return fmt.Errorf("name %q already used by a table", d.Id)
	}
	if err := d.validate(); err != nil {
		return err
	}
	a.Streams[d.Id] = d
	return nil
}

func (a *Application) AddTable(d *TableDefinition) error {
	if _, exists := a.Tables[d.Id]; exists {
		return fmt.Errorf("duplicate table definition: %q", d.Id)
	}
	if _, exists := a.Streams[d.Id]; exists {
		return fmt.Errorf("name %q already used by a stream", d.Id)
	}
	a.Tables[d.Id] = d
	return nil
}

func (a *Application) AddQuery(q *Query) {
	a.Queries = append(a.Queries, q)
}

// Validate checks the load-time invariants from spec §3: unique
// stream/table names (enforced incrementally by AddStream/AddTable) plus
// that every query references streams/tables that exist.
func (a *Application) Validate() error {
	resolve := func(id string) error {
		if id == "" {
			return nil
		}
		if _, ok := a.Streams[id]; ok {
			return nil
		}
		if _, ok := a.Tables[id]; ok {
			return nil
		}
		return fmt.Errorf("unknown stream or table: %q", id)
	}
	for _, q := range a.Queries {
		switch q.Input.Kind {
		case InputSingle:
			if err := resolve(q.Input.Stream); err != nil {
				return err
			}
		case InputJoin:
			if err := resolve(q.Input.LeftStream); err != nil {
				return err
			}
			if err := resolve(q.Input.RightStream); err != nil {
				return err
			}
		case InputPattern, InputSeq:
			if err := resolve(q.Input.FirstStream); err != nil {
				return err
			}
			if q.Input.Logical != "not" {
				if err := resolve(q.Input.SecondStream); err != nil {
					return err
				}
			}
		}
		if q.Output.Target != "" {
			if err := resolve(q.Output.Target); err != nil {
				return fmt.Errorf("query %q output: %w", q.Name, err)
			}
		}
	}
	return nil
}
