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

package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronSchedule is a minimal 5-field (minute hour dom month dow) cron
// expression, matching spec §4.6's cron window and §4.8's schedule_cron.
// No cron library appears anywhere in the reference corpus, so this
// follows the project's own precedent of hand-rolling small grammars
// (the expression tokenizer/parser, the SQL front-end) rather than
// reaching for one.
type cronSchedule struct {
	minute field
	hour   field
	dom    field
	month  field
	dow    field
}

type field struct {
	all  bool
	vals map[int]bool
}

func (f field) match(v int) bool {
	if f.all {
		return true
	}
	return f.vals[v]
}

func parseCron(expr string) (*cronSchedule, error) {
	parts := strings.Fields(strings.TrimSpace(expr))
	if len(parts) != 5 {
		return nil, fmt.Errorf("scheduler: cron expression %q must have 5 fields", expr)
	}
	minute, err := parseField(parts[0], 0, 59)
	if err != nil {
		return nil, err
	}
	hour, err := parseField(parts[1], 0, 23)
	if err != nil {
		return nil, err
	}
	dom, err := parseField(parts[2], 1, 31)
	if err != nil {
		return nil, err
	}
	month, err := parseField(parts[3], 1, 12)
	if err != nil {
		return nil, err
	}
	dow, err := parseField(parts[4], 0, 6)
	if err != nil {
		return nil, err
	}
	return &cronSchedule{minute: minute, hour: hour, dom: dom, month: month, dow: dow}, nil
}

func parseField(spec string, min, max int) (field, error) {
	if spec == "*" {
		return field{all: true}, nil
	}
	vals := map[int]bool{}
	for _, part := range strings.Split(spec, ",") {
		lo, hi, step := min, max, 1
		base := part
		if idx := strings.Index(part, "/"); idx >= 0 {
			var err error
			step, err = strconv.Atoi(part[idx+1:])
			if err != nil || step <= 0 {
				return field{}, fmt.Errorf("scheduler: invalid step in cron field %q", part)
			}
			base = part[:idx]
		}
		switch {
		case base == "*":
			// lo/hi already span the field's full range.
		case strings.Contains(base, "-"):
			bounds := strings.SplitN(base, "-", 2)
			if len(bounds) != 2 {
				return field{}, fmt.Errorf("scheduler: invalid range in cron field %q", part)
			}
			a, err1 := strconv.Atoi(bounds[0])
			b, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				return field{}, fmt.Errorf("scheduler: invalid range in cron field %q", part)
			}
			lo, hi = a, b
		default:
			v, err := strconv.Atoi(base)
			if err != nil {
				return field{}, fmt.Errorf("scheduler: invalid cron field %q", part)
			}
			lo, hi = v, v
		}
		for v := lo; v <= hi; v += step {
			if v < min || v > max {
				return field{}, fmt.Errorf("scheduler: cron field %q value %d out of range [%d,%d]", part, v, min, max)
			}
			vals[v] = true
		}
	}
	return field{vals: vals}, nil
}

// next returns the first matching instant strictly after fromMs, scanning
// minute by minute for up to four years (ok=false if nothing matches,
// e.g. "30 0 31 2 *" which never occurs).
func (c *cronSchedule) next(fromMs int64) (int64, bool) {
	t := time.UnixMilli(fromMs).UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)
	for t.Before(limit) {
		if c.month.match(int(t.Month())) && c.dom.match(t.Day()) &&
			c.dow.match(int(t.Weekday())) && c.hour.match(t.Hour()) &&
			c.minute.match(t.Minute()) {
			return t.UnixMilli(), true
		}
		t = t.Add(time.Minute)
	}
	return 0, false
}
