package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mschirtzinger/famtasks/internal/model"
)

// Validate checks that q is well formed.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: query collection is required", model.ErrInvalidArgument)
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: filter field is required", model.ErrInvalidArgument)
		}
		switch f.Op {
		case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		default:
			return fmt.Errorf("%w: unknown filter operator %q", model.ErrInvalidArgument, f.Op)
		}
	}
	return nil
}

// Matches reports whether doc satisfies every filter of q.
// Documents whose data is not a JSON object never match a filtered query.
func (q Query) Matches(doc Document) bool {
	if len(q.Filters) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(doc.Data, &fields); err != nil {
		return false
	}
	for _, f := range q.Filters {
		if !f.matches(fields[f.Field]) {
			return false
		}
	}
	return true
}

// apply filters, orders and limits docs for q.
func (q Query) apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (f Filter) matches(actual any) bool {
	want := normalize(f.Value)
	actual = normalize(actual)

	switch f.Op {
	case OpEqual:
		return equal(actual, want)
	case OpNotEqual:
		return !equal(actual, want)
	}

	c, ok := compare(actual, want)
	if !ok {
		return false
	}
	switch f.Op {
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	}
	return false
}

// normalize maps Go values onto the JSON value space: numbers become
// float64, times become time.Time, RFC 3339 strings become time.Time.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case string:
		if t, ok := parseTime(x); ok {
			return t
		}
		return x
	}
	return v
}

func parseTime(s string) (time.Time, bool) {
	// Cheap shape check before parsing: "YYYY-MM-DDT..."
	if len(s) < 20 || s[4] != '-' || s[10] != 'T' {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case string, bool, float64:
		return a == b
	}
	return false
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}
