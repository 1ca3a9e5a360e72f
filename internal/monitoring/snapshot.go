package monitoring

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ValueKind identifies what a Value holds.
type ValueKind int

const (
	KindNumber ValueKind = iota
	KindBool
	KindString
)

// Value is a single measured metric value.
type Value struct {
	kind ValueKind
	num  float64
	b    bool
	str  string
}

func Number(v float64) Value { return Value{kind: KindNumber, num: v} }

func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

func String(v string) Value { return Value{kind: KindString, str: v} }

func (v Value) Kind() ValueKind { return v.kind }

// Float64 returns the numeric form of the value. Booleans map to 1 and 0,
// strings are not numeric.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return v.str
	}
}

// Finite reports whether the value is a string, a bool or a finite number.
func (v Value) Finite() bool {
	return v.kind != KindNumber || !(math.IsNaN(v.num) || math.IsInf(v.num, 0))
}

// MarshalJSON encodes NaN and ±Inf as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if !v.Finite() {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = Number(math.NaN())
	case float64:
		*v = Number(t)
	case bool:
		*v = Bool(t)
	case string:
		*v = String(t)
	default:
		return fmt.Errorf("unsupported metric value %s", string(data))
	}
	return nil
}

// GroupResult is the outcome of collecting one metric group.
type GroupResult struct {
	name    string
	metrics map[string]Value
	err     string
}

// NewGroupResult copies metrics into a successful group result.
func NewGroupResult(name string, metrics map[string]Value) GroupResult {
	copied := make(map[string]Value, len(metrics))
	for k, v := range metrics {
		copied[k] = v
	}
	return GroupResult{name: name, metrics: copied}
}

// FailedGroup records that collecting the named group failed.
func FailedGroup(name string, err error) GroupResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return GroupResult{name: name, err: msg}
}

func (g GroupResult) Name() string { return g.name }

func (g GroupResult) Failed() bool { return g.err != "" }

func (g GroupResult) Error() string { return g.err }

func (g GroupResult) Metric(name string) (Value, bool) {
	v, ok := g.metrics[name]
	return v, ok
}

// Metrics returns a copy of the group's values.
func (g GroupResult) Metrics() map[string]Value {
	out := make(map[string]Value, len(g.metrics))
	for k, v := range g.metrics {
		out[k] = v
	}
	return out
}

func (g GroupResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Metrics map[string]Value `json:"metrics,omitempty"`
		Error   string           `json:"error,omitempty"`
	}{g.metrics, g.err})
}

// Snapshot is one immutable, timestamped bundle of metric groups.
type Snapshot struct {
	id        string
	timestamp time.Time
	groups    map[string]GroupResult
}

// NewSnapshot builds a snapshot. When two groups share a name the later one wins.
func NewSnapshot(id string, ts time.Time, groups ...GroupResult) *Snapshot {
	s := &Snapshot{
		id:        id,
		timestamp: ts,
		groups:    make(map[string]GroupResult, len(groups)),
	}
	for _, g := range groups {
		s.groups[g.name] = g
	}
	return s
}

func (s *Snapshot) ID() string { return s.id }

func (s *Snapshot) Timestamp() time.Time { return s.timestamp }

func (s *Snapshot) Group(name string) (GroupResult, bool) {
	g, ok := s.groups[name]
	return g, ok
}

// GroupNames returns the group names in sorted order.
func (s *Snapshot) GroupNames() []string {
	names := make([]string, 0, len(s.groups))
	for name := range s.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FailedGroups returns the names of groups whose collection failed.
func (s *Snapshot) FailedGroups() []string {
	var failed []string
	for _, name := range s.GroupNames() {
		if s.groups[name].Failed() {
			failed = append(failed, name)
		}
	}
	return failed
}

// AllFailed reports whether the snapshot carries no successful group.
func (s *Snapshot) AllFailed() bool {
	for _, g := range s.groups {
		if !g.Failed() {
			return false
		}
	}
	return true
}

// Metric resolves a "<group>.<metric>" path. A failed or absent group yields false.
func (s *Snapshot) Metric(path string) (Value, bool) {
	group, metric, ok := SplitMetricPath(path)
	if !ok {
		return Value{}, false
	}
	g, ok := s.groups[group]
	if !ok || g.Failed() {
		return Value{}, false
	}
	return g.Metric(metric)
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string                 `json:"id"`
		Timestamp time.Time              `json:"timestamp"`
		Groups    map[string]GroupResult `json:"groups"`
	}{s.id, s.timestamp, s.groups})
}

// SplitMetricPath splits at the first dot.
func SplitMetricPath(path string) (group, metric string, ok bool) {
	group, metric, ok = strings.Cut(path, ".")
	if !ok || group == "" || metric == "" {
		return "", "", false
	}
	return group, metric, true
}
