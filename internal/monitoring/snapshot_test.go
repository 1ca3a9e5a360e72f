package monitoring

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueFloat64(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		want    float64
		numeric bool
	}{
		{"number", Number(12.5), 12.5, true},
		{"true", Bool(true), 1, true},
		{"false", Bool(false), 0, true},
		{"string", String("15.0"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.value.Float64()
			assert.Equal(t, tt.numeric, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnapshotMetricPath(t *testing.T) {
	s := NewSnapshot("id-1", epoch,
		NewGroupResult("db_main", map[string]Value{
			"latency_ms": Number(3),
			"up":         Bool(true),
			"version":    String("PostgreSQL 16"),
		}),
		FailedGroup("disk", errors.New("permission denied")),
	)

	v, ok := s.Metric("db_main.latency_ms")
	require.True(t, ok)
	f, _ := v.Float64()
	assert.Equal(t, 3.0, f)

	_, ok = s.Metric("disk.percent")
	assert.False(t, ok, "failed group must not yield metrics")

	_, ok = s.Metric("missing.metric")
	assert.False(t, ok)

	_, ok = s.Metric("nodot")
	assert.False(t, ok)

	assert.Equal(t, []string{"db_main", "disk"}, s.GroupNames())
	assert.Equal(t, []string{"disk"}, s.FailedGroups())
	assert.False(t, s.AllFailed())
}

func TestSnapshotIsolatedFromCallerMaps(t *testing.T) {
	metrics := map[string]Value{"value": Number(1)}
	s := NewSnapshot("", epoch, NewGroupResult("g", metrics))

	metrics["value"] = Number(2)
	g, _ := s.Group("g")
	g.Metrics()["value"] = Number(3)

	v, _ := s.Metric("g.value")
	f, _ := v.Float64()
	assert.Equal(t, 1.0, f)
}

func TestSnapshotLaterGroupWins(t *testing.T) {
	s := NewSnapshot("", epoch,
		NewGroupResult("g", map[string]Value{"v": Number(1)}),
		NewGroupResult("g", map[string]Value{"v": Number(2)}),
	)
	v, _ := s.Metric("g.v")
	f, _ := v.Float64()
	assert.Equal(t, 2.0, f)
}

func TestSnapshotJSON(t *testing.T) {
	s := NewSnapshot("abc", epoch,
		NewGroupResult("system", map[string]Value{"cpu_percent": Number(42), "cpu_brand": String("x86")}),
		FailedGroup("disk", errors.New("boom")),
	)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded struct {
		ID     string `json:"id"`
		Groups map[string]struct {
			Metrics map[string]Value `json:"metrics"`
			Error   string           `json:"error"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "abc", decoded.ID)
	assert.Equal(t, "boom", decoded.Groups["disk"].Error)
	assert.Equal(t, "x86", decoded.Groups["system"].Metrics["cpu_brand"].String())
	f, ok := decoded.Groups["system"].Metrics["cpu_percent"].Float64()
	assert.True(t, ok)
	assert.Equal(t, 42.0, f)
}

func TestSplitMetricPath(t *testing.T) {
	group, metric, ok := SplitMetricPath("query_main.orders.by_day_ms")
	require.True(t, ok)
	assert.Equal(t, "query_main", group)
	assert.Equal(t, "orders.by_day_ms", metric)

	for _, bad := range []string{"", ".x", "x.", "x"} {
		_, _, ok := SplitMetricPath(bad)
		assert.False(t, ok, bad)
	}
}

func TestSnapshotJSONNonFiniteNumbers(t *testing.T) {
	snap := NewSnapshot("s1", epoch, NewGroupResult("app", map[string]Value{
		"ratio": Number(math.Inf(1)),
		"floor": Number(math.Inf(-1)),
		"mean":  Number(math.NaN()),
		"ok":    Number(1),
	}))

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ratio":null`)
	assert.Contains(t, string(data), `"mean":null`)
	assert.Contains(t, string(data), `"ok":1`)

	var v Value
	require.NoError(t, json.Unmarshal([]byte("null"), &v))
	f, ok := v.Float64()
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))
	assert.False(t, v.Finite())
	assert.True(t, Number(2).Finite())
	assert.True(t, String("x").Finite())
}
