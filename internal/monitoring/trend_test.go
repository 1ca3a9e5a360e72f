package monitoring

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrendConstantSeries(t *testing.T) {
	ta := NewTrendAnalyzer(0, 0)

	for _, v := range []float64{0, 5, 120} {
		result := ta.Analyze(seriesSnapshots(v, v, v, v, v, v), "app.latency")

		assert.Equal(t, 6, result.Samples)
		assert.Equal(t, TrendStable, result.Direction)
		assert.False(t, result.RegressionDetected)
		assert.Equal(t, v, result.Min)
		assert.Equal(t, v, result.Max)
		assert.Equal(t, v, result.Avg)
	}
}

func TestTrendIncreasingSeriesRegression(t *testing.T) {
	ta := NewTrendAnalyzer(1.5, 0.05)

	result := ta.Analyze(seriesSnapshots(10, 11, 12, 40, 50, 60), "app.latency")

	assert.Equal(t, TrendUp, result.Direction)
	assert.True(t, result.RegressionDetected)
	assert.InDelta(t, 11.0, result.HistoricalAvg, 1e-9)
	assert.InDelta(t, 50.0, result.RecentAvg, 1e-9)
	assert.InDelta(t, 354.545, result.ChangePercent, 1e-3)
	assert.Equal(t, 10.0, result.Min)
	assert.Equal(t, 60.0, result.Max)
}

func TestTrendIncreaseBelowMultiplier(t *testing.T) {
	ta := NewTrendAnalyzer(1.5, 0.05)

	result := ta.Analyze(seriesSnapshots(10, 10, 12, 12), "app.latency")

	assert.Equal(t, TrendUp, result.Direction)
	assert.False(t, result.RegressionDetected)
}

func TestTrendDecreasingSeries(t *testing.T) {
	ta := NewTrendAnalyzer(0, 0)

	result := ta.Analyze(seriesSnapshots(100, 90, 50, 40), "app.latency")

	assert.Equal(t, TrendDown, result.Direction)
	assert.False(t, result.RegressionDetected)
	assert.InDelta(t, -52.63, result.ChangePercent, 0.01)
}

func TestTrendWithinToleranceIsStable(t *testing.T) {
	ta := NewTrendAnalyzer(0, 0.05)

	result := ta.Analyze(seriesSnapshots(100, 100, 102, 102), "app.latency")

	assert.Equal(t, TrendStable, result.Direction)
}

func TestTrendInsufficientSamples(t *testing.T) {
	ta := NewTrendAnalyzer(0, 0)

	result := ta.Analyze(seriesSnapshots(1, 100), "app.latency")

	assert.Equal(t, 2, result.Samples)
	assert.Equal(t, TrendStable, result.Direction)
	assert.False(t, result.RegressionDetected)
	assert.Equal(t, 50.5, result.Avg)

	empty := ta.Analyze(nil, "app.latency")
	assert.Equal(t, 0, empty.Samples)
	assert.Equal(t, TrendStable, empty.Direction)
}

func TestTrendSkipsMissingSamples(t *testing.T) {
	ta := NewTrendAnalyzer(0, 0)

	snapshots := []*Snapshot{
		snapshotAt(at(1), map[string]Value{"latency": Number(10)}),
		NewSnapshot("", at(2), FailedGroup("app", errors.New("timeout"))),
		snapshotAt(at(3), map[string]Value{"other": Number(1000)}),
		snapshotAt(at(4), map[string]Value{"latency": String("n/a")}),
		snapshotAt(at(5), map[string]Value{"latency": Number(20)}),
		nil,
	}

	result := ta.Analyze(snapshots, "app.latency")

	assert.Equal(t, 2, result.Samples)
	assert.Equal(t, 15.0, result.Avg, "missing samples must not count as zero")
	assert.Equal(t, 10.0, result.Min)
}

func TestTrendSkipsNonFiniteSamples(t *testing.T) {
	ta := NewTrendAnalyzer(0, 0)

	snapshots := []*Snapshot{
		snapshotAt(at(1), map[string]Value{"latency": Number(math.Inf(1))}),
		snapshotAt(at(2), map[string]Value{"latency": Number(10)}),
		snapshotAt(at(3), map[string]Value{"latency": Number(math.NaN())}),
		snapshotAt(at(4), map[string]Value{"latency": Number(math.Inf(-1))}),
		snapshotAt(at(5), map[string]Value{"latency": Number(30)}),
	}

	result := ta.Analyze(snapshots, "app.latency")
	assert.Equal(t, 2, result.Samples)
	assert.Equal(t, 20.0, result.Avg)
	assert.Equal(t, 30.0, result.Max)

	_, err := json.Marshal(result)
	require.NoError(t, err)

	allInf := ta.Analyze(seriesSnapshots(math.Inf(1), math.Inf(1), math.Inf(1)), "app.latency")
	assert.Equal(t, 0, allInf.Samples)
	_, err = json.Marshal(allInf)
	require.NoError(t, err)
}
