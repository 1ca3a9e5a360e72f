package monitoring

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultRegressionMultiplier = 1.5
	DefaultStableTolerance      = 0.05

	// minTrendSamples is the smallest series that supports a direction.
	minTrendSamples = 3
)

// TrendDirection is the coarse movement of a metric over a range.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// TrendResult is derived on demand from a range of snapshots.
type TrendResult struct {
	Metric             string         `json:"metric"`
	Samples            int            `json:"samples"`
	Min                float64        `json:"min"`
	Max                float64        `json:"max"`
	Avg                float64        `json:"avg"`
	HistoricalAvg      float64        `json:"historical_avg"`
	RecentAvg          float64        `json:"recent_avg"`
	ChangePercent      float64        `json:"change_percent"`
	Direction          TrendDirection `json:"direction"`
	RegressionDetected bool           `json:"regression_detected"`
}

// TrendAnalyzer computes statistics over snapshot series.
type TrendAnalyzer struct {
	RegressionMultiplier float64
	StableTolerance      float64
}

// NewTrendAnalyzer returns an analyzer, substituting defaults for non-positive
// settings.
func NewTrendAnalyzer(multiplier, tolerance float64) *TrendAnalyzer {
	if multiplier <= 0 {
		multiplier = DefaultRegressionMultiplier
	}
	if tolerance <= 0 {
		tolerance = DefaultStableTolerance
	}
	return &TrendAnalyzer{
		RegressionMultiplier: multiplier,
		StableTolerance:      tolerance,
	}
}

// Analyze extracts metricPath from each snapshot and summarises the series.
// Snapshots lacking a numeric sample for the metric are skipped.
func (ta *TrendAnalyzer) Analyze(snapshots []*Snapshot, metricPath string) TrendResult {
	result := TrendResult{
		Metric:    metricPath,
		Direction: TrendStable,
	}

	samples := ExtractSeries(snapshots, metricPath)
	result.Samples = len(samples)
	if len(samples) == 0 {
		return result
	}

	result.Min = floats.Min(samples)
	result.Max = floats.Max(samples)
	result.Avg = stat.Mean(samples, nil)

	if len(samples) < minTrendSamples {
		result.HistoricalAvg = result.Avg
		result.RecentAvg = result.Avg
		return result
	}

	mid := len(samples) / 2
	result.HistoricalAvg = stat.Mean(samples[:mid], nil)
	result.RecentAvg = stat.Mean(samples[mid:], nil)
	result.ChangePercent = changePercent(result.HistoricalAvg, result.RecentAvg)
	result.Direction = ta.direction(result.HistoricalAvg, result.RecentAvg)
	result.RegressionDetected = result.RecentAvg > result.HistoricalAvg*ta.RegressionMultiplier

	return result
}

func (ta *TrendAnalyzer) direction(historical, recent float64) TrendDirection {
	scale := math.Max(math.Abs(historical), math.Abs(recent))
	if scale == 0 || math.Abs(recent-historical) <= ta.StableTolerance*scale {
		return TrendStable
	}
	if recent > historical {
		return TrendUp
	}
	return TrendDown
}

func changePercent(historical, recent float64) float64 {
	if historical == 0 {
		return 0
	}
	return (recent - historical) / math.Abs(historical) * 100
}

// ExtractSeries returns the finite numeric samples of metricPath in snapshot
// order.
func ExtractSeries(snapshots []*Snapshot, metricPath string) []float64 {
	samples := make([]float64, 0, len(snapshots))
	for _, s := range snapshots {
		if s == nil {
			continue
		}
		v, ok := s.Metric(metricPath)
		if !ok {
			continue
		}
		f, ok := v.Float64()
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		samples = append(samples, f)
	}
	return samples
}
