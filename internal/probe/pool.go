package probe

import (
	"context"
	"database/sql"
	"sync"

	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
)

// StatsSource exposes connection pool statistics.
type StatsSource interface {
	Name() string
	Stats() sql.DBStats
}

// PoolProbe reports connection pool saturation.
type PoolProbe struct {
	source StatsSource

	mu   sync.Mutex
	prev *sql.DBStats
}

func NewPoolProbe(source StatsSource) *PoolProbe {
	return &PoolProbe{source: source}
}

func (p *PoolProbe) Name() string { return "pool_" + p.source.Name() }

func (p *PoolProbe) Collect(_ context.Context) []monitoring.GroupResult {
	stats := p.source.Stats()

	utilization := 0.0
	if stats.MaxOpenConnections > 0 {
		utilization = float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	}

	metrics := map[string]monitoring.Value{
		"open":                monitoring.Number(float64(stats.OpenConnections)),
		"in_use":              monitoring.Number(float64(stats.InUse)),
		"idle":                monitoring.Number(float64(stats.Idle)),
		"max_open":            monitoring.Number(float64(stats.MaxOpenConnections)),
		"wait_count":          monitoring.Number(float64(stats.WaitCount)),
		"wait_ms":             monitoring.Number(milliseconds(stats.WaitDuration)),
		"max_idle_closed":     monitoring.Number(float64(stats.MaxIdleClosed)),
		"max_lifetime_closed": monitoring.Number(float64(stats.MaxLifetimeClosed)),
		"utilization_percent": monitoring.Number(utilization),
		"exhausted":           monitoring.Bool(stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections),
	}

	p.mu.Lock()
	if p.prev != nil {
		metrics["wait_count_delta"] = monitoring.Number(float64(stats.WaitCount - p.prev.WaitCount))
		metrics["wait_ms_delta"] = monitoring.Number(milliseconds(stats.WaitDuration - p.prev.WaitDuration))
	}
	p.prev = &stats
	p.mu.Unlock()

	return []monitoring.GroupResult{monitoring.NewGroupResult(p.Name(), metrics)}
}
