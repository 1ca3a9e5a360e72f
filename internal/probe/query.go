package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DefaultSlowQueryThreshold marks a probe query as slow.
const DefaultSlowQueryThreshold = 2 * time.Second

// ProbeQuery is a named read-only statement timed on every collection.
type ProbeQuery struct {
	Name string `mapstructure:"name"`
	SQL  string `mapstructure:"sql"`
}

// QueryConfig configures a QueryProbe.
type QueryConfig struct {
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	Queries       []ProbeQuery  `mapstructure:"queries"`
}

// Validate checks every query has a unique name and a statement.
func (c QueryConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Queries))
	for _, q := range c.Queries {
		if q.Name == "" || q.SQL == "" {
			return errors.New("probe query requires name and sql")
		}
		if _, dup := seen[q.Name]; dup {
			return fmt.Errorf("duplicate probe query %s", q.Name)
		}
		seen[q.Name] = struct{}{}
	}
	if c.SlowThreshold < 0 {
		return errors.New("slow threshold cannot be negative")
	}
	return nil
}

// QueryProbe times configured queries against one database.
type QueryProbe struct {
	logger *zap.Logger
	name   string
	db     *sqlx.DB
	config QueryConfig
}

func NewQueryProbe(logger *zap.Logger, name string, db *sqlx.DB, config QueryConfig) *QueryProbe {
	if config.SlowThreshold <= 0 {
		config.SlowThreshold = DefaultSlowQueryThreshold
	}
	return &QueryProbe{logger: logger, name: name, db: db, config: config}
}

func (p *QueryProbe) Name() string { return "query_" + p.name }

func (p *QueryProbe) Collect(ctx context.Context) []monitoring.GroupResult {
	metrics := make(map[string]monitoring.Value, len(p.config.Queries)*3+4)

	var slow, failed int
	var maxMS, totalMS float64
	var lastErr error

	for _, q := range p.config.Queries {
		elapsed, rows, err := p.run(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return []monitoring.GroupResult{monitoring.FailedGroup(p.Name(), ctx.Err())}
			}
			failed++
			lastErr = err
			metrics[q.Name+"_error"] = monitoring.String(err.Error())
			p.logger.Warn("Probe query failed", zap.String("query", q.Name), zap.Error(err))
			continue
		}

		ms := milliseconds(elapsed)
		isSlow := elapsed >= p.config.SlowThreshold
		metrics[q.Name+"_ms"] = monitoring.Number(ms)
		metrics[q.Name+"_rows"] = monitoring.Number(float64(rows))
		metrics[q.Name+"_slow"] = monitoring.Bool(isSlow)

		if isSlow {
			slow++
			p.logger.Warn("Slow probe query",
				zap.String("query", q.Name),
				zap.Duration("duration", elapsed),
				zap.Duration("threshold", p.config.SlowThreshold),
			)
		}
		if ms > maxMS {
			maxMS = ms
		}
		totalMS += ms
	}

	if n := len(p.config.Queries); n > 0 && failed == n {
		return []monitoring.GroupResult{monitoring.FailedGroup(p.Name(), lastErr)}
	}

	metrics["slow_count"] = monitoring.Number(float64(slow))
	metrics["failed_count"] = monitoring.Number(float64(failed))
	metrics["max_ms"] = monitoring.Number(maxMS)
	if ok := len(p.config.Queries) - failed; ok > 0 {
		metrics["avg_ms"] = monitoring.Number(totalMS / float64(ok))
	}

	return []monitoring.GroupResult{monitoring.NewGroupResult(p.Name(), metrics)}
}

func (p *QueryProbe) run(ctx context.Context, q ProbeQuery) (time.Duration, int, error) {
	start := time.Now()

	rows, err := p.db.QueryxContext(ctx, q.SQL)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	return time.Since(start), count, nil
}
