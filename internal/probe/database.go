package probe

import (
	"context"
	"time"

	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"go.uber.org/zap"
)

// Pinger is the connection surface DatabaseProbe needs.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

// DatabaseProbe checks that a database answers and how fast.
//
// An unreachable database is a measurement, not a collection failure: the
// group reports up=false so rules can alert on it.
type DatabaseProbe struct {
	logger *zap.Logger
	db     Pinger
}

func NewDatabaseProbe(logger *zap.Logger, db Pinger) *DatabaseProbe {
	return &DatabaseProbe{logger: logger, db: db}
}

func (p *DatabaseProbe) Name() string { return "db_" + p.db.Name() }

func (p *DatabaseProbe) Collect(ctx context.Context) []monitoring.GroupResult {
	start := time.Now()
	err := p.db.Ping(ctx)
	latency := time.Since(start)

	metrics := map[string]monitoring.Value{
		"up":         monitoring.Bool(err == nil),
		"latency_ms": monitoring.Number(milliseconds(latency)),
	}

	if err != nil {
		if ctx.Err() != nil {
			return []monitoring.GroupResult{monitoring.FailedGroup(p.Name(), ctx.Err())}
		}
		p.logger.Warn("Database ping failed", zap.String("database", p.db.Name()), zap.Error(err))
		metrics["error"] = monitoring.String(err.Error())
		return []monitoring.GroupResult{monitoring.NewGroupResult(p.Name(), metrics)}
	}

	if version, err := p.db.Version(ctx); err == nil {
		metrics["version"] = monitoring.String(version)
	} else {
		p.logger.Debug("Version query failed", zap.String("database", p.db.Name()), zap.Error(err))
	}

	return []monitoring.GroupResult{monitoring.NewGroupResult(p.Name(), metrics)}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
