package probe

import (
	"context"

	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"go.uber.org/zap"
)

const (
	SystemGroup  = "system"
	DiskGroup    = "disk"
	NetworkGroup = "network"
)

// SystemConfig configures a SystemProbe.
type SystemConfig struct {
	DiskPath       string `mapstructure:"disk_path"`
	CollectNetwork bool   `mapstructure:"collect_network"`
}

// SystemProbe reports host resource usage.
type SystemProbe struct {
	logger *zap.Logger
	reader ResourceReader
	config SystemConfig
	info   CPUInfo
}

// NewSystemProbe creates a probe; a nil reader reads the local host.
func NewSystemProbe(logger *zap.Logger, reader ResourceReader, config SystemConfig) *SystemProbe {
	if reader == nil {
		reader = NewHostReader()
	}
	if config.DiskPath == "" {
		config.DiskPath = "/"
	}
	return &SystemProbe{
		logger: logger,
		reader: reader,
		config: config,
		info:   reader.CPUInfo(),
	}
}

func (p *SystemProbe) Name() string { return "system" }

func (p *SystemProbe) Collect(ctx context.Context) []monitoring.GroupResult {
	groups := []monitoring.GroupResult{
		p.collectSystem(ctx),
		p.collectDisk(ctx),
	}
	if p.config.CollectNetwork {
		groups = append(groups, p.collectNetwork(ctx))
	}
	return groups
}

func (p *SystemProbe) collectSystem(ctx context.Context) monitoring.GroupResult {
	cpuPercent, err := p.reader.CPUPercent(ctx)
	if err != nil {
		return monitoring.FailedGroup(SystemGroup, err)
	}
	memory, err := p.reader.Memory(ctx)
	if err != nil {
		return monitoring.FailedGroup(SystemGroup, err)
	}

	metrics := map[string]monitoring.Value{
		"cpu_percent":        monitoring.Number(cpuPercent),
		"memory_percent":     monitoring.Number(memory.UsedPercent),
		"memory_used_bytes":  monitoring.Number(float64(memory.Used)),
		"memory_total_bytes": monitoring.Number(float64(memory.Total)),
		"goroutines":         monitoring.Number(float64(p.reader.Goroutines())),
		"cpu_brand":          monitoring.String(p.info.Brand),
		"logical_cores":      monitoring.Number(float64(p.info.LogicalCores)),
	}

	// Load average is unavailable on some platforms; its absence is not a failure.
	if load1, err := p.reader.Load1(ctx); err == nil {
		metrics["load1"] = monitoring.Number(load1)
	} else {
		p.logger.Debug("Load average unavailable", zap.Error(err))
	}

	return monitoring.NewGroupResult(SystemGroup, metrics)
}

func (p *SystemProbe) collectDisk(ctx context.Context) monitoring.GroupResult {
	usage, err := p.reader.Disk(ctx, p.config.DiskPath)
	if err != nil {
		return monitoring.FailedGroup(DiskGroup, err)
	}
	return monitoring.NewGroupResult(DiskGroup, map[string]monitoring.Value{
		"path":        monitoring.String(usage.Path),
		"percent":     monitoring.Number(usage.UsedPercent),
		"used_bytes":  monitoring.Number(float64(usage.Used)),
		"free_bytes":  monitoring.Number(float64(usage.Free)),
		"total_bytes": monitoring.Number(float64(usage.Total)),
	})
}

func (p *SystemProbe) collectNetwork(ctx context.Context) monitoring.GroupResult {
	stats, err := p.reader.Network(ctx)
	if err != nil {
		return monitoring.FailedGroup(NetworkGroup, err)
	}
	return monitoring.NewGroupResult(NetworkGroup, map[string]monitoring.Value{
		"bytes_sent":   monitoring.Number(float64(stats.BytesSent)),
		"bytes_recv":   monitoring.Number(float64(stats.BytesRecv)),
		"packets_sent": monitoring.Number(float64(stats.PacketsSent)),
		"packets_recv": monitoring.Number(float64(stats.PacketsRecv)),
		"errors":       monitoring.Number(float64(stats.Errors)),
		"drops":        monitoring.Number(float64(stats.Drops)),
	})
}
