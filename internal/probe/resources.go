package probe

import (
	"context"
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// MemoryStats is a point-in-time memory reading.
type MemoryStats struct {
	Total       uint64
	Used        uint64
	Available   uint64
	UsedPercent float64
}

// DiskStats is a point-in-time filesystem reading.
type DiskStats struct {
	Path        string
	Total       uint64
	Used        uint64
	Free        uint64
	UsedPercent float64
}

// NetworkStats holds cumulative interface counters.
type NetworkStats struct {
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
	Errors      uint64
	Drops       uint64
}

// CPUInfo holds static processor facts.
type CPUInfo struct {
	Brand         string
	Vendor        string
	LogicalCores  int
	PhysicalCores int
}

// ResourceReader reads OS and process resources. Tests substitute a fake.
type ResourceReader interface {
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (MemoryStats, error)
	Disk(ctx context.Context, path string) (DiskStats, error)
	Load1(ctx context.Context) (float64, error)
	Network(ctx context.Context) (NetworkStats, error)
	Goroutines() int
	CPUInfo() CPUInfo
}

// HostReader reads the local host through gopsutil and cpuid.
type HostReader struct{}

// NewHostReader returns the default ResourceReader.
func NewHostReader() *HostReader {
	return &HostReader{}
}

// CPUPercent returns utilisation since the previous call.
func (HostReader) CPUPercent(ctx context.Context) (float64, error) {
	percent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(percent) == 0 {
		return 0, fmt.Errorf("cpu percent: no samples")
	}
	return percent[0], nil
}

func (HostReader) Memory(ctx context.Context) (MemoryStats, error) {
	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStats{}, fmt.Errorf("virtual memory: %w", err)
	}
	return MemoryStats{
		Total:       vmem.Total,
		Used:        vmem.Used,
		Available:   vmem.Available,
		UsedPercent: vmem.UsedPercent,
	}, nil
}

func (HostReader) Disk(ctx context.Context, path string) (DiskStats, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskStats{}, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return DiskStats{
		Path:        usage.Path,
		Total:       usage.Total,
		Used:        usage.Used,
		Free:        usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

func (HostReader) Load1(ctx context.Context) (float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("load average: %w", err)
	}
	return avg.Load1, nil
}

func (HostReader) Network(ctx context.Context) (NetworkStats, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return NetworkStats{}, fmt.Errorf("network counters: %w", err)
	}
	if len(counters) == 0 {
		return NetworkStats{}, fmt.Errorf("network counters: no interfaces")
	}
	c := counters[0]
	return NetworkStats{
		BytesSent:   c.BytesSent,
		BytesRecv:   c.BytesRecv,
		PacketsSent: c.PacketsSent,
		PacketsRecv: c.PacketsRecv,
		Errors:      c.Errin + c.Errout,
		Drops:       c.Dropin + c.Dropout,
	}, nil
}

func (HostReader) Goroutines() int {
	return runtime.NumGoroutine()
}

func (HostReader) CPUInfo() CPUInfo {
	return CPUInfo{
		Brand:         cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		LogicalCores:  cpuid.CPU.LogicalCores,
		PhysicalCores: cpuid.CPU.PhysicalCores,
	}
}
