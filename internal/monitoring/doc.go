// Package monitoring provides the periodic metrics-collection and alerting pipeline
// shared by the admin backend's database, query, connection-pool and system monitors.
//
// The pipeline is built from five pieces:
//
// 1. Collectors (collector.go):
//    - Pluggable sources producing named metric groups
//    - Bounded by a per-tick timeout, failures recorded on the group
//
// 2. History (history.go):
//    - Retention-bounded, time-ordered snapshot buffer
//    - Lock-free reads of the current snapshot and of ranges
//
// 3. Trends (trend.go):
//    - Min/max/avg, direction and regression flags over a range
//
// 4. Alerts (alert_manager.go):
//    - Threshold rules evaluated against every snapshot
//    - De-duplicated, expiring alert records
//
// 5. Scheduling (scheduler.go, monitor.go):
//    - Fixed-interval ticks that never overlap
//
// Usage:
//
//	mon, err := monitoring.NewMonitor(logger, cfg, monitoring.WithRegisterer(reg))
//	mon.RegisterCollector("system", probe.NewSystemProbe(logger, nil, probe.SystemConfig{}))
//	mon.RegisterAlertRule(monitoring.AlertRule{Name: "cpu_high", Metric: "system.cpu_percent",
//		Operator: ">", Threshold: 90, Level: monitoring.LevelCritical})
//	mon.Start(ctx)
//	defer mon.Stop()
package monitoring
