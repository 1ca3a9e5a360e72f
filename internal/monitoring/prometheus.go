package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "maplemon"

// pipelineMetrics instruments the pipeline itself.
type pipelineMetrics struct {
	ticks             prometheus.Counter
	ticksSkipped      prometheus.Counter
	tickDuration      prometheus.Histogram
	collectorFailures *prometheus.CounterVec
	collectorDuration *prometheus.HistogramVec
	evaluationErrors  prometheus.Counter
	activeAlerts      *prometheus.GaugeVec
	alertsRaised      prometheus.Counter
	alertsResolved    prometheus.Counter
	snapshotsRetained prometheus.Gauge
	notificationsDrop prometheus.Counter
}

func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	m := &pipelineMetrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Collection ticks run",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because the previous tick was still running",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of collection ticks",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		collectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "collector",
			Name:      "failures_total",
			Help:      "Collector invocations that timed out, panicked or returned nothing",
		}, []string{"collector"}),
		collectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "collector",
			Name:      "duration_seconds",
			Help:      "Duration of collector invocations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collector"}),
		evaluationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "alerts",
			Name:      "evaluation_errors_total",
			Help:      "Rules skipped because they were malformed or their metric was missing",
		}),
		activeAlerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "alerts",
			Name:      "active",
			Help:      "Active alerts by level",
		}, []string{"level"}),
		alertsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "alerts",
			Name:      "raised_total",
			Help:      "Alerts raised",
		}),
		alertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "alerts",
			Name:      "resolved_total",
			Help:      "Alerts resolved by expiry",
		}),
		snapshotsRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "history",
			Name:      "snapshots",
			Help:      "Snapshots currently retained",
		}),
		notificationsDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "alerts",
			Name:      "notifications_dropped_total",
			Help:      "Alert events dropped because the notification queue was full",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ticks,
			m.ticksSkipped,
			m.tickDuration,
			m.collectorFailures,
			m.collectorDuration,
			m.evaluationErrors,
			m.activeAlerts,
			m.alertsRaised,
			m.alertsResolved,
			m.snapshotsRetained,
			m.notificationsDrop,
		)
	}

	return m
}

func (m *pipelineMetrics) observeAlerts(active []AlertRecord) {
	counts := map[AlertLevel]float64{LevelInfo: 0, LevelWarning: 0, LevelCritical: 0}
	for _, a := range active {
		counts[a.Level]++
	}
	for level, n := range counts {
		m.activeAlerts.WithLabelValues(level.String()).Set(n)
	}
}

// SnapshotCollector exports the numeric values of the current snapshot.
type SnapshotCollector struct {
	source interface{ GetCurrentSnapshot() *Snapshot }

	value  *prometheus.Desc
	failed *prometheus.Desc
	age    *prometheus.Desc
}

// NewSnapshotCollector creates a prometheus.Collector over source's current
// snapshot.
func NewSnapshotCollector(source interface{ GetCurrentSnapshot() *Snapshot }) *SnapshotCollector {
	return &SnapshotCollector{
		source: source,
		value: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "metric_value"),
			"Latest collected metric value",
			[]string{"group", "metric"}, nil,
		),
		failed: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "group_failed"),
			"Whether the latest collection of the group failed",
			[]string{"group"}, nil,
		),
		age: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "snapshot_timestamp_seconds"),
			"Timestamp of the latest snapshot",
			nil, nil,
		),
	}
}

func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.failed
	ch <- c.age
}

func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.GetCurrentSnapshot()
	if s == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.age, prometheus.GaugeValue,
		float64(s.Timestamp().UnixNano())/1e9)

	for _, name := range s.GroupNames() {
		g, _ := s.Group(name)
		failed := 0.0
		if g.Failed() {
			failed = 1
		}
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.GaugeValue, failed, name)

		for metric, v := range g.Metrics() {
			f, ok := v.Float64()
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, f, name, metric)
		}
	}
}
