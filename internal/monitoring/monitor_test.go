package monitoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CollectionInterval = time.Second
	cfg.RetentionDuration = 5 * time.Second
	cfg.AlertExpiryWindow = 10 * time.Second
	return cfg
}

// recordingNotifier captures delivered events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (n *recordingNotifier) Notify(_ context.Context, e AlertEvent) error {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Events() []AlertEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]AlertEvent(nil), n.events...)
}

func TestNewMonitorRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero interval", func(c *Config) { c.CollectionInterval = 0 }},
		{"negative retention", func(c *Config) { c.RetentionDuration = -time.Hour }},
		{"retention below interval", func(c *Config) { c.RetentionDuration = time.Millisecond }},
		{"negative expiry", func(c *Config) { c.AlertExpiryWindow = -time.Second }},
		{"collect timeout above interval", func(c *Config) { c.CollectTimeout = 2 * time.Second }},
		{"tolerance out of range", func(c *Config) { c.StableTolerance = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
			_, err := NewMonitor(zaptest.NewLogger(t), cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.True(t, IsKind(err, KindConfiguration))
		})
	}
}

func TestMonitorFillsOptionalSettings(t *testing.T) {
	m, err := NewMonitor(zaptest.NewLogger(t), Config{
		CollectionInterval: time.Second,
		RetentionDuration:  time.Minute,
	})
	require.NoError(t, err)

	cfg := m.Config()
	assert.Equal(t, DefaultAlertExpiryWindow, cfg.AlertExpiryWindow)
	assert.Equal(t, 800*time.Millisecond, cfg.CollectTimeout)
	assert.Equal(t, DefaultNotificationQueueSize, cfg.NotificationQueueSize)
}

func TestMonitorDefaults(t *testing.T) {
	m, err := NewMonitor(zaptest.NewLogger(t), testConfig())
	require.NoError(t, err)

	assert.Equal(t, 800*time.Millisecond, m.Config().CollectTimeout)
	assert.Equal(t, DefaultStopGracePeriod, m.Config().StopGracePeriod)
	assert.Equal(t, 10*time.Second, m.Config().AlertExpiryWindow)
	assert.Nil(t, m.GetCurrentSnapshot())
	assert.Empty(t, m.GetActiveAlerts())
}

func TestMonitorRegisterCollector(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := NewMonitor(zaptest.NewLogger(t), testConfig())
	require.NoError(t, err)

	c := &staticCollector{group: "app"}
	require.NoError(t, m.RegisterCollector("static", c))
	assert.ErrorIs(t, m.RegisterCollector("static", c), ErrDuplicateCollector)
	assert.Error(t, m.RegisterCollector("", c))
	assert.Error(t, m.RegisterCollector("nil", nil))

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.RegisterCollector("late", c), ErrAlreadyStarted)
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, m.Stop())

	assert.Equal(t, []string{"static"}, m.Collectors())
}

func TestMonitorRegisterAlertRule(t *testing.T) {
	m, err := NewMonitor(zaptest.NewLogger(t), testConfig())
	require.NoError(t, err)

	require.NoError(t, m.RegisterAlertRule(metricXRule()))
	assert.Error(t, m.RegisterAlertRule(metricXRule()), "duplicate rule id")

	bad := metricXRule()
	bad.Operator = "~"
	err = m.RegisterAlertRule(bad)
	assert.True(t, IsKind(err, KindConfiguration))

	assert.Len(t, m.Rules(), 1)
}

// TestMonitorRetentionScenario drives ticks at t=1..10 with 5s retention.
func TestMonitorRetentionScenario(t *testing.T) {
	clock := newFakeClock(at(0))
	m, err := NewMonitor(zaptest.NewLogger(t), testConfig(), WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, m.RegisterCollector("static", &staticCollector{group: "app", value: 1}))

	for i := 1; i <= 10; i++ {
		clock.Set(at(i))
		s, err := m.CollectNow(context.Background())
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, at(i), s.Timestamp())
	}

	history := m.GetHistoricalSnapshots(5 * time.Second)
	require.Len(t, history, 5)
	for i, s := range history {
		assert.Equal(t, at(6+i), s.Timestamp())
	}
	assert.Equal(t, at(10), m.GetCurrentSnapshot().Timestamp())
}

// TestMonitorAlertLifecycle breaches metricX at t=1 and t=3, then lets it expire.
func TestMonitorAlertLifecycle(t *testing.T) {
	clock := newFakeClock(at(0))
	reg := prometheus.NewRegistry()
	m, err := NewMonitor(zaptest.NewLogger(t), testConfig(), WithClock(clock), WithRegisterer(reg))
	require.NoError(t, err)

	c := &staticCollector{group: "app"}
	require.NoError(t, m.RegisterCollector("x", CollectorFunc(func(ctx context.Context) []GroupResult {
		c.mu.Lock()
		defer c.mu.Unlock()
		return []GroupResult{NewGroupResult("app", map[string]Value{"metricX": Number(c.value)})}
	})))
	require.NoError(t, m.RegisterAlertRule(metricXRule()))

	step := func(sec int, v float64) {
		clock.Set(at(sec))
		c.Set(v)
		_, err := m.CollectNow(context.Background())
		require.NoError(t, err)
	}

	step(1, 150)
	step(3, 200)

	active := m.GetActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, at(1), active[0].TriggeredAt)
	assert.Equal(t, at(3), active[0].LastSeenAt)
	assert.Equal(t, 200.0, active[0].MetricValue)

	require.NoError(t, m.AcknowledgeAlert(active[0].RuleID))
	assert.ErrorIs(t, m.AcknowledgeAlert("unknown"), ErrAlertNotFound)

	step(8, 50)
	assert.Len(t, m.GetActiveAlerts(), 1, "inside the expiry window")

	step(14, 50)
	assert.Empty(t, m.GetActiveAlerts())

	assert.Equal(t, 4.0, testutil.ToFloat64(m.metrics.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.alertsRaised))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.alertsResolved))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.metrics.activeAlerts.WithLabelValues("warning")))

	status := m.Status()
	assert.Equal(t, uint64(1), status.AlertsRaised)
	assert.Equal(t, uint64(1), status.AlertsResolved)
	assert.Equal(t, uint64(4), status.Scheduler.TicksRun)
}

func TestMonitorCollectorFailuresAreAbsorbed(t *testing.T) {
	clock := newFakeClock(at(1))
	cfg := testConfig()
	cfg.CollectTimeout = 20 * time.Millisecond
	m, err := NewMonitor(zaptest.NewLogger(t), cfg, WithClock(clock), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	require.NoError(t, m.RegisterCollector("ok", &staticCollector{group: "app", value: 1}))
	require.NoError(t, m.RegisterCollector("slow", CollectorFunc(func(ctx context.Context) []GroupResult {
		<-ctx.Done()
		return nil
	})))
	require.NoError(t, m.RegisterCollector("broken", CollectorFunc(func(context.Context) []GroupResult {
		return []GroupResult{FailedGroup("db_main", errors.New("connection refused"))}
	})))
	require.NoError(t, m.RegisterAlertRule(AlertRule{
		Name: "db_down", Metric: "db_main.up", Operator: "==", Threshold: 0,
		Level: LevelCritical, AlertOnMissingData: true,
	}))

	s, err := m.CollectNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"db_main", "slow"}, s.FailedGroups())
	_, ok := s.Metric("app.value")
	assert.True(t, ok)

	alerts := m.GetActiveAlerts()
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].MissingData)
	assert.Equal(t, LevelCritical, alerts[0].Level)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.collectorFailures.WithLabelValues("slow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.evaluationErrors))
}

func TestMonitorDuplicateGroupLaterWins(t *testing.T) {
	m, err := NewMonitor(zaptest.NewLogger(t), testConfig(), WithClock(newFakeClock(at(1))))
	require.NoError(t, err)

	require.NoError(t, m.RegisterCollector("first", &staticCollector{group: "shared", value: 1}))
	require.NoError(t, m.RegisterCollector("second", &staticCollector{group: "shared", value: 2}))

	s, err := m.CollectNow(context.Background())
	require.NoError(t, err)

	v, ok := s.Metric("shared.value")
	require.True(t, ok)
	f, _ := v.Float64()
	assert.Equal(t, 2.0, f)
}

func TestMonitorTimestampsNeverGoBackwards(t *testing.T) {
	clock := newFakeClock(at(10))
	m, err := NewMonitor(zaptest.NewLogger(t), testConfig(), WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, m.RegisterCollector("static", &staticCollector{group: "app"}))

	_, err = m.CollectNow(context.Background())
	require.NoError(t, err)

	clock.Set(at(8))
	s, err := m.CollectNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at(10), s.Timestamp())
}

func TestMonitorGetTrend(t *testing.T) {
	clock := newFakeClock(at(0))
	cfg := testConfig()
	cfg.RetentionDuration = time.Minute
	m, err := NewMonitor(zaptest.NewLogger(t), cfg, WithClock(clock))
	require.NoError(t, err)

	c := &staticCollector{group: "app"}
	require.NoError(t, m.RegisterCollector("static", c))

	for i, v := range []float64{10, 10, 10, 30, 30, 30} {
		clock.Set(at(i + 1))
		c.Set(v)
		_, err := m.CollectNow(context.Background())
		require.NoError(t, err)
	}

	trend := m.GetTrend(time.Minute, "app.value")
	assert.Equal(t, 6, trend.Samples)
	assert.Equal(t, TrendUp, trend.Direction)
	assert.True(t, trend.RegressionDetected)
}

func TestMonitorReplaceAlertRules(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock(at(1))
	notifier := &recordingNotifier{}
	m, err := NewMonitor(zaptest.NewLogger(t), testConfig(), WithClock(clock), WithNotifiers(notifier))
	require.NoError(t, err)

	c := &staticCollector{group: "app", value: 500}
	require.NoError(t, m.RegisterCollector("static", c))
	require.NoError(t, m.RegisterAlertRule(AlertRule{Name: "hot", Metric: "app.value", Operator: ">", Threshold: 100}))

	_, err = m.CollectNow(context.Background())
	require.NoError(t, err)
	require.Len(t, m.GetActiveAlerts(), 1)

	dup := []AlertRule{
		{Name: "a", Metric: "app.value", Operator: ">", Threshold: 1},
		{Name: "a", Metric: "app.value", Operator: "<", Threshold: 1},
	}
	assert.Error(t, m.ReplaceAlertRules(dup))
	assert.Len(t, m.Rules(), 1)

	require.NoError(t, m.ReplaceAlertRules([]AlertRule{
		{Name: "cold", Metric: "app.value", Operator: "<", Threshold: 0},
	}))
	assert.Empty(t, m.GetActiveAlerts())

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())

	events := notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, AlertRaised, events[0].Type)
	assert.Equal(t, AlertResolved, events[1].Type)
	assert.True(t, strings.HasPrefix(events[1].Alert.RuleID, "hot_"))
}

func TestMonitorReplaceAlertRulesDuringTicks(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := NewMonitor(zaptest.NewLogger(t), testConfig())
	require.NoError(t, err)
	require.NoError(t, m.RegisterCollector("static", &staticCollector{group: "app", value: 500}))

	hot := []AlertRule{{Name: "hot", Metric: "app.value", Operator: ">", Threshold: 100}}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				m.CollectNow(context.Background())
			}
		}
	}()

	for i := 0; i < 200; i++ {
		require.NoError(t, m.ReplaceAlertRules(hot))
		require.NoError(t, m.ReplaceAlertRules(nil))
		require.Empty(t, m.GetActiveAlerts(), "alert outlived its rule on iteration %d", i)
	}

	close(done)
	wg.Wait()
}

func TestMonitorRunsOnSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	cfg.CollectionInterval = 10 * time.Millisecond
	cfg.RetentionDuration = time.Minute
	m, err := NewMonitor(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)

	c := &staticCollector{group: "app", value: 1}
	require.NoError(t, m.RegisterCollector("static", c))

	require.NoError(t, m.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(m.GetHistoricalSnapshots(time.Minute)) >= 3 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop())

	assert.Equal(t, StateStopped.String(), m.Status().Scheduler.State)
}

func TestSnapshotCollectorExportsCurrentValues(t *testing.T) {
	m, err := NewMonitor(zaptest.NewLogger(t), testConfig(), WithClock(newFakeClock(at(1))))
	require.NoError(t, err)
	require.NoError(t, m.RegisterCollector("static", &staticCollector{group: "app", value: 42}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewSnapshotCollector(m))
	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "nothing before the first tick")

	_, err = m.CollectNow(context.Background())
	require.NoError(t, err)

	expected := `
# HELP maplemon_metric_value Latest collected metric value
# TYPE maplemon_metric_value gauge
maplemon_metric_value{group="app",metric="value"} 42
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "maplemon_metric_value"))
}
