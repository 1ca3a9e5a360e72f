package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Monitor はモニタリングパイプライン
//
// Monitor wires collectors, history, trend analysis and alerting behind the
// read API used by exporters and HTTP handlers.
type Monitor struct {
	logger    *zap.Logger
	config    Config
	clock     Clock
	startTime time.Time

	history    *HistoryStore
	alerts     *AlertRegistry
	trends     *TrendAnalyzer
	scheduler  *Scheduler
	metrics    *pipelineMetrics
	dispatcher *dispatcher

	mu         sync.RWMutex
	collectors []namedCollector
	started    bool

	rules atomic.Pointer[[]AlertRule]

	// evalMu orders rule replacement against tick evaluation so a tick never
	// upserts an alert for a rule that was just removed.
	evalMu sync.Mutex

	// lastTimestamp is only touched by the in-flight tick.
	lastTimestamp time.Time
}

// Option configures a Monitor.
type Option func(*monitorOptions)

type monitorOptions struct {
	registerer prometheus.Registerer
	clock      Clock
	notifiers  []Notifier
}

// WithRegisterer registers the pipeline metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *monitorOptions) { o.registerer = reg }
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(o *monitorOptions) { o.clock = clock }
}

// WithNotifiers adds notifiers next to the log notifier.
func WithNotifiers(notifiers ...Notifier) Option {
	return func(o *monitorOptions) { o.notifiers = append(o.notifiers, notifiers...) }
}

// NewMonitor は新しいモニターを作成
func NewMonitor(logger *zap.Logger, config Config, opts ...Option) (*Monitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var o monitorOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = SystemClock
	}

	history, err := NewHistoryStore(config.RetentionDuration, o.clock)
	if err != nil {
		return nil, err
	}
	alerts, err := NewAlertRegistry(config.AlertExpiryWindow, o.clock)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		logger:    logger,
		config:    config,
		clock:     o.clock,
		startTime: o.clock.Now(),
		history:   history,
		alerts:    alerts,
		trends:    NewTrendAnalyzer(config.RegressionMultiplier, config.StableTolerance),
		metrics:   newPipelineMetrics(o.registerer),
	}
	m.rules.Store(&[]AlertRule{})

	notifiers := append([]Notifier{NewLogNotifier(logger.Named("alerts"))}, o.notifiers...)
	m.dispatcher = newDispatcher(logger.Named("notifier"), config.NotificationQueueSize, notifiers)

	m.scheduler = NewScheduler(logger.Named("scheduler"), SchedulerConfig{
		Interval:           config.CollectionInterval,
		StopGracePeriod:    config.StopGracePeriod,
		ImmediateFirstTick: config.ImmediateFirstTick,
		OnSkip:             m.metrics.ticksSkipped.Inc,
	}, m.tick)

	return m, nil
}

// RegisterCollector adds a collector. Collectors must be registered before Start.
func (m *Monitor) RegisterCollector(name string, collector Collector) error {
	if name == "" {
		return errors.New("collector name cannot be empty")
	}
	if collector == nil {
		return fmt.Errorf("collector %s is nil", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("register collector %s: %w", name, ErrAlreadyStarted)
	}
	for _, c := range m.collectors {
		if c.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateCollector, name)
		}
	}

	m.collectors = append(m.collectors, namedCollector{name: name, collector: collector})
	m.logger.Info("Collector registered", zap.String("collector", name))
	return nil
}

// Collectors returns the registered collector names in registration order.
func (m *Monitor) Collectors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.collectors))
	for i, c := range m.collectors {
		names[i] = c.name
	}
	return names
}

// RegisterAlertRule adds a rule to the active rule set.
func (m *Monitor) RegisterAlertRule(rule AlertRule) error {
	if err := rule.Validate(); err != nil {
		return newError(KindConfiguration, "register rule", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := *m.rules.Load()
	for _, r := range current {
		if r.ID() == rule.ID() {
			return newError(KindConfiguration, "register rule",
				fmt.Errorf("rule %s already registered", rule.ID()))
		}
	}

	next := make([]AlertRule, len(current), len(current)+1)
	copy(next, current)
	next = append(next, rule)
	m.rules.Store(&next)

	m.logger.Info("Alert rule registered",
		zap.String("rule_id", rule.ID()),
		zap.String("level", rule.Level.String()),
	)
	return nil
}

// ReplaceAlertRules swaps the whole rule set. Alerts raised by rules that no
// longer exist are resolved.
func (m *Monitor) ReplaceAlertRules(rules []AlertRule) error {
	ids := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return newError(KindConfiguration, "replace rules", err)
		}
		if _, dup := ids[rule.ID()]; dup {
			return newError(KindConfiguration, "replace rules",
				fmt.Errorf("duplicate rule %s", rule.ID()))
		}
		ids[rule.ID()] = struct{}{}
	}

	next := make([]AlertRule, len(rules))
	copy(next, rules)

	m.evalMu.Lock()
	defer m.evalMu.Unlock()

	m.mu.Lock()
	m.rules.Store(&next)
	m.mu.Unlock()

	for _, active := range m.alerts.Active() {
		if _, ok := ids[active.RuleID]; ok {
			continue
		}
		if rec, ok := m.alerts.Resolve(active.RuleID); ok {
			m.metrics.alertsResolved.Inc()
			m.notify(AlertResolved, rec)
		}
	}

	m.logger.Info("Alert rules replaced", zap.Int("rules", len(next)))
	return nil
}

// Rules returns a copy of the active rule set.
func (m *Monitor) Rules() []AlertRule {
	current := *m.rules.Load()
	out := make([]AlertRule, len(current))
	copy(out, current)
	return out
}

// Start はモニタリングを開始
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	collectors := len(m.collectors)
	m.mu.Unlock()

	m.dispatcher.start()
	if err := m.scheduler.Start(ctx); err != nil {
		m.dispatcher.stop()
		return err
	}

	m.logger.Info("Starting monitoring",
		zap.Int("collectors", collectors),
		zap.Int("rules", len(*m.rules.Load())),
		zap.Duration("interval", m.config.CollectionInterval),
		zap.Duration("retention", m.config.RetentionDuration),
	)
	return nil
}

// Stop はモニタリングを停止
func (m *Monitor) Stop() error {
	m.logger.Info("Stopping monitoring")

	if err := m.scheduler.Stop(); err != nil {
		return err
	}
	m.dispatcher.stop()
	return nil
}

// CollectNow runs a tick immediately and returns the resulting snapshot.
func (m *Monitor) CollectNow(ctx context.Context) (*Snapshot, error) {
	if err := m.scheduler.TriggerNow(ctx); err != nil {
		return nil, err
	}
	return m.history.Current(), nil
}

// tick runs one collection cycle. Per-tick failures are absorbed into the
// snapshot and logs; only an append failure is returned.
func (m *Monitor) tick(ctx context.Context) error {
	start := time.Now()

	m.mu.RLock()
	collectors := m.collectors
	m.mu.RUnlock()

	ts := m.nextTimestamp()
	outcomes := collectAll(ctx, collectors, m.config.CollectTimeout)

	groups := make([]GroupResult, 0, len(outcomes))
	owners := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		m.metrics.collectorDuration.WithLabelValues(o.name).Observe(o.duration.Seconds())
		if o.err != nil {
			m.metrics.collectorFailures.WithLabelValues(o.name).Inc()
			m.logger.Warn("Collector failed",
				zap.String("collector", o.name),
				zap.Duration("duration", o.duration),
				zap.Error(o.err),
			)
		}
		for _, g := range o.groups {
			if prev, dup := owners[g.Name()]; dup && prev != o.name {
				m.logger.Warn("Metric group emitted by multiple collectors, keeping later",
					zap.String("group", g.Name()),
					zap.String("previous", prev),
					zap.String("collector", o.name),
				)
			}
			owners[g.Name()] = o.name
			groups = append(groups, g)
		}
	}

	snapshot := NewSnapshot(uuid.NewString(), ts, groups...)
	if err := m.history.Append(snapshot); err != nil {
		return newError(KindCollection, "append snapshot", err)
	}
	m.metrics.snapshotsRetained.Set(float64(m.history.Len()))

	if failed := snapshot.FailedGroups(); len(failed) > 0 {
		m.logger.Warn("Snapshot has failed groups",
			zap.String("snapshot_id", snapshot.ID()),
			zap.Strings("groups", failed),
		)
	}

	m.evaluate(snapshot)

	for _, rec := range m.alerts.SweepExpired(m.config.AlertExpiryWindow) {
		m.metrics.alertsResolved.Inc()
		m.notify(AlertResolved, rec)
	}
	m.metrics.observeAlerts(m.alerts.Active())

	elapsed := time.Since(start)
	m.metrics.ticks.Inc()
	m.metrics.tickDuration.Observe(elapsed.Seconds())

	m.logger.Debug("Tick completed",
		zap.String("snapshot_id", snapshot.ID()),
		zap.Int("groups", len(snapshot.GroupNames())),
		zap.Duration("duration", elapsed),
	)
	return nil
}

// nextTimestamp keeps snapshot timestamps non-decreasing even if the clock
// steps backwards.
func (m *Monitor) nextTimestamp() time.Time {
	ts := m.clock.Now()
	if ts.Before(m.lastTimestamp) {
		ts = m.lastTimestamp
	}
	m.lastTimestamp = ts
	return ts
}

func (m *Monitor) evaluate(snapshot *Snapshot) {
	m.evalMu.Lock()
	defer m.evalMu.Unlock()

	candidates, errs := Evaluate(snapshot, *m.rules.Load())

	for _, err := range errs {
		m.metrics.evaluationErrors.Inc()
		m.logger.Warn("Rule evaluation skipped", zap.Error(err))
	}

	for _, candidate := range candidates {
		rec, created := m.alerts.Upsert(candidate)
		if created {
			m.metrics.alertsRaised.Inc()
			m.notify(AlertRaised, rec)
		}
	}
}

func (m *Monitor) notify(typ AlertEventType, rec AlertRecord) {
	if m.dispatcher.enqueue(AlertEvent{Type: typ, Alert: rec, Time: m.clock.Now()}) {
		return
	}
	m.metrics.notificationsDrop.Inc()
}

// GetCurrentSnapshot returns the latest snapshot, or nil before the first tick.
func (m *Monitor) GetCurrentSnapshot() *Snapshot {
	return m.history.Current()
}

// GetHistoricalSnapshots returns the snapshots of the last d, oldest first.
func (m *Monitor) GetHistoricalSnapshots(d time.Duration) []*Snapshot {
	return m.history.Since(d)
}

// GetTrend analyses metricPath over the last d.
func (m *Monitor) GetTrend(d time.Duration, metricPath string) TrendResult {
	return m.trends.Analyze(m.history.Since(d), metricPath)
}

// GetActiveAlerts returns the unexpired alerts.
func (m *Monitor) GetActiveAlerts() []AlertRecord {
	return m.alerts.Active()
}

// AcknowledgeAlert marks an alert as acknowledged.
func (m *Monitor) AcknowledgeAlert(ruleID string) error {
	if err := m.alerts.Acknowledge(ruleID); err != nil {
		return err
	}
	m.logger.Info("Alert acknowledged", zap.String("rule_id", ruleID))
	return nil
}

// Status summarises the pipeline for status endpoints.
type Status struct {
	Scheduler      SchedulerStats `json:"scheduler"`
	Collectors     []string       `json:"collectors"`
	Rules          int            `json:"rules"`
	Snapshots      int            `json:"snapshots"`
	Evicted        uint64         `json:"evicted"`
	ActiveAlerts   int            `json:"active_alerts"`
	AlertsRaised   uint64         `json:"alerts_raised"`
	AlertsResolved uint64         `json:"alerts_resolved"`
	Retention      time.Duration  `json:"retention"`
	StartedAt      time.Time      `json:"started_at"`
	Uptime         time.Duration  `json:"uptime"`
}

// Status returns a point-in-time summary of the pipeline.
func (m *Monitor) Status() Status {
	raised, resolved := m.alerts.Counts()
	return Status{
		Scheduler:      m.scheduler.Stats(),
		Collectors:     m.Collectors(),
		Rules:          len(*m.rules.Load()),
		Snapshots:      m.history.Len(),
		Evicted:        m.history.Evicted(),
		ActiveAlerts:   len(m.alerts.Active()),
		AlertsRaised:   raised,
		AlertsResolved: resolved,
		Retention:      m.config.RetentionDuration,
		StartedAt:      m.startTime,
		Uptime:         m.clock.Now().Sub(m.startTime),
	}
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.config
}
