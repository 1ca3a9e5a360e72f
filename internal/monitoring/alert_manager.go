package monitoring

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// AlertLevel represents alert severity levels
type AlertLevel int

const (
	LevelInfo AlertLevel = iota
	LevelWarning
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseAlertLevel accepts info, warning (warn) and critical, case-insensitively.
func ParseAlertLevel(s string) (AlertLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "informational":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "critical", "crit":
		return LevelCritical, nil
	default:
		return LevelInfo, fmt.Errorf("unknown alert level %q", s)
	}
}

func (l AlertLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *AlertLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseAlertLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// AlertRule defines conditions for triggering alerts
type AlertRule struct {
	Name      string
	Metric    string // "<group>.<metric>"
	Operator  string // >, <, ==, !=, >=, <=
	Threshold float64
	Level     AlertLevel
	Message   string

	// AlertOnMissingData raises the alert when the metric cannot be read.
	AlertOnMissingData bool
	Disabled           bool
}

// ID is the stable key shared by every alert this rule raises.
func (r AlertRule) ID() string {
	return fmt.Sprintf("%s_%s", r.Name, r.Metric)
}

// Validate checks the rule is well formed.
func (r AlertRule) Validate() error {
	if r.Name == "" {
		return errors.New("rule name cannot be empty")
	}
	if _, _, ok := SplitMetricPath(r.Metric); !ok {
		return fmt.Errorf("rule %s: metric %q is not a <group>.<metric> path", r.Name, r.Metric)
	}
	if !validOperator(r.Operator) {
		return fmt.Errorf("rule %s: unknown operator %q", r.Name, r.Operator)
	}
	if r.Level < LevelInfo || r.Level > LevelCritical {
		return fmt.Errorf("rule %s: unknown level %d", r.Name, r.Level)
	}
	return nil
}

// AlertRecord represents an active alert
type AlertRecord struct {
	RuleID       string     `json:"rule_id"`
	RuleName     string     `json:"rule_name"`
	Metric       string     `json:"metric"`
	Level        AlertLevel `json:"level"`
	Operator     string     `json:"operator"`
	MetricValue  float64    `json:"metric_value"`
	Threshold    float64    `json:"threshold"`
	MissingData  bool       `json:"missing_data,omitempty"`
	TriggeredAt  time.Time  `json:"triggered_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	Acknowledged bool       `json:"acknowledged"`
	Message      string     `json:"message"`
}

// Evaluate applies rules to a snapshot and returns one candidate per breached
// rule. Rules that are malformed or whose metric is missing are reported in
// errs and skipped; the remaining rules still evaluate.
func Evaluate(snapshot *Snapshot, rules []AlertRule) (candidates []AlertRecord, errs []error) {
	if snapshot == nil {
		return nil, nil
	}

	for _, rule := range rules {
		if rule.Disabled {
			continue
		}
		if err := rule.Validate(); err != nil {
			errs = append(errs, newError(KindEvaluation, rule.ID(), err))
			continue
		}

		value, ok := numericMetric(snapshot, rule.Metric)
		if !ok {
			if rule.AlertOnMissingData {
				candidates = append(candidates, candidateFor(rule, 0, true))
			}
			errs = append(errs, newError(KindEvaluation, rule.ID(),
				fmt.Errorf("%w: %s", ErrMissingMetric, rule.Metric)))
			continue
		}

		if checkCondition(value, rule.Operator, rule.Threshold) {
			candidates = append(candidates, candidateFor(rule, value, false))
		}
	}

	return candidates, errs
}

func numericMetric(s *Snapshot, path string) (float64, bool) {
	v, ok := s.Metric(path)
	if !ok {
		return 0, false
	}
	return v.Float64()
}

func candidateFor(rule AlertRule, value float64, missing bool) AlertRecord {
	msg := rule.Message
	if msg == "" {
		if missing {
			msg = fmt.Sprintf("%s: no data", rule.Metric)
		} else {
			msg = fmt.Sprintf("%s %s %g (value %g)", rule.Metric, rule.Operator, rule.Threshold, value)
		}
	}
	return AlertRecord{
		RuleID:      rule.ID(),
		RuleName:    rule.Name,
		Metric:      rule.Metric,
		Level:       rule.Level,
		Operator:    rule.Operator,
		MetricValue: value,
		Threshold:   rule.Threshold,
		MissingData: missing,
		Message:     msg,
	}
}

func validOperator(op string) bool {
	switch op {
	case ">", "<", ">=", "<=", "==", "!=":
		return true
	default:
		return false
	}
}

// checkCondition checks if a condition is met
func checkCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	case "!=":
		return value != threshold
	default:
		return false
	}
}

// AlertRegistry holds at most one active record per rule ID.
//
// Records are immutable once stored; every change builds a new record and
// swaps it in with compare-and-swap, so readers always see a complete record.
type AlertRegistry struct {
	clock  Clock
	expiry time.Duration

	alerts sync.Map // rule ID -> *AlertRecord

	raised   atomic.Uint64
	resolved atomic.Uint64
}

// NewAlertRegistry creates a registry whose records expire after the window.
func NewAlertRegistry(expiry time.Duration, clock Clock) (*AlertRegistry, error) {
	if expiry <= 0 {
		return nil, configError("alert expiry window must be positive, got %s", expiry)
	}
	if clock == nil {
		clock = SystemClock
	}
	return &AlertRegistry{clock: clock, expiry: expiry}, nil
}

// ExpiryWindow returns the configured expiry window.
func (r *AlertRegistry) ExpiryWindow() time.Duration {
	return r.expiry
}

// Upsert inserts the candidate or refreshes the active record with the same
// rule ID. The returned bool is true when a new record was created.
func (r *AlertRegistry) Upsert(candidate AlertRecord) (AlertRecord, bool) {
	for {
		now := r.clock.Now()

		existing, loaded := r.alerts.Load(candidate.RuleID)
		if !loaded {
			fresh := newRecord(candidate, now)
			if _, raced := r.alerts.LoadOrStore(candidate.RuleID, fresh); !raced {
				r.raised.Add(1)
				return *fresh, true
			}
			continue
		}

		old := existing.(*AlertRecord)
		if r.expired(old, now) {
			fresh := newRecord(candidate, now)
			if r.alerts.CompareAndSwap(candidate.RuleID, old, fresh) {
				r.resolved.Add(1)
				r.raised.Add(1)
				return *fresh, true
			}
			continue
		}

		updated := *old
		if now.After(updated.LastSeenAt) {
			updated.LastSeenAt = now
		}
		updated.MetricValue = candidate.MetricValue
		updated.Level = candidate.Level
		updated.Message = candidate.Message
		updated.MissingData = candidate.MissingData
		updated.Threshold = candidate.Threshold
		updated.Operator = candidate.Operator
		if r.alerts.CompareAndSwap(candidate.RuleID, old, &updated) {
			return updated, false
		}
	}
}

func newRecord(candidate AlertRecord, now time.Time) *AlertRecord {
	rec := candidate
	rec.TriggeredAt = now
	rec.LastSeenAt = now
	rec.Acknowledged = false
	return &rec
}

func (r *AlertRegistry) expired(rec *AlertRecord, now time.Time) bool {
	return rec.LastSeenAt.Before(now.Add(-r.expiry))
}

// SweepExpired removes every record whose last sighting is older than
// now-window and returns the removed records.
func (r *AlertRegistry) SweepExpired(window time.Duration) []AlertRecord {
	cutoff := r.clock.Now().Add(-window)
	var resolved []AlertRecord

	r.alerts.Range(func(key, value interface{}) bool {
		rec := value.(*AlertRecord)
		if rec.LastSeenAt.Before(cutoff) && r.alerts.CompareAndDelete(key, rec) {
			resolved = append(resolved, *rec)
		}
		return true
	})

	r.resolved.Add(uint64(len(resolved)))
	return resolved
}

// Active returns the unexpired records, critical first, oldest first within
// a level.
func (r *AlertRegistry) Active() []AlertRecord {
	now := r.clock.Now()
	active := make([]AlertRecord, 0)

	r.alerts.Range(func(_, value interface{}) bool {
		rec := value.(*AlertRecord)
		if !r.expired(rec, now) {
			active = append(active, *rec)
		}
		return true
	})

	sort.Slice(active, func(i, j int) bool {
		if active[i].Level != active[j].Level {
			return active[i].Level > active[j].Level
		}
		if !active[i].TriggeredAt.Equal(active[j].TriggeredAt) {
			return active[i].TriggeredAt.Before(active[j].TriggeredAt)
		}
		return active[i].RuleID < active[j].RuleID
	})

	return active
}

// Get returns the active record for a rule ID.
func (r *AlertRegistry) Get(ruleID string) (AlertRecord, bool) {
	value, ok := r.alerts.Load(ruleID)
	if !ok {
		return AlertRecord{}, false
	}
	rec := value.(*AlertRecord)
	if r.expired(rec, r.clock.Now()) {
		return AlertRecord{}, false
	}
	return *rec, true
}

// Acknowledge marks an active alert as seen by an operator.
func (r *AlertRegistry) Acknowledge(ruleID string) error {
	for {
		value, ok := r.alerts.Load(ruleID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAlertNotFound, ruleID)
		}
		old := value.(*AlertRecord)
		if r.expired(old, r.clock.Now()) {
			return fmt.Errorf("%w: %s", ErrAlertNotFound, ruleID)
		}
		if old.Acknowledged {
			return nil
		}
		updated := *old
		updated.Acknowledged = true
		if r.alerts.CompareAndSwap(ruleID, old, &updated) {
			return nil
		}
	}
}

// Resolve drops the record for a rule ID regardless of its age.
func (r *AlertRegistry) Resolve(ruleID string) (AlertRecord, bool) {
	value, ok := r.alerts.LoadAndDelete(ruleID)
	if !ok {
		return AlertRecord{}, false
	}
	r.resolved.Add(1)
	return *value.(*AlertRecord), true
}

// Counts returns how many alerts have been raised and resolved so far.
func (r *AlertRegistry) Counts() (raised, resolved uint64) {
	return r.raised.Load(), r.resolved.Load()
}
