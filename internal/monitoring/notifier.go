package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AlertEventType distinguishes raised from resolved alerts.
type AlertEventType string

const (
	AlertRaised   AlertEventType = "raised"
	AlertResolved AlertEventType = "resolved"
)

// AlertEvent is delivered to notifiers when an alert changes state.
type AlertEvent struct {
	Type  AlertEventType `json:"type"`
	Alert AlertRecord    `json:"alert"`
	Time  time.Time      `json:"time"`
}

// Notifier interface for sending notifications
type Notifier interface {
	Notify(ctx context.Context, event AlertEvent) error
	Name() string
}

// LogNotifier writes alert events to the logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event AlertEvent) error {
	fields := []zap.Field{
		zap.String("rule_id", event.Alert.RuleID),
		zap.String("level", event.Alert.Level.String()),
		zap.Float64("value", event.Alert.MetricValue),
		zap.Float64("threshold", event.Alert.Threshold),
		zap.String("message", event.Alert.Message),
	}

	switch {
	case event.Type == AlertResolved:
		n.logger.Info("Alert resolved", append(fields, zap.Time("last_seen_at", event.Alert.LastSeenAt))...)
	case event.Alert.Level == LevelCritical:
		n.logger.Error("Alert raised", fields...)
	case event.Alert.Level == LevelWarning:
		n.logger.Warn("Alert raised", fields...)
	default:
		n.logger.Info("Alert raised", fields...)
	}
	return nil
}

func (n *LogNotifier) Name() string {
	return "log"
}

// WebhookNotifier sends alerts via webhook
type WebhookNotifier struct {
	config WebhookConfig
	client *http.Client
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func NewWebhookNotifier(config WebhookConfig) *WebhookNotifier {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event AlertEvent) error {
	payload := map[string]interface{}{
		"event":         event.Type,
		"rule_id":       event.Alert.RuleID,
		"rule_name":     event.Alert.RuleName,
		"metric":        event.Alert.Metric,
		"value":         event.Alert.MetricValue,
		"threshold":     event.Alert.Threshold,
		"level":         event.Alert.Level.String(),
		"message":       event.Alert.Message,
		"triggered_at":  event.Alert.TriggeredAt,
		"last_seen_at":  event.Alert.LastSeenAt,
		"acknowledged":  event.Alert.Acknowledged,
		"event_time":    event.Time,
		"missing_data":  event.Alert.MissingData,
		"rule_operator": event.Alert.Operator,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if n.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.config.Token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// dispatcher fans alert events out to notifiers from a bounded queue.
type dispatcher struct {
	logger    *zap.Logger
	notifiers []Notifier
	queue     chan AlertEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newDispatcher(logger *zap.Logger, size int, notifiers []Notifier) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{
		logger:    logger,
		notifiers: notifiers,
		queue:     make(chan AlertEvent, size),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (d *dispatcher) start() {
	d.wg.Add(1)
	go d.run()
}

// stop drains queued events and waits for the worker to exit.
func (d *dispatcher) stop() {
	d.cancel()
	d.wg.Wait()
}

// enqueue never blocks; a full queue drops the event.
func (d *dispatcher) enqueue(event AlertEvent) bool {
	select {
	case d.queue <- event:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("Notification queue full, dropping alert event",
			zap.String("rule_id", event.Alert.RuleID),
			zap.String("type", string(event.Type)),
		)
		return false
	}
}

func (d *dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.ctx.Done():
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *dispatcher) deliver(event AlertEvent) {
	for _, n := range d.notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := n.Notify(ctx, event)
		cancel()
		if err != nil {
			d.failed.Add(1)
			d.logger.Error("Failed to send notification",
				zap.String("notifier", n.Name()),
				zap.String("rule_id", event.Alert.RuleID),
				zap.Error(err),
			)
			continue
		}
		d.sent.Add(1)
	}
}
