package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"telemetry-cloud/internal/eventing"
	"telemetry-cloud/internal/telemetry/application/events"
)

// AnomalyNotifier receives detected anomaly events.
type AnomalyNotifier interface {
	Notify(ctx context.Context, event events.AnomalyDetected)
}

// Clock provides time for rate limiting.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders anomaly events and delivers them via a channel,
// rate limited per device and metric.
type Notifier struct {
	channel      Channel
	template     *Template
	clock        Clock
	cooldown     time.Duration
	dedupeWindow time.Duration
	mu           sync.Mutex
	sent         map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same
// device and metric.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an anomaly notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("anomaly notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Attach subscribes the notifier to anomaly events on the bus.
func (n *Notifier) Attach(bus eventing.EventBus) {
	if n == nil || bus == nil {
		return
	}
	bus.Subscribe(eventing.EventTypeOf[events.AnomalyDetected](), func(ctx context.Context, event any) error {
		evt, ok := event.(events.AnomalyDetected)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		n.Notify(ctx, evt)
		return nil
	})
}

// Notify implements AnomalyNotifier. Delivery failures are swallowed;
// notification is best effort and never blocks ingestion.
func (n *Notifier) Notify(ctx context.Context, event events.AnomalyDetected) {
	if n == nil || n.channel == nil {
		return
	}
	anomaly := event.Anomaly
	content, err := n.template.Render(TemplateData{
		DeviceID:    anomaly.DeviceID,
		MetricName:  anomaly.MetricName,
		MetricValue: fmt.Sprintf("%.2f", anomaly.MetricValue),
		AnomalyType: anomaly.AnomalyType,
		Threshold:   fmt.Sprintf("%.2f", anomaly.ThresholdUsed),
		ObservedAt:  anomaly.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	key := notificationKey(anomaly.DeviceID, anomaly.MetricName)
	if !n.shouldSend(key, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return
	}
	n.markSent(key, content)
}

func (n *Notifier) shouldSend(key, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(key, content string) {
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(deviceID, metricName string) string {
	return deviceID + "|" + metricName
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
