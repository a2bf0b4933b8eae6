package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"telemetry-cloud/internal/eventing"
	"telemetry-cloud/internal/telemetry/application/events"
	telemetry "telemetry-cloud/internal/telemetry/domain"
)

func anomalyEvent(value float64) events.AnomalyDetected {
	return events.AnomalyDetected{
		EventID: "evt-1",
		Anomaly: telemetry.Anomaly{
			ID:            7,
			TelemetryID:   42,
			DeviceID:      "sensor-alpha-001",
			MetricName:    "temperature",
			MetricValue:   value,
			Timestamp:     time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
			AnomalyType:   "High Z-score (31.62)",
			ThresholdUsed: 2.5,
		},
		OccurredAt: time.Date(2026, 3, 1, 13, 0, 1, 0, time.UTC),
	}
}

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	notifier, err := NewNotifier(channel, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), anomalyEvent(30))

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("msgtype: %s", payload.MsgType)
		}
		content := payload.Text.Content
		for _, want := range []string{"sensor-alpha-001", "temperature", "30.00", "High Z-score (31.62)", "2.50", "2026-03-01T13:00:00Z"} {
			if !strings.Contains(content, want) {
				t.Fatalf("content missing %q:\n%s", want, content)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook payload not delivered")
	}
}

type countingChannel struct {
	mu    sync.Mutex
	count int
}

func (c *countingChannel) Send(_ context.Context, _ string) error {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return nil
}

func (c *countingChannel) sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

type manualClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

func TestNotifierCooldownSuppressesRepeats(t *testing.T) {
	channel := &countingChannel{}
	clock := &manualClock{at: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)}
	notifier, err := NewNotifier(channel, nil, WithCooldown(time.Minute), WithClock(clock))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), anomalyEvent(30))
	notifier.Notify(context.Background(), anomalyEvent(31))
	if got := channel.sent(); got != 1 {
		t.Fatalf("expected cooldown to suppress second send, got %d", got)
	}

	clock.advance(2 * time.Minute)
	notifier.Notify(context.Background(), anomalyEvent(32))
	if got := channel.sent(); got != 2 {
		t.Fatalf("expected send after cooldown, got %d", got)
	}
}

func TestNotifierDedupesIdenticalContent(t *testing.T) {
	channel := &countingChannel{}
	clock := &manualClock{at: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)}
	notifier, err := NewNotifier(channel, nil, WithDedupeWindow(time.Hour), WithClock(clock))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), anomalyEvent(30))
	clock.advance(time.Minute)
	notifier.Notify(context.Background(), anomalyEvent(30))
	if got := channel.sent(); got != 1 {
		t.Fatalf("expected dedupe to suppress identical send, got %d", got)
	}

	// Different value renders different content.
	notifier.Notify(context.Background(), anomalyEvent(31))
	if got := channel.sent(); got != 2 {
		t.Fatalf("expected distinct content to send, got %d", got)
	}
}

func TestNotifierAttachConsumesBusEvents(t *testing.T) {
	channel := &countingChannel{}
	notifier, err := NewNotifier(channel, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	bus := eventing.NewInMemoryBus()
	notifier.Attach(bus)

	if err := bus.Publish(context.Background(), anomalyEvent(30)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := channel.sent(); got != 1 {
		t.Fatalf("expected one delivery via bus, got %d", got)
	}
}
