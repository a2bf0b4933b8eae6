package notify

import (
	"context"

	"telemetry-cloud/internal/telemetry/application/events"
)

// MultiNotifier dispatches anomaly events to multiple notifiers.
type MultiNotifier struct {
	notifiers []AnomalyNotifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...AnomalyNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards events to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, event events.AnomalyDetected) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}
