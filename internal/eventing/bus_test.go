package eventing

import (
	"context"
	"errors"
	"testing"
)

type pingEvent struct {
	N int
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryBus()

	var got []int
	bus.Subscribe(EventTypeOf[pingEvent](), func(_ context.Context, event any) error {
		evt, ok := event.(pingEvent)
		if !ok {
			return ErrInvalidEventType
		}
		got = append(got, evt.N)
		return nil
	})

	if err := bus.Publish(context.Background(), pingEvent{N: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(context.Background(), pingEvent{N: 2}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestPublishNilEvent(t *testing.T) {
	bus := NewInMemoryBus()
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}

func TestPublishReturnsFirstHandlerError(t *testing.T) {
	bus := NewInMemoryBus()
	wantErr := errors.New("boom")
	calls := 0
	bus.Subscribe(EventTypeOf[pingEvent](), func(_ context.Context, _ any) error {
		calls++
		return wantErr
	})
	bus.Subscribe(EventTypeOf[pingEvent](), func(_ context.Context, _ any) error {
		calls++
		return nil
	})

	err := bus.Publish(context.Background(), pingEvent{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected first error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("all handlers must run, got %d calls", calls)
	}
}

func TestEventTypeUnwrapsPointer(t *testing.T) {
	if EventType(&pingEvent{}) != EventType(pingEvent{}) {
		t.Fatal("pointer and value must share an event type")
	}
}

func TestNewEventIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewEventID()
		if len(id) != 32 {
			t.Fatalf("unexpected id length: %q", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
