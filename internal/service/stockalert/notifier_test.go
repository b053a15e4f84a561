package stockalert

import (
	"encoding/json"
	"testing"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
	"github.com/the-white-platform/fashion-web-sub000/internal/storage/memory"
)

func TestNotifierEnqueuesAlert(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	notifier := NewNotifier(outbox, nil, nil)

	notifier.Notify(domain.StockAlert{
		Kind:       domain.StockAlertLowStock,
		ProductID:  "p1",
		VariantKey: "black",
		Size:       domain.SizeM,
		NewStock:   2,
		Threshold:  3,
		OrderID:    "o1",
	})

	pending := outbox.AllPending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 outbox message, got %d", len(pending))
	}

	msg := pending[0]
	if msg.AggregateType != "stock" || msg.AggregateID != "p1" {
		t.Fatalf("unexpected aggregate fields %+v", msg)
	}
	if msg.EventType != "StockAlert.low_stock" {
		t.Fatalf("unexpected event type %s", msg.EventType)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("payload must be valid json: %v", err)
	}
	if payload["product_id"] != "p1" || payload["variant_key"] != "black" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["new_stock"].(float64) != 2 || payload["threshold"].(float64) != 3 {
		t.Fatalf("unexpected stock fields in payload %v", payload)
	}
}

func TestNotifierAdjustmentFailedCarriesReason(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	notifier := NewNotifier(outbox, nil, nil)

	notifier.Notify(domain.StockAlert{
		Kind:      domain.StockAlertAdjustmentFailed,
		ProductID: "p1",
		OrderID:   "o1",
		Reason:    "size inventory row not found",
	})

	pending := outbox.AllPending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 outbox message, got %d", len(pending))
	}
	if pending[0].EventType != "StockAlert.adjustment_failed" {
		t.Fatalf("unexpected event type %s", pending[0].EventType)
	}

	var payload map[string]any
	if err := json.Unmarshal(pending[0].Payload, &payload); err != nil {
		t.Fatalf("payload must be valid json: %v", err)
	}
	if payload["reason"] != "size inventory row not found" {
		t.Fatalf("expected reason in payload, got %v", payload)
	}
}

func TestNotifierIgnoresUnknownKind(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	notifier := NewNotifier(outbox, nil, nil)

	notifier.Notify(domain.StockAlert{Kind: "mystery", ProductID: "p1"})

	if pending := outbox.AllPending(); len(pending) != 0 {
		t.Fatalf("unknown alert kind must not be enqueued, got %d messages", len(pending))
	}
}

func TestNotifierWithoutOutbox(t *testing.T) {
	notifier := NewNotifier(nil, nil, nil)

	// Не должно паниковать без outbox.
	notifier.Notify(domain.StockAlert{Kind: domain.StockAlertOutOfStock, ProductID: "p1"})
}
