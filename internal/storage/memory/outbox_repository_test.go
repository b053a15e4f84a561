package memory

import (
	"fmt"
	"testing"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

func TestOutboxEnqueueAssignsID(t *testing.T) {
	repo := NewOutboxRepository()

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "o1",
		EventType:     "OrderCreated",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("expected enqueue to assign an ID")
	}
}

func TestOutboxPullPendingKeepsOrder(t *testing.T) {
	repo := NewOutboxRepository()

	for i := 0; i < 5; i++ {
		_, err := repo.Enqueue(domain.OutboxMessage{
			ID:            fmt.Sprintf("msg-%d", i),
			AggregateType: "order",
			EventType:     "OrderCreated",
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	pending, err := repo.PullPending(3)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected batch of 3, got %d", len(pending))
	}
	for i, msg := range pending {
		if want := fmt.Sprintf("msg-%d", i); msg.ID != want {
			t.Fatalf("expected FIFO order, got %s at position %d", msg.ID, i)
		}
	}
}

func TestOutboxMarkSentExcludesFromPending(t *testing.T) {
	repo := NewOutboxRepository()

	first, _ := repo.Enqueue(domain.OutboxMessage{EventType: "OrderCreated"})
	second, _ := repo.Enqueue(domain.OutboxMessage{EventType: "OrderConfirmed"})

	if err := repo.MarkSent(first.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("expected only the second message to remain pending, got %+v", pending)
	}

	if err := repo.MarkFailed(second.ID); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	pending, _ = repo.PullPending(10)
	if len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d messages", len(pending))
	}

	if err := repo.MarkSent("ghost"); err == nil {
		t.Fatal("expected error for unknown outbox id")
	}
}

func TestOutboxStats(t *testing.T) {
	repo := NewOutboxRepository()

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("expected empty stats, got %+v", stats)
	}

	first, _ := repo.Enqueue(domain.OutboxMessage{EventType: "OrderCreated"})
	_, _ = repo.Enqueue(domain.OutboxMessage{EventType: "OrderConfirmed"})

	stats, _ = repo.Stats()
	if stats.PendingCount != 2 {
		t.Fatalf("expected 2 pending, got %d", stats.PendingCount)
	}
	if stats.OldestPendingAt.IsZero() {
		t.Fatal("expected oldest pending timestamp to be set")
	}

	_ = repo.MarkSent(first.ID)
	stats, _ = repo.Stats()
	if stats.PendingCount != 1 {
		t.Fatalf("expected 1 pending after mark sent, got %d", stats.PendingCount)
	}
}
