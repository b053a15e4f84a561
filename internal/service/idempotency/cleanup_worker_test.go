package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/the-white-platform/fashion-web-sub000/internal/storage/memory"
)

func TestDeleteExpiredRemovesOnlyStaleRecords(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if _, err := repo.CreateProcessing(fmt.Sprintf("stale-%d", i), "h", now.Add(-time.Hour)); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	if _, err := repo.CreateProcessing("fresh", "h", now.Add(time.Hour)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	worker := NewCleanupWorker(repo, WithBatchSize(2))
	deleted, err := worker.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted across batches, got %d", deleted)
	}

	if _, err := repo.Get("fresh"); err != nil {
		t.Fatalf("fresh record must survive: %v", err)
	}
}

func TestDeleteExpiredHonoursContext(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	worker := NewCleanupWorker(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := worker.DeleteExpired(ctx, time.Now().UTC()); err == nil {
		t.Fatal("expected context error")
	}
}

func TestCleanupWorkerDefaults(t *testing.T) {
	worker := NewCleanupWorker(memory.NewIdempotencyRepository(), WithInterval(0), WithBatchSize(-1))

	if worker.interval != defaultCleanupInterval {
		t.Fatalf("expected default interval, got %v", worker.interval)
	}
	if worker.batchSize != defaultCleanupBatchSize {
		t.Fatalf("expected default batch size, got %d", worker.batchSize)
	}
}
