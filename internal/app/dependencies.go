package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
	"github.com/the-white-platform/fashion-web-sub000/internal/storage/memory"
	"github.com/the-white-platform/fashion-web-sub000/internal/storage/postgres"
)

// Dependencies содержит хранилища приложения.
type Dependencies struct {
	Products    domain.ProductRepository
	Orders      domain.OrderRepository
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository

	// Store не nil только при работе поверх PostgreSQL.
	Store *postgres.Store
}

// NewDependencies собирает хранилища: PostgreSQL при заданном DSN,
// иначе in-memory набор для локальной разработки.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if cfg.PostgresDSN == "" {
		logger.Info("postgres dsn is empty, using in-memory storage")
		return &Dependencies{
			Products:    memory.NewProductRepository(),
			Orders:      memory.NewOrderRepository(),
			Outbox:      memory.NewOutboxRepository(),
			Timeline:    memory.NewTimelineRepository(),
			Idempotency: memory.NewIdempotencyRepository(),
		}, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("postgres storage initialized")
	return &Dependencies{
		Products:    postgres.NewProductRepository(store),
		Orders:      postgres.NewOrderRepository(store),
		Outbox:      postgres.NewOutboxRepository(store),
		Timeline:    postgres.NewTimelineRepository(store),
		Idempotency: postgres.NewIdempotencyRepository(store),
		Store:       store,
	}, nil
}

// Close освобождает ресурсы хранилищ.
func (d *Dependencies) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}
