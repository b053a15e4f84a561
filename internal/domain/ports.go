package domain

import "time"

// StockAlertKind различает сигналы наблюдателя складских остатков.
type StockAlertKind string

const (
	// StockAlertLowStock — остаток опустился в диапазон 0 < stock <= threshold.
	StockAlertLowStock StockAlertKind = "low_stock"
	// StockAlertOutOfStock — остаток достиг нуля.
	StockAlertOutOfStock StockAlertKind = "out_of_stock"
	// StockAlertAdjustmentFailed — леджер не смог применить движение по позиции.
	StockAlertAdjustmentFailed StockAlertKind = "adjustment_failed"
)

// StockAlert — событие, которое движок списания передаёт наблюдателю.
type StockAlert struct {
	Kind       StockAlertKind
	ProductID  string
	VariantKey string
	Size       Size
	NewStock   int32
	Threshold  int32
	OrderID    string
	Reason     string
}

// StockNotifier получает сигналы о состоянии остатков после движений леджера.
// Наблюдатель ничего не пишет в леджер; доставка fire-and-forget.
type StockNotifier interface {
	Notify(alert StockAlert)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
