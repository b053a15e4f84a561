package kafka

import "time"

// EventType определяет тип события во внешнем контракте.
type EventType string

const (
	// Order события.
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderConfirmed     EventType = "order.confirmed"
	EventTypeOrderCancelled     EventType = "order.cancelled"
	EventTypeOrderRefunded      EventType = "order.refunded"
	EventTypeOrderStatusChanged EventType = "order.status_changed"

	// Payment события платёжного шлюза.
	EventTypePaymentSucceeded EventType = "payment.succeeded"
	EventTypePaymentFailed    EventType = "payment.failed"
	EventTypePaymentRefunded  EventType = "payment.refunded"

	// Stock события.
	EventTypeStockLow   EventType = "stock.low"
	EventTypeStockOut   EventType = "stock.out"
	EventTypeStockError EventType = "stock.adjustment_failed"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "shop.order.events"
	TopicStockAlerts     = "shop.stock.alerts"
	TopicPaymentEvents   = "shop.payment.events"
	TopicDeadLetterQueue = "shop.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа.
type OrderEvent struct {
	EventType   EventType              `json:"event_type"`
	OrderID     string                 `json:"order_id"`
	OrderNumber string                 `json:"order_number"`
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// PaymentEvent представляет колбэк платёжного шлюза.
type PaymentEvent struct {
	EventType     EventType `json:"event_type"`
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// StockAlertEvent представляет сигнал о состоянии остатков.
type StockAlertEvent struct {
	EventType  EventType `json:"event_type"`
	ProductID  string    `json:"product_id"`
	VariantKey string    `json:"variant_key"`
	Size       string    `json:"size"`
	NewStock   int32     `json:"new_stock"`
	Threshold  int32     `json:"threshold"`
	OrderID    string    `json:"order_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа.
func NewOrderEvent(eventType EventType, orderID, orderNumber, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:   eventType,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Status:      status,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}
}
