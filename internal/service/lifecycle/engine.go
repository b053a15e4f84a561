package lifecycle

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
	"github.com/the-white-platform/fashion-web-sub000/internal/metrics"
)

// Engine управляет графом статусов заказа и побочными эффектами рёбер.
// Эффект привязан к ребру, а не к целевому статусу: списание стока срабатывает
// на входе в confirmed, восстановление — на входе в cancelled, и каждый эффект
// не может сработать дважды за жизненный цикл заказа.
type Engine struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	notifier domain.StockNotifier
	logger   *log.Entry
	metrics  *metrics.StockMetrics
}

// NewEngine создаёт рабочий экземпляр движка жизненного цикла.
func NewEngine(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	notifier domain.StockNotifier,
	logger *log.Entry,
) *Engine {
	if logger == nil {
		logger = log.New().WithField("component", "lifecycle")
	}
	return &Engine{
		orders:   orders,
		products: products,
		outbox:   outbox,
		timeline: timeline,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics.NewStockMetrics(),
	}
}

// NewEngineWithoutMetrics создаёт движок без метрик (для тестов).
func NewEngineWithoutMetrics(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	notifier domain.StockNotifier,
	logger *log.Entry,
) *Engine {
	engine := NewEngine(orders, products, outbox, timeline, notifier, logger)
	engine.metrics = nil
	return engine
}

// Transition валидирует ребро order.Status -> newStatus, выполняет побочный
// эффект ребра и персистит новый статус. Запрос перехода в текущий статус —
// идемпотентный no-op без побочных эффектов.
//
// Каждая попытка начинается со свежего чтения заказа: эффект ребра нельзя
// выводить из снапшота, проигравшего гонку версий. Если персист не прошёл,
// движения леджера этой попытки компенсируются, и на повторе эффект заново
// выводится из актуального состояния. Два воркера, одновременно подтверждающие
// один заказ, списывают сток ровно один раз: проигравший после перезагрузки
// видит confirmed и завершается как no-op.
func (e *Engine) Transition(orderID string, newStatus domain.OrderStatus, reason string) (domain.Order, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordTransitionDuration(time.Since(start))
		}
	}()

	const maxAttempts = 3
	const baseDelay = 10 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt-1)))
		}

		order, err := e.orders.Get(orderID)
		if err != nil {
			e.logger.WithError(err).WithField("order_id", orderID).Warn("order not found for transition")
			return domain.Order{}, err
		}

		if order.Status == newStatus {
			e.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"status":   order.Status,
			}).Debug("transition to current status is a no-op")
			return order, nil
		}

		if !newStatus.Valid() || !domain.CanTransition(order.Status, newStatus) {
			if e.metrics != nil {
				e.metrics.RecordInvalidTransition()
			}
			return order, &domain.InvalidTransitionError{From: order.Status, To: newStatus}
		}

		previous := order.Status

		var decremented, restored []domain.OrderItem
		switch newStatus {
		case domain.OrderStatusConfirmed:
			// Списание до персиста: провал по остатку отменяет весь переход.
			decremented, err = e.decrementAll(&order)
			if err != nil {
				return order, err
			}
		case domain.OrderStatusCancelled:
			restored = e.restoreAll(&order)
		}

		order.Status = newStatus
		order.UpdatedAt = time.Now().UTC()

		saveErr := e.orders.Save(order)
		if saveErr == nil {
			order.Version++
			if e.metrics != nil {
				e.metrics.RecordTransition(string(previous), string(newStatus))
			}
			e.emitStatusEvent(&order, previous, reason)
			return order, nil
		}

		// Переход не записан, значит эффект ребра не должен остаться в леджере.
		e.compensateLedger(order.ID, decremented, restored)

		if !domain.IsVersionConflict(saveErr) {
			e.logger.WithError(saveErr).WithFields(log.Fields{
				"order_id": order.ID,
				"to":       newStatus,
			}).Error("failed to persist transition")
			return order, saveErr
		}

		e.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"to":       newStatus,
			"attempt":  attempt + 1,
		}).Warn("version conflict during transition, retrying from fresh state")
		lastErr = saveErr
	}

	return domain.Order{}, lastErr
}

// compensateLedger откатывает движения леджера непрошедшей попытки перехода:
// списанное возвращается, восстановленное списывается обратно.
func (e *Engine) compensateLedger(orderID string, decremented, restored []domain.OrderItem) {
	e.rollbackDecrements(orderID, decremented)
	for _, item := range restored {
		if _, err := e.products.AdjustStock(item.ProductID, item.VariantKey, item.Size, -item.Qty); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id":    orderID,
				"product_id":  item.ProductID,
				"variant_key": item.VariantKey,
				"size":        item.Size,
			}).Error("compensation of unpersisted restore failed")
		}
	}
}

// PaymentUpdate — патч платёжных полей от колбэка платёжного провайдера.
type PaymentUpdate struct {
	Status        domain.PaymentStatus
	TransactionID string
	PaidAt        time.Time
}

// UpdatePayment обновляет платёжные поля заказа. Сток при этом не трогается:
// колбэк провайдера влияет на леджер только если отдельно ведёт переход статуса.
func (e *Engine) UpdatePayment(orderID string, update PaymentUpdate) (domain.Order, error) {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	apply := func(o *domain.Order) {
		if update.Status != "" {
			o.Payment.Status = update.Status
		}
		if update.TransactionID != "" {
			o.Payment.TransactionID = update.TransactionID
		}
		if !update.PaidAt.IsZero() {
			o.Payment.PaidAt = update.PaidAt
		}
		o.UpdatedAt = time.Now().UTC()
	}
	apply(&order)

	if err := e.saveWithRetry(&order, apply); err != nil {
		return order, err
	}

	e.appendTimeline(order.ID, "PaymentStatusChanged", string(order.Payment.Status))
	return order, nil
}

// FulfillmentUpdate — патч данных исполнения от фулфилмент-операторов.
type FulfillmentUpdate struct {
	Carrier        string
	TrackingNumber string
	ShippedAt      time.Time
	DeliveredAt    time.Time
}

// UpdateFulfillment обновляет данные перевозки заказа.
func (e *Engine) UpdateFulfillment(orderID string, update FulfillmentUpdate) (domain.Order, error) {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	apply := func(o *domain.Order) {
		if update.Carrier != "" {
			o.Fulfillment.Carrier = update.Carrier
		}
		if update.TrackingNumber != "" {
			o.Fulfillment.TrackingNumber = update.TrackingNumber
		}
		if !update.ShippedAt.IsZero() {
			o.Fulfillment.ShippedAt = update.ShippedAt
		}
		if !update.DeliveredAt.IsZero() {
			o.Fulfillment.DeliveredAt = update.DeliveredAt
		}
		o.UpdatedAt = time.Now().UTC()
	}
	apply(&order)

	if err := e.saveWithRetry(&order, apply); err != nil {
		return order, err
	}

	return order, nil
}

// saveWithRetry персистит патч полей заказа, обрабатывая version conflict
// перезагрузкой свежей записи и повторным применением apply. Применять его
// можно только к мутациям без побочных эффектов: статусные рёбра идут через
// Transition, который заново выводит эффект из свежего состояния.
func (e *Engine) saveWithRetry(order *domain.Order, apply func(*domain.Order)) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		prevVersion := order.Version

		err := e.orders.Save(*order)
		if err == nil {
			order.Version = prevVersion + 1
			return nil
		}

		if !domain.IsVersionConflict(err) || attempt == maxRetries-1 {
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"attempt":  attempt + 1,
			}).Error("failed to persist order")
			return err
		}

		e.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		fresh, loadErr := e.orders.Get(order.ID)
		if loadErr != nil {
			e.logger.WithError(loadErr).WithField("order_id", order.ID).Error("failed to reload order after conflict")
			return loadErr
		}

		apply(&fresh)
		*order = fresh

		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}

	return domain.ErrOrderVersionConflict
}

func (e *Engine) emitStatusEvent(order *domain.Order, previous domain.OrderStatus, reason string) {
	payload := map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"from":         string(previous),
		"to":           string(order.Status),
		"ts":           order.UpdatedAt.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}

	e.enqueueEvent(order, "OrderStatusChanged", payload)
	e.appendTimeline(order.ID, "OrderStatusChanged", string(order.Status))

	switch order.Status {
	case domain.OrderStatusConfirmed:
		e.enqueueEvent(order, "OrderConfirmed", payload)
	case domain.OrderStatusCancelled:
		e.enqueueEvent(order, "OrderCancelled", payload)
	case domain.OrderStatusRefunded:
		e.enqueueEvent(order, "OrderRefunded", payload)
	}
}

func (e *Engine) enqueueEvent(order *domain.Order, eventType string, payload map[string]any) {
	if e.outbox == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := e.outbox.Enqueue(msg); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	}
}

func (e *Engine) appendTimeline(orderID, eventType, reason string) {
	if e.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := e.timeline.Append(event); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	}
}
