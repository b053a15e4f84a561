package lifecycle

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

// decrementAll списывает сток всех позиций заказа на ребре в confirmed.
// Списание условное: TryDecrementStock проверяет достаточность и пишет
// в одной атомарной операции, поэтому два конкурирующих заказа не могут
// забрать одну и ту же последнюю единицу. При нехватке по любой позиции
// уже списанные возвращаются, и переход отменяется целиком.
// Возвращает успешно списанные позиции: если переход потом не запишется,
// вызывающий компенсирует ровно эти движения.
func (e *Engine) decrementAll(order *domain.Order) ([]domain.OrderItem, error) {
	if order.StockDecremented {
		// Сторожевой флаг: сток этого заказа уже списан.
		e.logger.WithField("order_id", order.ID).Debug("stock already decremented, skipping")
		return nil, nil
	}

	thresholds := newThresholdCache(e.products)
	decremented := make([]domain.OrderItem, 0, len(order.Items))

	for _, item := range order.Items {
		remaining, err := e.products.TryDecrementStock(item.ProductID, item.VariantKey, item.Size, item.Qty)
		if err != nil {
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				e.rollbackDecrements(order.ID, decremented)
				if e.metrics != nil {
					e.metrics.RecordOversellRejected()
				}
				e.logger.WithFields(log.Fields{
					"order_id":    order.ID,
					"product_id":  item.ProductID,
					"variant_key": item.VariantKey,
					"size":        item.Size,
					"available":   insufficient.Available,
					"requested":   insufficient.Requested,
				}).Warn("confirm rejected: insufficient stock")
				return nil, err
			}

			// Строка леджера исчезла после создания заказа: фиксируем сбой,
			// соседние позиции продолжаем, заказ уходит на ручную сверку.
			e.flagReconciliation(order, item, err)
			continue
		}

		decremented = append(decremented, item)
		if e.metrics != nil {
			e.metrics.RecordDecrement()
		}
		e.observeStockLevel(order.ID, item, remaining, thresholds)
	}

	order.StockDecremented = true
	return decremented, nil
}

// rollbackDecrements возвращает позиции, списанные до обнаружения нехватки.
func (e *Engine) rollbackDecrements(orderID string, items []domain.OrderItem) {
	for _, item := range items {
		if _, err := e.products.AdjustStock(item.ProductID, item.VariantKey, item.Size, item.Qty); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id":    orderID,
				"product_id":  item.ProductID,
				"variant_key": item.VariantKey,
				"size":        item.Size,
			}).Error("rollback of partial decrement failed")
		}
	}
}

// observeStockLevel сравнивает новый остаток с порогом и нулём
// и передаёт наблюдателю соответствующий сигнал.
func (e *Engine) observeStockLevel(orderID string, item domain.OrderItem, remaining int32, thresholds *thresholdCache) {
	if e.notifier == nil {
		return
	}

	threshold := thresholds.lookup(item.ProductID, item.VariantKey, item.Size)
	alert := domain.StockAlert{
		ProductID:  item.ProductID,
		VariantKey: item.VariantKey,
		Size:       item.Size,
		NewStock:   remaining,
		Threshold:  threshold,
		OrderID:    orderID,
	}

	switch {
	case remaining == 0:
		alert.Kind = domain.StockAlertOutOfStock
	case remaining <= threshold:
		alert.Kind = domain.StockAlertLowStock
	default:
		return
	}

	e.notifier.Notify(alert)
}

// flagReconciliation помечает заказ для ручной сверки после сбоя леджера.
// Статусный переход при этом не откатывается: существование заказа
// не зависит от успешности складской бухгалтерии.
func (e *Engine) flagReconciliation(order *domain.Order, item domain.OrderItem, cause error) {
	e.logger.WithError(cause).WithFields(log.Fields{
		"order_id":    order.ID,
		"product_id":  item.ProductID,
		"variant_key": item.VariantKey,
		"size":        item.Size,
	}).Error("stock adjustment failed for order item")

	if !order.NeedsReconciliation {
		order.NeedsReconciliation = true
		if e.metrics != nil {
			e.metrics.RecordReconciliationFlag()
		}
		e.appendTimeline(order.ID, "ReconciliationFlagged", cause.Error())
	}

	if e.notifier != nil {
		e.notifier.Notify(domain.StockAlert{
			Kind:       domain.StockAlertAdjustmentFailed,
			ProductID:  item.ProductID,
			VariantKey: item.VariantKey,
			Size:       item.Size,
			OrderID:    order.ID,
			Reason:     cause.Error(),
		})
	}
}

// thresholdCache лениво подтягивает пороги low-stock из каталога,
// не дёргая репозиторий повторно для позиций одного товара.
type thresholdCache struct {
	products domain.ProductRepository
	cache    map[string]domain.Product
	misses   map[string]struct{}
}

func newThresholdCache(products domain.ProductRepository) *thresholdCache {
	return &thresholdCache{
		products: products,
		cache:    make(map[string]domain.Product),
		misses:   make(map[string]struct{}),
	}
}

func (c *thresholdCache) lookup(productID, variantKey string, size domain.Size) int32 {
	if _, missed := c.misses[productID]; missed {
		return 0
	}

	product, ok := c.cache[productID]
	if !ok {
		loaded, err := c.products.Get(productID)
		if err != nil {
			c.misses[productID] = struct{}{}
			return 0
		}
		c.cache[productID] = loaded
		product = loaded
	}

	variant, ok := product.ResolveVariant(variantKey)
	if !ok {
		return 0
	}
	row, ok := variant.FindSize(size)
	if !ok {
		return 0
	}
	return row.LowStockThreshold
}
