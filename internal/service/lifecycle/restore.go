package lifecycle

import (
	log "github.com/sirupsen/logrus"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

// restoreAll возвращает сток позиций заказа на ребре в cancelled.
// Восстановление парно списанию: срабатывает только если сток заказа
// действительно был списан, и снимает сторожевой флаг после возврата.
// Отмена заказа, который так и не списывался, остатки не меняет.
// Возвращает восстановленные позиции для компенсации, если переход
// после этого не запишется.
func (e *Engine) restoreAll(order *domain.Order) []domain.OrderItem {
	if !order.StockDecremented {
		e.logger.WithField("order_id", order.ID).Debug("order was never decremented, nothing to restore")
		return nil
	}

	restored := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		newStock, err := e.products.AdjustStock(item.ProductID, item.VariantKey, item.Size, item.Qty)
		if err != nil {
			e.flagReconciliation(order, item, err)
			continue
		}

		restored = append(restored, item)
		if e.metrics != nil {
			e.metrics.RecordRestore()
		}
		e.logger.WithFields(log.Fields{
			"order_id":    order.ID,
			"product_id":  item.ProductID,
			"variant_key": item.VariantKey,
			"size":        item.Size,
			"qty":         item.Qty,
			"new_stock":   newStock,
		}).Info("stock restored on cancellation")
	}

	order.StockDecremented = false
	return restored
}
