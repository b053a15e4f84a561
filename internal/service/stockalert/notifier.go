package stockalert

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
	"github.com/the-white-platform/fashion-web-sub000/internal/metrics"
)

// Notifier доставляет складские сигналы в лог и transactional outbox.
// Это чистый наблюдатель: леджер он не трогает, ошибки доставки только логируются.
type Notifier struct {
	outbox  domain.OutboxRepository
	logger  *log.Entry
	metrics *metrics.StockMetrics
}

// NewNotifier создаёт наблюдателя складских остатков.
func NewNotifier(outbox domain.OutboxRepository, stockMetrics *metrics.StockMetrics, logger *log.Entry) *Notifier {
	if logger == nil {
		logger = log.New().WithField("component", "stock-alert")
	}
	return &Notifier{
		outbox:  outbox,
		logger:  logger,
		metrics: stockMetrics,
	}
}

// Notify записывает сигнал в лог, метрики и outbox.
func (n *Notifier) Notify(alert domain.StockAlert) {
	fields := log.Fields{
		"product_id":  alert.ProductID,
		"variant_key": alert.VariantKey,
		"size":        alert.Size,
		"new_stock":   alert.NewStock,
		"threshold":   alert.Threshold,
	}
	if alert.OrderID != "" {
		fields["order_id"] = alert.OrderID
	}

	switch alert.Kind {
	case domain.StockAlertLowStock:
		n.logger.WithFields(fields).Warn("stock is below threshold")
		if n.metrics != nil {
			n.metrics.RecordLowStockAlert()
		}
	case domain.StockAlertOutOfStock:
		n.logger.WithFields(fields).Warn("stock is depleted")
		if n.metrics != nil {
			n.metrics.RecordOutOfStockAlert()
		}
	case domain.StockAlertAdjustmentFailed:
		fields["reason"] = alert.Reason
		n.logger.WithFields(fields).Error("ledger adjustment failed, order needs reconciliation")
		if n.metrics != nil {
			n.metrics.RecordAdjustmentFailure()
		}
	default:
		n.logger.WithFields(fields).Warn("unknown stock alert kind")
		return
	}

	n.enqueue(alert)
}

func (n *Notifier) enqueue(alert domain.StockAlert) {
	if n.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"kind":        string(alert.Kind),
		"product_id":  alert.ProductID,
		"variant_key": alert.VariantKey,
		"size":        string(alert.Size),
		"new_stock":   alert.NewStock,
		"threshold":   alert.Threshold,
		"order_id":    alert.OrderID,
		"reason":      alert.Reason,
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		n.logger.WithError(err).Error("marshal stock alert failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "stock",
		AggregateID:   alert.ProductID,
		EventType:     "StockAlert." + string(alert.Kind),
		Payload:       payload,
	}
	if _, err := n.outbox.Enqueue(msg); err != nil {
		n.logger.WithError(err).WithField("product_id", alert.ProductID).Error("enqueue stock alert failed")
	}
}

var _ domain.StockNotifier = (*Notifier)(nil)
