package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/lifecycle"
)

// PaymentUpdater применяет платёжный патч к заказу.
type PaymentUpdater interface {
	UpdatePayment(orderID string, update lifecycle.PaymentUpdate) (domain.Order, error)
}

// NewPaymentEventHandler возвращает MessageHandler для колбэков платёжного шлюза.
// Обработчик только обновляет платёжные поля заказа; статусные переходы
// остаются за админским API и не выводятся из платёжных событий автоматически.
func NewPaymentEventHandler(engine PaymentUpdater) MessageHandler {
	logger := log.WithField("component", "payment-consumer")

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParsePaymentEvent(message)
		if err != nil {
			return err
		}

		var status domain.PaymentStatus
		switch event.EventType {
		case EventTypePaymentSucceeded:
			status = domain.PaymentStatusPaid
		case EventTypePaymentFailed:
			status = domain.PaymentStatusFailed
		case EventTypePaymentRefunded:
			status = domain.PaymentStatusRefunded
		default:
			logger.WithField("event_type", event.EventType).Warn("unknown payment event type, skipping")
			return nil
		}

		update := lifecycle.PaymentUpdate{
			Status:        status,
			TransactionID: event.TransactionID,
		}
		if status == domain.PaymentStatusPaid {
			update.PaidAt = event.Timestamp
		}

		if _, err := engine.UpdatePayment(event.OrderID, update); err != nil {
			return fmt.Errorf("apply payment event to order %s: %w", event.OrderID, err)
		}

		logger.WithFields(log.Fields{
			"order_id":       event.OrderID,
			"payment_status": status,
			"transaction_id": event.TransactionID,
		}).Info("payment event applied")
		return nil
	}
}
