package checkout

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

// ItemInput — позиция запроса на оформление заказа.
// Variant принимает ключ варианта либо отображаемое имя цвета:
// резолв выполняется один раз здесь, и дальше живёт только ключ.
type ItemInput struct {
	ProductID string
	Variant   string
	Size      domain.Size
	Qty       int32
}

// Input — запрос на создание заказа от витрины.
type Input struct {
	Items         []ItemInput
	Customer      domain.CustomerInfo
	Shipping      domain.ShippingAddress
	PaymentMethod string
	ShippingMinor int64
}

// Service валидирует запрос чекаута и создаёт заказ в статусе pending.
// Проверка остатков здесь — ранний отказ для покупателя; авторитетная защита
// от oversell живёт в условном списании на ребре в confirmed.
type Service struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
}

// NewService конструирует сервис чекаута.
func NewService(
	products domain.ProductRepository,
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Service{
		products: products,
		orders:   orders,
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
	}
}

// PlaceOrder проверяет запрос по каталогу и леджеру и создаёт заказ.
// Заказ создаётся целиком или не создаётся вовсе: первая же нехватка
// или нерезолвящаяся позиция отклоняет весь запрос.
func (s *Service) PlaceOrder(input Input) (domain.Order, error) {
	if err := validateInput(input); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	items := make([]domain.OrderItem, 0, len(input.Items))
	var subtotal int64
	var currency string

	productCache := make(map[string]domain.Product)
	// Запрошенное количество суммируется по (товар, вариант, размер):
	// две строки одной позиции не должны проходить проверку остатка порознь.
	type ledgerRow struct {
		productID string
		variant   string
		size      domain.Size
	}
	requested := make(map[ledgerRow]int32)

	for _, in := range input.Items {
		product, ok := productCache[in.ProductID]
		if !ok {
			loaded, err := s.products.Get(in.ProductID)
			if err != nil {
				return domain.Order{}, err
			}
			productCache[in.ProductID] = loaded
			product = loaded
		}

		if currency == "" {
			currency = product.Currency
		} else if currency != product.Currency {
			return domain.Order{}, domain.ErrCurrencyMismatch
		}

		variant, ok := product.ResolveVariant(in.Variant)
		if !ok {
			return domain.Order{}, fmt.Errorf("product %s, variant %q: %w", in.ProductID, in.Variant, domain.ErrVariantNotFound)
		}
		row, ok := variant.FindSize(in.Size)
		if !ok {
			return domain.Order{}, fmt.Errorf("product %s, variant %s, size %s: %w", in.ProductID, variant.Key, in.Size, domain.ErrSizeNotFound)
		}

		key := ledgerRow{productID: product.ID, variant: variant.Key, size: in.Size}
		requested[key] += in.Qty
		if row.Stock < requested[key] {
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID:  product.ID,
				VariantKey: variant.Key,
				Size:       in.Size,
				Available:  row.Stock,
				Requested:  requested[key],
			}
		}

		lineTotal := int64(in.Qty) * product.PriceMinor
		items = append(items, domain.OrderItem{
			ID:             uuid.NewString(),
			ProductID:      product.ID,
			VariantKey:     variant.Key,
			ProductName:    product.Name,
			ColorName:      variant.Name,
			Size:           in.Size,
			Qty:            in.Qty,
			UnitPriceMinor: product.PriceMinor,
			LineTotalMinor: lineTotal,
			CreatedAt:      now,
		})
		subtotal += lineTotal
	}

	order := domain.Order{
		ID:            uuid.NewString(),
		OrderNumber:   newOrderNumber(now),
		Status:        domain.OrderStatusPending,
		Items:         items,
		Currency:      currency,
		SubtotalMinor: subtotal,
		ShippingMinor: input.ShippingMinor,
		TotalMinor:    subtotal + input.ShippingMinor,
		Customer:      input.Customer,
		Shipping:      input.Shipping,
		Payment: domain.PaymentInfo{
			Method: input.PaymentMethod,
			Status: domain.PaymentStatusUnpaid,
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	if err := s.orders.Create(order); err != nil {
		s.logger.WithError(err).WithField("order_number", order.OrderNumber).Error("failed to create order")
		return domain.Order{}, err
	}

	s.appendTimeline(order.ID, "OrderCreated", string(order.Status))
	s.enqueueCreatedEvent(&order)

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"items":        len(order.Items),
		"total_minor":  order.TotalMinor,
	}).Info("order created")

	return order, nil
}

func validateInput(input Input) error {
	if strings.TrimSpace(input.Customer.Email) == "" {
		return domain.ErrCustomerEmailRequired
	}
	if len(input.Items) == 0 {
		return domain.ErrItemsRequired
	}
	if input.ShippingMinor < 0 {
		return domain.ErrAmountNegative
	}
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return domain.ErrItemQtyInvalid
		}
		if !item.Size.Valid() {
			return domain.ErrSizeUnknown
		}
		if item.ProductID == "" {
			return domain.ErrProductNotFound
		}
	}
	return nil
}

// newOrderNumber генерирует уникальный человекочитаемый номер заказа.
// Формат: FW-YYYYMMDD-XXXXXXXX, где суффикс — случайный hex.
func newOrderNumber(now time.Time) string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// Падение crypto/rand практически невозможно; uuid как запасной источник.
		return fmt.Sprintf("FW-%s-%s", now.Format("20060102"), uuid.NewString()[:8])
	}
	return fmt.Sprintf("FW-%s-%X", now.Format("20060102"), suffix)
}

func (s *Service) appendTimeline(orderID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
	}
}

func (s *Service) enqueueCreatedEvent(order *domain.Order) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"email":        order.Customer.Email,
		"total_minor":  order.TotalMinor,
		"currency":     order.Currency,
		"ts":           order.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("marshal order created event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     "OrderCreated",
		Payload:       payload,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue order created event failed")
	}
}
