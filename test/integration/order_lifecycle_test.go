package integration

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/checkout"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/lifecycle"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/stockalert"
	"github.com/the-white-platform/fashion-web-sub000/internal/storage/memory"
)

// OrderLifecycleTestSuite тестирует полный жизненный цикл заказа:
// чекаут, списание стока на подтверждении, восстановление на отмене.
type OrderLifecycleTestSuite struct {
	suite.Suite
	products domain.ProductRepository
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	notifier *stockalert.MockNotifier
	checkout *checkout.Service
	engine   *lifecycle.Engine
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.products = memory.NewProductRepository()
	suite.orders = memory.NewOrderRepository()
	suite.timeline = memory.NewTimelineRepository()
	outbox := memory.NewOutboxRepository()
	suite.notifier = stockalert.NewMockNotifier()

	suite.checkout = checkout.NewService(
		suite.products,
		suite.orders,
		outbox,
		suite.timeline,
		logger,
	)
	suite.engine = lifecycle.NewEngineWithoutMetrics(
		suite.orders,
		suite.products,
		outbox,
		suite.timeline,
		suite.notifier,
		logger,
	)
}

func (suite *OrderLifecycleTestSuite) seedCatalog() {
	err := suite.products.Create(domain.Product{
		ID:         "coat-wool",
		Name:       "Wool Coat",
		PriceMinor: 1290000, // 12900.00 RUB
		Currency:   "RUB",
		Published:  true,
		Variants: []domain.ColorVariant{
			{
				Key:  "camel",
				Name: "Camel",
				Sizes: []domain.SizeInventory{
					{Size: domain.SizeM, Stock: 5, LowStockThreshold: 2},
					{Size: domain.SizeL, Stock: 1, LowStockThreshold: 2},
				},
			},
		},
	})
	require.NoError(suite.T(), err)

	err = suite.products.Create(domain.Product{
		ID:         "scarf-silk",
		Name:       "Silk Scarf",
		PriceMinor: 390000,
		Currency:   "RUB",
		Published:  true,
		Variants: []domain.ColorVariant{
			{
				Key:  "ivory",
				Name: "Ivory",
				Sizes: []domain.SizeInventory{
					{Size: domain.SizeM, Stock: 10, LowStockThreshold: 3},
				},
			},
		},
	})
	require.NoError(suite.T(), err)
}

func (suite *OrderLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	suite.seedCatalog()

	// 1. Оформляем заказ
	order, err := suite.checkout.PlaceOrder(checkout.Input{
		Items: []checkout.ItemInput{
			{ProductID: "coat-wool", Variant: "camel", Size: domain.SizeM, Qty: 1},
			{ProductID: "scarf-silk", Variant: "Ivory", Size: domain.SizeM, Qty: 2},
		},
		Customer:      domain.CustomerInfo{Name: "Anna", Email: "anna@example.com"},
		Shipping:      domain.ShippingAddress{Line1: "Tverskaya 1", City: "Moscow", Country: "RU"},
		PaymentMethod: "card",
		ShippingMinor: 50000,
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPending, order.Status)
	require.Equal(suite.T(), int64(2070000), order.SubtotalMinor) // 12900 + 2*3900
	require.Equal(suite.T(), int64(2120000), order.TotalMinor)
	require.False(suite.T(), order.StockDecremented)

	// 2. Сток не тронут до подтверждения
	stock, err := suite.products.GetStock("coat-wool", "camel", domain.SizeM)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(5), stock)

	// 3. Подтверждение списывает сток по всем позициям
	confirmed, err := suite.engine.Transition(order.ID, domain.OrderStatusConfirmed, "payment received")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusConfirmed, confirmed.Status)
	require.True(suite.T(), confirmed.StockDecremented)

	stock, err = suite.products.GetStock("coat-wool", "camel", domain.SizeM)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(4), stock)
	stock, err = suite.products.GetStock("scarf-silk", "ivory", domain.SizeM)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(8), stock)

	// 4. Дальнейшие переходы сток не трогают
	for _, next := range []domain.OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusShipping,
		domain.OrderStatusDelivered,
	} {
		_, err = suite.engine.Transition(order.ID, next, "")
		require.NoError(suite.T(), err)
	}

	final, err := suite.orders.Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusDelivered, final.Status)
	require.True(suite.T(), final.StockDecremented)

	stock, err = suite.products.GetStock("coat-wool", "camel", domain.SizeM)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(4), stock)

	// 5. Timeline: создание + четыре смены статуса
	events, err := suite.timeline.List(order.ID)
	require.NoError(suite.T(), err)
	require.GreaterOrEqual(suite.T(), len(events), 5)
	require.Equal(suite.T(), "OrderCreated", events[0].Type)
}

func (suite *OrderLifecycleTestSuite) TestCancellationRestoresStock() {
	suite.seedCatalog()

	order := suite.placeCoatOrder(2)

	_, err := suite.engine.Transition(order.ID, domain.OrderStatusConfirmed, "")
	require.NoError(suite.T(), err)

	stock, err := suite.products.GetStock("coat-wool", "camel", domain.SizeM)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(3), stock)

	cancelled, err := suite.engine.Transition(order.ID, domain.OrderStatusCancelled, "customer changed mind")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusCancelled, cancelled.Status)
	require.False(suite.T(), cancelled.StockDecremented)

	// Компенсация вернула остаток
	stock, err = suite.products.GetStock("coat-wool", "camel", domain.SizeM)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(5), stock)

	// Возврат после отмены сток повторно не трогает
	refunded, err := suite.engine.Transition(order.ID, domain.OrderStatusRefunded, "refund issued")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusRefunded, refunded.Status)

	stock, err = suite.products.GetStock("coat-wool", "camel", domain.SizeM)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(5), stock)
}

func (suite *OrderLifecycleTestSuite) TestCancellationBeforeConfirmationLeavesStock() {
	suite.seedCatalog()

	order := suite.placeCoatOrder(1)

	_, err := suite.engine.Transition(order.ID, domain.OrderStatusCancelled, "not paid in time")
	require.NoError(suite.T(), err)

	// Списания не было, восстанавливать нечего
	stock, err := suite.products.GetStock("coat-wool", "camel", domain.SizeM)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(5), stock)
}

func (suite *OrderLifecycleTestSuite) TestInsufficientStockBlocksConfirmation() {
	suite.seedCatalog()

	order := suite.placeCoatOrder(3)

	// Конкурирующий заказ опустошил леджер после чекаута
	_, err := suite.products.AdjustStock("coat-wool", "camel", domain.SizeM, -4)
	require.NoError(suite.T(), err)

	_, err = suite.engine.Transition(order.ID, domain.OrderStatusConfirmed, "")
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(suite.T(), err, &insufficient)
	require.Equal(suite.T(), int32(1), insufficient.Available)
	require.Equal(suite.T(), int32(3), insufficient.Requested)

	// Переход не состоялся, заказ остался pending
	current, err := suite.orders.Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPending, current.Status)
	require.False(suite.T(), current.StockDecremented)
}

func (suite *OrderLifecycleTestSuite) TestLowStockAlertOnConfirmation() {
	suite.seedCatalog()

	order := suite.placeCoatOrder(3) // 5 - 3 = 2 == threshold

	_, err := suite.engine.Transition(order.ID, domain.OrderStatusConfirmed, "")
	require.NoError(suite.T(), err)

	alerts := suite.notifier.ByKind(domain.StockAlertLowStock)
	require.Len(suite.T(), alerts, 1)
	require.Equal(suite.T(), "coat-wool", alerts[0].ProductID)
	require.Equal(suite.T(), "camel", alerts[0].VariantKey)
	require.Equal(suite.T(), int32(2), alerts[0].NewStock)
}

// Вспомогательные методы

func (suite *OrderLifecycleTestSuite) placeCoatOrder(qty int32) domain.Order {
	order, err := suite.checkout.PlaceOrder(checkout.Input{
		Items: []checkout.ItemInput{
			{ProductID: "coat-wool", Variant: "camel", Size: domain.SizeM, Qty: qty},
		},
		Customer:      domain.CustomerInfo{Name: "Boris", Email: "boris@example.com"},
		PaymentMethod: "card",
	})
	require.NoError(suite.T(), err)
	return order
}

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
