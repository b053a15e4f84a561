package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан чекаутом, сток ещё не списан.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ подтверждён, сток списан.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing — заказ собирается на складе.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipping — заказ передан перевозчику.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён; списанный сток возвращён.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — средства возвращены покупателю.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentStatus отражает состояние оплаты, сообщаемое платёжным провайдером.
// Ядро только хранит это поле, сам платёж обрабатывается снаружи.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderItem — позиция заказа: денормализованный снапшот на момент создания.
// Ссылается на товар только по ID; имя и цена скопированы, чтобы последующие
// правки каталога не меняли существующие заказы.
type OrderItem struct {
	ID        string
	ProductID string
	// VariantKey — ключ цветового варианта, зафиксированный при резолве на чекауте.
	VariantKey  string
	ProductName string
	ColorName   string
	Size        Size
	Qty         int32
	// UnitPriceMinor — цена за единицу на момент создания заказа.
	UnitPriceMinor int64
	// LineTotalMinor = Qty * UnitPriceMinor.
	LineTotalMinor int64
	CreatedAt      time.Time
}

// CustomerInfo — контактные данные покупателя, снятые при оформлении.
type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

// ShippingAddress — адрес доставки.
type ShippingAddress struct {
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// PaymentInfo — способ оплаты и статус, обновляемый колбэками провайдера.
type PaymentInfo struct {
	Method        string
	Status        PaymentStatus
	TransactionID string
	PaidAt        time.Time
}

// FulfillmentInfo — данные исполнения, заполняемые фулфилмент-операторами.
type FulfillmentInfo struct {
	Carrier        string
	TrackingNumber string
	ShippedAt      time.Time
	DeliveredAt    time.Time
}

// Order агрегирует состояние заказа.
// Items, OrderNumber и ценовые поля иммутабельны после создания; мутируют
// только Status, Payment, Fulfillment, AdminNotes и служебные флаги леджера.
type Order struct {
	ID string
	// OrderNumber — человекочитаемый уникальный номер, генерируется при создании.
	OrderNumber string
	Status      OrderStatus
	Items       []OrderItem
	Currency    string
	// SubtotalMinor — сумма позиций без доставки.
	SubtotalMinor int64
	// ShippingMinor — стоимость доставки, зафиксированная при оформлении.
	ShippingMinor int64
	// TotalMinor = SubtotalMinor + ShippingMinor.
	TotalMinor  int64
	Customer    CustomerInfo
	Shipping    ShippingAddress
	Payment     PaymentInfo
	Fulfillment FulfillmentInfo
	AdminNotes  string
	// StockDecremented — сторожевой флаг движка списания: сток заказа списывается
	// не более одного раза за весь жизненный цикл.
	StockDecremented bool
	// NeedsReconciliation выставляется, когда леджер не смог применить движение
	// по отдельной позиции и заказ требует ручной сверки.
	NeedsReconciliation bool
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.Customer.Email == "" {
		errs = append(errs, ErrCustomerEmailRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем итог заказа с суммой позиций.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if !item.Size.Valid() {
			errs = append(errs, ErrSizeUnknown)
		}
		if item.LineTotalMinor != int64(item.Qty)*item.UnitPriceMinor {
			errs = append(errs, ErrLineTotalMismatch)
		}
		calc += item.LineTotalMinor
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}
	if o.SubtotalMinor+o.ShippingMinor != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// IsTerminal сообщает, достиг ли заказ конечного состояния.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// Valid проверяет, что статус относится к известным значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipping, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}
