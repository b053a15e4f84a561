package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибки валидации входных данных заказа.
	ErrCustomerEmailRequired = errors.New("customer email is required")
	ErrCurrencyRequired      = errors.New("currency is required")
	ErrItemsRequired         = errors.New("order must contain at least one item")
	ErrAmountNegative        = errors.New("order total must be non-negative")
	ErrItemQtyInvalid        = errors.New("item qty must be greater than zero")
	ErrItemPriceInvalid      = errors.New("item price must be non-negative")
	ErrLineTotalMismatch     = errors.New("item line total does not match qty * unit price")
	ErrAmountMismatch        = errors.New("order totals do not match items sum")
	ErrCurrencyMismatch      = errors.New("order items must share a single currency")

	// Ошибки валидации карточки товара.
	ErrProductNameRequired = errors.New("product name is required")
	ErrPriceNegative       = errors.New("product price must be non-negative")
	ErrVariantKeyRequired  = errors.New("variant key is required")
	ErrVariantKeyDuplicate = errors.New("variant key must be unique within product")
	ErrSizeUnknown         = errors.New("size is not in the supported size set")
	ErrSizeDuplicate       = errors.New("size must be unique within variant")
	ErrStockNegative       = errors.New("stock must be non-negative")
	ErrThresholdNegative   = errors.New("low stock threshold must be non-negative")

	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound — в товаре нет варианта с таким ключом или именем цвета.
	ErrVariantNotFound = errors.New("color variant not found")
	// ErrSizeNotFound — в варианте нет размерной строки с таким размером.
	ErrSizeNotFound = errors.New("size inventory row not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNumberConflict — номер заказа уже занят.
	ErrOrderNumberConflict = errors.New("order number already exists")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrProductVersionConflict — конфликт версий при сохранении карточки товара.
	ErrProductVersionConflict = errors.New("product version conflict")

	// ErrInsufficientStock — условное списание не прошло: остатка меньше, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition — запрошенный переход отсутствует в графе статусов.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrStockAdjustment — леджер не смог применить движение по позиции;
	// заказ помечается для ручной сверки.
	ErrStockAdjustment = errors.New("stock adjustment failed")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки слоя идемпотентности.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key is used with different request payload")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// InsufficientStockError уточняет, по какой позиции и насколько не хватило остатка.
type InsufficientStockError struct {
	ProductID  string
	VariantKey string
	Size       Size
	Available  int32
	Requested  int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s/%s/%s: available %d, requested %d",
		e.ProductID, e.VariantKey, e.Size, e.Available, e.Requested)
}

// Unwrap позволяет распознавать ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InvalidTransitionError фиксирует отвергнутое ребро графа статусов.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrProductVersionConflict)
}
