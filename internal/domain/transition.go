package domain

// transitionGraph задаёт легальные рёбра жизненного цикла заказа.
// Отмена доступна из любого недоставленного состояния; возврат средств —
// после отмены либо после доставки. Ребро в refunded сток не трогает:
// восстановление привязано только к ребру в cancelled.
var transitionGraph = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {OrderStatusRefunded},
	OrderStatusRefunded:   {},
}

// CanTransition сообщает, есть ли в графе ребро from -> to.
// Переход в текущий статус ребром не считается: такой запрос — no-op,
// и побочные эффекты по нему не срабатывают повторно.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return false
	}
	for _, next := range transitionGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses возвращает статусы, достижимые из from за один переход.
func NextStatuses(from OrderStatus) []OrderStatus {
	next := transitionGraph[from]
	result := make([]OrderStatus, len(next))
	copy(result, next)
	return result
}
