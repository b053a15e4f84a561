package domain

// ProductRepository описывает требования к хранилищу каталога.
// Помимо CRUD карточек оно владеет складским леджером: точечные операции
// над строкой (product, colorKey, size) выполняются атомарно внутри стора,
// а не по схеме «прочитал документ — записал документ» со стороны вызывающего.
type ProductRepository interface {
	// Create сохраняет новый товар. Возвращает ошибку, если запись с таким ID уже существует.
	Create(product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(id string) (Product, error)
	// List возвращает товары каталога с опциональным ограничением на количество.
	List(limit int) ([]Product, error)
	// Save применяет обновления к карточке с учётом optimistic locking.
	// Поле Stock через Save не меняется — только операциями леджера ниже.
	Save(product Product) error

	// GetStock возвращает текущий остаток размерной строки
	// или ErrProductNotFound/ErrVariantNotFound/ErrSizeNotFound.
	GetStock(productID, colorKey string, size Size) (int32, error)
	// AdjustStock атомарно применяет stock = max(0, stock + delta)
	// и возвращает получившийся остаток. Пол на нуле — осознанное поведение,
	// а не сигнал об ошибке.
	AdjustStock(productID, colorKey string, size Size, delta int32) (int32, error)
	// TryDecrementStock атомарно списывает qty, только если остатка достаточно.
	// Возвращает новый остаток либо InsufficientStockError: проверка достаточности
	// и запись происходят в одной операции, промежутка для гонки нет.
	TryDecrementStock(productID, colorKey string, size Size, qty int32) (int32, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку при конфликте ID или номера.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// GetByNumber возвращает заказ по его номеру или ErrOrderNotFound.
	GetByNumber(orderNumber string) (Order, error)
	// ListByEmail возвращает заказы покупателя с опциональным ограничением на количество.
	ListByEmail(email string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	// Снапшот позиций через Save не переписывается.
	Save(order Order) error
}
