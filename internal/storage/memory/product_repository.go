package memory

import (
	"sort"
	"sync"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

// productRepositoryInMemory — in-memory реализация ProductRepository.
// Все движения леджера выполняются под общим мьютексом: строка остатка
// мутируется в одной критической секции, read-modify-write снаружи невозможен.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

// Create сохраняет новый товар, если ID ещё не занят.
func (r *productRepositoryInMemory) Create(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrProductVersionConflict
	}
	r.items[product.ID] = cloneProduct(product)
	return nil
}

// Get возвращает копию товара или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(product), nil
}

// List возвращает товары каталога, ограничивая выборку limit (если >0).
func (r *productRepositoryInMemory) List(limit int) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		result = append(result, cloneProduct(product))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает карточку, проверяя версию (optimistic locking).
// Складские остатки при этом сохраняются из текущего состояния леджера:
// Save не является каналом для изменения стока.
func (r *productRepositoryInMemory) Save(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if current.Version != product.Version {
		return domain.ErrProductVersionConflict
	}

	next := cloneProduct(product)
	// Переносим остатки из леджера поверх входной карточки.
	for vi := range next.Variants {
		for si := range next.Variants[vi].Sizes {
			if row, ok := findRow(&current, next.Variants[vi].Key, next.Variants[vi].Sizes[si].Size); ok {
				next.Variants[vi].Sizes[si].Stock = row.Stock
			}
		}
	}
	next.Version++
	r.items[product.ID] = next
	return nil
}

// GetStock возвращает текущий остаток размерной строки.
func (r *productRepositoryInMemory) GetStock(productID, colorKey string, size domain.Size) (int32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, err := r.locateRow(productID, colorKey, size)
	if err != nil {
		return 0, err
	}
	return row.Stock, nil
}

// AdjustStock атомарно применяет stock = max(0, stock + delta).
func (r *productRepositoryInMemory) AdjustStock(productID, colorKey string, size domain.Size, delta int32) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, err := r.locateRow(productID, colorKey, size)
	if err != nil {
		return 0, err
	}

	next := row.Stock + delta
	if next < 0 {
		next = 0
	}
	row.Stock = next
	return next, nil
}

// TryDecrementStock списывает qty только при достаточном остатке.
func (r *productRepositoryInMemory) TryDecrementStock(productID, colorKey string, size domain.Size, qty int32) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, err := r.locateRow(productID, colorKey, size)
	if err != nil {
		return 0, err
	}

	if row.Stock < qty {
		return row.Stock, &domain.InsufficientStockError{
			ProductID:  productID,
			VariantKey: colorKey,
			Size:       size,
			Available:  row.Stock,
			Requested:  qty,
		}
	}
	row.Stock -= qty
	return row.Stock, nil
}

// locateRow возвращает указатель на живую размерную строку внутри хранимого товара.
// Вызывающий обязан держать мьютекс.
func (r *productRepositoryInMemory) locateRow(productID, colorKey string, size domain.Size) (*domain.SizeInventory, error) {
	product, ok := r.items[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	// Слайсы вариантов разделяют backing array с записью в map,
	// поэтому мутация по указателю видна хранилищу напрямую.
	row, ok := findRow(&product, colorKey, size)
	if !ok {
		// Различаем отсутствие варианта и отсутствие размера.
		if _, found := product.ResolveVariant(colorKey); !found {
			return nil, domain.ErrVariantNotFound
		}
		return nil, domain.ErrSizeNotFound
	}
	return row, nil
}

func findRow(product *domain.Product, colorKey string, size domain.Size) (*domain.SizeInventory, bool) {
	for vi := range product.Variants {
		if product.Variants[vi].Key != colorKey {
			continue
		}
		for si := range product.Variants[vi].Sizes {
			if product.Variants[vi].Sizes[si].Size == size {
				return &product.Variants[vi].Sizes[si], true
			}
		}
	}
	return nil, false
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.Variants = make([]domain.ColorVariant, len(src.Variants))
	for i, v := range src.Variants {
		cv := v
		cv.Sizes = append([]domain.SizeInventory(nil), v.Sizes...)
		dst.Variants[i] = cv
	}
	return dst
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
