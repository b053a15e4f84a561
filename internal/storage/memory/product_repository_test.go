package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

func newTestProduct(id string, stock int32) domain.Product {
	now := time.Now().UTC()
	return domain.Product{
		ID:         id,
		Name:       "Silk Dress",
		PriceMinor: 890000,
		Currency:   "RUB",
		Published:  true,
		Variants: []domain.ColorVariant{
			{
				Key:  "black",
				Name: "Black",
				Hex:  "#000000",
				Sizes: []domain.SizeInventory{
					{Size: domain.SizeM, Stock: stock, LowStockThreshold: 2},
					{Size: domain.SizeL, Stock: 10, LowStockThreshold: 2},
				},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestProductRepositoryCreateAndGet(t *testing.T) {
	repo := NewProductRepository()

	if err := repo.Create(newTestProduct("p1", 5)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(newTestProduct("p1", 5)); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	product, err := repo.Get("p1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if product.Name != "Silk Dress" || len(product.Variants) != 1 {
		t.Fatalf("unexpected product %+v", product)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestProductRepositoryGetReturnsCopy(t *testing.T) {
	repo := NewProductRepository()
	if err := repo.Create(newTestProduct("p1", 5)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	product, _ := repo.Get("p1")
	product.Variants[0].Sizes[0].Stock = 999

	stock, err := repo.GetStock("p1", "black", domain.SizeM)
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock != 5 {
		t.Fatalf("mutation of returned copy leaked into repository: stock=%d", stock)
	}
}

func TestProductRepositorySavePreservesLedgerStock(t *testing.T) {
	repo := NewProductRepository()
	if err := repo.Create(newTestProduct("p1", 5)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Сдвигаем остаток через леджер, потом сохраняем карточку
	// с устаревшим стоком в теле.
	if _, err := repo.AdjustStock("p1", "black", domain.SizeM, -3); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	update := newTestProduct("p1", 100)
	update.Name = "Silk Dress v2"
	update.Version = 0
	if err := repo.Save(update); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	saved, _ := repo.Get("p1")
	if saved.Name != "Silk Dress v2" {
		t.Fatalf("card fields must be updated, got name %s", saved.Name)
	}
	if saved.Version != 1 {
		t.Fatalf("expected version bump to 1, got %d", saved.Version)
	}

	stock, _ := repo.GetStock("p1", "black", domain.SizeM)
	if stock != 2 {
		t.Fatalf("Save must not overwrite ledger stock: got %d, want 2", stock)
	}
}

func TestProductRepositorySaveVersionConflict(t *testing.T) {
	repo := NewProductRepository()
	if err := repo.Create(newTestProduct("p1", 5)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stale := newTestProduct("p1", 5)
	stale.Version = 7
	if err := repo.Save(stale); !errors.Is(err, domain.ErrProductVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	missing := newTestProduct("ghost", 5)
	if err := repo.Save(missing); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestAdjustStockClampsAtZero(t *testing.T) {
	repo := NewProductRepository()
	if err := repo.Create(newTestProduct("p1", 5)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stock, err := repo.AdjustStock("p1", "black", domain.SizeM, -50)
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if stock != 0 {
		t.Fatalf("expected clamp at zero, got %d", stock)
	}

	stock, err = repo.AdjustStock("p1", "black", domain.SizeM, 4)
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if stock != 4 {
		t.Fatalf("expected stock 4 after restock, got %d", stock)
	}
}

func TestTryDecrementStockInsufficient(t *testing.T) {
	repo := NewProductRepository()
	if err := repo.Create(newTestProduct("p1", 2)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err := repo.TryDecrementStock("p1", "black", domain.SizeM, 3)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Available != 2 || insufficient.Requested != 3 {
		t.Fatalf("unexpected error details %+v", insufficient)
	}

	// Отказ не должен трогать остаток.
	stock, _ := repo.GetStock("p1", "black", domain.SizeM)
	if stock != 2 {
		t.Fatalf("rejected decrement must not change stock, got %d", stock)
	}
}

func TestLedgerErrorsDistinguishMissingRows(t *testing.T) {
	repo := NewProductRepository()
	if err := repo.Create(newTestProduct("p1", 2)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := repo.GetStock("ghost", "black", domain.SizeM); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := repo.GetStock("p1", "violet", domain.SizeM); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
	if _, err := repo.GetStock("p1", "black", domain.SizeXS); !errors.Is(err, domain.ErrSizeNotFound) {
		t.Fatalf("expected ErrSizeNotFound, got %v", err)
	}
}

// TestTryDecrementStockConcurrent гоняет условное списание из многих горутин:
// суммарно списаться должно ровно столько, сколько было на остатке.
func TestTryDecrementStockConcurrent(t *testing.T) {
	const (
		initialStock = 40
		workers      = 100
	)

	repo := NewProductRepository()
	if err := repo.Create(newTestProduct("p1", initialStock)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.TryDecrementStock("p1", "black", domain.SizeM, 1)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != initialStock {
		t.Fatalf("expected exactly %d successful decrements, got %d", initialStock, succeeded)
	}
	if rejected != workers-initialStock {
		t.Fatalf("expected %d rejections, got %d", workers-initialStock, rejected)
	}

	stock, err := repo.GetStock("p1", "black", domain.SizeM)
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock != 0 {
		t.Fatalf("expected stock to be fully drained, got %d", stock)
	}
}
