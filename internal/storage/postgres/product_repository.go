package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
// Все операции леджера выражены одним UPDATE: проверка условия и запись
// происходят внутри строки под блокировкой PostgreSQL, гонок read-modify-write нет.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (
			id, name, description, price_minor, currency, published, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		product.ID, product.Name, product.Description, product.PriceMinor,
		product.Currency, product.Published, product.Version, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductVersionConflict
		}
		return fmt.Errorf("insert product: %w", err)
	}

	if err = insertVariants(ctx, tx, product); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create product: %w", err)
	}

	return nil
}

func (r *productRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price_minor, currency, published, version, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.Name, &product.Description, &product.PriceMinor,
		&product.Currency, &product.Published, &product.Version, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	variants, err := r.loadVariants(ctx, product.ID)
	if err != nil {
		return domain.Product{}, err
	}
	product.Variants = variants

	return product, nil
}

func (r *productRepository) List(limit int) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, name, description, price_minor, currency, published, version, created_at, updated_at
		FROM products
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(
			&product.ID, &product.Name, &product.Description, &product.PriceMinor,
			&product.Currency, &product.Published, &product.Version, &product.CreatedAt, &product.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}

		variants, err := r.loadVariants(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		product.Variants = variants
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

// Save обновляет карточку с optimistic locking и синхронизирует варианты.
// Остатки существующих размерных строк не переписываются: для новых строк
// берётся входной Stock, для существующих обновляется только порог.
func (r *productRepository) Save(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = $1,
		    description = $2,
		    price_minor = $3,
		    currency = $4,
		    published = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		product.Name, product.Description, product.PriceMinor, product.Currency,
		product.Published, product.UpdatedAt, product.ID, product.Version,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, checkErr := r.productExistsTx(ctx, tx, product.ID)
		if checkErr != nil {
			err = checkErr
			return err
		}
		if !exists {
			err = domain.ErrProductNotFound
			return err
		}
		err = domain.ErrProductVersionConflict
		return err
	}

	if err = syncVariants(ctx, tx, product); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save product: %w", err)
	}

	return nil
}

func (r *productRepository) GetStock(productID, colorKey string, size domain.Size) (int32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var stock int32
	err := r.db.QueryRowContext(ctx, `
		SELECT stock
		FROM size_inventories
		WHERE product_id = $1 AND variant_key = $2 AND size = $3
	`, productID, colorKey, string(size)).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, r.classifyMissingRow(ctx, productID, colorKey)
		}
		return 0, fmt.Errorf("select stock: %w", err)
	}

	return stock, nil
}

// AdjustStock атомарно применяет stock = max(0, stock + delta)
// одним UPDATE и возвращает получившийся остаток.
func (r *productRepository) AdjustStock(productID, colorKey string, size domain.Size, delta int32) (int32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var stock int32
	err := r.db.QueryRowContext(ctx, `
		UPDATE size_inventories
		SET stock = GREATEST(0, stock + $4)
		WHERE product_id = $1 AND variant_key = $2 AND size = $3
		RETURNING stock
	`, productID, colorKey, string(size), delta).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, r.classifyMissingRow(ctx, productID, colorKey)
		}
		return 0, fmt.Errorf("adjust stock: %w", err)
	}

	return stock, nil
}

// TryDecrementStock списывает qty, только если остатка достаточно.
// Условие stock >= qty входит в сам UPDATE: два конкурирующих списания
// сериализуются блокировкой строки, второе увидит уже уменьшенный остаток.
func (r *productRepository) TryDecrementStock(productID, colorKey string, size domain.Size, qty int32) (int32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var stock int32
	err := r.db.QueryRowContext(ctx, `
		UPDATE size_inventories
		SET stock = stock - $4
		WHERE product_id = $1 AND variant_key = $2 AND size = $3 AND stock >= $4
		RETURNING stock
	`, productID, colorKey, string(size), qty).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("conditional decrement: %w", err)
	}

	// UPDATE не зацепил строку: либо её нет, либо остатка не хватило.
	var available int32
	selErr := r.db.QueryRowContext(ctx, `
		SELECT stock
		FROM size_inventories
		WHERE product_id = $1 AND variant_key = $2 AND size = $3
	`, productID, colorKey, string(size)).Scan(&available)
	if selErr != nil {
		if errors.Is(selErr, sql.ErrNoRows) {
			return 0, r.classifyMissingRow(ctx, productID, colorKey)
		}
		return 0, fmt.Errorf("select stock after failed decrement: %w", selErr)
	}

	return available, &domain.InsufficientStockError{
		ProductID:  productID,
		VariantKey: colorKey,
		Size:       size,
		Available:  available,
		Requested:  qty,
	}
}

// classifyMissingRow различает отсутствие товара, варианта и размерной строки.
func (r *productRepository) classifyMissingRow(ctx context.Context, productID, colorKey string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
	`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return domain.ErrProductNotFound
	}

	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM color_variants WHERE product_id = $1 AND variant_key = $2)
	`, productID, colorKey).Scan(&exists); err != nil {
		return fmt.Errorf("check variant exists: %w", err)
	}
	if !exists {
		return domain.ErrVariantNotFound
	}

	return domain.ErrSizeNotFound
}

func (r *productRepository) loadVariants(ctx context.Context, productID string) ([]domain.ColorVariant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT variant_key, name, hex
		FROM color_variants
		WHERE product_id = $1
		ORDER BY position ASC, variant_key ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("load color variants: %w", err)
	}
	defer rows.Close()

	variants := make([]domain.ColorVariant, 0)
	for rows.Next() {
		var v domain.ColorVariant
		if err := rows.Scan(&v.Key, &v.Name, &v.Hex); err != nil {
			return nil, fmt.Errorf("scan color variant: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate color variants: %w", err)
	}

	for i := range variants {
		sizes, err := r.loadSizes(ctx, productID, variants[i].Key)
		if err != nil {
			return nil, err
		}
		variants[i].Sizes = sizes
	}

	return variants, nil
}

func (r *productRepository) loadSizes(ctx context.Context, productID, variantKey string) ([]domain.SizeInventory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT size, stock, low_stock_threshold
		FROM size_inventories
		WHERE product_id = $1 AND variant_key = $2
		ORDER BY position ASC, size ASC
	`, productID, variantKey)
	if err != nil {
		return nil, fmt.Errorf("load size inventories: %w", err)
	}
	defer rows.Close()

	sizes := make([]domain.SizeInventory, 0)
	for rows.Next() {
		var row domain.SizeInventory
		var size string
		if err := rows.Scan(&size, &row.Stock, &row.LowStockThreshold); err != nil {
			return nil, fmt.Errorf("scan size inventory: %w", err)
		}
		row.Size = domain.Size(size)
		sizes = append(sizes, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate size inventories: %w", err)
	}

	return sizes, nil
}

func insertVariants(ctx context.Context, tx *sql.Tx, product domain.Product) error {
	for vi, variant := range product.Variants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO color_variants (product_id, variant_key, name, hex, position)
			VALUES ($1,$2,$3,$4,$5)
		`, product.ID, variant.Key, variant.Name, variant.Hex, vi); err != nil {
			return fmt.Errorf("insert color variant: %w", err)
		}

		for si, row := range variant.Sizes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO size_inventories (product_id, variant_key, size, stock, low_stock_threshold, position)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, product.ID, variant.Key, string(row.Size), row.Stock, row.LowStockThreshold, si); err != nil {
				return fmt.Errorf("insert size inventory: %w", err)
			}
		}
	}

	return nil
}

// syncVariants приводит варианты и размерные сетки к входной карточке.
// Upsert размерной строки не трогает stock существующей записи:
// единственный канал изменения остатков — операции леджера.
func syncVariants(ctx context.Context, tx *sql.Tx, product domain.Product) error {
	keys := make([]string, 0, len(product.Variants))
	for _, v := range product.Variants {
		keys = append(keys, v.Key)
	}

	// Варианты, исчезнувшие из карточки, удаляются каскадом вместе с размерами.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM color_variants
		WHERE product_id = $1 AND variant_key <> ALL($2)
	`, product.ID, keys); err != nil {
		return fmt.Errorf("prune color variants: %w", err)
	}

	for vi, variant := range product.Variants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO color_variants (product_id, variant_key, name, hex, position)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (product_id, variant_key)
			DO UPDATE SET name = EXCLUDED.name, hex = EXCLUDED.hex, position = EXCLUDED.position
		`, product.ID, variant.Key, variant.Name, variant.Hex, vi); err != nil {
			return fmt.Errorf("upsert color variant: %w", err)
		}

		sizes := make([]string, 0, len(variant.Sizes))
		for _, row := range variant.Sizes {
			sizes = append(sizes, string(row.Size))
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM size_inventories
			WHERE product_id = $1 AND variant_key = $2 AND size <> ALL($3)
		`, product.ID, variant.Key, sizes); err != nil {
			return fmt.Errorf("prune size inventories: %w", err)
		}

		for si, row := range variant.Sizes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO size_inventories (product_id, variant_key, size, stock, low_stock_threshold, position)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (product_id, variant_key, size)
				DO UPDATE SET low_stock_threshold = EXCLUDED.low_stock_threshold, position = EXCLUDED.position
			`, product.ID, variant.Key, string(row.Size), row.Stock, row.LowStockThreshold, si); err != nil {
				return fmt.Errorf("upsert size inventory: %w", err)
			}
		}
	}

	return nil
}

func (r *productRepository) productExistsTx(ctx context.Context, tx *sql.Tx, productID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, productID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

var _ domain.ProductRepository = (*productRepository)(nil)
