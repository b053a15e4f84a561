package domain

import (
	"strings"
	"time"
)

// Size — размер позиции каталога. Набор фиксированный: буквенные размеры
// одежды и числовые размеры обуви.
type Size string

const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// knownSizes перечисляет допустимые значения; числовые — обувная сетка 36..45.
var knownSizes = map[Size]struct{}{
	SizeXS: {}, SizeS: {}, SizeM: {}, SizeL: {}, SizeXL: {}, SizeXXL: {},
	"36": {}, "37": {}, "38": {}, "39": {}, "40": {},
	"41": {}, "42": {}, "43": {}, "44": {}, "45": {},
}

// Valid проверяет, что размер входит в поддерживаемую сетку.
func (s Size) Valid() bool {
	_, ok := knownSizes[s]
	return ok
}

// SizeInventory — размерная строка складского леджера:
// остаток и порог low-stock для конкретного размера варианта.
type SizeInventory struct {
	Size  Size
	Stock int32
	// LowStockThreshold — порог, ниже или на котором остаток считается низким.
	LowStockThreshold int32
}

// ColorVariant — цветовой вариант товара со своей размерной сеткой.
// Key — стабильный машинный идентификатор внутри товара; Name — отображаемое
// имя цвета, Hex — код для витрины.
type ColorVariant struct {
	Key   string
	Name  string
	Hex   string
	Sizes []SizeInventory
}

// FindSize возвращает размерную строку варианта по размеру.
func (v *ColorVariant) FindSize(size Size) (SizeInventory, bool) {
	for _, row := range v.Sizes {
		if row.Size == size {
			return row, true
		}
	}
	return SizeInventory{}, false
}

// Product — карточка товара каталога.
// Цена хранится в минорных единицах валюты, остатки живут в размерных
// строках вариантов и меняются только операциями леджера.
type Product struct {
	ID          string
	Name        string
	Description string
	// PriceMinor — цена в минорных единицах (копейки, центы).
	PriceMinor int64
	Currency   string
	// Published управляет видимостью на витрине; на чекаут не влияет.
	Published bool
	Variants  []ColorVariant
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResolveVariant находит вариант по ключу либо, если ключ не совпал,
// по отображаемому имени цвета без учёта регистра. Ключ всегда в приоритете.
func (p *Product) ResolveVariant(keyOrName string) (ColorVariant, bool) {
	for _, v := range p.Variants {
		if v.Key == keyOrName {
			return v, true
		}
	}
	for _, v := range p.Variants {
		if strings.EqualFold(v.Name, keyOrName) {
			return v, true
		}
	}
	return ColorVariant{}, false
}

// ValidateInvariants проверяет базовые инварианты карточки и возвращает список замечаний.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrPriceNegative)
	}
	if p.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}

	seenKeys := make(map[string]struct{}, len(p.Variants))
	for _, v := range p.Variants {
		if v.Key == "" {
			errs = append(errs, ErrVariantKeyRequired)
		}
		if _, dup := seenKeys[v.Key]; dup {
			errs = append(errs, ErrVariantKeyDuplicate)
		}
		seenKeys[v.Key] = struct{}{}

		seenSizes := make(map[Size]struct{}, len(v.Sizes))
		for _, row := range v.Sizes {
			if !row.Size.Valid() {
				errs = append(errs, ErrSizeUnknown)
			}
			if _, dup := seenSizes[row.Size]; dup {
				errs = append(errs, ErrSizeDuplicate)
			}
			seenSizes[row.Size] = struct{}{}

			if row.Stock < 0 {
				errs = append(errs, ErrStockNegative)
			}
			if row.LowStockThreshold < 0 {
				errs = append(errs, ErrThresholdNegative)
			}
		}
	}

	return errs
}
