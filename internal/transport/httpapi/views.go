package httpapi

import (
	"time"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

// orderView — JSON-представление заказа во внешнем API.
type orderView struct {
	ID                  string          `json:"id"`
	OrderNumber         string          `json:"order_number"`
	Status              string          `json:"status"`
	Items               []orderItemView `json:"items"`
	Currency            string          `json:"currency"`
	SubtotalMinor       int64           `json:"subtotal_minor"`
	ShippingMinor       int64           `json:"shipping_minor"`
	TotalMinor          int64           `json:"total_minor"`
	Customer            customerView    `json:"customer"`
	Shipping            shippingView    `json:"shipping"`
	Payment             paymentView     `json:"payment"`
	Fulfillment         fulfillmentView `json:"fulfillment"`
	AdminNotes          string          `json:"admin_notes,omitempty"`
	NeedsReconciliation bool            `json:"needs_reconciliation,omitempty"`
	Version             int64           `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type orderItemView struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	VariantKey     string `json:"variant_key"`
	ProductName    string `json:"product_name"`
	ColorName      string `json:"color_name"`
	Size           string `json:"size"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	LineTotalMinor int64  `json:"line_total_minor"`
}

type customerView struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type shippingView struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type paymentView struct {
	Method        string     `json:"method,omitempty"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type fulfillmentView struct {
	Carrier        string     `json:"carrier,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

func orderToView(order domain.Order) orderView {
	items := make([]orderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemView{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantKey:     item.VariantKey,
			ProductName:    item.ProductName,
			ColorName:      item.ColorName,
			Size:           string(item.Size),
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			LineTotalMinor: item.LineTotalMinor,
		})
	}

	return orderView{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		Items:         items,
		Currency:      order.Currency,
		SubtotalMinor: order.SubtotalMinor,
		ShippingMinor: order.ShippingMinor,
		TotalMinor:    order.TotalMinor,
		Customer: customerView{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		Shipping: shippingView{
			Line1:      order.Shipping.Line1,
			Line2:      order.Shipping.Line2,
			City:       order.Shipping.City,
			Region:     order.Shipping.Region,
			PostalCode: order.Shipping.PostalCode,
			Country:    order.Shipping.Country,
		},
		Payment: paymentView{
			Method:        order.Payment.Method,
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			PaidAt:        optionalTime(order.Payment.PaidAt),
		},
		Fulfillment: fulfillmentView{
			Carrier:        order.Fulfillment.Carrier,
			TrackingNumber: order.Fulfillment.TrackingNumber,
			ShippedAt:      optionalTime(order.Fulfillment.ShippedAt),
			DeliveredAt:    optionalTime(order.Fulfillment.DeliveredAt),
		},
		AdminNotes:          order.AdminNotes,
		NeedsReconciliation: order.NeedsReconciliation,
		Version:             order.Version,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
}

// productView — JSON-представление карточки товара.
type productView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	PriceMinor  int64         `json:"price_minor"`
	Currency    string        `json:"currency"`
	Published   bool          `json:"published"`
	Variants    []variantView `json:"variants"`
	Version     int64         `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type variantView struct {
	Key   string     `json:"key"`
	Name  string     `json:"name"`
	Hex   string     `json:"hex,omitempty"`
	Sizes []sizeView `json:"sizes"`
}

type sizeView struct {
	Size              string `json:"size"`
	Stock             int32  `json:"stock"`
	LowStockThreshold int32  `json:"low_stock_threshold"`
}

func productToView(product domain.Product) productView {
	variants := make([]variantView, 0, len(product.Variants))
	for _, v := range product.Variants {
		sizes := make([]sizeView, 0, len(v.Sizes))
		for _, row := range v.Sizes {
			sizes = append(sizes, sizeView{
				Size:              string(row.Size),
				Stock:             row.Stock,
				LowStockThreshold: row.LowStockThreshold,
			})
		}
		variants = append(variants, variantView{Key: v.Key, Name: v.Name, Hex: v.Hex, Sizes: sizes})
	}

	return productView{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		PriceMinor:  product.PriceMinor,
		Currency:    product.Currency,
		Published:   product.Published,
		Variants:    variants,
		Version:     product.Version,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
