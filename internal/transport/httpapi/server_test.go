package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/checkout"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/lifecycle"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/stockalert"
	"github.com/the-white-platform/fashion-web-sub000/internal/storage/memory"
)

type apiFixture struct {
	router   http.Handler
	products domain.ProductRepository
	orders   domain.OrderRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	products := memory.NewProductRepository()
	orders := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	idempotency := memory.NewIdempotencyRepository()
	notifier := stockalert.NewMockNotifier()

	engine := lifecycle.NewEngineWithoutMetrics(orders, products, outbox, timeline, notifier, nil)
	checkoutSvc := checkout.NewService(products, orders, outbox, timeline, nil)

	server := NewServer(checkoutSvc, engine, products, orders, timeline, idempotency, nil)
	return &apiFixture{
		router:   server.Router(),
		products: products,
		orders:   orders,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func (f *apiFixture) seedProduct(t *testing.T, id string, stock int32) {
	t.Helper()

	now := time.Now().UTC()
	product := domain.Product{
		ID:         id,
		Name:       "Trench Coat",
		PriceMinor: 1590000,
		Currency:   "RUB",
		Published:  true,
		Variants: []domain.ColorVariant{
			{
				Key:  "beige",
				Name: "Beige",
				Hex:  "#d9c6a5",
				Sizes: []domain.SizeInventory{
					{Size: domain.SizeM, Stock: stock, LowStockThreshold: 2},
				},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.products.Create(product))
}

func createOrderBody(productID string) map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"product_id": productID, "variant": "beige", "size": "M", "qty": 2},
		},
		"customer": map[string]any{
			"name":  "Daria",
			"email": "daria@example.com",
		},
		"payment_method": "card",
		"shipping_minor": 50000,
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	resp := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody("p1"), nil)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var view orderView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	assert.NotEmpty(t, view.ID)
	assert.Regexp(t, `^FW-\d{8}-`, view.OrderNumber)
	assert.Equal(t, "pending", view.Status)
	assert.Equal(t, int64(3180000), view.SubtotalMinor)
	assert.Equal(t, int64(3230000), view.TotalMinor)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "beige", view.Items[0].VariantKey)
}

func TestCreateOrderValidationError(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	body := createOrderBody("p1")
	body["customer"] = map[string]any{"name": "NoEmail"}

	resp := f.do(t, http.MethodPost, "/api/v1/orders", body, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	assert.Equal(t, "validation_error", errResp.Code)
}

func TestCreateOrderIdempotencyReplay(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	headers := map[string]string{"Idempotency-Key": "key-123"}
	body := createOrderBody("p1")

	first := f.do(t, http.MethodPost, "/api/v1/orders", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(t, http.MethodPost, "/api/v1/orders", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)

	var firstView, secondView orderView
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstView))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondView))
	assert.Equal(t, firstView.ID, secondView.ID, "replay must return the cached order")

	// Второй запрос не должен создать новый заказ.
	orders, err := f.orders.ListByEmail("daria@example.com", 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCreateOrderIdempotencyHashMismatch(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	headers := map[string]string{"Idempotency-Key": "key-123"}

	first := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody("p1"), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	changed := createOrderBody("p1")
	changed["shipping_minor"] = 99999

	second := f.do(t, http.MethodPost, "/api/v1/orders", changed, headers)
	require.Equal(t, http.StatusConflict, second.Code)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &errResp))
	assert.Equal(t, "idempotency_mismatch", errResp.Code)
}

func TestGetOrderByIDAndNumber(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	created := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody("p1"), nil)
	require.Equal(t, http.StatusCreated, created.Code)

	var view orderView
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &view))

	byID := f.do(t, http.MethodGet, "/api/v1/orders/"+view.ID, nil, nil)
	require.Equal(t, http.StatusOK, byID.Code)

	byNumber := f.do(t, http.MethodGet, "/api/v1/orders/"+view.OrderNumber, nil, nil)
	require.Equal(t, http.StatusOK, byNumber.Code)

	var numberView orderView
	require.NoError(t, json.Unmarshal(byNumber.Body.Bytes(), &numberView))
	assert.Equal(t, view.ID, numberView.ID)

	missing := f.do(t, http.MethodGet, "/api/v1/orders/ghost", nil, nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestListOrdersRequiresEmail(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/orders", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(t, http.MethodGet, "/api/v1/orders?email=nobody@example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var listResp struct {
		Orders []orderView `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listResp))
	assert.Empty(t, listResp.Orders)
}

func TestTransitionEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	created := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody("p1"), nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var view orderView
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &view))

	confirm := f.do(t, http.MethodPost, "/api/v1/orders/"+view.ID+"/transition",
		map[string]string{"status": "confirmed", "reason": "payment received"}, nil)
	require.Equal(t, http.StatusOK, confirm.Code, confirm.Body.String())

	var confirmed orderView
	require.NoError(t, json.Unmarshal(confirm.Body.Bytes(), &confirmed))
	assert.Equal(t, "confirmed", confirmed.Status)

	// Подтверждение списало сток: 5 - 2 = 3.
	stockResp := f.do(t, http.MethodGet, "/api/v1/products/p1/stock?color=beige&size=M", nil, nil)
	require.Equal(t, http.StatusOK, stockResp.Code)
	var stockView struct {
		Stock int32 `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(stockResp.Body.Bytes(), &stockView))
	assert.Equal(t, int32(3), stockView.Stock)
}

func TestTransitionIllegalEdgeReturnsConflict(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	created := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody("p1"), nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var view orderView
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &view))

	resp := f.do(t, http.MethodPost, "/api/v1/orders/"+view.ID+"/transition",
		map[string]string{"status": "delivered"}, nil)
	require.Equal(t, http.StatusConflict, resp.Code)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	assert.Equal(t, "invalid_transition", errResp.Code)
}

func TestTransitionInsufficientStockReturnsConflict(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	created := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody("p1"), nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var view orderView
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &view))

	// Конкурент опустошает сток до подтверждения.
	adjust := f.do(t, http.MethodPost, "/api/v1/products/p1/stock",
		map[string]any{"color": "beige", "size": "M", "delta": -5}, nil)
	require.Equal(t, http.StatusOK, adjust.Code)

	resp := f.do(t, http.MethodPost, "/api/v1/orders/"+view.ID+"/transition",
		map[string]string{"status": "confirmed"}, nil)
	require.Equal(t, http.StatusConflict, resp.Code)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	assert.Equal(t, "insufficient_stock", errResp.Code)
}

func TestPaymentEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	created := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody("p1"), nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var view orderView
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &view))

	paidAt := time.Now().UTC().Truncate(time.Second)
	resp := f.do(t, http.MethodPost, "/api/v1/orders/"+view.ID+"/payment", map[string]string{
		"payment_status": "paid",
		"transaction_id": "txn-1",
		"paid_at":        paidAt.Format(time.RFC3339),
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var updated orderView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
	assert.Equal(t, "paid", updated.Payment.Status)
	assert.Equal(t, "txn-1", updated.Payment.TransactionID)
	require.NotNil(t, updated.Payment.PaidAt)
	assert.True(t, updated.Payment.PaidAt.Equal(paidAt))

	bad := f.do(t, http.MethodPost, "/api/v1/orders/"+view.ID+"/payment",
		map[string]string{"payment_status": "paid", "paid_at": "yesterday"}, nil)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestFulfillmentEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	created := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody("p1"), nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var view orderView
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &view))

	resp := f.do(t, http.MethodPost, "/api/v1/orders/"+view.ID+"/fulfillment", map[string]string{
		"carrier":         "CDEK",
		"tracking_number": "TRK-99",
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var updated orderView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
	assert.Equal(t, "CDEK", updated.Fulfillment.Carrier)
	assert.Equal(t, "TRK-99", updated.Fulfillment.TrackingNumber)
}

func TestOrderTimelineEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	created := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody("p1"), nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var view orderView
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &view))

	confirm := f.do(t, http.MethodPost, "/api/v1/orders/"+view.ID+"/transition",
		map[string]string{"status": "confirmed"}, nil)
	require.Equal(t, http.StatusOK, confirm.Code)

	resp := f.do(t, http.MethodGet, "/api/v1/orders/"+view.ID+"/timeline", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var timelineResp struct {
		OrderID string `json:"order_id"`
		Events  []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &timelineResp))
	assert.Equal(t, view.ID, timelineResp.OrderID)

	types := make([]string, 0, len(timelineResp.Events))
	for _, event := range timelineResp.Events {
		types = append(types, event.Type)
	}
	assert.Contains(t, types, "OrderCreated")
	assert.Contains(t, types, "OrderStatusChanged")

	missing := f.do(t, http.MethodGet, "/api/v1/orders/ghost/timeline", nil, nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestProductEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	createBody := map[string]any{
		"name":        "Denim Jacket",
		"price_minor": 690000,
		"currency":    "RUB",
		"published":   true,
		"variants": []map[string]any{
			{
				"key":  "indigo",
				"name": "Indigo",
				"hex":  "#3f5277",
				"sizes": []map[string]any{
					{"size": "S", "stock": 4, "low_stock_threshold": 1},
					{"size": "M", "stock": 6, "low_stock_threshold": 2},
				},
			},
		},
	}

	created := f.do(t, http.MethodPost, "/api/v1/products", createBody, nil)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var product productView
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &product))
	require.NotEmpty(t, product.ID)
	require.Len(t, product.Variants, 1)
	assert.Len(t, product.Variants[0].Sizes, 2)

	got := f.do(t, http.MethodGet, "/api/v1/products/"+product.ID, nil, nil)
	require.Equal(t, http.StatusOK, got.Code)

	list := f.do(t, http.MethodGet, "/api/v1/products", nil, nil)
	require.Equal(t, http.StatusOK, list.Code)
	var listResp struct {
		Products []productView `json:"products"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &listResp))
	assert.Len(t, listResp.Products, 1)

	missing := f.do(t, http.MethodGet, "/api/v1/products/ghost", nil, nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCreateProductValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/products", map[string]any{
		"name":        "",
		"price_minor": 100,
		"currency":    "RUB",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	assert.Equal(t, "validation_error", errResp.Code)
}

func TestUpdateProductPreservesLedgerStock(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	// Двигаем остаток через леджер.
	adjust := f.do(t, http.MethodPost, "/api/v1/products/p1/stock",
		map[string]any{"color": "beige", "size": "M", "delta": -3}, nil)
	require.Equal(t, http.StatusOK, adjust.Code)

	// Сохраняем карточку с устаревшим стоком в теле.
	update := map[string]any{
		"name":        "Trench Coat SS26",
		"price_minor": 1690000,
		"currency":    "RUB",
		"published":   true,
		"version":     0,
		"variants": []map[string]any{
			{
				"key":  "beige",
				"name": "Beige",
				"sizes": []map[string]any{
					{"size": "M", "stock": 100, "low_stock_threshold": 4},
				},
			},
		},
	}
	resp := f.do(t, http.MethodPut, "/api/v1/products/p1", update, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var product productView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &product))
	assert.Equal(t, "Trench Coat SS26", product.Name)
	require.Len(t, product.Variants, 1)
	require.Len(t, product.Variants[0].Sizes, 1)
	assert.Equal(t, int32(2), product.Variants[0].Sizes[0].Stock, "ledger stock must survive card update")
	assert.Equal(t, int32(4), product.Variants[0].Sizes[0].LowStockThreshold)

	// Устаревшая версия отклоняется.
	stale := f.do(t, http.MethodPut, "/api/v1/products/p1", update, nil)
	require.Equal(t, http.StatusConflict, stale.Code)
}

func TestStockEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 5)

	get := f.do(t, http.MethodGet, "/api/v1/products/p1/stock?color=beige&size=M", nil, nil)
	require.Equal(t, http.StatusOK, get.Code)
	var stockView struct {
		Stock int32 `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &stockView))
	assert.Equal(t, int32(5), stockView.Stock)

	noParams := f.do(t, http.MethodGet, "/api/v1/products/p1/stock", nil, nil)
	require.Equal(t, http.StatusBadRequest, noParams.Code)

	// Клэмп на нуле при большом отрицательном delta.
	adjust := f.do(t, http.MethodPost, "/api/v1/products/p1/stock",
		map[string]any{"color": "beige", "size": "M", "delta": -50}, nil)
	require.Equal(t, http.StatusOK, adjust.Code)
	require.NoError(t, json.Unmarshal(adjust.Body.Bytes(), &stockView))
	assert.Equal(t, int32(0), stockView.Stock)

	unknownVariant := f.do(t, http.MethodGet, "/api/v1/products/p1/stock?color=violet&size=M", nil, nil)
	require.Equal(t, http.StatusNotFound, unknownVariant.Code)

	unknownSize := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/p1/stock?color=beige&size=%s", "XL"), nil, nil)
	require.Equal(t, http.StatusNotFound, unknownSize.Code)
}
