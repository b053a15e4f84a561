package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/checkout"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/lifecycle"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Variant   string `json:"variant"`
	Size      string `json:"size"`
	Qty       int32  `json:"qty"`
}

type createOrderRequest struct {
	Items    []orderItemRequest `json:"items"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	Shipping struct {
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		Region     string `json:"region"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	} `json:"shipping"`
	PaymentMethod string `json:"payment_method"`
	ShippingMinor int64  `json:"shipping_minor"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, fmt.Errorf("read request body: %w", err))
		return
	}

	key := r.Header.Get(idempotencyHeader)
	if key != "" && s.idempotency != nil {
		if done := s.beginIdempotent(w, key, body); done {
			return
		}
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.finishIdempotent(key, http.StatusBadRequest, errorResponse{Error: "invalid json body", Code: "validation_error"}, false)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Code: "validation_error"})
		return
	}

	input := checkout.Input{
		Customer: domain.CustomerInfo{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Shipping: domain.ShippingAddress{
			Line1:      req.Shipping.Line1,
			Line2:      req.Shipping.Line2,
			City:       req.Shipping.City,
			Region:     req.Shipping.Region,
			PostalCode: req.Shipping.PostalCode,
			Country:    req.Shipping.Country,
		},
		PaymentMethod: req.PaymentMethod,
		ShippingMinor: req.ShippingMinor,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, checkout.ItemInput{
			ProductID: item.ProductID,
			Variant:   item.Variant,
			Size:      domain.Size(item.Size),
			Qty:       item.Qty,
		})
	}

	order, err := s.checkout.PlaceOrder(input)
	if err != nil {
		status, code := classifyError(err)
		s.finishIdempotent(key, status, errorResponse{Error: err.Error(), Code: code}, false)
		s.writeError(w, err)
		return
	}

	view := orderToView(order)
	s.finishIdempotent(key, http.StatusCreated, view, true)
	s.writeJSON(w, http.StatusCreated, view)
}

// beginIdempotent регистрирует ключ идемпотентности. Возвращает true, если
// ответ уже отправлен (реплей закешированного результата или конфликт ключа).
func (s *Server) beginIdempotent(w http.ResponseWriter, key string, body []byte) bool {
	hash := sha256.Sum256(body)
	requestHash := hex.EncodeToString(hash[:])

	record, err := s.idempotency.CreateProcessing(key, requestHash, time.Now().UTC().Add(idempotencyTTL))
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		s.writeError(w, err)
		return true
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status == domain.IdempotencyStatusProcessing {
			s.writeJSON(w, http.StatusConflict, errorResponse{
				Error: "request with this idempotency key is still being processed",
				Code:  "idempotency_in_flight",
			})
			return true
		}
		// Реплей закешированного ответа повторного запроса.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
		return true
	default:
		s.writeError(w, err)
		return true
	}
}

// finishIdempotent кеширует итоговый ответ под ключом идемпотентности.
func (s *Server) finishIdempotent(key string, status int, body any, success bool) {
	if key == "" || s.idempotency == nil {
		return
	}

	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.WithError(err).Warn("failed to marshal idempotent response")
		return
	}

	if success {
		err = s.idempotency.MarkDone(key, payload, status)
	} else {
		err = s.idempotency.MarkFailed(key, payload, status)
	}
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := s.orders.Get(id)
	if err != nil {
		// Поиск по человекочитаемому номеру как запасной вариант.
		if errors.Is(err, domain.ErrOrderNotFound) {
			if byNumber, numErr := s.orders.GetByNumber(id); numErr == nil {
				s.writeJSON(w, http.StatusOK, orderToView(byNumber))
				return
			}
		}
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, orderToView(order))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email query parameter is required", Code: "validation_error"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer", Code: "validation_error"})
			return
		}
		limit = parsed
	}

	orders, err := s.orders.ListByEmail(email, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, orderToView(order))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Code: "validation_error"})
		return
	}

	order, err := s.engine.Transition(id, domain.OrderStatus(req.Status), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, orderToView(order))
}

type paymentRequest struct {
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id"`
	PaidAt        string `json:"paid_at"`
}

func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Code: "validation_error"})
		return
	}

	update := lifecycle.PaymentUpdate{
		Status:        domain.PaymentStatus(req.PaymentStatus),
		TransactionID: req.TransactionID,
	}
	if req.PaidAt != "" {
		paidAt, err := time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "paid_at must be RFC3339", Code: "validation_error"})
			return
		}
		update.PaidAt = paidAt
	}

	order, err := s.engine.UpdatePayment(id, update)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, orderToView(order))
}

type fulfillmentRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	ShippedAt      string `json:"shipped_at"`
	DeliveredAt    string `json:"delivered_at"`
}

func (s *Server) handleUpdateFulfillment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req fulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Code: "validation_error"})
		return
	}

	update := lifecycle.FulfillmentUpdate{
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
	}
	if req.ShippedAt != "" {
		shippedAt, err := time.Parse(time.RFC3339, req.ShippedAt)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "shipped_at must be RFC3339", Code: "validation_error"})
			return
		}
		update.ShippedAt = shippedAt
	}
	if req.DeliveredAt != "" {
		deliveredAt, err := time.Parse(time.RFC3339, req.DeliveredAt)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "delivered_at must be RFC3339", Code: "validation_error"})
			return
		}
		update.DeliveredAt = deliveredAt
	}

	order, err := s.engine.UpdateFulfillment(id, update)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, orderToView(order))
}

func (s *Server) handleOrderTimeline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.orders.Get(id); err != nil {
		s.writeError(w, err)
		return
	}

	events, err := s.timeline.List(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	type eventView struct {
		Type     string    `json:"type"`
		Reason   string    `json:"reason,omitempty"`
		Occurred time.Time `json:"occurred"`
	}
	views := make([]eventView, 0, len(events))
	for _, event := range events {
		views = append(views, eventView{Type: event.Type, Reason: event.Reason, Occurred: event.Occurred})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "events": views})
}
