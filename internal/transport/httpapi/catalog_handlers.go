package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceMinor  int64  `json:"price_minor"`
	Currency    string `json:"currency"`
	Published   bool   `json:"published"`
	Variants    []struct {
		Key   string `json:"key"`
		Name  string `json:"name"`
		Hex   string `json:"hex"`
		Sizes []struct {
			Size              string `json:"size"`
			Stock             int32  `json:"stock"`
			LowStockThreshold int32  `json:"low_stock_threshold"`
		} `json:"sizes"`
	} `json:"variants"`
}

func (r *productRequest) toDomain(id string, version int64, now time.Time) domain.Product {
	product := domain.Product{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		PriceMinor:  r.PriceMinor,
		Currency:    r.Currency,
		Published:   r.Published,
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, v := range r.Variants {
		variant := domain.ColorVariant{Key: v.Key, Name: v.Name, Hex: v.Hex}
		for _, row := range v.Sizes {
			variant.Sizes = append(variant.Sizes, domain.SizeInventory{
				Size:              domain.Size(row.Size),
				Stock:             row.Stock,
				LowStockThreshold: row.LowStockThreshold,
			})
		}
		product.Variants = append(product.Variants, variant)
	}
	return product
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Code: "validation_error"})
		return
	}

	product := req.toDomain(uuid.NewString(), 0, time.Now().UTC())
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		s.writeError(w, errs[0])
		return
	}

	if err := s.products.Create(product); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, productToView(product))
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer", Code: "validation_error"})
			return
		}
		limit = parsed
	}

	products, err := s.products.List(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]productView, 0, len(products))
	for _, product := range products {
		views = append(views, productToView(product))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"products": views})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	product, err := s.products.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, productToView(product))
}

type updateProductRequest struct {
	productRequest
	Version int64 `json:"version"`
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Code: "validation_error"})
		return
	}

	product := req.toDomain(id, req.Version, time.Now().UTC())
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		s.writeError(w, errs[0])
		return
	}

	if err := s.products.Save(product); err != nil {
		s.writeError(w, err)
		return
	}

	// Перечитываем карточку: Save не меняет остатки, и клиент
	// должен увидеть актуальное состояние леджера.
	updated, err := s.products.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, productToView(updated))
}

func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	color := r.URL.Query().Get("color")
	size := r.URL.Query().Get("size")
	if color == "" || size == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "color and size query parameters are required", Code: "validation_error"})
		return
	}

	stock, err := s.products.GetStock(id, color, domain.Size(size))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"product_id": id,
		"color":      color,
		"size":       size,
		"stock":      stock,
	})
}

type adjustStockRequest struct {
	Color string `json:"color"`
	Size  string `json:"size"`
	Delta int32  `json:"delta"`
}

func (s *Server) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Code: "validation_error"})
		return
	}
	if req.Color == "" || req.Size == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "color and size are required", Code: "validation_error"})
		return
	}

	stock, err := s.products.AdjustStock(id, req.Color, domain.Size(req.Size), req.Delta)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"product_id": id,
		"color":      req.Color,
		"size":       req.Size,
		"stock":      stock,
	})
}
