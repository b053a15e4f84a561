package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/checkout"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/lifecycle"
)

// Server собирает HTTP API магазина поверх gorilla/mux.
// Транспорт тонкий: разбор запроса, вызов сервисного слоя, маппинг ошибок.
type Server struct {
	checkout    *checkout.Service
	engine      *lifecycle.Engine
	products    domain.ProductRepository
	orders      domain.OrderRepository
	timeline    domain.TimelineRepository
	idempotency domain.IdempotencyRepository
	logger      *log.Entry
}

// NewServer создаёт HTTP API сервер.
func NewServer(
	checkoutSvc *checkout.Service,
	engine *lifecycle.Engine,
	products domain.ProductRepository,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	idempotency domain.IdempotencyRepository,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Server{
		checkout:    checkoutSvc,
		engine:      engine,
		products:    products,
		orders:      orders,
		timeline:    timeline,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Router возвращает корневой http.Handler со всеми маршрутами API.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleCreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/transition", s.handleTransition).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/payment", s.handleUpdatePayment).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/fulfillment", s.handleUpdateFulfillment).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/timeline", s.handleOrderTimeline).Methods(http.MethodGet)

	api.HandleFunc("/products", s.handleCreateProduct).Methods(http.MethodPost)
	api.HandleFunc("/products", s.handleListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.handleGetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.handleUpdateProduct).Methods(http.MethodPut)
	api.HandleFunc("/products/{id}/stock", s.handleGetStock).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/stock", s.handleAdjustStock).Methods(http.MethodPost)

	return s.logMiddleware(r)
}

func (s *Server) logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		s.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("http request handled")
	})
}
