package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StockMetrics содержит метрики движений складского леджера и переходов заказов.
type StockMetrics struct {
	// Счётчики движений леджера
	decrements         prometheus.Counter
	restores           prometheus.Counter
	oversellRejected   prometheus.Counter
	adjustmentFailures prometheus.Counter

	// Счётчики сигналов наблюдателя
	lowStockAlerts   prometheus.Counter
	outOfStockAlerts prometheus.Counter

	// Переходы жизненного цикла
	transitions        *prometheus.CounterVec
	invalidTransitions prometheus.Counter
	transitionDuration prometheus.Histogram

	// Gauge заказов, помеченных для ручной сверки
	reconciliationFlags prometheus.Counter
}

// NewStockMetrics создаёт новый экземпляр метрик леджера.
func NewStockMetrics() *StockMetrics {
	return newStockMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newStockMetricsWithRegisterer(registerer prometheus.Registerer) *StockMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StockMetrics{
		decrements: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_decrements_total",
			Help: "Total number of successful stock decrements applied by the ledger",
		}),
		restores: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_restores_total",
			Help: "Total number of stock restorations applied on order cancellation",
		}),
		oversellRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_oversell_rejected_total",
			Help: "Total number of conditional decrements rejected due to insufficient stock",
		}),
		adjustmentFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_adjustment_failures_total",
			Help: "Total number of ledger adjustments that failed and flagged reconciliation",
		}),
		lowStockAlerts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_low_alerts_total",
			Help: "Total number of low-stock alerts emitted",
		}),
		outOfStockAlerts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_out_alerts_total",
			Help: "Total number of out-of-stock alerts emitted",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_transitions_total",
			Help: "Total number of order status transitions grouped by edge",
		}, []string{"from", "to"}),
		invalidTransitions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_invalid_transitions_total",
			Help: "Total number of rejected order status transitions",
		}),
		transitionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_transition_duration_seconds",
			Help:    "Duration of order status transitions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		reconciliationFlags: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_reconciliation_flags_total",
			Help: "Total number of orders flagged for manual stock reconciliation",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordDecrement увеличивает счётчик успешных списаний.
func (m *StockMetrics) RecordDecrement() {
	m.decrements.Inc()
}

// RecordRestore увеличивает счётчик восстановлений стока.
func (m *StockMetrics) RecordRestore() {
	m.restores.Inc()
}

// RecordOversellRejected увеличивает счётчик отклонённых по остатку списаний.
func (m *StockMetrics) RecordOversellRejected() {
	m.oversellRejected.Inc()
}

// RecordAdjustmentFailure увеличивает счётчик неудачных движений леджера.
func (m *StockMetrics) RecordAdjustmentFailure() {
	m.adjustmentFailures.Inc()
}

// RecordLowStockAlert увеличивает счётчик low-stock сигналов.
func (m *StockMetrics) RecordLowStockAlert() {
	m.lowStockAlerts.Inc()
}

// RecordOutOfStockAlert увеличивает счётчик out-of-stock сигналов.
func (m *StockMetrics) RecordOutOfStockAlert() {
	m.outOfStockAlerts.Inc()
}

// RecordTransition записывает совершённый переход по ребру графа.
func (m *StockMetrics) RecordTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordInvalidTransition увеличивает счётчик отвергнутых переходов.
func (m *StockMetrics) RecordInvalidTransition() {
	m.invalidTransitions.Inc()
}

// RecordTransitionDuration записывает длительность перехода.
func (m *StockMetrics) RecordTransitionDuration(duration time.Duration) {
	m.transitionDuration.Observe(duration.Seconds())
}

// RecordReconciliationFlag увеличивает счётчик заказов, отправленных на сверку.
func (m *StockMetrics) RecordReconciliationFlag() {
	m.reconciliationFlags.Inc()
}
