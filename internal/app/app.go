package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/the-white-platform/fashion-web-sub000/internal/health"
	"github.com/the-white-platform/fashion-web-sub000/internal/messaging/kafka"
	"github.com/the-white-platform/fashion-web-sub000/internal/metrics"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/checkout"
	idemsvc "github.com/the-white-platform/fashion-web-sub000/internal/service/idempotency"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/lifecycle"
	outboxsvc "github.com/the-white-platform/fashion-web-sub000/internal/service/outbox"
	"github.com/the-white-platform/fashion-web-sub000/internal/service/stockalert"
	"github.com/the-white-platform/fashion-web-sub000/internal/transport/httpapi"
	"github.com/the-white-platform/fashion-web-sub000/internal/version"
)

// Run собирает зависимости и запускает сервис до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	stockMetrics := metrics.NewStockMetrics()
	notifier := stockalert.NewNotifier(deps.Outbox, stockMetrics, logger.WithField("component", "stock-alert"))

	engine := lifecycle.NewEngine(
		deps.Orders,
		deps.Products,
		deps.Outbox,
		deps.Timeline,
		notifier,
		logger.WithField("component", "lifecycle"),
	)
	checkoutSvc := checkout.NewService(
		deps.Products,
		deps.Orders,
		deps.Outbox,
		deps.Timeline,
		logger.WithField("component", "checkout"),
	)

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	// Outbox worker публикует события в Kafka; без брокера он отключён,
	// и события остаются pending в outbox.
	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, cfg.OrderEventsTopic, cfg.StockAlertsTopic)
		worker := outboxsvc.NewWorker(
			deps.Outbox,
			publisher,
			outboxsvc.WithLogger(logger.WithField("component", "outbox-worker")),
			outboxsvc.WithPollInterval(cfg.OutboxPollInterval),
			outboxsvc.WithBatchSize(cfg.OutboxBatchSize),
			outboxsvc.WithMaxAttempts(cfg.OutboxMaxAttempts),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(workerCtx)
		}()
	} else {
		logger.Info("kafka is not configured, outbox worker is disabled")
	}

	cleanupWorker := idemsvc.NewCleanupWorker(
		deps.Idempotency,
		idemsvc.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idemsvc.WithInterval(cfg.IdempotencyCleanupInterval),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanupWorker.Run(workerCtx)
	}()

	// Consumer колбэков платёжного шлюза.
	var paymentConsumer *kafka.Consumer
	if kafkaProducer != nil {
		handler := kafka.NewPaymentEventHandler(engine)
		consumer, err := kafka.NewConsumerWithDLQ(
			strings.Split(cfg.KafkaBrokers, ","),
			cfg.KafkaGroupID,
			[]string{cfg.PaymentTopic},
			handler,
			kafkaProducer,
			3,
		)
		if err != nil {
			logger.WithError(err).Warn("failed to create payment consumer, continuing without it")
		} else {
			paymentConsumer = consumer
			if err := paymentConsumer.Start(workerCtx); err != nil {
				logger.WithError(err).Warn("failed to start payment consumer")
			}
		}
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Store.Ping(checkCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	api := httpapi.NewServer(
		checkoutSvc,
		engine,
		deps.Products,
		deps.Orders,
		deps.Timeline,
		deps.Idempotency,
		logger.WithField("component", "httpapi"),
	)
	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)

		if paymentConsumer != nil {
			if err := paymentConsumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop payment consumer")
			}
		}

		cancelWorkers()
		wg.Wait()
		return ctx.Err()

	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)

		if paymentConsumer != nil {
			_ = paymentConsumer.Stop()
		}

		cancelWorkers()
		wg.Wait()

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
