package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/eventpay/payment-events/internal/config"
	"github.com/eventpay/payment-events/internal/http/middleware"
	"github.com/eventpay/payment-events/internal/logger"
	"github.com/eventpay/payment-events/internal/metrics"
	"github.com/eventpay/payment-events/internal/payment"
	"github.com/eventpay/payment-events/internal/processor"
	"github.com/eventpay/payment-events/internal/provider"
	"github.com/eventpay/payment-events/internal/repository"
	"github.com/eventpay/payment-events/internal/worker"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	processingRepo := repository.NewProcessingRepository(mysqlDB)
	paymentsRepo := repository.NewPaymentsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	// repos (ClickHouse)
	chEventsRepo := repository.NewCHEventsRepository(clickhouseDB)

	// pipeline
	applier := payment.NewApplier(repository.NewTxRunner(mysqlDB), paymentsRepo, outboxRepo)
	proc := processor.New(processingRepo, logger.Log)

	fetcher := provider.NewHTTPClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		time.Duration(cfg.Provider.TimeoutMs)*time.Millisecond,
	)
	retryWorker := worker.NewRetryWorker(processingRepo, proc, fetcher, applier.HandlerFor, logger.Log)
	if cfg.Retry.MaxRetries > 0 {
		retryWorker.MaxRetries = cfg.Retry.MaxRetries
	}
	if cfg.Retry.BaseInterval > 0 {
		retryWorker.BaseInterval = cfg.Retry.BaseInterval
	}
	if cfg.Retry.FetchTimeout > 0 {
		retryWorker.FetchTimeout = cfg.Retry.FetchTimeout
	}
	if cfg.Retry.BatchLimit > 0 {
		retryWorker.BatchLimit = cfg.Retry.BatchLimit
	}
	if cfg.Retry.StaleAfter > 0 {
		retryWorker.StaleAfter = cfg.Retry.StaleAfter
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.SharedTokenMiddleware(cfg.Webhook.Token)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:src:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/webhooks/stripe", webhookHandler(proc, applier.HandlerFor))
	v1.POST("/retry/run", retryRunHandler(retryWorker))
	v1.GET("/reports/events", listEventsHandler(chEventsRepo))
	v1.GET("/attendances/:id/payment", paymentStateHandler(paymentsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
