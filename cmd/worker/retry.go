package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/eventpay/payment-events/internal/config"
	"github.com/eventpay/payment-events/internal/db"
	"github.com/eventpay/payment-events/internal/logger"
	"github.com/eventpay/payment-events/internal/metrics"
	"github.com/eventpay/payment-events/internal/payment"
	"github.com/eventpay/payment-events/internal/processor"
	"github.com/eventpay/payment-events/internal/provider"
	"github.com/eventpay/payment-events/internal/repository"
	"github.com/eventpay/payment-events/internal/worker"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Run the dead-letter retry worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) DB connection (MySQL)
		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		// 3) pipeline wiring
		processingRepo := repository.NewProcessingRepository(dbx)
		paymentsRepo := repository.NewPaymentsRepository(dbx)
		outboxRepo := repository.NewOutboxRepository(dbx)
		applier := payment.NewApplier(repository.NewTxRunner(dbx), paymentsRepo, outboxRepo)
		proc := processor.New(processingRepo, logger.Log)

		fetcher := provider.NewHTTPClient(
			cfg.Provider.BaseURL,
			cfg.Provider.APIKey,
			time.Duration(cfg.Provider.TimeoutMs)*time.Millisecond,
		)

		w := worker.NewRetryWorker(processingRepo, proc, fetcher, applier.HandlerFor, logger.Log)

		// tune knobs
		if cfg.Retry.MaxRetries > 0 {
			w.MaxRetries = cfg.Retry.MaxRetries
		}
		if cfg.Retry.BaseInterval > 0 {
			w.BaseInterval = cfg.Retry.BaseInterval
		}
		if cfg.Retry.FetchTimeout > 0 {
			w.FetchTimeout = cfg.Retry.FetchTimeout
		}
		if cfg.Retry.BatchLimit > 0 {
			w.BatchLimit = cfg.Retry.BatchLimit
		}
		if cfg.Retry.StaleAfter > 0 {
			w.StaleAfter = cfg.Retry.StaleAfter
		}

		// 4) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return w.Run(ctx, cfg.Retry.Interval)
	},
}
