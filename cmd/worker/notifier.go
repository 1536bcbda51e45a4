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
	"github.com/eventpay/payment-events/internal/kafka"
	"github.com/eventpay/payment-events/internal/logger"
	"github.com/eventpay/payment-events/internal/metrics"
	"github.com/eventpay/payment-events/internal/notify"
	"github.com/eventpay/payment-events/internal/repository"
	"github.com/eventpay/payment-events/internal/retry"
	"github.com/eventpay/payment-events/internal/worker"
)

var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Run the notification delivery worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) DB connection (MySQL, for subscriber lookup)
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

		subsRepo := repository.NewSubscribersRepository(dbx)

		// 3) kafka consumer on the outbox relay topic
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "payev-notifier"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          repository.NotificationsKafkaTopic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		// 4) sender with per-endpoint breakers
		sender := notify.NewSender(
			time.Duration(cfg.Notifier.TimeoutMs)*time.Millisecond,
			cfg.Notifier.Breaker.FailThreshold,
			time.Duration(cfg.Notifier.Breaker.OpenForMs)*time.Millisecond,
		)

		w := worker.NewNotifier(consumer, subsRepo, sender, logger.Log)

		// tune knobs
		if cfg.Notifier.Workers > 0 {
			w.Workers = cfg.Notifier.Workers
		}
		if cfg.Notifier.Policy.MaxAttempts > 0 {
			w.Policy = retry.Policy{
				MaxAttempts:    cfg.Notifier.Policy.MaxAttempts,
				InitialDelay:   cfg.Notifier.Policy.InitialDelay,
				RateLimitDelay: cfg.Notifier.Policy.RateLimitDelay,
			}
		}

		// 5) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return w.Run(ctx)
	},
}
