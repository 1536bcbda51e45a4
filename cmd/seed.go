package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/eventpay/payment-events/internal/config"
	"github.com/eventpay/payment-events/internal/db"
	"github.com/eventpay/payment-events/internal/model"
	"github.com/eventpay/payment-events/internal/util"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo subscribers and payment rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo subscribers...")
		if err := seedSubscribers(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seeding demo payments...")
		if err := seedPayments(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedSubscribers inserts deterministic demo notification endpoints (idempotent).
func seedSubscribers(dbx *sqlx.DB) error {
	subs := []model.Subscriber{
		{
			Name:    "Organizer Dashboard",
			Account: "acct_demo_org",
			URL:     "http://localhost:9001/hooks/payments",
			Secret:  "11111111111111111111111111111111",
			Status:  "active",
		},
		{
			Name:    "Accounting Export",
			Account: "acct_demo_acc",
			URL:     "http://localhost:9002/hooks/payments",
			Secret:  "22222222222222222222222222222222",
			Status:  "active",
		},
		{
			Name:    "Suspended Endpoint",
			Account: "acct_demo_old",
			URL:     "http://localhost:9003/hooks/payments",
			Secret:  "33333333333333333333333333333333",
			Status:  "suspended",
		},
	}

	// idempotent upsert based on url (UNIQUE)
	const q = `
INSERT INTO subscribers
    (name, account, url, secret, status, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name       = VALUES(name),
    account    = VALUES(account),
    status     = VALUES(status),
    updated_at = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, s := range subs {
		if _, err := tx.Exec(q, s.Name, s.Account, s.URL, s.Secret, s.Status, now, now); err != nil {
			return fmt.Errorf("insert subscriber %q: %w", s.Name, err)
		}
	}

	return tx.Commit()
}

// seedPayments inserts a duplicate-row fixture for one attendance: a stale
// pending row touched recently plus a paid row whose paid_at is older, so
// the resolver has something real to disambiguate.
func seedPayments(dbx *sqlx.DB) error {
	const q = `
INSERT INTO payments
    (id, attendance_id, method, status, amount, paid_at, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE updated_at = VALUES(updated_at)
`
	now := time.Now()
	paidAt := now.Add(-2 * time.Hour)

	rows := []struct {
		id        string
		status    string
		paidAt    *time.Time
		createdAt time.Time
		updatedAt time.Time
	}{
		// first attempt, abandoned at checkout
		{util.New(), "pending", nil, now.Add(-3 * time.Hour), now.Add(-30 * time.Minute)},
		// retried attempt that completed
		{util.New(), "paid", &paidAt, now.Add(-2*time.Hour - 5*time.Minute), now.Add(-2 * time.Hour)},
	}

	for _, r := range rows {
		_, err := dbx.Exec(q, r.id, "att_demo_001", "card", r.status, int64(2500), r.paidAt, r.createdAt, r.updatedAt)
		if err != nil {
			return fmt.Errorf("insert payment %s: %w", r.id, err)
		}
	}
	return nil
}
