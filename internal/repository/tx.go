package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// TxRunner runs a function inside a single database transaction,
// committing on nil and rolling back on error.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type SQLTxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) *SQLTxRunner {
	return &SQLTxRunner{db: db}
}

var _ TxRunner = (*SQLTxRunner)(nil)

func (r *SQLTxRunner) RunInTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
