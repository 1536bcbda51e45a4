package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/eventpay/payment-events/internal/model"
)

type SubscribersRepository interface {
	ListActive(ctx context.Context) ([]model.Subscriber, error)
}

type SubscribersRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubscribersRepository(db *sqlx.DB) *SubscribersRepositoryImpl {
	return &SubscribersRepositoryImpl{db: db}
}

var _ SubscribersRepository = (*SubscribersRepositoryImpl)(nil)

func (r *SubscribersRepositoryImpl) ListActive(ctx context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	err := r.db.SelectContext(ctx, &subs, `
		SELECT id, name, account, url, secret, status, created_at, updated_at
		  FROM subscribers
		 WHERE status = 'active'
	`)
	if err != nil {
		return nil, err
	}
	return subs, nil
}
