package model

import "time"

// Subscriber is an endpoint that receives payment notifications after an
// event is applied.
type Subscriber struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Account   string    `db:"account"`
	URL       string    `db:"url"`
	Secret    string    `db:"secret"`
	Status    string    `db:"status"` // active|suspended
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
