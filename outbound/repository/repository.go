package repository

import (
	"workshop-enrollment/common/contract"

	"github.com/jackc/pgx/v5"
)

// Queries holds hand-written SQL for the enrollment core. It works against a pool,
// a single connection or a transaction.
type Queries struct {
	db contract.DbConn
}

func New(db contract.DbConn) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
