package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"study_ledger_back/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus is returned when a conditional status update matched no row.
	ErrStaleStatus = errors.New("record status changed concurrently")
)

type Balance interface {
	CreateBalance(ctx context.Context, profileID int64) (models.Balance, error)
	GetBalance(ctx context.Context, profileID int64) (models.Balance, error)
	// LockBalances locks rows in ascending profile id order. Only valid inside InTx.
	LockBalances(ctx context.Context, profileIDs ...int64) (map[int64]models.Balance, error)
	SaveBalance(ctx context.Context, b models.Balance) error
}

type Ledger interface {
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id int64) (models.Transaction, error)
	GetTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
}

type Withdrawal interface {
	CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id int64) (models.WithdrawalRequest, error)
	UpdateWithdrawalDecision(ctx context.Context, w *models.WithdrawalRequest, from models.WithdrawalStatus) error
	GetWithdrawals(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalRequest, error)
	CompletedWithdrawalDates(ctx context.Context, userID int64, since time.Time) ([]time.Time, error)
}

// Store is the unit of work handed to services. Inside InTx every call runs on the same
// database transaction; fn's error rolls it back.
type Store interface {
	Balance
	Ledger
	Withdrawal
	InTx(ctx context.Context, fn func(Store) error) error
}

type Repository struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, ext: db}
}

func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	if r.db == nil {
		// already inside a transaction
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}

	if err := fn(&Repository{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
