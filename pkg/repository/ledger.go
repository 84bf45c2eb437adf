package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"study_ledger_back/models"
)

const (
	transactionColumns = `id, profile_id, target_profile_id, amount, transaction_type, status, comment, dsc, error_message, created_at`

	defaultListLimit = 100
	maxListLimit     = 500
)

// CreateTransaction appends a ledger entry and fills its id and created_at.
func (r *Repository) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `INSERT INTO transactions
		(profile_id, target_profile_id, amount, transaction_type, status, comment, dsc, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	row := r.ext.QueryRowxContext(ctx, query,
		t.ProfileID, t.TargetProfileID, t.Amount, t.Type, t.Status, t.Comment, t.Dsc, t.ErrorMessage)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return errors.Wrapf(err, "create %s transaction for profile %d", t.Type, t.ProfileID)
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (models.Transaction, error) {
	var t models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.ext, &t, query, id); err != nil {
		return models.Transaction{}, errors.Wrapf(notFound(err), "get transaction %d", id)
	}
	return t, nil
}

// GetTransactions lists entries newest first. A profile filter matches both sides of an entry.
func (r *Repository) GetTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ProfileID != nil {
		p := arg(*filter.ProfileID)
		where = append(where, fmt.Sprintf("(profile_id = %s OR target_profile_id = %s)", p, p))
	}
	if filter.Type != "" {
		where = append(where, "transaction_type = "+arg(filter.Type))
	}
	if filter.MinAmount != nil {
		where = append(where, "amount >= "+arg(*filter.MinAmount))
	}
	if filter.MaxAmount != nil {
		where = append(where, "amount <= "+arg(*filter.MaxAmount))
	}
	if filter.StartDate != nil {
		where = append(where, "created_at >= "+arg(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, "created_at <= "+arg(*filter.EndDate))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	query += " LIMIT " + arg(clampLimit(filter.Limit)) + " OFFSET " + arg(max(filter.Offset, 0))

	transactions := []models.Transaction{}
	if err := sqlx.SelectContext(ctx, r.ext, &transactions, query, args...); err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	return transactions, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
