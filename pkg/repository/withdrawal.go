package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"study_ledger_back/models"
)

const withdrawalColumns = `id, user_id, amount, card_number, status, transaction_id,
	date_submitted, date_updated, date_completed, comment, comment_user, comment_whores`

func (r *Repository) CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	query := `INSERT INTO withdrawal_requests
		(user_id, amount, card_number, status, transaction_id, date_completed, comment, comment_user, comment_whores)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, date_submitted, date_updated`
	row := r.ext.QueryRowxContext(ctx, query,
		w.UserID, w.Amount, w.CardNumber, w.Status, w.TransactionID, w.CompletedAt,
		w.Comment, w.CommentUser, w.CommentWhores)
	if err := row.Scan(&w.ID, &w.SubmittedAt, &w.UpdatedAt); err != nil {
		return errors.Wrapf(err, "create withdrawal request for user %d", w.UserID)
	}
	return nil
}

func (r *Repository) GetWithdrawal(ctx context.Context, id int64) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.ext, &w, query, id); err != nil {
		return models.WithdrawalRequest{}, errors.Wrapf(notFound(err), "get withdrawal request %d", id)
	}
	return w, nil
}

// UpdateWithdrawalDecision persists a decision only while the row still has status from.
// ErrStaleStatus means another decision won.
func (r *Repository) UpdateWithdrawalDecision(ctx context.Context, w *models.WithdrawalRequest, from models.WithdrawalStatus) error {
	query := `UPDATE withdrawal_requests
		SET status = $1, transaction_id = $2, date_completed = $3, comment = $4, comment_whores = $5, date_updated = NOW()
		WHERE id = $6 AND status = $7
		RETURNING date_updated`
	row := r.ext.QueryRowxContext(ctx, query,
		w.Status, w.TransactionID, w.CompletedAt, w.Comment, w.CommentWhores, w.ID, from)
	if err := row.Scan(&w.UpdatedAt); err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return errors.Wrapf(ErrStaleStatus, "withdrawal request %d is no longer %s", w.ID, from)
		}
		return errors.Wrapf(err, "update withdrawal request %d", w.ID)
	}
	return nil
}

func (r *Repository) GetWithdrawals(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != nil {
		where = append(where, "user_id = "+arg(*filter.UserID))
	}
	if filter.MinAmount != nil {
		where = append(where, "amount >= "+arg(*filter.MinAmount))
	}
	if filter.MaxAmount != nil {
		where = append(where, "amount <= "+arg(*filter.MaxAmount))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(pq.Array(statuses))+")")
	}

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date_submitted DESC, id DESC"

	requests := []models.WithdrawalRequest{}
	if err := sqlx.SelectContext(ctx, r.ext, &requests, query, args...); err != nil {
		return nil, errors.Wrap(err, "list withdrawal requests")
	}
	return requests, nil
}

// CompletedWithdrawalDates returns submission times of the user's completed requests since the given time.
func (r *Repository) CompletedWithdrawalDates(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	query := `SELECT date_submitted FROM withdrawal_requests
		WHERE user_id = $1 AND status = $2 AND date_submitted >= $3
		ORDER BY date_submitted`
	dates := []time.Time{}
	if err := sqlx.SelectContext(ctx, r.ext, &dates, query, userID, models.WithdrawalCompleted, since); err != nil {
		return nil, errors.Wrapf(err, "completed withdrawals for user %d", userID)
	}
	return dates, nil
}
