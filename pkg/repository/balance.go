package repository

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"study_ledger_back/models"
)

const balanceColumns = `id, profile_id, fiat_balance, frozen_balance, bonus_balance, forfeited_balance, updated_at`

// CreateBalance provisions a zeroed balance. Calling it again returns the existing row.
func (r *Repository) CreateBalance(ctx context.Context, profileID int64) (models.Balance, error) {
	query := `INSERT INTO balances (profile_id) VALUES ($1) ON CONFLICT (profile_id) DO NOTHING`
	if _, err := r.ext.ExecContext(ctx, query, profileID); err != nil {
		return models.Balance{}, errors.Wrapf(err, "create balance for profile %d", profileID)
	}
	return r.GetBalance(ctx, profileID)
}

func (r *Repository) GetBalance(ctx context.Context, profileID int64) (models.Balance, error) {
	var b models.Balance
	query := `SELECT ` + balanceColumns + ` FROM balances WHERE profile_id = $1`
	if err := sqlx.GetContext(ctx, r.ext, &b, query, profileID); err != nil {
		return models.Balance{}, errors.Wrapf(notFound(err), "get balance for profile %d", profileID)
	}
	return b, nil
}

func (r *Repository) LockBalances(ctx context.Context, profileIDs ...int64) (map[int64]models.Balance, error) {
	ids := make([]int64, 0, len(profileIDs))
	seen := make(map[int64]struct{}, len(profileIDs))
	for _, id := range profileIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	query := `SELECT ` + balanceColumns + ` FROM balances WHERE profile_id = $1 FOR UPDATE`
	locked := make(map[int64]models.Balance, len(ids))
	for _, id := range ids {
		var b models.Balance
		if err := sqlx.GetContext(ctx, r.ext, &b, query, id); err != nil {
			return nil, errors.Wrapf(notFound(err), "lock balance for profile %d", id)
		}
		locked[id] = b
	}
	return locked, nil
}

// SaveBalance writes all four accounts in one statement.
func (r *Repository) SaveBalance(ctx context.Context, b models.Balance) error {
	query := `UPDATE balances
		SET fiat_balance = $1, frozen_balance = $2, bonus_balance = $3, forfeited_balance = $4, updated_at = NOW()
		WHERE profile_id = $5`
	res, err := r.ext.ExecContext(ctx, query, b.Fiat, b.Frozen, b.Bonus, b.Forfeited, b.ProfileID)
	if err != nil {
		return errors.Wrapf(err, "save balance for profile %d", b.ProfileID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "save balance rows affected")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "save balance for profile %d", b.ProfileID)
	}
	return nil
}
