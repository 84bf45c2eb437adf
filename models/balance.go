package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Balance struct {
	ID        int64           `db:"id" json:"-"`
	ProfileID int64           `db:"profile_id" json:"profile_id"`
	Fiat      decimal.Decimal `db:"fiat_balance" json:"fiat_balance"`
	Frozen    decimal.Decimal `db:"frozen_balance" json:"frozen_balance"`
	Bonus     decimal.Decimal `db:"bonus_balance" json:"bonus_balance"`
	Forfeited decimal.Decimal `db:"forfeited_balance" json:"forfeited_balance"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Total is the sum of all four accounts, forfeited included.
func (b Balance) Total() decimal.Decimal {
	return b.Fiat.Add(b.Frozen).Add(b.Bonus).Add(b.Forfeited)
}

// IsValid reports whether no account went negative.
func (b Balance) IsValid() bool {
	return !b.Fiat.IsNegative() && !b.Frozen.IsNegative() &&
		!b.Bonus.IsNegative() && !b.Forfeited.IsNegative()
}

type BonusTransferInput struct {
	RecipientID int64           `json:"recipient_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Comment     string          `json:"comment" binding:"max=155"`
}
