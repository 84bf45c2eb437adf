package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalCancelled WithdrawalStatus = "cancelled"
	// WithdrawalCancelledWhores is the gateway/engine failure state; funds are returned to fiat.
	WithdrawalCancelledWhores WithdrawalStatus = "cancelled_whores"
)

func (s WithdrawalStatus) Terminal() bool {
	switch s {
	case WithdrawalCompleted, WithdrawalCancelled, WithdrawalCancelledWhores:
		return true
	}
	return false
}

func (s WithdrawalStatus) Valid() bool {
	return s == WithdrawalPending || s.Terminal()
}

type WithdrawalRequest struct {
	ID            int64            `db:"id" json:"id"`
	UserID        int64            `db:"user_id" json:"user_id"`
	Amount        decimal.Decimal  `db:"amount" json:"amount"`
	CardNumber    string           `db:"card_number" json:"card_number"`
	Status        WithdrawalStatus `db:"status" json:"status"`
	TransactionID *int64           `db:"transaction_id" json:"transaction_id,omitempty"`
	SubmittedAt   time.Time        `db:"date_submitted" json:"date_submitted"`
	UpdatedAt     time.Time        `db:"date_updated" json:"date_updated"`
	CompletedAt   *time.Time       `db:"date_completed" json:"date_completed,omitempty"`
	Comment       *string          `db:"comment" json:"comment,omitempty"`
	CommentUser   *string          `db:"comment_user" json:"comment_user,omitempty"`
	CommentWhores *string          `db:"comment_whores" json:"comment_whores,omitempty"`
}

type WithdrawalInput struct {
	UserID     int64           `json:"-"`
	Amount     decimal.Decimal `json:"amount"`
	CardNumber string          `json:"card_number" binding:"required,max=255"`
	Comment    string          `json:"comment" binding:"max=255"`
}

type WithdrawalDecisionInput struct {
	Action  string `json:"action" binding:"omitempty,oneof=approve reject"`
	Comment string `json:"comment" binding:"max=255"`
}

type WithdrawalFilter struct {
	UserID    *int64
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Statuses  []WithdrawalStatus
}
